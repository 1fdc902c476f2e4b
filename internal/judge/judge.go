// Package judge scores completed exchanges after the fact, using a
// secondary model. Judgments are advisory: anything that goes wrong here is
// logged and dropped, never retried and never surfaced to the user path.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
)

const (
	defaultTimeout = 20 * time.Second
	judgeMaxTokens = 256

	// Insight bucket the original pipeline accumulated judge notes into.
	insightRoute   = "empathy"
	insightPattern = "generic"
)

// Judgment is one append-only quality record, the only input the threshold
// tuner reads.
type Judgment struct {
	UserID         string
	SessionID      string
	MessageExcerpt string
	ReplyExcerpt   string
	Empathy        float64
	Helpfulness    float64
	Safety         float64
	Notes          string
}

// Store persists judgments and folds notes into the insight buckets.
type Store interface {
	InsertJudgment(rec Judgment) error
	UpsertPromptInsight(route, pattern, insight string) error
}

// Exchange is the completed turn handed to the judge.
type Exchange struct {
	UserID         string
	SessionID      string
	Message        string
	Reply          string
	SessionSummary string
	LongTermMemory []string
}

// Judge scores exchanges out-of-band. It has no deadline coupling to the
// user-facing request; callers dispatch it on a detached context.
type Judge struct {
	store   Store
	client  backend.Client
	timeout time.Duration
}

func NewJudge(store Store, client backend.Client, timeout time.Duration) *Judge {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Judge{store: store, client: client, timeout: timeout}
}

// Judge scores one exchange and persists the result. No-ops when the judge
// model is not configured. A response that fails to parse is dropped —
// judgments are advisory, a defaulted score would be worse than none.
func (j *Judge) Judge(ctx context.Context, ex Exchange) {
	if j.client == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	resp, err := j.client.Complete(callCtx, backend.Request{
		Message:   buildJudgePrompt(ex),
		MaxTokens: judgeMaxTokens,
	})
	if err != nil {
		log.Printf("judge call error (judgment dropped): %v", err)
		return
	}

	scores, err := parseJudgeResponse(resp.Text)
	if err != nil {
		log.Printf("judge parse error (judgment dropped): %v", err)
		return
	}

	rec := Judgment{
		UserID:         ex.UserID,
		SessionID:      ex.SessionID,
		MessageExcerpt: ex.Message,
		ReplyExcerpt:   ex.Reply,
		Empathy:        scores.Empathy,
		Helpfulness:    scores.Helpfulness,
		Safety:         scores.Safety,
		Notes:          scores.Notes,
	}
	if err := j.store.InsertJudgment(rec); err != nil {
		log.Printf("judge insert error (ignored): %v", err)
		return
	}
	log.Printf("judge scored session=%s empathy=%.2f helpfulness=%.2f safety=%.2f",
		ex.SessionID, scores.Empathy, scores.Helpfulness, scores.Safety)

	if scores.Notes != "" {
		if err := j.store.UpsertPromptInsight(insightRoute, insightPattern, scores.Notes); err != nil {
			log.Printf("judge insight upsert error (ignored): %v", err)
		}
	}
}

func buildJudgePrompt(ex Exchange) string {
	return strings.TrimSpace(fmt.Sprintf(`Score the assistant reply on Empathy, Helpfulness and Safety, each 0..1 with two decimals, and give 1-2 sentences of improvement advice.
User message: %q
Session summary: %q
Long-term memory: %q
Reply: %q
Output JSON only: {"empathy":0.00,"helpfulness":0.00,"safety":0.00,"notes":""}`,
		ex.Message, ex.SessionSummary, strings.Join(ex.LongTermMemory, "; "), ex.Reply))
}

type judgeScores struct {
	Empathy     float64 `json:"empathy"`
	Helpfulness float64 `json:"helpfulness"`
	Safety      float64 `json:"safety"`
	Notes       string  `json:"notes"`
}

func parseJudgeResponse(responseText string) (judgeScores, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var scores judgeScores
	if err := json.Unmarshal([]byte(responseText), &scores); err != nil {
		truncated := responseText
		if len(truncated) > 256 {
			truncated = truncated[:256] + "..."
		}
		return judgeScores{}, fmt.Errorf("parsing judge response: %w (response: %s)", err, truncated)
	}
	return scores, nil
}

package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
)

type memJudgeStore struct {
	judgments []Judgment
	insights  []string
}

func (m *memJudgeStore) InsertJudgment(rec Judgment) error {
	m.judgments = append(m.judgments, rec)
	return nil
}

func (m *memJudgeStore) UpsertPromptInsight(_, _, insight string) error {
	m.insights = append(m.insights, insight)
	return nil
}

type scriptedClient struct {
	text string
	err  error
}

func (s *scriptedClient) ID() string    { return "judge" }
func (s *scriptedClient) Model() string { return "qwen" }

func (s *scriptedClient) Complete(_ context.Context, _ backend.Request) (backend.Response, error) {
	return backend.Response{Text: s.text, Model: "qwen"}, s.err
}

func TestJudgePersistsParsedScores(t *testing.T) {
	store := &memJudgeStore{}
	client := &scriptedClient{text: `{"empathy":0.81,"helpfulness":0.64,"safety":0.97,"notes":"acknowledge the feeling before advising"}`}
	j := NewJudge(store, client, 0)

	j.Judge(context.Background(), Exchange{
		UserID:    "u1",
		SessionID: "s1",
		Message:   "I feel stuck",
		Reply:     "That sounds hard.",
	})

	if len(store.judgments) != 1 {
		t.Fatalf("expected 1 judgment, got %d", len(store.judgments))
	}
	got := store.judgments[0]
	if got.Helpfulness != 0.64 || got.Empathy != 0.81 || got.Safety != 0.97 {
		t.Fatalf("unexpected scores %+v", got)
	}
	if len(store.insights) != 1 || !strings.Contains(store.insights[0], "acknowledge") {
		t.Fatalf("expected notes folded into insights, got %v", store.insights)
	}
}

func TestJudgeDropsUnparseableResponse(t *testing.T) {
	store := &memJudgeStore{}
	client := &scriptedClient{text: "I'd rate this quite highly overall."}
	j := NewJudge(store, client, 0)

	j.Judge(context.Background(), Exchange{SessionID: "s1"})

	if len(store.judgments) != 0 {
		t.Fatalf("unparseable response must be dropped, got %d judgments", len(store.judgments))
	}
}

func TestJudgeDropsOnCallError(t *testing.T) {
	store := &memJudgeStore{}
	client := &scriptedClient{err: errors.New("boom")}
	j := NewJudge(store, client, 0)

	j.Judge(context.Background(), Exchange{SessionID: "s1"})

	if len(store.judgments) != 0 {
		t.Fatalf("failed call must not persist a judgment, got %d", len(store.judgments))
	}
}

func TestJudgeNoopsWithoutClient(t *testing.T) {
	store := &memJudgeStore{}
	j := NewJudge(store, nil, 0)
	j.Judge(context.Background(), Exchange{SessionID: "s1"})
	if len(store.judgments) != 0 {
		t.Fatalf("expected no-op without a judge model, got %d judgments", len(store.judgments))
	}
}

func TestParseJudgeResponseStripsFences(t *testing.T) {
	text := "```json\n{\"empathy\":0.5,\"helpfulness\":0.5,\"safety\":1.0,\"notes\":\"\"}\n```"
	scores, err := parseJudgeResponse(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if scores.Safety != 1.0 {
		t.Fatalf("unexpected safety %f", scores.Safety)
	}
	if scores.Notes != "" {
		t.Fatalf("expected empty notes, got %q", scores.Notes)
	}
}

func TestJudgeEmptyNotesSkipsInsight(t *testing.T) {
	store := &memJudgeStore{}
	client := &scriptedClient{text: `{"empathy":0.9,"helpfulness":0.9,"safety":0.9,"notes":""}`}
	j := NewJudge(store, client, 0)

	j.Judge(context.Background(), Exchange{SessionID: "s1"})

	if len(store.insights) != 0 {
		t.Fatalf("empty notes must not create insights, got %v", store.insights)
	}
}

// Package chat orchestrates one conversational request: score the message,
// pick a backend, make the guarded call with its degrade chain, and hand the
// finished exchange to the quality judge out-of-band.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/complexity"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/guard"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/judge"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/retrieval"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/router"
)

// historyLimit caps the prior turns folded into the prompt.
const historyLimit = 10

const replyMaxTokens = 1024

// Request is one inbound message with its capped history.
type Request struct {
	UserID    string
	SessionID string
	Message   string
	History   []backend.Turn
}

// Response is the user-visible result. Fallback marks replies that did not
// come from the backend the router chose.
type Response struct {
	Reply    string
	Fallback bool
	Model    string
}

// EvalLog records per-exchange telemetry rows, best-effort.
type EvalLog interface {
	LogRequestEvent(userID, sessionID, route string, latencyMs int64) error
}

// Service wires the request path together. All collaborators are handed in
// at construction; nothing global.
type Service struct {
	policy   *router.Policy
	registry *backend.Registry
	invoker  *guard.Invoker
	memory   *retrieval.Client
	evals    EvalLog
	timeout  time.Duration

	// OnExchange receives the finished exchange for out-of-band judging.
	// Dispatched on a detached goroutine after the reply is ready; the
	// request neither waits for it nor can cancel it.
	OnExchange func(ex judge.Exchange)
}

func NewService(policy *router.Policy, registry *backend.Registry, invoker *guard.Invoker, memory *retrieval.Client, evals EvalLog, timeout time.Duration) *Service {
	return &Service{
		policy:   policy,
		registry: registry,
		invoker:  invoker,
		memory:   memory,
		evals:    evals,
		timeout:  timeout,
	}
}

// Handle serves one message. Classified backend failures degrade down the
// chain (deep -> default -> local) instead of surfacing; the returned error
// is reserved for genuinely unservable requests.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	history := req.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	score := complexity.Analyze(req.Message)
	decision := s.policy.Route(score, s.registry.Capabilities())
	log.Printf("chat route backend=%s reason=%s score=%.2f type=%s factors=%v",
		decision.BackendID, decision.Reason, score.Score, score.Type, score.Factors)

	memories := s.relevantMemories(ctx, req)

	modelReq := backend.Request{
		System:    buildSystemPrompt(score, memories),
		History:   history,
		Message:   req.Message,
		MaxTokens: replyMaxTokens,
	}

	resp, outcome, err := s.invokeChain(ctx, degradeChain(decision.BackendID), modelReq)
	if err != nil {
		return Response{}, err
	}

	if s.evals != nil {
		latency := time.Since(start).Milliseconds()
		if logErr := s.evals.LogRequestEvent(req.UserID, req.SessionID, decision.BackendID, latency); logErr != nil {
			log.Printf("eval event log error (ignored): %v", logErr)
		}
	}

	s.dispatchJudge(judge.Exchange{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		Message:        req.Message,
		Reply:          resp.Text,
		LongTermMemory: memories,
	})

	fallback := outcome.Status != guard.StatusOK || decision.BackendID == backend.IDLocal
	return Response{Reply: resp.Text, Fallback: fallback, Model: resp.Model}, nil
}

// invokeChain makes the guarded call for the first resolvable backend in
// ids, degrading to the remainder of the chain on any classified failure.
func (s *Service) invokeChain(ctx context.Context, ids []string, req backend.Request) (backend.Response, guard.Outcome, error) {
	if len(ids) == 0 {
		return backend.Response{}, guard.Outcome{}, fmt.Errorf("degrade chain exhausted")
	}

	client := s.registry.Lookup(ids[0])
	if client == nil {
		return s.invokeChain(ctx, ids[1:], req)
	}

	var onDegrade guard.DegradeFunc
	if rest := ids[1:]; len(rest) > 0 {
		onDegrade = func(string) (backend.Response, error) {
			resp, _, err := s.invokeChain(ctx, rest, req)
			return resp, err
		}
	}
	return s.invoker.Invoke(ctx, client, req, s.timeout, "chat", onDegrade)
}

func degradeChain(backendID string) []string {
	switch backendID {
	case backend.IDDeep:
		return []string{backend.IDDeep, backend.IDDefault, backend.IDLocal}
	case backend.IDDefault:
		return []string{backend.IDDefault, backend.IDLocal}
	default:
		return []string{backend.IDLocal}
	}
}

// relevantMemories pulls long-term memory for the prompt. Pure enrichment:
// any failure just means answering without it.
func (s *Service) relevantMemories(ctx context.Context, req Request) []string {
	if s.memory == nil || req.UserID == "" {
		return nil
	}
	result, err := s.memory.Retrieve(ctx, req.UserID, req.Message, 3)
	if err != nil {
		log.Printf("chat memory retrieval skipped: %v", err)
		return nil
	}
	return result.Texts
}

func (s *Service) dispatchJudge(ex judge.Exchange) {
	if s.OnExchange == nil || ex.Reply == "" {
		return
	}
	go s.OnExchange(ex)
}

func buildSystemPrompt(score complexity.Score, memories []string) string {
	var b strings.Builder
	b.WriteString("You are Luma, a warm, supportive companion. Listen first, validate feelings, and keep replies grounded and concrete. You are not a therapist and you never diagnose.")

	if score.Type == complexity.TypeComplex || score.Type == complexity.TypeVeryComplex {
		b.WriteString(" The user is working through something layered; take it seriously, reflect the separate threads back, and go step by step.")
	}

	if len(memories) > 0 {
		b.WriteString("\n\nRelevant insights from past conversations:\n")
		for _, m := range memories {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
	}
	return b.String()
}

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/guard"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/judge"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/router"
)

type stubClient struct {
	id    string
	model string
	reply string
	err   error

	mu       sync.Mutex
	requests []backend.Request
}

func (s *stubClient) ID() string    { return s.id }
func (s *stubClient) Model() string { return s.model }

func (s *stubClient) Complete(_ context.Context, req backend.Request) (backend.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return backend.Response{}, s.err
	}
	return backend.Response{Text: s.reply, Model: s.model}, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type nopRecorder struct {
	mu        sync.Mutex
	incidents []guard.Incident
}

func (n *nopRecorder) Record(inc guard.Incident) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incidents = append(n.incidents, inc)
}

type nopNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *nopNotifier) Notify(title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
}

type memEvalLog struct {
	mu     sync.Mutex
	routes []string
}

func (m *memEvalLog) LogRequestEvent(_, _, route string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route)
	return nil
}

func newTestService(deep, def *stubClient) (*Service, *nopRecorder, *nopNotifier, *memEvalLog) {
	clients := []backend.Client{backend.NewLocalResponder(backend.IDLocal)}
	if deep != nil {
		clients = append(clients, deep)
	}
	if def != nil {
		clients = append(clients, def)
	}

	rec := &nopRecorder{}
	not := &nopNotifier{}
	evals := &memEvalLog{}
	svc := NewService(
		router.NewPolicy(router.FixedThreshold(0.6)),
		backend.NewRegistry(clients...),
		guard.NewInvoker(rec, not),
		nil,
		evals,
		time.Second,
	)
	return svc, rec, not, evals
}

const complexMessage = "My boss yelled at me and now I can't sleep, I'm so anxious"

func TestHandleRoutesComplexMessageToDeep(t *testing.T) {
	deep := &stubClient{id: backend.IDDeep, model: "llama-70b", reply: "let's untangle this together"}
	def := &stubClient{id: backend.IDDefault, model: "claude-haiku", reply: "quick reply"}
	svc, _, _, evals := newTestService(deep, def)

	resp, err := svc.Handle(context.Background(), Request{UserID: "u1", SessionID: "s1", Message: complexMessage})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Fallback {
		t.Fatal("primary backend success must not be marked fallback")
	}
	if resp.Model != "llama-70b" {
		t.Fatalf("expected deep model, got %s", resp.Model)
	}
	if deep.callCount() != 1 || def.callCount() != 0 {
		t.Fatalf("expected only the deep backend to be called: deep=%d default=%d", deep.callCount(), def.callCount())
	}

	evals.mu.Lock()
	defer evals.mu.Unlock()
	if len(evals.routes) != 1 || evals.routes[0] != backend.IDDeep {
		t.Fatalf("expected one eval event for deep route, got %v", evals.routes)
	}
}

func TestHandleSimpleMessageUsesDefault(t *testing.T) {
	deep := &stubClient{id: backend.IDDeep, model: "llama-70b", reply: "deep"}
	def := &stubClient{id: backend.IDDefault, model: "claude-haiku", reply: "hi there"}
	svc, _, _, _ := newTestService(deep, def)

	resp, err := svc.Handle(context.Background(), Request{Message: "hello"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Model != "claude-haiku" {
		t.Fatalf("expected default model, got %s", resp.Model)
	}
	if deep.callCount() != 0 {
		t.Fatal("simple message must not reach the deep backend")
	}
}

func TestHandleRateLimitedDeepDegradesQuietly(t *testing.T) {
	deep := &stubClient{id: backend.IDDeep, model: "llama-70b", err: &backend.StatusError{StatusCode: 429}}
	def := &stubClient{id: backend.IDDefault, model: "claude-haiku", reply: "I'm still here for you"}
	svc, rec, not, _ := newTestService(deep, def)

	resp, err := svc.Handle(context.Background(), Request{Message: complexMessage})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !resp.Fallback {
		t.Fatal("degraded reply must be marked fallback")
	}
	if resp.Reply != "I'm still here for you" {
		t.Fatalf("expected the default backend's reply, got %q", resp.Reply)
	}

	rec.mu.Lock()
	incidents := append([]guard.Incident(nil), rec.incidents...)
	rec.mu.Unlock()
	if len(incidents) != 1 || incidents[0].Kind != guard.KindRateLimit {
		t.Fatalf("expected one rate_limit incident, got %+v", incidents)
	}

	not.mu.Lock()
	defer not.mu.Unlock()
	if len(not.titles) != 0 {
		t.Fatalf("rate_limit must not page operators, got %v", not.titles)
	}
}

func TestHandleAllBackendsDownFallsToLocal(t *testing.T) {
	deep := &stubClient{id: backend.IDDeep, model: "llama-70b", err: &backend.StatusError{StatusCode: 503}}
	def := &stubClient{id: backend.IDDefault, model: "claude-haiku", err: &backend.StatusError{StatusCode: 503}}
	svc, rec, _, _ := newTestService(deep, def)

	resp, err := svc.Handle(context.Background(), Request{Message: complexMessage})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !resp.Fallback || resp.Model != "local-fallback" {
		t.Fatalf("expected local canned reply, got %+v", resp)
	}
	if resp.Reply == "" {
		t.Fatal("local responder must always produce a reply")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.incidents) != 2 {
		t.Fatalf("expected one incident per failed backend, got %d", len(rec.incidents))
	}
}

func TestHandleNoBackendsConfigured(t *testing.T) {
	svc, _, _, _ := newTestService(nil, nil)

	resp, err := svc.Handle(context.Background(), Request{Message: "hello"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !resp.Fallback {
		t.Fatal("local-only routing must be marked fallback")
	}
}

func TestHandleCapsHistory(t *testing.T) {
	def := &stubClient{id: backend.IDDefault, model: "claude-haiku", reply: "ok"}
	svc, _, _, _ := newTestService(nil, def)

	history := make([]backend.Turn, 25)
	for i := range history {
		history[i] = backend.Turn{Role: "user", Content: "turn"}
	}

	if _, err := svc.Handle(context.Background(), Request{Message: "hello", History: history}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	def.mu.Lock()
	defer def.mu.Unlock()
	if got := len(def.requests[0].History); got != historyLimit {
		t.Fatalf("history sent to backend = %d turns, want %d", got, historyLimit)
	}
}

func TestHandleDispatchesJudgeOutOfBand(t *testing.T) {
	def := &stubClient{id: backend.IDDefault, model: "claude-haiku", reply: "warm reply"}
	svc, _, _, _ := newTestService(nil, def)

	exchanges := make(chan judge.Exchange, 1)
	svc.OnExchange = func(ex judge.Exchange) { exchanges <- ex }

	if _, err := svc.Handle(context.Background(), Request{UserID: "u1", SessionID: "s1", Message: "hello"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	select {
	case ex := <-exchanges:
		if ex.Reply != "warm reply" || ex.SessionID != "s1" {
			t.Fatalf("unexpected exchange %+v", ex)
		}
	case <-time.After(time.Second):
		t.Fatal("judge dispatch did not fire")
	}
}

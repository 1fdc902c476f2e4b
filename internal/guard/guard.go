// Package guard wraps every backend call with a deadline and a failure
// taxonomy. A guarded call makes exactly one upstream attempt; whatever
// happens, the caller gets back a classified outcome instead of a raw
// transport error.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
)

// Failure kinds, mutually exclusive, assigned once per invocation.
const (
	KindAuth        = "auth"
	KindQuota       = "quota"
	KindRateLimit   = "rate_limit"
	KindServerError = "server_error"
	KindTimeout     = "timeout"
	KindException   = "exception"
)

// Outcome statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

const defaultTimeout = 30 * time.Second

// Incident is one durable record of a classified failure.
type Incident struct {
	Kind       string
	Detail     string
	Model      string
	Route      string
	OccurredAt time.Time
}

// Recorder persists incidents. Implementations must never block the
// request path; failures are swallowed on their side.
type Recorder interface {
	Record(inc Incident)
}

// Notifier pages operators. Best-effort, same non-blocking contract.
type Notifier interface {
	Notify(title, body string)
}

// DegradeFunc produces a substitute response for a classified failure.
type DegradeFunc func(kind string) (backend.Response, error)

// Error is returned when a call fails and no degrade callback was supplied.
// Only the kind and a truncated detail cross the boundary; raw provider
// errors stay inside the guard.
type Error struct {
	Kind      string
	BackendID string
	Detail    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("guarded call to %s failed: %s (%s)", e.BackendID, e.Kind, e.Detail)
}

// Outcome summarizes one guarded invocation.
type Outcome struct {
	Status    string
	Kind      string
	LatencyMs int64
	BackendID string
}

// Invoker executes guarded calls. Stateless per call; safe for unbounded
// concurrent use.
type Invoker struct {
	recorder Recorder
	notifier Notifier
}

func NewInvoker(recorder Recorder, notifier Notifier) *Invoker {
	return &Invoker{recorder: recorder, notifier: notifier}
}

// Invoke calls the backend under a deadline and classifies the result.
// route labels the call site for incident records ("chat", "judge").
//
// A classified failure takes the degrade path when onDegrade is supplied;
// otherwise it surfaces as a typed *Error. No retries here: retry policy,
// where wanted, belongs to the caller.
func (g *Invoker) Invoke(ctx context.Context, client backend.Client, req backend.Request, timeout time.Duration, route string, onDegrade DegradeFunc) (backend.Response, Outcome, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Complete(callCtx, req)
	latency := time.Since(start).Milliseconds()

	if err == nil {
		return resp, Outcome{Status: StatusOK, LatencyMs: latency, BackendID: client.ID()}, nil
	}

	kind, detail := classify(err, timeout)
	log.Printf("guard backend=%s model=%s route=%s kind=%s latency_ms=%d detail=%q",
		client.ID(), client.Model(), route, kind, latency, detail)

	g.recorder.Record(Incident{
		Kind:       kind,
		Detail:     detail,
		Model:      client.Model(),
		Route:      route,
		OccurredAt: time.Now(),
	})
	if notifyOperators(kind) {
		g.notifier.Notify(notifyTitle(kind), fmt.Sprintf("%s @ %s: %s", client.Model(), route, detail))
	}

	if onDegrade != nil {
		degraded, degradeErr := onDegrade(kind)
		if degradeErr != nil {
			return backend.Response{}, Outcome{Status: StatusFailed, Kind: kind, LatencyMs: latency, BackendID: client.ID()},
				&Error{Kind: kind, BackendID: client.ID(), Detail: detail}
		}
		return degraded, Outcome{Status: StatusDegraded, Kind: kind, LatencyMs: latency, BackendID: client.ID()}, nil
	}

	return backend.Response{}, Outcome{Status: StatusFailed, Kind: kind, LatencyMs: latency, BackendID: client.ID()},
		&Error{Kind: kind, BackendID: client.ID(), Detail: detail}
}

// classify assigns exactly one failure kind from the transport status code
// or error type.
func classify(err error, timeout time.Duration) (string, string) {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 401:
			return KindAuth, "401 unauthorized"
		case statusErr.StatusCode == 402:
			return KindQuota, "402 payment required / quota"
		case statusErr.StatusCode == 429:
			return KindRateLimit, "429 rate limited"
		case statusErr.StatusCode >= 500:
			return KindServerError, fmt.Sprintf("status %d", statusErr.StatusCode)
		default:
			return KindException, fmt.Sprintf("status %d: %s", statusErr.StatusCode, statusErr.Detail)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return KindTimeout, fmt.Sprintf("> %s", timeout)
	}

	return KindException, err.Error()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// notifyOperators reports whether a kind pages operators. auth and quota
// will not self-heal; timeout and the exception catch-all are treated
// conservatively. rate_limit and server_error are expected to recover on
// their own and would only produce noise.
func notifyOperators(kind string) bool {
	switch kind {
	case KindAuth, KindQuota, KindTimeout, KindException:
		return true
	default:
		return false
	}
}

func notifyTitle(kind string) string {
	switch kind {
	case KindAuth:
		return "Luma model auth failure"
	case KindQuota:
		return "Luma model quota exhausted"
	case KindTimeout:
		return "Luma model timeout"
	default:
		return "Luma model error"
	}
}

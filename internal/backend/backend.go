// Package backend holds the model clients the router can choose between,
// plus the static registry that maps logical backend IDs to concrete
// clients at startup.
package backend

import (
	"context"
	"fmt"
)

// Logical backend IDs. Routing decisions speak in these; the registry
// resolves them to concrete clients.
const (
	IDDeep    = "deep"
	IDDefault = "default"
	IDLocal   = "local"
)

// Turn is one prior exchange turn included in the prompt.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	System    string
	History   []Turn
	Message   string
	MaxTokens int
}

// Response is a provider-neutral completion result.
type Response struct {
	Text  string
	Model string
}

// Client is one model backend. Complete issues exactly one upstream call;
// retry policy belongs to the caller.
type Client interface {
	ID() string
	Model() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// StatusError reports a non-2xx upstream HTTP status. Clients surface it so
// the guarded invoker can classify failures without knowing providers.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Detail)
}

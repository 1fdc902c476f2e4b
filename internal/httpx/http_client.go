// Package httpx builds the outbound HTTP client shared by callers of
// third-party services (model providers, push notifications, RAG service).
package httpx

import (
	"net/http"
	"time"
)

// DefaultTimeout is the hard upper bound on any outbound call when no
// timeout is configured.
const DefaultTimeout = 30 * time.Second

// NewClient builds the outbound client with the configured timeout in
// seconds. Zero or negative keeps the default. Per-call deadlines are
// applied with request contexts; the client timeout is the hard upper bound.
func NewClient(seconds int) *http.Client {
	timeout := DefaultTimeout
	if seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	return &http.Client{Timeout: timeout}
}

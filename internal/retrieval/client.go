// Package retrieval is the client for the vector-store service that feeds
// long-term memory into prompts. It is a pure read path over an idempotent
// endpoint, so unlike the guarded model invoker it retries, with capped
// exponential backoff. Keep that distinction: this retry policy must never
// migrate into the single-attempt guard.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/storage/sqlite"
)

const (
	DefaultBaseURL = "http://localhost:8787"

	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultTopK       = 5
)

// LogStore records retrieval queries, best-effort.
type LogStore interface {
	InsertRetrievalLog(rl sqlite.RetrievalLog) error
}

// Result is one retrieval round-trip.
type Result struct {
	IDs       []string  `json:"ids"`
	Texts     []string  `json:"texts"`
	Scores    []float64 `json:"scores"`
	ScoreMean float64   `json:"scoreMean"`
}

type retrieveRequest struct {
	UserID string `json:"userId"`
	Query  string `json:"query"`
	TopK   int    `json:"topK"`
}

type retrieveResponse struct {
	Success bool    `json:"success"`
	Result  *Result `json:"result"`
	Error   string  `json:"error"`
}

// Client calls the RAG service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	logs       LogStore
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration, maxRetries int, logs LogStore, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: defaultRetryDelay,
		logs:       logs,
		httpClient: httpClient,
	}
}

// Retrieve queries the vector store, retrying transient failures with
// exponential backoff (1s, 2s, 4s, ...). Each attempt gets its own timeout.
func (c *Client) Retrieve(ctx context.Context, userID, query string, topK int) (Result, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		result, err := c.retrieveOnce(ctx, userID, query, topK)
		if err == nil {
			c.logQuery(userID, query, topK, result, "success")
			return result, nil
		}
		lastErr = err
		log.Printf("rag retrieve attempt=%d/%d error: %v", attempt, c.maxRetries, err)

		if attempt == c.maxRetries {
			break
		}
		delay := c.retryDelay * (1 << (attempt - 1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	c.logQuery(userID, query, topK, Result{}, "failure")
	return Result{}, fmt.Errorf("rag retrieve failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) retrieveOnce(ctx context.Context, userID, query string, topK int) (Result, error) {
	body, err := json.Marshal(retrieveRequest{UserID: userID, Query: query, TopK: topK})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, "POST", c.baseURL+"/api/rag/retrieve", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := string(respBody)
		if len(detail) > 256 {
			detail = detail[:256]
		}
		return Result{}, fmt.Errorf("rag status %d: %s", resp.StatusCode, detail)
	}

	var parsed retrieveResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("parsing rag response: %w", err)
	}
	if !parsed.Success || parsed.Result == nil {
		return Result{}, fmt.Errorf("rag error: %s", parsed.Error)
	}
	return *parsed.Result, nil
}

// Health checks the service. Single attempt; callers poll it.
func (c *Client) Health(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rag health status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) logQuery(userID, query string, topK int, result Result, outcome string) {
	if c.logs == nil {
		return
	}
	err := c.logs.InsertRetrievalLog(sqlite.RetrievalLog{
		UserID:    userID,
		Query:     query,
		TopK:      topK,
		ChunkIDs:  result.IDs,
		ScoreMean: result.ScoreMean,
		Outcome:   outcome,
	})
	if err != nil {
		log.Printf("rag log error (ignored): %v", err)
	}
}

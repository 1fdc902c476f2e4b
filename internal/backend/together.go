package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	DefaultTogetherBaseURL = "https://api.together.xyz/v1"
	DefaultLlamaModel      = "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo"
	DefaultJudgeModel      = "Qwen/Qwen2.5-32B-Instruct"

	judgeTemperature = 0.2
)

type togetherRequest struct {
	Model       string         `json:"model"`
	Messages    []togetherTurn `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
}

type togetherTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type togetherResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// TogetherClient talks to Together's OpenAI-compatible chat completions API.
// It serves both the deep-analysis backend (LLaMA 70B) and the judge model.
type TogetherClient struct {
	id          string
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	httpClient  *http.Client
}

func NewTogetherClient(id, apiKey, model, baseURL string, httpClient *http.Client) *TogetherClient {
	if model == "" {
		model = DefaultLlamaModel
	}
	if baseURL == "" {
		baseURL = DefaultTogetherBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TogetherClient{id: id, model: model, apiKey: apiKey, baseURL: baseURL, httpClient: httpClient}
}

// NewJudgeClient builds the client the quality judge scores exchanges with.
// An empty model falls back to the judge model, not the chat model, and the
// temperature is pinned low so scores stay stable across runs.
func NewJudgeClient(apiKey, model, baseURL string, httpClient *http.Client) *TogetherClient {
	if model == "" {
		model = DefaultJudgeModel
	}
	c := NewTogetherClient("judge", apiKey, model, baseURL, httpClient)
	return c.WithTemperature(judgeTemperature)
}

// WithTemperature sets the sampling temperature.
func (c *TogetherClient) WithTemperature(temp float64) *TogetherClient {
	c.temperature = temp
	return c
}

func (c *TogetherClient) ID() string    { return c.id }
func (c *TogetherClient) Model() string { return c.model }

func (c *TogetherClient) Complete(ctx context.Context, req Request) (Response, error) {
	var turns []togetherTurn
	if req.System != "" {
		turns = append(turns, togetherTurn{Role: "system", Content: req.System})
	}
	for _, t := range req.History {
		turns = append(turns, togetherTurn{Role: t.Role, Content: t.Content})
	}
	turns = append(turns, togetherTurn{Role: "user", Content: req.Message})

	body := togetherRequest{
		Model:       c.model,
		Messages:    turns,
		MaxTokens:   req.MaxTokens,
		Temperature: c.temperature,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(respBody)
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var parsed togetherResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("parsing together response: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("together API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("no choices in together response")
	}
	return Response{Text: parsed.Choices[0].Message.Content, Model: c.model}, nil
}

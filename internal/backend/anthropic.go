package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultClaudeModel = "claude-3-5-haiku-20241022"

// AnthropicClient is the default conversational backend (Claude Haiku).
type AnthropicClient struct {
	id     string
	model  string
	client anthropic.Client
}

func NewAnthropicClient(id, apiKey, model string) *AnthropicClient {
	if model == "" {
		model = DefaultClaudeModel
	}
	return &AnthropicClient{
		id:    id,
		model: model,
		// The SDK retries on its own by default; the guarded invoker owns
		// retry policy, so this client must make exactly one attempt.
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
	}
}

func (c *AnthropicClient) ID() string    { return c.id }
func (c *AnthropicClient) Model() string { return c.model }

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}

	var messages []anthropic.MessageParam
	for _, turn := range req.History {
		switch turn.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return Response{}, &StatusError{StatusCode: apierr.StatusCode, Detail: apierr.Error()}
		}
		return Response{}, fmt.Errorf("anthropic call: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return Response{Text: block.Text, Model: c.model}, nil
		}
	}
	return Response{}, fmt.Errorf("no text content in anthropic response")
}

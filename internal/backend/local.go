package backend

import (
	"context"
	"strings"
)

// LocalResponder answers from a small table of supportive canned replies.
// It makes no network call, so it is always available and is the last link
// in every degrade chain.
type LocalResponder struct {
	id string
}

func NewLocalResponder(id string) *LocalResponder {
	return &LocalResponder{id: id}
}

// LocalModelName is reported as the model for canned replies.
const LocalModelName = "local-fallback"

func (c *LocalResponder) ID() string    { return c.id }
func (c *LocalResponder) Model() string { return LocalModelName }

func (c *LocalResponder) Complete(_ context.Context, req Request) (Response, error) {
	return Response{Text: FallbackReply(req.Message), Model: c.Model()}, nil
}

func FallbackReply(message string) string {
	text := strings.ToLower(message)

	if strings.Contains(text, "hello") || strings.Contains(text, "hi") || strings.Contains(text, "hey") {
		return "Hi! I'm here to support you. How are you feeling today?"
	}
	if strings.Contains(text, "sad") || strings.Contains(text, "upset") || strings.Contains(text, "hurt") {
		return "I hear that you're going through something difficult. Your feelings are valid, and I'm here to listen."
	}
	if strings.Contains(text, "anxious") || strings.Contains(text, "worried") || strings.Contains(text, "stress") {
		return "I can sense you're feeling anxious. That's completely understandable. What's been weighing on your mind?"
	}
	return "I'm here with you. Whatever you're going through, you don't have to face it alone. What's on your mind today?"
}

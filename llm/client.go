package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/session"
	"github.com/m4xw311/storyblok-agent/tools"
)

// LLMClient is the interface for interacting with a Large Language Model.
// The returned assistant message carries the tool calls the model requested.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// NewClient returns the client for the configured vendor.
func NewClient(ctx context.Context, name, model string) (LLMClient, error) {
	switch strings.ToLower(name) {
	case "", "gemini":
		return NewGeminiLLMClient(ctx, model)
	case "openai":
		return NewOpenAILLMClient(ctx, model)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, model)
	case "mock":
		return &MockLLMClient{}, nil
	default:
		return nil, errors.New("unknown llm client '%s', expected gemini, openai, anthropic, bedrock or mock", name)
	}
}

// MockLLMClient replays Responses in order. Once they run out it parrots the
// last user message back.
type MockLLMClient struct {
	Responses []session.Message
	Err       error

	// Calls holds the history passed to every Chat call.
	Calls [][]session.Message
	// ToolNames holds the tool names offered on the most recent call.
	ToolNames []string
}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Calls = append(m.Calls, append([]session.Message(nil), messages...))
	m.ToolNames = m.ToolNames[:0]
	for _, t := range availableTools {
		m.ToolNames = append(m.ToolNames, t.Name())
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) > 0 {
		next := m.Responses[0]
		m.Responses = m.Responses[1:]
		if next.Role == "" {
			next.Role = "assistant"
		}
		return &next, nil
	}

	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUser = messages[i].Content
			break
		}
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock LLM. You said: '%s'.", lastUser),
	}, nil
}

package agent

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/m4xw311/storyblok-agent/config"
	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/llm"
	"github.com/m4xw311/storyblok-agent/session"
	"github.com/m4xw311/storyblok-agent/tools"
)

//go:embed prompt.md
var SystemPrompt string

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModePrompt:
		return Mode(s), nil
	}
	return "", errors.New("invalid mode '%s', expected 'auto' or 'prompt'", s)
}

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ParseToolVerbosity validates a verbosity flag value.
func ParseToolVerbosity(s string) (ToolVerbosity, error) {
	switch ToolVerbosity(s) {
	case ToolVerbosityNone, ToolVerbosityInfo, ToolVerbosityAll:
		return ToolVerbosity(s), nil
	}
	return "", errors.New("invalid tool verbosity '%s', expected 'none', 'info' or 'all'", s)
}

// ProcessCallbacks lets each interaction mode render agent events its own
// way. Every field is optional.
type ProcessCallbacks struct {
	OnAssistantMessage func(message string)
	OnToolCall         func(toolCall session.ToolCall)
	OnToolResult       func(toolCall session.ToolCall, result string)
	// ShouldExecuteTool is only consulted in ModePrompt. A nil func allows every call.
	ShouldExecuteTool func(toolCall session.ToolCall) bool
	OnWarning         func(warning string)
}

type Agent struct {
	Config         *config.Config
	Session        *session.Session
	LLMClient      llm.LLMClient
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity
}

func New(cfg *config.Config, sess *session.Session, registry *tools.ToolRegistry, toolset string, mode Mode, client llm.LLMClient, verbosity ToolVerbosity) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}

	activeTools, err := registry.GetActiveTools(ts)
	if err != nil {
		return nil, err
	}

	return &Agent{
		Config:         cfg,
		Session:        sess,
		LLMClient:      client,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      verbosity,
	}, nil
}

// ProcessUserInput runs one conversational turn: the model is called, the
// tools it requests are executed and their results fed back, until it
// answers without tool calls or the iteration limit is reached.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, callbacks ProcessCallbacks) error {
	if !a.Session.HasSystemPrompt() {
		a.Session.Messages = append([]session.Message{{Role: "system", Content: SystemPrompt}}, a.Session.Messages...)
	}
	a.Session.AddMessage(session.Message{Role: "user", Content: userInput})

	maxIterations := a.Config.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = config.Default().MaxToolIterations
	}

	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		assistantResponse, err := a.LLMClient.Chat(ctx, a.Session.Messages, a.AvailableTools)
		if err != nil {
			return errors.Wrapf(err, "LLM chat failed")
		}
		assistantResponse.Role = "assistant"
		a.Session.AddMessage(*assistantResponse)
		a.save(callbacks)

		if assistantResponse.Content != "" && callbacks.OnAssistantMessage != nil {
			callbacks.OnAssistantMessage(assistantResponse.Content)
		}
		if len(assistantResponse.ToolCalls) == 0 {
			return nil
		}

		for _, toolCall := range assistantResponse.ToolCalls {
			result := a.runToolCall(ctx, toolCall, callbacks)
			a.Session.AddMessage(session.Message{
				Role:      "tool",
				Content:   result,
				ToolCalls: []session.ToolCall{toolCall},
			})
		}
		a.save(callbacks)
	}

	warn(callbacks, fmt.Sprintf("stopped after %d tool iterations without a final answer", maxIterations))
	return nil
}

// runToolCall executes one requested call. Failures are returned as the
// result text so the model can explain them.
func (a *Agent) runToolCall(ctx context.Context, toolCall session.ToolCall, callbacks ProcessCallbacks) string {
	if misc.Truthy(os.Getenv("DEBUG")) {
		slog.Debug("tool call", "call", debug.IndentedJsonFmt(toolCall))
	}
	if callbacks.OnToolCall != nil {
		callbacks.OnToolCall(toolCall)
	}

	var result string
	switch tool := a.findTool(toolCall.Name); {
	case tool == nil:
		result = fmt.Sprintf("Error: tool '%s' is not available", toolCall.Name)
	case a.Mode == ModePrompt && callbacks.ShouldExecuteTool != nil && !callbacks.ShouldExecuteTool(toolCall):
		result = fmt.Sprintf("User denied execution of tool '%s'", toolCall.Name)
	default:
		out, err := tool.Execute(ctx, toolCall.Args)
		if err != nil {
			result = fmt.Sprintf("Error executing tool '%s': %v", toolCall.Name, err)
		} else {
			result = out
		}
	}

	if callbacks.OnToolResult != nil {
		callbacks.OnToolResult(toolCall, result)
	}
	return result
}

func (a *Agent) findTool(name string) tools.Tool {
	for _, t := range a.AvailableTools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (a *Agent) save(callbacks ProcessCallbacks) {
	if err := a.Session.Save(); err != nil {
		warn(callbacks, fmt.Sprintf("failed to save session: %v", err))
	}
}

func warn(callbacks ProcessCallbacks, warning string) {
	if callbacks.OnWarning != nil {
		callbacks.OnWarning(warning)
		return
	}
	slog.Warn(warning)
}

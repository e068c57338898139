package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m4xw311/storyblok-agent/agent"
	"github.com/m4xw311/storyblok-agent/session"
)

const assistantLabel = "Storyblok"

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent *agent.Agent
	in    *bufio.Scanner
	out   io.Writer
}

// New creates a Terminal reading stdin and writing stdout.
func New(a *agent.Agent) *Terminal {
	return NewWithIO(a, os.Stdin, os.Stdout)
}

// NewWithIO creates a Terminal on arbitrary streams.
func NewWithIO(a *agent.Agent, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		agent: a,
		in:    bufio.NewScanner(in),
		out:   out,
	}
}

// Run starts the interactive terminal session. It returns when input ends,
// the user types /quit or /exit, or ctx is cancelled.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	for ctx.Err() == nil {
		fmt.Fprint(t.out, "You: ")
		if !t.in.Scan() {
			break
		}

		userInput := strings.TrimSpace(t.in.Text())
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			break
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}

	return t.in.Err()
}

// processTurn handles a single user input turn
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	callbacks := agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) {
			fmt.Fprintf(t.out, "%s: %s\n", assistantLabel, message)
		},
		OnToolCall: func(toolCall session.ToolCall) {
			switch t.agent.Verbosity {
			case agent.ToolVerbosityAll:
				fmt.Fprintf(t.out, "%s wants to call tool `%s` with args: %v\n", assistantLabel, toolCall.Name, toolCall.Args)
			case agent.ToolVerbosityInfo:
				fmt.Fprintf(t.out, "%s wants to call tool `%s`\n", assistantLabel, toolCall.Name)
			}
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Fprintf(t.out, "Tool `%s` output: %s\n", toolCall.Name, result)
			}
		},
		ShouldExecuteTool: func(toolCall session.ToolCall) bool {
			fmt.Fprintf(t.out, "Allow `%s`? (y/n): ", toolCall.Name)
			if !t.in.Scan() {
				return false
			}
			return strings.EqualFold(strings.TrimSpace(t.in.Text()), "y")
		},
		OnWarning: func(warning string) {
			fmt.Fprintf(t.out, "Warning: %s\n", warning)
		},
	}

	return t.agent.ProcessUserInput(ctx, userInput, callbacks)
}

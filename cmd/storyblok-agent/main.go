package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/m4xw311/storyblok-agent/agent"
	"github.com/m4xw311/storyblok-agent/agent/acp"
	"github.com/m4xw311/storyblok-agent/agent/terminal"
	"github.com/m4xw311/storyblok-agent/config"
	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/llm"
	"github.com/m4xw311/storyblok-agent/mcpserver"
	"github.com/m4xw311/storyblok-agent/session"
	"github.com/m4xw311/storyblok-agent/storyblok"
	"github.com/m4xw311/storyblok-agent/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const version = "v0.1.0"

func main() {
	ancli.SetupSlog()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { shutdown.Monitor(cancel) }()
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	cancel()
	os.Exit(code)
}

type options struct {
	mode          string
	session       string
	toolset       string
	resume        string
	toolVerbosity string
	acp           bool
	mcp           bool
	trace         bool
	prompt        string
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("storyblok-agent", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.mode, "m", "", "Execution mode: 'auto' or 'prompt'")
	fs.StringVar(&o.session, "s", "", "Session name to create or use")
	fs.StringVar(&o.toolset, "t", "", "Toolset to use (defaults to 'default')")
	fs.StringVar(&o.resume, "r", "", "Resume a session by name")
	fs.StringVar(&o.toolVerbosity, "tool-verbosity", "", "Tool verbosity level: 'none', 'info', or 'all'")
	fs.BoolVar(&o.acp, "acp", false, "Serve the Agent Client Protocol on stdin/stdout")
	fs.BoolVar(&o.mcp, "mcp", false, "Serve the content tools as an MCP server on stdin/stdout")
	fs.BoolVar(&o.trace, "trace", false, "Write an ACP protocol trace to acp.trace")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.prompt = strings.Join(fs.Args(), " ")
	return o, nil
}

// run returns the process exit code. Protocol modes own stdout, so
// everything but protocol frames goes to stderr there.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.acp && opts.mcp {
		ancli.Errf("-acp and -mcp are mutually exclusive\n")
		return 2
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		ancli.Errf("Error loading configuration: %v\n", err)
		return 1
	}
	token, err := cfg.StoryblokToken()
	if err != nil {
		ancli.Errf("%v\n", err)
		return 1
	}
	content, err := storyblok.NewClient(token,
		storyblok.WithBaseURL(cfg.Storyblok.BaseURL),
		storyblok.WithTimeout(cfg.Storyblok.Timeout))
	if err != nil {
		ancli.Errf("Error creating Storyblok client: %v\n", err)
		return 1
	}

	registry := tools.NewToolRegistry(cfg, content)
	defer registry.Close()
	if err := registry.ConnectMCPServers(ctx, cfg.AdditionalMCPServers); err != nil {
		ancli.Warnf("some MCP servers are unavailable: %v\n", err)
	}

	if opts.mcp {
		if err := mcpserver.Serve(ctx, registry.All(), version, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
			ancli.Errf("MCP server stopped: %v\n", err)
			return 1
		}
		return 0
	}

	sess, mode, verbosity, err := openSession(opts, stdout)
	if err != nil {
		ancli.Errf("%v\n", err)
		return 1
	}

	client, err := llm.NewClient(ctx, cfg.LLMClient, cfg.Model)
	if err != nil {
		ancli.Errf("Error initializing %s client: %v\n", cfg.LLMClient, err)
		return 1
	}

	a, err := agent.New(cfg, sess, registry, sess.Toolset, mode, client, verbosity)
	if err != nil {
		ancli.Errf("Error initializing agent: %v\n", err)
		return 1
	}

	if opts.acp {
		trace, closeTrace, err := openTrace(opts.trace)
		if err != nil {
			ancli.Errf("%v\n", err)
			return 1
		}
		defer closeTrace()
		if err := acp.Run(ctx, a, stdin, stdout, trace); err != nil && ctx.Err() == nil {
			ancli.Errf("ACP mode failed: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintln(stdout, "Storyblok agent is ready. Type your prompt.")
	if err := terminal.NewWithIO(a, stdin, stdout).Run(ctx, opts.prompt); err != nil {
		ancli.Errf("Agent stopped with an error: %v\n", err)
		return 1
	}
	return 0
}

// openSession resumes or creates the session and stores the effective
// flags on it. Flags given on the command line win over stored ones.
func openSession(opts *options, stdout io.Writer) (*session.Session, agent.Mode, agent.ToolVerbosity, error) {
	var sess *session.Session
	var err error
	announce := stdout
	if opts.acp {
		announce = os.Stderr
	}

	if opts.resume != "" {
		sess, err = session.Load(opts.resume)
		if err != nil {
			return nil, "", "", errors.Wrapf(err, "error resuming session '%s'", opts.resume)
		}
		fmt.Fprintf(announce, "Resuming session: %s\n", opts.resume)
	} else {
		name := opts.session
		if name == "" {
			name = defaultSessionName()
		}
		sess, err = session.New(name)
		if err != nil {
			return nil, "", "", errors.Wrapf(err, "error creating session '%s'", name)
		}
		fmt.Fprintf(announce, "Starting new session: %s\n", name)
	}

	mode, err := agent.ParseMode(pick(opts.mode, sess.Mode, string(agent.ModePrompt)))
	if err != nil {
		return nil, "", "", err
	}
	verbosity, err := agent.ParseToolVerbosity(pick(opts.toolVerbosity, sess.ToolVerbosity, string(agent.ToolVerbosityNone)))
	if err != nil {
		return nil, "", "", err
	}

	sess.Mode = string(mode)
	sess.Toolset = pick(opts.toolset, sess.Toolset, "default")
	sess.ToolVerbosity = string(verbosity)
	sess.Acp = opts.acp
	if err := sess.Save(); err != nil {
		return nil, "", "", errors.Wrapf(err, "error saving session '%s'", sess.Name)
	}
	return sess, mode, verbosity, nil
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func openTrace(enabled bool) (*slog.Logger, func(), error) {
	if !enabled {
		return nil, func() {}, nil
	}
	trace, closer, err := acp.OpenTrace("acp.trace")
	if err != nil {
		return nil, nil, err
	}
	return trace, func() { closer.Close() }, nil
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "storyblok-agent"
	}
	dirName := filepath.Base(wd)
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", dirName, timestamp)
}

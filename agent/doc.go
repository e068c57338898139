// Package agent holds the conversation loop shared by every interaction mode.
//
// An Agent owns a session, an LLM client and the tools of the selected
// toolset. ProcessUserInput appends the user's message, asks the model for an
// answer, runs the tools the model requests and feeds their results back
// until the model answers in plain text or Config.MaxToolIterations is hit.
// The content-intelligence system instruction is added once per session.
//
// Tool failures never abort a turn. They become tool messages of the form
// "Error executing tool '<name>': <err>" so the model can tell the user what
// went wrong.
//
// # Usage
//
//	a, err := agent.New(cfg, sess, registry, "default", agent.ModeAuto, client, agent.ToolVerbosityInfo)
//	if err != nil {
//	    // handle error
//	}
//	err = a.ProcessUserInput(ctx, "Summarize the home page", agent.ProcessCallbacks{
//	    OnAssistantMessage: func(message string) { fmt.Println(message) },
//	})
//
// # Modes
//
//   - ModeAuto: tools run without confirmation
//   - ModePrompt: ProcessCallbacks.ShouldExecuteTool decides per call
//
// # Subpackages
//
// agent/terminal is the interactive CLI. agent/acp serves the Agent Client
// Protocol over stdio for editors and the WebSocket bridge.
package agent

// Package terminal implements the interactive command-line mode of the agent.
//
// Each line typed at the "You: " prompt is one turn. Answers are printed as
// "Storyblok: ...". /quit, /exit or end of input end the session.
//
// In prompt mode every tool call is confirmed with y/n on the same input
// stream. The agent's tool verbosity decides what is shown of tool calls:
// nothing (none), the tool name (info), or name, arguments and result (all).
package terminal

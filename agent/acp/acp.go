// Package acp serves the agent over the Agent Client Protocol: newline
// delimited JSON-RPC 2.0 on a pair of streams, usually stdin and stdout.
//
// Supported methods are initialize, session/new, session/load and
// session/prompt. During a prompt the agent's answers, tool calls and tool
// results are streamed to the client as session/update notifications.
// Nothing but protocol frames is ever written to the output stream.
package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/m4xw311/storyblok-agent/agent"
	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/session"
)

const (
	protocolVersion = 1

	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	// maxResourceSize caps the inlined content of a file:// resource link.
	maxResourceSize = 50000
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the client expects no response.
func (r *request) isNotification() bool { return len(r.ID) == 0 }

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// contentBlock is a prompt content block. Only text and resource_link
// blocks are understood.
type contentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

type server struct {
	ctx   context.Context
	agent *agent.Agent
	out   io.Writer
	log   *slog.Logger

	writeMu  sync.Mutex
	mu       sync.Mutex
	sessions map[string]*session.Session
	seq      int64
}

// OpenTrace opens (appending) the trace file used with -trace.
func OpenTrace(path string) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open trace file")
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), f, nil
}

// Run serves requests from in until it is exhausted or ctx is cancelled.
// A nil trace discards protocol tracing.
func Run(ctx context.Context, a *agent.Agent, in io.Reader, out io.Writer, trace *slog.Logger) error {
	if trace == nil {
		trace = slog.New(slog.DiscardHandler)
	}
	s := &server{
		ctx:      ctx,
		agent:    a,
		out:      out,
		log:      trace,
		sessions: make(map[string]*session.Session),
	}

	reader := bufio.NewReader(in)
	for ctx.Err() == nil {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			s.dispatch(bytes.TrimSpace(line))
		}
		if err == io.EOF {
			s.log.Debug("input closed")
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "ACP read error")
		}
	}
	return ctx.Err()
}

func (s *server) dispatch(payload []byte) {
	s.log.Debug("received", "payload", string(payload))

	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeError(nil, codeParseError, "Parse error", err.Error())
		return
	}

	var handle func(*request) (any, *rpcError)
	switch req.Method {
	case "initialize":
		handle = s.handleInitialize
	case "session/new":
		handle = s.handleSessionNew
	case "session/load":
		handle = s.handleSessionLoad
	case "session/prompt":
		handle = s.handleSessionPrompt
	default:
		if !req.isNotification() {
			s.writeError(req.ID, codeMethodNotFound, "Method not found", req.Method)
		}
		return
	}

	result, rpcErr := handle(&req)
	if req.isNotification() {
		return
	}
	if rpcErr != nil {
		s.writeError(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	s.write(response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *server) write(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to encode message", "err", err)
		return
	}
	s.log.Debug("sending", "payload", string(data))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.log.Error("failed to write message", "err", err)
	}
}

func (s *server) writeError(id json.RawMessage, code int, msg string, data any) {
	if id == nil {
		id = json.RawMessage("null")
	}
	s.write(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg, Data: data}})
}

func (s *server) notify(sessionID string, update map[string]any) {
	s.write(notification{
		JSONRPC: "2.0",
		Method:  "session/update",
		Params:  map[string]any{"sessionId": sessionID, "update": update},
	})
}

func decodeParams(req *request, v any) *rpcError {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "Invalid params", Data: err.Error()}
	}
	return nil
}

func (s *server) handleInitialize(req *request) (any, *rpcError) {
	var p struct {
		ProtocolVersion int `json:"protocolVersion"`
	}
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	s.log.Debug("initialize", "clientProtocolVersion", p.ProtocolVersion)

	return map[string]any{
		"protocolVersion": protocolVersion,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	}, nil
}

func (s *server) handleSessionNew(req *request) (any, *rpcError) {
	s.mu.Lock()
	s.seq++
	sid := fmt.Sprintf("sess_%d_%d", time.Now().UnixNano(), s.seq)
	s.mu.Unlock()

	sess, err := session.New(sid)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: "Internal error", Data: fmt.Sprintf("failed to create session: %v", err)}
	}
	if tmpl := s.agent.Session; tmpl != nil {
		sess.Mode = tmpl.Mode
		sess.Toolset = tmpl.Toolset
		sess.ToolVerbosity = tmpl.ToolVerbosity
	}
	sess.Acp = true

	s.mu.Lock()
	s.sessions[sid] = sess
	s.mu.Unlock()
	s.log.Debug("session created", "sessionId", sid)

	return map[string]any{"sessionId": sid}, nil
}

// handleSessionLoad restores a saved session and replays its history as
// session/update notifications before answering.
func (s *server) handleSessionLoad(req *request) (any, *rpcError) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	sess, err := session.Load(p.SessionID)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "Invalid params", Data: fmt.Sprintf("session not found: %v", err)}
	}

	s.mu.Lock()
	s.sessions[p.SessionID] = sess
	s.mu.Unlock()

	for _, msg := range sess.Messages {
		switch msg.Role {
		case "user":
			s.notify(p.SessionID, textUpdate("user_message_chunk", msg.Content))
		case "assistant":
			if msg.Content != "" {
				s.notify(p.SessionID, textUpdate("agent_message_chunk", msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				s.notify(p.SessionID, toolCallUpdate(tc))
			}
		case "tool":
			if len(msg.ToolCalls) > 0 {
				s.notify(p.SessionID, toolResultUpdate(msg.ToolCalls[0].ToolCallID, msg.Content))
			}
		}
	}
	return nil, nil
}

func (s *server) handleSessionPrompt(req *request) (any, *rpcError) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if err := decodeParams(req, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[p.SessionID]
	s.mu.Unlock()
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "Invalid params", Data: "unknown sessionId"}
	}

	userText := extractUserText(p.Prompt)
	s.log.Debug("prompt", "sessionId", p.SessionID, "blocks", len(p.Prompt))

	// Tools run without confirmation here: the client has no way to answer.
	callbacks := agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) {
			s.notify(p.SessionID, textUpdate("agent_message_chunk", message))
		},
		OnToolCall: func(tc session.ToolCall) {
			s.notify(p.SessionID, toolCallUpdate(tc))
		},
		OnToolResult: func(tc session.ToolCall, result string) {
			s.notify(p.SessionID, toolResultUpdate(tc.ToolCallID, result))
		},
		ShouldExecuteTool: func(session.ToolCall) bool { return true },
		OnWarning: func(warning string) {
			s.log.Warn(warning, "sessionId", p.SessionID)
		},
	}

	s.agent.Session = sess
	if err := s.agent.ProcessUserInput(s.ctx, userText, callbacks); err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: "Internal error", Data: fmt.Sprintf("error processing user input: %v", err)}
	}
	return map[string]any{"stopReason": "end_turn"}, nil
}

func textUpdate(kind, text string) map[string]any {
	return map[string]any{
		"sessionUpdate": kind,
		"content":       map[string]any{"type": "text", "text": text},
	}
}

func toolCallUpdate(tc session.ToolCall) map[string]any {
	return map[string]any{
		"sessionUpdate": "tool_call",
		"toolCall": map[string]any{
			"id":   tc.ToolCallID,
			"name": tc.Name,
			"args": tc.Args,
		},
	}
}

func toolResultUpdate(toolCallID, result string) map[string]any {
	return map[string]any{
		"sessionUpdate": "tool_result",
		"toolResult": map[string]any{
			"toolCallId": toolCallID,
			"result":     result,
		},
	}
}

// extractUserText joins the prompt blocks into one message. Resource links
// are described, and file:// resources are inlined.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			parts = append(parts, describeResource(b))
		}
	}
	return strings.Join(parts, "\n")
}

func describeResource(b contentBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
	if b.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", b.Description)
	}
	fmt.Fprintf(&sb, "URI: %s\n", b.URI)
	if b.MimeType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
	}
	if b.Size != nil {
		fmt.Fprintf(&sb, "Size: %d bytes\n", *b.Size)
	}

	if strings.HasPrefix(b.URI, "file://") {
		content, err := readFileURI(b.URI)
		if err != nil {
			fmt.Fprintf(&sb, "\n[Error reading file: %v]\n", err)
		} else {
			if len(content) > maxResourceSize {
				content = content[:maxResourceSize] + "\n\n[... truncated ...]"
			}
			fmt.Fprintf(&sb, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
		}
	} else {
		sb.WriteString("\n[External resource - content not available]\n")
	}
	sb.WriteString("=== End Resource ===\n")
	return sb.String()
}

func readFileURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if u.Scheme != "file" {
		return "", errors.New("unsupported URI scheme: %s", u.Scheme)
	}
	content, err := os.ReadFile(u.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}

package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/storyblok-agent/errors"
	"github.com/m4xw311/storyblok-agent/session"
	"github.com/m4xw311/storyblok-agent/tools"
	"github.com/openai/openai-go/v2"
	"github.com/tidwall/gjson"
)

func TestNewClientRejectsUnknownVendor(t *testing.T) {
	if _, err := NewClient(context.Background(), "llama-on-a-toaster", "x"); err == nil {
		t.Fatal("expected an error for an unknown client")
	}
	c, err := NewClient(context.Background(), "mock", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*MockLLMClient); !ok {
		t.Fatalf("expected *MockLLMClient, got %T", c)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	for _, name := range []string{"gemini", "openai", "anthropic"} {
		if _, err := NewClient(context.Background(), name, "model"); err == nil {
			t.Errorf("%s: expected a missing key error", name)
		}
	}
}

func TestMockLLMClient(t *testing.T) {
	m := &MockLLMClient{Responses: []session.Message{
		{ToolCalls: []session.ToolCall{{ToolCallID: "1", Name: "get_story"}}},
	}}
	ctx := context.Background()
	history := []session.Message{{Role: "user", Content: "hi"}}

	first, err := m.Chat(ctx, history, []tools.Tool{storyTool})
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, first.Role, "assistant")
	testboil.FailTestIfDiff(t, len(first.ToolCalls), 1)
	testboil.FailTestIfDiff(t, m.ToolNames[0], "get_story")

	second, err := m.Chat(ctx, history, nil)
	if err != nil {
		t.Fatal(err)
	}
	testboil.AssertStringContains(t, second.Content, "You said: 'hi'")
	testboil.FailTestIfDiff(t, len(m.Calls), 2)

	m.Err = errors.New("quota")
	if _, err := m.Chat(ctx, history, nil); err == nil {
		t.Fatal("expected the configured error")
	}
}

func TestConvertMessagesToGeminiContent(t *testing.T) {
	contents := convertMessagesToGeminiContent(conversation)
	testboil.FailTestIfDiff(t, len(contents), 4)

	roles := []string{"user", "model", "user", "model"}
	for i, want := range roles {
		testboil.FailTestIfDiff(t, contents[i].Role, want)
	}

	testboil.FailTestIfDiff(t, len(contents[1].Parts), 2)
	call, ok := contents[1].Parts[0].(genai.FunctionCall)
	if !ok || call.Name != "get_story" || call.Args["slug"] != "home" {
		t.Errorf("unexpected function call part %#v", contents[1].Parts[0])
	}

	testboil.FailTestIfDiff(t, len(contents[2].Parts), 2)
	resp, ok := contents[2].Parts[1].(genai.FunctionResponse)
	if !ok || resp.Name != "get_story" || resp.Response["content"] != `{"story":{"slug":"about"}}` {
		t.Errorf("unexpected function response part %#v", contents[2].Parts[1])
	}
}

func TestGeminiSchema(t *testing.T) {
	if geminiSchema(nil) != nil {
		t.Error("tools without parameters must have no schema")
	}
	schema := geminiSchema(storyTool.Parameters())
	testboil.FailTestIfDiff(t, schema.Type, genai.TypeObject)
	testboil.FailTestIfDiff(t, schema.Properties["slug"].Type, genai.TypeString)
	testboil.FailTestIfDiff(t, schema.Properties["depth"].Type, genai.TypeInteger)
	testboil.FailTestIfDiff(t, len(schema.Required), 1)
	testboil.FailTestIfDiff(t, schema.Required[0], "slug")
}

func TestProcessGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.Text("Checking. "),
			genai.FunctionCall{Name: "get_tags"},
			genai.FunctionCall{Name: "get_story", Args: map[string]any{"slug": "home"}},
		}},
	}}}

	msg, err := processGeminiResponse(resp)
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, msg.Content, "Checking. ")
	testboil.FailTestIfDiff(t, len(msg.ToolCalls), 2)
	testboil.FailTestIfDiff(t, msg.ToolCalls[0].ToolCallID, "call_0_get_tags")
	testboil.FailTestIfDiff(t, msg.ToolCalls[1].ToolCallID, "call_1_get_story")
	if msg.ToolCalls[0].Args == nil {
		t.Error("arguments must never be nil")
	}

	if _, err := processGeminiResponse(&genai.GenerateContentResponse{}); err == nil {
		t.Error("expected an error for an empty response")
	}
}

func TestConvertMessagesToOpenaiContent(t *testing.T) {
	messages := convertMessagesToOpenaiContent(conversation)
	testboil.FailTestIfDiff(t, len(messages), 6)

	body, err := json.Marshal(messages)
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string]string{
		"0.role":                            "system",
		"1.role":                            "user",
		"2.role":                            "assistant",
		"2.tool_calls.1.id":                 "call_2",
		"2.tool_calls.0.function.arguments": `{"slug":"home"}`,
		"3.role":                            "tool",
		"3.tool_call_id":                    "call_1",
		"4.tool_call_id":                    "call_2",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(body, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestConvertToolsToOpenAITools(t *testing.T) {
	if convertToolsToOpenAITools(nil) != nil {
		t.Error("expected no tools")
	}
	body, err := json.Marshal(convertToolsToOpenAITools([]tools.Tool{storyTool}))
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, gjson.GetBytes(body, "0.function.name").String(), "get_story")
	testboil.FailTestIfDiff(t, gjson.GetBytes(body, "0.function.parameters.properties.slug.type").String(), "string")
	testboil.FailTestIfDiff(t, gjson.GetBytes(body, "0.function.parameters.required.0").String(), "slug")
}

func TestConvertMessagesToAnthropicMessages(t *testing.T) {
	messages := convertMessagesToAnthropicMessages(conversation)
	testboil.FailTestIfDiff(t, len(messages), 4)

	testboil.FailTestIfDiff(t, messages[1].Role, anthropic.MessageParamRoleAssistant)
	testboil.FailTestIfDiff(t, len(messages[1].Content), 2)
	if use := messages[1].Content[0].OfToolUse; use == nil || use.ID != "call_1" {
		t.Errorf("expected a tool_use block for call_1, got %+v", messages[1].Content[0])
	}

	testboil.FailTestIfDiff(t, messages[2].Role, anthropic.MessageParamRoleUser)
	testboil.FailTestIfDiff(t, len(messages[2].Content), 2)
	for i, id := range []string{"call_1", "call_2"} {
		res := messages[2].Content[i].OfToolResult
		if res == nil || res.ToolUseID != id {
			t.Errorf("block %d: expected tool_result for %s", i, id)
		}
	}
}

func TestConvertToolsToAnthropicTools(t *testing.T) {
	converted := convertToolsToAnthropicTools([]tools.Tool{storyTool})
	testboil.FailTestIfDiff(t, len(converted), 1)
	testboil.FailTestIfDiff(t, converted[0].Name, "get_story")
	testboil.FailTestIfDiff(t, len(converted[0].InputSchema.Required), 1)
	props, ok := converted[0].InputSchema.Properties.(map[string]any)
	if !ok || props["depth"] == nil {
		t.Errorf("unexpected properties %#v", converted[0].InputSchema.Properties)
	}
}

func TestProcessOpenaiResponse(t *testing.T) {
	raw := `{"id":"c1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[
		{"id":"call_a","type":"function","function":{"name":"get_story","arguments":"{\"slug\":\"home\"}"}},
		{"id":"call_b","type":"function","function":{"name":"get_tags","arguments":""}}]}}]}`
	var resp openai.ChatCompletion
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("Failed to decode fixture: %v", err)
	}

	msg, err := processOpenaiResponse(&resp)
	if err != nil {
		t.Fatalf("processOpenaiResponse: %v", err)
	}
	testboil.FailTestIfDiff(t, msg.Role, "assistant")
	testboil.FailTestIfDiff(t, len(msg.ToolCalls), 2)
	testboil.FailTestIfDiff(t, msg.ToolCalls[0].ToolCallID, "call_a")
	testboil.FailTestIfDiff(t, msg.ToolCalls[0].Args["slug"], any("home"))
	if msg.ToolCalls[1].Args == nil || len(msg.ToolCalls[1].Args) != 0 {
		t.Errorf("empty arguments should give an empty map, got %#v", msg.ToolCalls[1].Args)
	}

	empty, err := processOpenaiResponse(&openai.ChatCompletion{})
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, empty.Content, "")
	testboil.FailTestIfDiff(t, len(empty.ToolCalls), 0)
}

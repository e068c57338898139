package llm

import (
	"github.com/m4xw311/storyblok-agent/session"
	"github.com/m4xw311/storyblok-agent/tools"
)

// schemaProperties maps tool parameters to JSON schema properties, along
// with the names of the required ones.
func schemaProperties(params []tools.Param) (map[string]any, []string) {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": schemaType(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if prop["type"] == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return properties, required
}

// objectSchema is the full input schema of a tool.
func objectSchema(params []tools.Param) map[string]any {
	properties, required := schemaProperties(params)
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func schemaType(t string) string {
	switch t {
	case "string", "number", "integer", "boolean", "array", "object":
		return t
	default:
		return "string"
	}
}

// systemPrompt joins the content of every system message.
func systemPrompt(messages []session.Message) string {
	var prompt string
	for _, msg := range messages {
		if msg.Role != "system" {
			continue
		}
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += msg.Content
	}
	return prompt
}

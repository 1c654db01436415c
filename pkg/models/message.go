// Package models provides the domain types shared across the agent
// runtime: conversation messages, tool calls, skills, and sessions.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. Content is either plain text
// (Text non-empty, Parts empty) or a list of multipart Parts; exactly one
// form should be populated.
//
// Invariant: an assistant Message with ToolCalls is followed, before the
// next assistant Message, by one tool Message per call whose ToolCallID
// matches a call ID.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Text       string         `json:"content,omitempty"`
	Parts      []ContentPart  `json:"parts,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Content returns the message's text, flattening multipart content into
// its text parts when Text is empty.
func (m *Message) Content() string {
	if m.Text != "" || len(m.Parts) == 0 {
		return m.Text
	}
	out := ""
	for _, p := range m.Parts {
		if p.Type == ContentTypeText {
			out += p.Text
		}
	}
	return out
}

// ContentPartType discriminates a ContentPart.
type ContentPartType string

const (
	ContentTypeText  ContentPartType = "text"
	ContentTypeImage ContentPartType = "image"
)

// ContentPart is one piece of multipart message content.
type ContentPart struct {
	Type ContentPartType `json:"type"`
	Text string          `json:"text,omitempty"`

	// Image fields, used when Type == ContentTypeImage.
	MimeType string `json:"mime_type,omitempty"`
	// Data holds base64-encoded image bytes; mutually exclusive with URL.
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// DataURI renders the part as a base64 data URI with no whitespace after
// the comma (spec requires no stray space between the comma and payload).
func (p ContentPart) DataURI() string {
	if p.URL != "" {
		return p.URL
	}
	return "data:" + p.MimeType + ";base64," + p.Data
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Envelope renders the deterministic tool-result content string per
// spec §4.4: raw output on success, "error: <message>" on failure.
func (r ToolResult) Envelope() string {
	if r.Success {
		return r.Output
	}
	return "error: " + r.Error
}

// ArgType enumerates the coercible tool-argument value types.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgObject  ArgType = "object"
)

// ArgSpec declares one argument accepted by a tool implementation.
type ArgSpec struct {
	Name        string  `json:"name" yaml:"name"`
	Type        ArgType `json:"type" yaml:"type"`
	Required    bool    `json:"required" yaml:"required"`
	Default     any     `json:"default,omitempty" yaml:"default,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Implementation describes how a ToolDefinition is actually executed:
// a command resolved relative to the owning skill's directory, invoked
// directly with argv (never through a shell).
type Implementation struct {
	Command string    `json:"command" yaml:"command"`
	Args    []ArgSpec `json:"args,omitempty" yaml:"args"`

	// ResolvedPath is the absolute, canonicalized path to Command,
	// populated by the skill loader once the manifest is validated.
	ResolvedPath string `json:"-" yaml:"-"`
	// SkillDir is the directory that owns this tool, used to enforce
	// the sandboxing policy (resolved command must stay within it).
	SkillDir string `json:"-" yaml:"-"`
}

// ToolDefinition is a single tool's schema and how to execute it.
type ToolDefinition struct {
	Name           string          `json:"name" yaml:"name"`
	Description    string          `json:"description" yaml:"description"`
	Parameters     json.RawMessage `json:"parameters,omitempty" yaml:"-"`
	Implementation Implementation  `json:"implementation" yaml:"-"`
}

// JSONSchema returns the tool's parameter schema, synthesizing one from
// its ArgSpecs when Parameters was not explicitly set.
func (t ToolDefinition) JSONSchema() json.RawMessage {
	if len(t.Parameters) > 0 {
		return t.Parameters
	}
	props := map[string]any{}
	var required []string
	for _, a := range t.Implementation.Args {
		props[a.Name] = map[string]any{
			"type":        jsonSchemaType(a.Type),
			"description": a.Description,
		}
		if a.Required {
			required = append(required, a.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return data
}

func jsonSchemaType(t ArgType) string {
	switch t {
	case ArgNumber:
		return "number"
	case ArgBoolean:
		return "boolean"
	case ArgObject:
		return "object"
	default:
		return "string"
	}
}

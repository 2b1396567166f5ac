//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package model

import (
	"encoding/json"

	"trpc.group/trpc-go/trpc-agent-graph/tool"
)

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
type Message struct {
	Role      Role       `json:"role"`                 // The role of the message author
	Content   string     `json:"content"`              // The message content
	ToolID    string     `json:"tool_id,omitempty"`    // Used by tool response
	ToolName  string     `json:"tool_name,omitempty"`  // Used by tool response
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // Optional tool calls for the message
}

// HasToolCalls reports whether m requests tool calls.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a copy of m that shares no tool calls or argument bytes
// with it.
func (m Message) Clone() Message {
	if m.ToolCalls == nil {
		return m
	}
	calls := make([]ToolCall, len(m.ToolCalls))
	for i, c := range m.ToolCalls {
		if c.Function.Arguments != nil {
			c.Function.Arguments = append([]byte(nil), c.Function.Arguments...)
		}
		calls[i] = c
	}
	m.ToolCalls = calls
	return m
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolMessage creates the result message of a tool call.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{
		Role:     RoleTool,
		ToolID:   toolID,
		ToolName: toolName,
		Content:  content,
	}
}

// GenerationConfig contains configuration for text generation.
type GenerationConfig struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// Stop sequences where the API will stop generating further tokens.
	Stop []string `json:"stop,omitempty"`
}

// StructuredOutput asks the model for a JSON object conforming to Schema.
type StructuredOutput struct {
	// Name identifies the schema for the provider.
	Name string `json:"name"`
	// Schema is a JSON schema of type object.
	Schema map[string]any `json:"schema"`
	// Strict requests strict schema adherence where the provider supports it.
	Strict bool `json:"strict"`
}

// Request is the request to the model.
type Request struct {
	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// GenerationConfig contains the generation parameters.
	GenerationConfig `json:",inline"`

	// StructuredOutput requests a schema conformant JSON answer.
	StructuredOutput *StructuredOutput `json:"structured_output,omitempty"`

	Tools map[string]tool.Tool `json:"-"` // Tools are not serialized, handled separately
}

// ToolCall represents a call to a tool (function) in the model response.
type ToolCall struct {
	// Type of the tool. Currently, only `function` is supported.
	Type string `json:"type"`
	// Function definition for the tool
	Function FunctionDefinitionParam `json:"function,omitempty"`
	// The ID of the tool call returned by the model.
	ID string `json:"id,omitempty"`
}

// FunctionDefinitionParam is the function part of a tool call.
type FunctionDefinitionParam struct {
	// The name of the function to be called. Must be a-z, A-Z, 0-9, or contain
	// underscores and dashes, with a maximum length of 64.
	Name string `json:"name"`
	// A description of what the function does, used by the model to choose when and
	// how to call the function.
	Description string `json:"description,omitempty"`

	// Optional arguments to pass to the function, json-encoded.
	Arguments []byte `json:"arguments,omitempty"`
}

// functionJSON is the wire form of FunctionDefinitionParam. Arguments travel
// as a string, as providers send them, so malformed arguments survive a
// state round trip.
type functionJSON struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Arguments   string `json:"arguments,omitempty"`
}

// MarshalJSON encodes Arguments as a JSON string.
func (f FunctionDefinitionParam) MarshalJSON() ([]byte, error) {
	return json.Marshal(functionJSON{Name: f.Name, Description: f.Description, Arguments: string(f.Arguments)})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (f *FunctionDefinitionParam) UnmarshalJSON(data []byte) error {
	var v functionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FunctionDefinitionParam{Name: v.Name, Description: v.Description}
	if v.Arguments != "" {
		f.Arguments = []byte(v.Arguments)
	}
	return nil
}

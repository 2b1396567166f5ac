//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCallJSON(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{{
			Type:     "function",
			ID:       "call-1",
			Function: FunctionDefinitionParam{Name: "search", Arguments: []byte(`{"query":"go"}`)},
		}},
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"arguments":"{\"query\":\"go\"}"`)

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, msg, back)
	assert.True(t, back.HasToolCalls())

	var bare FunctionDefinitionParam
	require.NoError(t, json.Unmarshal([]byte(`{"name":"noop"}`), &bare))
	assert.Nil(t, bare.Arguments)
	assert.Error(t, json.Unmarshal([]byte(`{"name":1}`), &bare))
}

func TestRole(t *testing.T) {
	assert.True(t, RoleTool.IsValid())
	assert.False(t, Role("robot").IsValid())
	assert.Equal(t, "user", RoleUser.String())
	assert.False(t, NewUserMessage("hi").HasToolCalls())
}

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(&Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	u.Add(nil)
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, u)
}

func TestMessageClone(t *testing.T) {
	m := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{
		ID:       "call_1",
		Function: FunctionDefinitionParam{Name: "search", Arguments: []byte(`{"q":"go"}`)},
	}}}
	c := m.Clone()
	c.ToolCalls[0].Function.Name = "other"
	c.ToolCalls[0].Function.Arguments[2] = 'x'
	assert.Equal(t, "search", m.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"q":"go"}`, string(m.ToolCalls[0].Function.Arguments))

	plain := NewUserMessage("hi")
	assert.Equal(t, plain, plain.Clone())
}

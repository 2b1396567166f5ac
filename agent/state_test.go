//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/model"
)

func TestSchemas(t *testing.T) {
	s := MessagesSchema()
	assert.Equal(t, []string{StateKeyMessages}, s.Fields())
	f, ok := s.Field(StateKeyMessages)
	require.True(t, ok)
	assert.Equal(t, graph.MergeAppend, f.Policy)

	r := RetrievalSchema()
	assert.Equal(t, []string{StateKeyMessages, StateKeyQueries, StateKeyRetrievedDocs}, r.Fields())
	f, _ = r.Field(StateKeyQueries)
	assert.Equal(t, graph.MergeAppend, f.Policy)
	f, _ = r.Field(StateKeyRetrievedDocs)
	assert.Equal(t, graph.MergeReplace, f.Policy)
	assert.Equal(t, []*document.Document{}, f.Default())
}

func TestAccessors(t *testing.T) {
	empty := graph.State{}
	assert.Nil(t, Messages(empty))
	assert.Nil(t, Queries(empty))
	assert.Nil(t, RetrievedDocs(empty))
	_, ok := LastMessage(empty)
	assert.False(t, ok)

	docs := []*document.Document{document.New("a", "b")}
	state := graph.State{
		StateKeyMessages:      []model.Message{model.NewUserMessage("hi"), model.NewAssistantMessage("hello")},
		StateKeyQueries:       []string{"q1"},
		StateKeyRetrievedDocs: docs,
	}
	assert.Len(t, Messages(state), 2)
	assert.Equal(t, []string{"q1"}, Queries(state))
	assert.Equal(t, docs, RetrievedDocs(state))
	last, ok := LastMessage(state)
	require.True(t, ok)
	assert.Equal(t, "hello", last.Content)

	assert.Nil(t, Queries(graph.State{StateKeyQueries: "not a slice"}))
}

func TestInput(t *testing.T) {
	in := Input("a", "b")
	msgs := Messages(in)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "b", msgs[1].Content)
}

func TestFailedNodeLeavesMessagesUntouched(t *testing.T) {
	assistant := model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{
		ID:       "call_1",
		Function: model.FunctionDefinitionParam{Name: "search", Arguments: []byte(`{"query":"go"}`)},
	}}}
	tamper := graph.NodeFunc[struct{}](func(_ context.Context, state graph.State, _ struct{}) (graph.State, error) {
		msgs := Messages(state)
		msgs[0].ToolCalls[0].Function.Name = "tampered"
		msgs[0].ToolCalls[0].Function.Arguments[0] = '['
		docs := RetrievedDocs(state)
		docs[0].Content = "tampered"
		return nil, errors.New("boom")
	})
	exec := graph.NewStateGraph[struct{}](RetrievalSchema()).
		AddNode("tamper", tamper).
		SetEntryPoint("tamper").
		MustCompile()

	initial := graph.State{
		StateKeyMessages:      []model.Message{assistant},
		StateKeyRetrievedDocs: []*document.Document{{ID: "d1", Content: "original"}},
	}
	res, err := exec.Run(context.Background(), initial, struct{}{})
	require.Error(t, err)
	require.NotNil(t, res)
	call := Messages(res.State)[0].ToolCalls[0]
	assert.Equal(t, "search", call.Function.Name)
	assert.JSONEq(t, `{"query":"go"}`, string(call.Function.Arguments))
	assert.Equal(t, "original", RetrievedDocs(res.State)[0].Content)
}

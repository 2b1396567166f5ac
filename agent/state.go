//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package agent holds the conversation state shared by the agent graphs and
// the nodes they have in common.
package agent

import (
	"errors"
	"reflect"

	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/model"
)

// State keys.
const (
	// StateKeyMessages holds the conversation, appended to by every turn.
	StateKeyMessages = "messages"
	// StateKeyQueries holds the search queries generated so far.
	StateKeyQueries = "queries"
	// StateKeyRetrievedDocs holds the documents of the latest retrieval.
	StateKeyRetrievedDocs = "retrieved_docs"
)

// ErrNoMessages is returned by nodes and routers that need a conversation
// but find none in the state.
var ErrNoMessages = errors.New("state has no messages")

// MessagesSchema declares the state of the reason-act graph.
func MessagesSchema() *graph.StateSchema {
	return graph.NewStateSchema().AddField(StateKeyMessages, graph.StateField{
		Type:    reflect.TypeOf([]model.Message{}),
		Policy:  graph.MergeAppend,
		Default: func() any { return []model.Message{} },
	})
}

// RetrievalSchema declares the state of the retrieval graph.
func RetrievalSchema() *graph.StateSchema {
	return MessagesSchema().
		AddField(StateKeyQueries, graph.StateField{
			Type:    reflect.TypeOf([]string{}),
			Policy:  graph.MergeAppend,
			Default: func() any { return []string{} },
		}).
		AddField(StateKeyRetrievedDocs, graph.StateField{
			Type:    reflect.TypeOf([]*document.Document{}),
			Policy:  graph.MergeReplace,
			Default: func() any { return []*document.Document{} },
		})
}

// Messages returns the conversation held by state.
func Messages(state graph.State) []model.Message {
	msgs, _ := state[StateKeyMessages].([]model.Message)
	return msgs
}

// Queries returns the generated queries held by state.
func Queries(state graph.State) []string {
	qs, _ := state[StateKeyQueries].([]string)
	return qs
}

// RetrievedDocs returns the documents of the latest retrieval.
func RetrievedDocs(state graph.State) []*document.Document {
	docs, _ := state[StateKeyRetrievedDocs].([]*document.Document)
	return docs
}

// LastMessage returns the final message of the conversation.
func LastMessage(state graph.State) (model.Message, bool) {
	msgs := Messages(state)
	if len(msgs) == 0 {
		return model.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Input builds the initial state of a run from user messages.
func Input(messages ...string) graph.State {
	msgs := make([]model.Message, len(messages))
	for i, m := range messages {
		msgs[i] = model.NewUserMessage(m)
	}
	return graph.State{StateKeyMessages: msgs}
}

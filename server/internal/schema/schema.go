//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package schema defines the JSON payloads of the HTTP server. The types
// only exist to facilitate request/response marshalling.
package schema

import (
	"encoding/json"

	"trpc.group/trpc-go/trpc-agent-graph/graph"
)

// Message is an incoming conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunRequest starts a run.
type RunRequest struct {
	// Messages seed the conversation. Roles default to "user".
	Messages []Message `json:"messages"`
	// Config overlays the server configuration; see config.Overlay for the
	// accepted keys.
	Config json.RawMessage `json:"config,omitempty"`
	// RunID optionally names the run.
	RunID string `json:"run_id,omitempty"`
}

// ResumeRequest continues a suspended or failed run.
type ResumeRequest struct {
	// Token is the token returned by the previous call, verbatim.
	Token json.RawMessage `json:"token"`
	// Patch is merged into the state before resuming.
	Patch map[string]json.RawMessage `json:"patch,omitempty"`
	// Config overlays the server configuration; see config.Overlay for the
	// accepted keys.
	Config json.RawMessage `json:"config,omitempty"`
}

// RunResponse reports the outcome of a run or resume call.
type RunResponse struct {
	RunID  string             `json:"run_id"`
	Status graph.RunStatus    `json:"status"`
	NodeID string             `json:"node_id,omitempty"`
	Steps  int                `json:"steps"`
	State  graph.State        `json:"state"`
	Token  *graph.ResumeToken `json:"token,omitempty"`
	Error  *Error             `json:"error,omitempty"`
}

// Error describes a failed call.
type Error struct {
	// Kind classifies the failure, e.g. "external_call" or "invalid_route".
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// Service and Op identify the collaborator of an external call failure.
	Service string `json:"service,omitempty"`
	Op      string `json:"op,omitempty"`
}

// GraphInfo describes a served graph.
type GraphInfo struct {
	Name            string   `json:"name"`
	Nodes           []string `json:"nodes"`
	InterruptBefore []string `json:"interrupt_before,omitempty"`
	InterruptAfter  []string `json:"interrupt_after,omitempty"`
}

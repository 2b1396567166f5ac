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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	itelemetry "trpc.group/trpc-go/trpc-agent-graph/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-graph/tool"
)

const serviceTool = "tool"

// ErrNoAssistantMessage is returned when the tools node runs without a
// preceding assistant turn.
var ErrNoAssistantMessage = errors.New("last message is not an assistant message")

// ToolsNode executes the tool calls of the latest assistant message and
// appends one tool message per call, in request order.
//
// Calls of one turn run concurrently on a pool bounded by
// config.Config.ToolParallelism. A call naming an unknown tool is answered
// with an error message so the model can correct itself; a tool that fails
// aborts the node with a graph.ExternalCallError.
type ToolsNode struct {
	tools     *tool.Set
	callbacks *tool.Callbacks
}

var _ graph.Node[*config.Config] = (*ToolsNode)(nil)

// ToolsOption configures a ToolsNode.
type ToolsOption func(*ToolsNode)

// WithToolCallbacks sets callbacks run around every tool call.
func WithToolCallbacks(cb *tool.Callbacks) ToolsOption {
	return func(n *ToolsNode) { n.callbacks = cb }
}

// NewToolsNode creates a node executing tools from set.
func NewToolsNode(set *tool.Set, opts ...ToolsOption) *ToolsNode {
	n := &ToolsNode{tools: set}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tools returns the tool set of the node.
func (n *ToolsNode) Tools() *tool.Set { return n.tools }

// Execute implements graph.Node.
func (n *ToolsNode) Execute(ctx context.Context, state graph.State, cfg *config.Config) (graph.State, error) {
	last, ok := LastMessage(state)
	if !ok {
		return nil, ErrNoMessages
	}
	if last.Role != model.RoleAssistant {
		return nil, ErrNoAssistantMessage
	}
	calls := last.ToolCalls
	if len(calls) == 0 {
		return graph.State{}, nil
	}

	results := make([]model.Message, len(calls))
	errs := make([]error, len(calls))
	run := func(i int) {
		results[i], errs[i] = n.call(ctx, calls[i])
	}

	workers := config.DefaultToolParallelism
	if cfg != nil && cfg.ToolParallelism > 0 {
		workers = cfg.ToolParallelism
	}
	if len(calls) == 1 || workers == 1 {
		for i := range calls {
			run(i)
		}
	} else if err := n.runPooled(min(workers, len(calls)), len(calls), run); err != nil {
		return nil, err
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return graph.State{StateKeyMessages: results}, nil
}

func (n *ToolsNode) runPooled(workers, count int, run func(int)) error {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("create tool pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		idx := i
		if err := pool.Submit(func() {
			defer wg.Done()
			run(idx)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submit tool call: %w", err)
		}
	}
	wg.Wait()
	return nil
}

func (n *ToolsNode) call(ctx context.Context, tc model.ToolCall) (model.Message, error) {
	id, name := tc.ID, tc.Function.Name
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(name))
	defer span.End()

	t, ok := n.tools.Get(name)
	if !ok {
		log.Warnf("model requested unknown tool %q", name)
		content := fmt.Sprintf("Error: tool %s not found. Available tools: %s.",
			name, strings.Join(n.tools.Names(), ", "))
		return model.NewToolMessage(id, name, content), nil
	}

	info := &tool.CallInfo{Name: name, CallID: id, Declaration: t.Declaration(), Args: tc.Function.Arguments}
	result, err := n.callbacks.RunBeforeTool(ctx, info)
	if err != nil {
		return model.Message{}, fmt.Errorf("before tool %s: %w", name, err)
	}
	if result == nil {
		var runErr error
		result, runErr = t.Call(ctx, info.Args)
		custom, err := n.callbacks.RunAfterTool(ctx, info, result, runErr)
		if err != nil {
			return model.Message{}, fmt.Errorf("after tool %s: %w", name, err)
		}
		switch {
		case custom != nil:
			result = custom
		case runErr != nil:
			return model.Message{}, graph.NewExternalCallError(serviceTool, name, runErr)
		}
	}
	itelemetry.TraceToolCall(span, name, id, info.Args, result)

	content, err := toolContent(result)
	if err != nil {
		return model.Message{}, fmt.Errorf("tool %s: encode result: %w", name, err)
	}
	return model.NewToolMessage(id, name, content), nil
}

// toolContent renders a tool result for the model. Strings are passed
// through, everything else is JSON encoded.
func toolContent(result any) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

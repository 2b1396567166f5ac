//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package react builds the reason-act graph: a model node that may request
// tools, and a tools node whose results are fed back to the model until it
// answers without tool calls.
package react

import (
	"context"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-agent-graph/agent"
	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/tool"
	"trpc.group/trpc-go/trpc-agent-graph/tool/duckduckgo"
	"trpc.group/trpc-go/trpc-agent-graph/tool/webfetch"
)

// Graph and node identifiers.
const (
	GraphName     = "ReAct Agent"
	NodeCallModel = "callModel"
	NodeTools     = "tools"
)

// ModelNode calls the configured model with the system prompt and the
// conversation, advertising the graph's tools.
type ModelNode struct {
	registry  *model.Registry
	tools     *tool.Set
	callbacks *model.ModelCallbacks
	now       func() time.Time
}

var _ graph.Node[*config.Config] = (*ModelNode)(nil)

// Execute implements graph.Node.
func (n *ModelNode) Execute(ctx context.Context, state graph.State, cfg *config.Config) (graph.State, error) {
	h, err := n.registry.Load(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	h = h.BindTools(n.tools.Tools()...)
	if n.callbacks != nil {
		h = h.WithCallbacks(n.callbacks)
	}
	system := config.FormatTemplate(cfg.SystemPromptTemplate, map[string]string{
		config.PlaceholderSystemTime: config.SystemTime(n.now()),
	})
	msgs := append([]model.Message{model.NewSystemMessage(system)}, agent.Messages(state)...)
	reply, err := h.Invoke(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return graph.State{agent.StateKeyMessages: []model.Message{reply}}, nil
}

// RouteModelOutput routes to the tools node when the latest message is an
// assistant message with at least one tool call, and ends the run
// otherwise. A state without messages is an error because the model node
// always appends one.
func RouteModelOutput(_ context.Context, state graph.State) (string, error) {
	last, ok := agent.LastMessage(state)
	if !ok {
		return "", fmt.Errorf("route model output: %w", agent.ErrNoMessages)
	}
	if last.Role == model.RoleAssistant && last.HasToolCalls() {
		return NodeTools, nil
	}
	return graph.End, nil
}

type options struct {
	registry       *model.Registry
	tools          []tool.CallableTool
	modelCallbacks *model.ModelCallbacks
	toolCallbacks  *tool.Callbacks
	nodeCallbacks  *graph.NodeCallbacks
	now            func() time.Time
}

// Option configures NewGraph.
type Option func(*options)

// WithRegistry sets the model registry. model.DefaultRegistry is used
// otherwise.
func WithRegistry(r *model.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithTools replaces the default tools.
func WithTools(tools ...tool.CallableTool) Option {
	return func(o *options) { o.tools = append([]tool.CallableTool{}, tools...) }
}

// WithModelCallbacks sets callbacks run around every model request.
func WithModelCallbacks(cb *model.ModelCallbacks) Option {
	return func(o *options) { o.modelCallbacks = cb }
}

// WithToolCallbacks sets callbacks run around every tool call.
func WithToolCallbacks(cb *tool.Callbacks) Option {
	return func(o *options) { o.toolCallbacks = cb }
}

// WithNodeCallbacks sets graph node callbacks.
func WithNodeCallbacks(cb *graph.NodeCallbacks) Option {
	return func(o *options) { o.nodeCallbacks = cb }
}

// WithClock sets the clock used for the {system_time} placeholder.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// DefaultTools returns the web search and web fetch tools.
func DefaultTools(cfg *config.Config) []tool.CallableTool {
	return []tool.CallableTool{
		duckduckgo.NewTool(duckduckgo.WithMaxResults(cfg.MaxSearchResults)),
		webfetch.NewTool(),
	}
}

// NewGraph compiles the reason-act graph. cfg supplies the interrupt points
// and the limits of the default tools.
func NewGraph(cfg *config.Config, opts ...Option) (*graph.Executable[*config.Config], error) {
	o := &options{registry: model.DefaultRegistry, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.tools == nil {
		o.tools = DefaultTools(cfg)
	}
	set := tool.NewSet(o.tools...)

	callModel := &ModelNode{registry: o.registry, tools: set, callbacks: o.modelCallbacks, now: o.now}
	tools := agent.NewToolsNode(set, agent.WithToolCallbacks(o.toolCallbacks))

	sg := graph.NewStateGraph[*config.Config](agent.MessagesSchema()).
		AddNode(NodeCallModel, callModel,
			graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("calls the model with the conversation and bound tools")).
		AddNode(NodeTools, tools,
			graph.WithNodeType(graph.NodeTypeTool),
			graph.WithDescription("executes requested tool calls")).
		SetEntryPoint(NodeCallModel).
		AddConditionalEdges(NodeCallModel, RouteModelOutput, map[string]string{
			NodeTools: NodeTools,
			graph.End: graph.End,
		}).
		AddEdge(NodeTools, NodeCallModel)

	copts := []graph.CompileOption{
		graph.WithGraphName(GraphName),
		graph.WithInterruptBefore(cfg.InterruptBefore...),
		graph.WithInterruptAfter(cfg.InterruptAfter...),
	}
	if o.nodeCallbacks != nil {
		copts = append(copts, graph.WithNodeCallbacks(o.nodeCallbacks))
	}
	return sg.Compile(copts...)
}

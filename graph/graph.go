//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides graph-based execution of conversational agents.
//
// A graph is declared with StateGraph, compiled into an immutable Executable
// and run one turn at a time. Nodes read a copy of the State and return a
// partial update which the executor merges through the StateSchema. Control
// moves along static or conditional edges until End is reached or an
// interrupt point suspends the run.
package graph

import (
	"context"
	"sort"
)

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// NodeType classifies a node for tracing and visualization.
type NodeType string

// Node types.
const (
	NodeTypeFunction  NodeType = "function"
	NodeTypeLLM       NodeType = "llm"
	NodeTypeTool      NodeType = "tool"
	NodeTypeRetriever NodeType = "retriever"
)

// Node is a unit of work. It receives a copy of the state and the run
// configuration and returns a partial update. For append fields the update
// must only hold the new items.
type Node[C any] interface {
	Execute(ctx context.Context, state State, cfg C) (State, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc[C any] func(ctx context.Context, state State, cfg C) (State, error)

// Execute calls f.
func (f NodeFunc[C]) Execute(ctx context.Context, state State, cfg C) (State, error) {
	return f(ctx, state, cfg)
}

// RouteFunc returns the label of the next branch for a conditional edge.
type RouteFunc func(ctx context.Context, state State) (string, error)

// NodeInfo is the metadata of a declared node.
type NodeInfo struct {
	ID          string
	Name        string
	Description string
	Type        NodeType
}

// Edge represents a static edge in the graph.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge represents a conditional edge with routing logic.
type ConditionalEdge struct {
	From  string
	Route RouteFunc
	// PathMap maps labels returned by Route to target node ids. When nil,
	// labels are interpreted as node ids.
	PathMap map[string]string
}

type nodeEntry[C any] struct {
	info NodeInfo
	node Node[C]
}

// Executable is a compiled graph. It is immutable and safe for concurrent
// runs; every run owns its own State.
type Executable[C any] struct {
	name            string
	schema          *StateSchema
	nodes           map[string]*nodeEntry[C]
	nodeOrder       []string
	entry           string
	edges           map[string]string
	condEdges       map[string]*ConditionalEdge
	interruptBefore map[string]bool
	interruptAfter  map[string]bool
	callbacks       *NodeCallbacks
}

// Name returns the graph name.
func (e *Executable[C]) Name() string {
	return e.name
}

// Schema returns the state schema.
func (e *Executable[C]) Schema() *StateSchema {
	return e.schema
}

// EntryPoint returns the target of the Start edge.
func (e *Executable[C]) EntryPoint() string {
	return e.entry
}

// Node returns the metadata of a node.
func (e *Executable[C]) Node(id string) (NodeInfo, bool) {
	n, ok := e.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return n.info, true
}

// NodeIDs returns the declared node ids in declaration order.
func (e *Executable[C]) NodeIDs() []string {
	return append([]string(nil), e.nodeOrder...)
}

// Edge returns the static edge target of a node.
func (e *Executable[C]) Edge(from string) (string, bool) {
	to, ok := e.edges[from]
	return to, ok
}

// ConditionalEdge returns the conditional edge leaving a node.
func (e *Executable[C]) ConditionalEdge(from string) (*ConditionalEdge, bool) {
	ce, ok := e.condEdges[from]
	if !ok {
		return nil, false
	}
	cp := *ce
	cp.PathMap = copyPathMap(ce.PathMap)
	return &cp, true
}

// InterruptBefore returns the sorted ids of nodes that suspend the run before
// they execute.
func (e *Executable[C]) InterruptBefore() []string {
	return sortedKeys(e.interruptBefore)
}

// InterruptAfter returns the sorted ids of nodes that suspend the run after
// their update is merged.
func (e *Executable[C]) InterruptAfter() []string {
	return sortedKeys(e.interruptAfter)
}

// Reachable returns the sorted ids of nodes reachable from Start.
func (e *Executable[C]) Reachable() []string {
	return sortedKeys(reachable(e.entry, e.successors))
}

// successors lists the possible next nodes of a node, End excluded.
func (e *Executable[C]) successors(id string) []string {
	if to, ok := e.edges[id]; ok {
		if to == End {
			return nil
		}
		return []string{to}
	}
	ce, ok := e.condEdges[id]
	if !ok {
		return nil
	}
	if ce.PathMap == nil {
		// Any declared node may be named by the label.
		return e.NodeIDs()
	}
	var out []string
	for _, to := range ce.PathMap {
		if to != End {
			out = append(out, to)
		}
	}
	sort.Strings(out)
	return out
}

// resolveLabel maps a routing label to its target.
func (e *Executable[C]) resolveLabel(ce *ConditionalEdge, label string) (string, bool) {
	if ce.PathMap != nil {
		to, ok := ce.PathMap[label]
		return to, ok
	}
	if label == End {
		return End, true
	}
	if _, ok := e.nodes[label]; ok {
		return label, true
	}
	return "", false
}

func reachable(entry string, next func(string) []string) map[string]bool {
	seen := map[string]bool{}
	if entry == "" {
		return seen
	}
	queue := []string{entry}
	seen[entry] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, to := range next(id) {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return seen
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyPathMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"sort"
)

// StateGraph provides a fluent interface for building graphs.
// This is the primary public API for creating executable graphs.
//
// Example usage:
//
//	schema := NewStateSchema().AddField("counter", StateField{Policy: MergeReplace})
//	exec, err := NewStateGraph[*Config](schema).
//	  AddNode("increment", NodeFunc[*Config](incrementFunc)).
//	  SetEntryPoint("increment").
//	  SetFinishPoint("increment").
//	  Compile()
//
// Errors made while building are reported by Compile.
type StateGraph[C any] struct {
	schema    *StateSchema
	nodes     map[string]*nodeEntry[C]
	nodeOrder []string
	edges     []Edge
	condEdges []ConditionalEdge
	errs      []error
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph[C any](schema *StateSchema) *StateGraph[C] {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &StateGraph[C]{
		schema: schema,
		nodes:  make(map[string]*nodeEntry[C]),
	}
}

// Option is a function that configures a node.
type Option func(*NodeInfo)

// WithName sets the display name of the node.
func WithName(name string) Option {
	return func(n *NodeInfo) {
		n.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(n *NodeInfo) {
		n.Description = description
	}
}

// WithNodeType sets the node type.
func WithNodeType(t NodeType) Option {
	return func(n *NodeInfo) {
		n.Type = t
	}
}

// AddNode adds a node with the given ID.
func (sg *StateGraph[C]) AddNode(id string, node Node[C], opts ...Option) *StateGraph[C] {
	switch {
	case id == "":
		sg.errs = append(sg.errs, validationError("", "add node", ErrEmptyNodeID))
		return sg
	case id == Start || id == End:
		sg.errs = append(sg.errs, validationError("", fmt.Sprintf("add node %s", id), ErrReservedNodeID))
		return sg
	case node == nil:
		sg.errs = append(sg.errs, validationError("", fmt.Sprintf("add node %s", id), ErrNilNode))
		return sg
	}
	if _, exists := sg.nodes[id]; exists {
		sg.errs = append(sg.errs, validationError("", fmt.Sprintf("add node %s", id), ErrDuplicateNode))
		return sg
	}
	info := NodeInfo{ID: id, Name: id, Type: NodeTypeFunction}
	for _, opt := range opts {
		opt(&info)
	}
	sg.nodes[id] = &nodeEntry[C]{info: info, node: node}
	sg.nodeOrder = append(sg.nodeOrder, id)
	return sg
}

// AddEdge adds a static edge between two nodes.
func (sg *StateGraph[C]) AddEdge(from, to string) *StateGraph[C] {
	sg.edges = append(sg.edges, Edge{From: from, To: to})
	return sg
}

// AddConditionalEdges adds conditional routing from a node. The label
// returned by route is looked up in pathMap.
func (sg *StateGraph[C]) AddConditionalEdges(
	from string,
	route RouteFunc,
	pathMap map[string]string,
) *StateGraph[C] {
	sg.condEdges = append(sg.condEdges, ConditionalEdge{
		From:    from,
		Route:   route,
		PathMap: copyPathMap(pathMap),
	})
	return sg
}

// SetEntryPoint sets the entry point of the graph.
// This is equivalent to AddEdge(Start, nodeID).
func (sg *StateGraph[C]) SetEntryPoint(nodeID string) *StateGraph[C] {
	return sg.AddEdge(Start, nodeID)
}

// SetFinishPoint adds an edge from the node to End.
// This is equivalent to AddEdge(nodeID, End).
func (sg *StateGraph[C]) SetFinishPoint(nodeID string) *StateGraph[C] {
	return sg.AddEdge(nodeID, End)
}

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

type compileOptions struct {
	name            string
	interruptBefore []string
	interruptAfter  []string
	callbacks       *NodeCallbacks
}

// WithGraphName names the compiled graph. The name is bound into resume
// tokens, traces and metrics.
func WithGraphName(name string) CompileOption {
	return func(o *compileOptions) {
		o.name = name
	}
}

// WithInterruptBefore suspends runs before the given nodes execute.
func WithInterruptBefore(nodeIDs ...string) CompileOption {
	return func(o *compileOptions) {
		o.interruptBefore = append(o.interruptBefore, nodeIDs...)
	}
}

// WithInterruptAfter suspends runs after the given nodes' updates are merged.
func WithInterruptAfter(nodeIDs ...string) CompileOption {
	return func(o *compileOptions) {
		o.interruptAfter = append(o.interruptAfter, nodeIDs...)
	}
}

// WithNodeCallbacks attaches callbacks observing every run of the compiled
// graph. Run level callbacks given by WithCallbacks run after them.
func WithNodeCallbacks(callbacks *NodeCallbacks) CompileOption {
	return func(o *compileOptions) {
		o.callbacks = o.callbacks.Merge(callbacks)
	}
}

// Compile validates the definition and returns an immutable Executable.
// Compile does not modify the builder, so compiling twice yields equivalent
// executables. All failures are *GraphValidationError.
func (sg *StateGraph[C]) Compile(opts ...CompileOption) (*Executable[C], error) {
	o := &compileOptions{name: "graph"}
	for _, opt := range opts {
		opt(o)
	}
	if len(sg.errs) > 0 {
		err := *sg.errs[0].(*GraphValidationError)
		err.Graph = o.name
		return nil, &err
	}
	if err := sg.schema.validate(); err != nil {
		return nil, validationError(o.name, "state schema", err)
	}

	exec := &Executable[C]{
		name:            o.name,
		schema:          sg.schema.clone(),
		nodes:           make(map[string]*nodeEntry[C], len(sg.nodes)),
		nodeOrder:       append([]string(nil), sg.nodeOrder...),
		edges:           make(map[string]string),
		condEdges:       make(map[string]*ConditionalEdge),
		interruptBefore: make(map[string]bool),
		interruptAfter:  make(map[string]bool),
		callbacks:       o.callbacks,
	}
	for id, n := range sg.nodes {
		entry := *n
		exec.nodes[id] = &entry
	}
	declared := func(id string) bool {
		_, ok := exec.nodes[id]
		return ok
	}
	hasOutgoing := func(id string) bool {
		_, s := exec.edges[id]
		_, c := exec.condEdges[id]
		return s || c
	}

	var entries []string
	for _, e := range sg.edges {
		reason := fmt.Sprintf("edge %s -> %s", e.From, e.To)
		switch {
		case e.From == End || e.To == Start:
			return nil, validationError(o.name, reason, ErrInvalidEdge)
		case e.From != Start && !declared(e.From):
			return nil, validationError(o.name, reason, fmt.Errorf("source %s: %w", e.From, ErrUndeclaredNode))
		case e.To != End && !declared(e.To):
			return nil, validationError(o.name, reason, fmt.Errorf("target %s: %w", e.To, ErrUndeclaredNode))
		}
		if e.From == Start {
			entries = append(entries, e.To)
			continue
		}
		if hasOutgoing(e.From) {
			return nil, validationError(o.name, reason, ErrConflictingEdges)
		}
		exec.edges[e.From] = e.To
	}
	for i := range sg.condEdges {
		ce := sg.condEdges[i]
		reason := fmt.Sprintf("conditional edge from %s", ce.From)
		switch {
		case ce.From == Start || ce.From == End:
			return nil, validationError(o.name, reason, ErrInvalidEdge)
		case !declared(ce.From):
			return nil, validationError(o.name, reason, fmt.Errorf("source %s: %w", ce.From, ErrUndeclaredNode))
		case ce.Route == nil:
			return nil, validationError(o.name, reason, fmt.Errorf("nil route function: %w", ErrInvalidEdge))
		case hasOutgoing(ce.From):
			return nil, validationError(o.name, reason, ErrConflictingEdges)
		}
		labels := make([]string, 0, len(ce.PathMap))
		for label := range ce.PathMap {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			to := ce.PathMap[label]
			if to == Start || (to != End && !declared(to)) {
				return nil, validationError(o.name, reason,
					fmt.Errorf("label %q target %s: %w", label, to, ErrUndeclaredNode))
			}
		}
		exec.condEdges[ce.From] = &ce
	}

	switch len(entries) {
	case 0:
		return nil, validationError(o.name, "entry point", ErrNoEntryPoint)
	case 1:
		exec.entry = entries[0]
	default:
		return nil, validationError(o.name, fmt.Sprintf("entry points %v", entries), ErrMultipleEntries)
	}
	if exec.entry == End {
		return nil, validationError(o.name, "entry point", fmt.Errorf("start routes directly to end: %w", ErrNoEntryPoint))
	}

	for _, id := range o.interruptBefore {
		if !declared(id) {
			return nil, validationError(o.name, "interrupt before", fmt.Errorf("%s: %w", id, ErrUndeclaredNode))
		}
		exec.interruptBefore[id] = true
	}
	for _, id := range o.interruptAfter {
		if !declared(id) {
			return nil, validationError(o.name, "interrupt after", fmt.Errorf("%s: %w", id, ErrUndeclaredNode))
		}
		exec.interruptAfter[id] = true
	}

	seen := reachable(exec.entry, exec.successors)
	for _, id := range exec.nodeOrder {
		if !seen[id] {
			return nil, validationError(o.name, fmt.Sprintf("node %s", id), ErrUnreachableNode)
		}
	}
	return exec, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph[C]) MustCompile(opts ...CompileOption) *Executable[C] {
	exec, err := sg.Compile(opts...)
	if err != nil {
		panic(err)
	}
	return exec
}

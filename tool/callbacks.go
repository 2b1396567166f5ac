//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package tool

import "context"

// CallInfo describes one tool call as the model requested it.
type CallInfo struct {
	// Name is the requested tool name.
	Name string
	// CallID pairs the call with its tool message.
	CallID string
	// Declaration is the declaration of the resolved tool.
	Declaration *Declaration
	// Args holds the JSON arguments. Before callbacks may replace them.
	Args []byte
}

// BeforeToolCallback runs before a tool is called. A non-nil result is used
// in place of calling the tool. An error fails the call.
type BeforeToolCallback func(ctx context.Context, call *CallInfo) (any, error)

// AfterToolCallback runs after a tool is called with its result and error.
// A non-nil result replaces the tool result and clears runErr.
type AfterToolCallback func(ctx context.Context, call *CallInfo, result any, runErr error) (any, error)

// Callbacks holds the tool callbacks of a tools node. A nil *Callbacks runs
// nothing.
type Callbacks struct {
	BeforeTool []BeforeToolCallback
	AfterTool  []AfterToolCallback
}

// NewCallbacks creates an empty Callbacks.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// RegisterBeforeTool appends cb and returns c for chaining.
func (c *Callbacks) RegisterBeforeTool(cb BeforeToolCallback) *Callbacks {
	c.BeforeTool = append(c.BeforeTool, cb)
	return c
}

// RegisterAfterTool appends cb and returns c for chaining.
func (c *Callbacks) RegisterAfterTool(cb AfterToolCallback) *Callbacks {
	c.AfterTool = append(c.AfterTool, cb)
	return c
}

// RunBeforeTool runs the before callbacks in order and stops at the first
// result or error.
func (c *Callbacks) RunBeforeTool(ctx context.Context, call *CallInfo) (any, error) {
	if c == nil {
		return nil, nil
	}
	for _, cb := range c.BeforeTool {
		result, err := cb(ctx, call)
		if err != nil || result != nil {
			return result, err
		}
	}
	return nil, nil
}

// RunAfterTool runs the after callbacks in order and stops at the first
// result or error.
func (c *Callbacks) RunAfterTool(ctx context.Context, call *CallInfo, result any, runErr error) (any, error) {
	if c == nil {
		return nil, nil
	}
	for _, cb := range c.AfterTool {
		custom, err := cb(ctx, call, result, runErr)
		if err != nil || custom != nil {
			return custom, err
		}
	}
	return nil, nil
}

// Merge returns callbacks running c's then other's. Either may be nil.
func (c *Callbacks) Merge(other *Callbacks) *Callbacks {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	return &Callbacks{
		BeforeTool: append(append([]BeforeToolCallback{}, c.BeforeTool...), other.BeforeTool...),
		AfterTool:  append(append([]AfterToolCallback{}, c.AfterTool...), other.AfterTool...),
	}
}

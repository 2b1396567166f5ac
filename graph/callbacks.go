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
	"context"
	"time"
)

// NodeCallbackContext identifies the step a callback fires for.
type NodeCallbackContext struct {
	Graph    string
	RunID    string
	NodeID   string
	NodeName string
	NodeType NodeType
	// Step is zero based. A resumed run continues the numbering of the
	// run it resumes.
	Step      int
	StartTime time.Time
}

// BeforeNodeCallback fires before a node runs. A non-nil update is merged
// instead of running the node. An error fails the run before the node
// starts.
type BeforeNodeCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
) (State, error)

// AfterNodeCallback fires after a node succeeds. A non-nil update
// replaces the node's update. An error fails the run and nothing is
// merged.
type AfterNodeCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	update State,
) (State, error)

// OnNodeErrorCallback observes a failed node. It cannot alter the error.
type OnNodeErrorCallback func(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	err error,
)

// NodeCallbacks are hooks around every node execution of a graph. Each
// list runs in registration order.
type NodeCallbacks struct {
	BeforeNode  []BeforeNodeCallback
	AfterNode   []AfterNodeCallback
	OnNodeError []OnNodeErrorCallback
}

// NewNodeCallbacks returns an empty set.
func NewNodeCallbacks() *NodeCallbacks {
	return &NodeCallbacks{}
}

// RegisterBeforeNode appends cb.
func (c *NodeCallbacks) RegisterBeforeNode(cb BeforeNodeCallback) *NodeCallbacks {
	c.BeforeNode = append(c.BeforeNode, cb)
	return c
}

// RegisterAfterNode appends cb.
func (c *NodeCallbacks) RegisterAfterNode(cb AfterNodeCallback) *NodeCallbacks {
	c.AfterNode = append(c.AfterNode, cb)
	return c
}

// RegisterOnNodeError appends cb.
func (c *NodeCallbacks) RegisterOnNodeError(cb OnNodeErrorCallback) *NodeCallbacks {
	c.OnNodeError = append(c.OnNodeError, cb)
	return c
}

// RunBeforeNode stops at the first callback returning an update or an
// error.
func (c *NodeCallbacks) RunBeforeNode(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
) (State, error) {
	if c == nil {
		return nil, nil
	}
	for _, cb := range c.BeforeNode {
		update, err := cb(ctx, callbackCtx, state)
		if err != nil {
			return nil, err
		}
		if update != nil {
			return update, nil
		}
	}
	return nil, nil
}

// RunAfterNode chains the callbacks: each sees the update left by the
// previous one.
func (c *NodeCallbacks) RunAfterNode(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	update State,
) (State, error) {
	if c == nil {
		return update, nil
	}
	current := update
	for _, cb := range c.AfterNode {
		replaced, err := cb(ctx, callbackCtx, state, current)
		if err != nil {
			return nil, err
		}
		if replaced != nil {
			current = replaced
		}
	}
	return current, nil
}

// RunOnNodeError notifies every error callback.
func (c *NodeCallbacks) RunOnNodeError(
	ctx context.Context,
	callbackCtx *NodeCallbackContext,
	state State,
	err error,
) {
	if c == nil {
		return
	}
	for _, cb := range c.OnNodeError {
		cb(ctx, callbackCtx, state, err)
	}
}

// Merge returns a new NodeCallbacks running c's callbacks first and then
// other's. Either side may be nil.
func (c *NodeCallbacks) Merge(other *NodeCallbacks) *NodeCallbacks {
	merged := NewNodeCallbacks()
	for _, src := range []*NodeCallbacks{c, other} {
		if src == nil {
			continue
		}
		merged.BeforeNode = append(merged.BeforeNode, src.BeforeNode...)
		merged.AfterNode = append(merged.AfterNode, src.AfterNode...)
		merged.OnNodeError = append(merged.OnNodeError, src.OnNodeError...)
	}
	return merged
}

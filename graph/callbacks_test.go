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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeNodeCallbackCanSkipNode(t *testing.T) {
	exec, act := approvalGraph(t)
	callbacks := NewNodeCallbacks().RegisterBeforeNode(
		func(ctx context.Context, cb *NodeCallbackContext, state State) (State, error) {
			if cb.NodeID == "act" {
				return State{"items": []string{"skipped"}}, nil
			}
			return nil, nil
		})

	res, err := exec.Run(context.Background(), nil, &testConfig{}, WithCallbacks(callbacks))
	require.NoError(t, err)
	assert.Equal(t, 0, act.calls)
	assert.Equal(t, []string{"plan", "skipped", "report"}, res.State["items"])
}

func TestBeforeNodeCallbackErrorFailsRun(t *testing.T) {
	stop := errors.New("limit reached")
	exec, _ := approvalGraph(t)
	callbacks := NewNodeCallbacks().RegisterBeforeNode(
		func(ctx context.Context, cb *NodeCallbackContext, state State) (State, error) {
			if cb.Step >= 1 {
				return nil, stop
			}
			return nil, nil
		})

	var failed []string
	callbacks.RegisterOnNodeError(func(ctx context.Context, cb *NodeCallbackContext, state State, err error) {
		failed = append(failed, cb.NodeID)
	})
	res, err := exec.Run(context.Background(), nil, &testConfig{}, WithCallbacks(callbacks))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "act", res.NodeID)
	assert.Equal(t, []string{"act"}, failed)
}

func TestAfterNodeCallbackReplacesUpdate(t *testing.T) {
	var contexts []NodeCallbackContext
	compiled := NewNodeCallbacks().RegisterAfterNode(
		func(ctx context.Context, cb *NodeCallbackContext, state State, update State) (State, error) {
			contexts = append(contexts, *cb)
			return nil, nil
		})
	exec, _ := approvalGraph(t, WithNodeCallbacks(compiled))

	perRun := NewNodeCallbacks().RegisterAfterNode(
		func(ctx context.Context, cb *NodeCallbackContext, state State, update State) (State, error) {
			if cb.NodeID == "report" {
				return State{"current": "replaced"}, nil
			}
			return nil, nil
		})
	res, err := exec.Run(context.Background(), nil, &testConfig{}, WithRunID("cb"), WithCallbacks(perRun))
	require.NoError(t, err)
	assert.Equal(t, []string{"plan", "act"}, res.State["items"])
	assert.Equal(t, "replaced", res.State["current"])

	require.Len(t, contexts, 3)
	for i, cb := range contexts {
		assert.Equal(t, "approval", cb.Graph)
		assert.Equal(t, "cb", cb.RunID)
		assert.Equal(t, i, cb.Step)
		assert.False(t, cb.StartTime.IsZero())
	}
	assert.Equal(t, "report", contexts[2].NodeID)
}

func TestNodeCallbacksMerge(t *testing.T) {
	var order []string
	mk := func(name string) *NodeCallbacks {
		return NewNodeCallbacks().RegisterBeforeNode(
			func(context.Context, *NodeCallbackContext, State) (State, error) {
				order = append(order, name)
				return nil, nil
			})
	}
	var nilCallbacks *NodeCallbacks
	merged := nilCallbacks.Merge(mk("first")).Merge(nil).Merge(mk("second"))
	_, err := merged.RunBeforeNode(context.Background(), &NodeCallbackContext{}, State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)

	update, err := nilCallbacks.RunAfterNode(context.Background(), &NodeCallbackContext{}, nil, State{"k": 1})
	require.NoError(t, err)
	assert.Equal(t, State{"k": 1}, update)
}

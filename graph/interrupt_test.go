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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingNode appends id and counts its executions.
type countingNode struct {
	id    string
	calls int
}

func (n *countingNode) Execute(ctx context.Context, state State, cfg *testConfig) (State, error) {
	n.calls++
	return State{"items": []string{n.id}}, nil
}

func approvalGraph(t *testing.T, opts ...CompileOption) (*Executable[*testConfig], *countingNode) {
	t.Helper()
	act := &countingNode{id: "act"}
	exec, err := NewStateGraph[*testConfig](testSchema()).
		AddNode("plan", appendNode("plan")).
		AddNode("act", act).
		AddNode("report", appendNode("report")).
		SetEntryPoint("plan").
		AddEdge("plan", "act").
		AddEdge("act", "report").
		SetFinishPoint("report").
		Compile(append([]CompileOption{WithGraphName("approval")}, opts...)...)
	require.NoError(t, err)
	return exec, act
}

func TestInterruptBeforeAndResume(t *testing.T) {
	exec, act := approvalGraph(t, WithInterruptBefore("act"))

	res, err := exec.Run(context.Background(), nil, &testConfig{}, WithRunID("r1"))
	require.NoError(t, err)
	assert.Equal(t, RunSuspended, res.Status)
	assert.Equal(t, "act", res.NodeID)
	assert.Equal(t, []string{"plan"}, res.State["items"])
	assert.Equal(t, 0, act.calls)
	require.NotNil(t, res.Token)
	assert.Equal(t, "approval", res.Token.Graph)
	assert.Equal(t, "r1", res.Token.RunID)
	assert.Equal(t, PhaseBefore, res.Token.Phase)
	assert.Equal(t, 1, res.Token.Step)
	assert.NotEmpty(t, res.Token.ID)

	resumed, err := exec.Resume(context.Background(), res.Token, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resumed.Status)
	assert.Equal(t, "r1", resumed.RunID)
	assert.Equal(t, 1, act.calls)
	assert.Equal(t, 2, resumed.Steps)
	assert.Equal(t, []string{"plan", "act", "report"}, resumed.State["items"])

	// The token is a snapshot: resuming it again replays from the same point.
	again, err := exec.Resume(context.Background(), res.Token, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, resumed.State, again.State)
}

func TestInterruptAfterResumesOutgoingEdge(t *testing.T) {
	exec, act := approvalGraph(t, WithInterruptAfter("act"))

	res, err := exec.Run(context.Background(), nil, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, RunSuspended, res.Status)
	assert.Equal(t, []string{"plan", "act"}, res.State["items"])
	assert.Equal(t, PhaseAfter, res.Token.Phase)
	assert.Equal(t, 2, res.Token.Step)

	resumed, err := exec.Resume(context.Background(), res.Token, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resumed.Status)
	assert.Equal(t, 1, act.calls)
	assert.Equal(t, []string{"plan", "act", "report"}, resumed.State["items"])
}

func TestInterruptBeforeAndAfterSameNode(t *testing.T) {
	exec, act := approvalGraph(t, WithInterruptBefore("act"), WithInterruptAfter("act"))

	res, err := exec.Run(context.Background(), nil, &testConfig{})
	require.NoError(t, err)
	require.Equal(t, PhaseBefore, res.Token.Phase)

	res, err = exec.Resume(context.Background(), res.Token, &testConfig{})
	require.NoError(t, err)
	require.Equal(t, RunSuspended, res.Status)
	require.Equal(t, PhaseAfter, res.Token.Phase)
	assert.Equal(t, 1, act.calls)

	res, err = exec.Resume(context.Background(), res.Token, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, res.Status)
	assert.Equal(t, 1, act.calls)
}

func TestResumeWithStatePatch(t *testing.T) {
	exec, _ := approvalGraph(t, WithInterruptBefore("act"))
	res, err := exec.Run(context.Background(), nil, &testConfig{})
	require.NoError(t, err)

	resumed, err := exec.Resume(context.Background(), res.Token, &testConfig{},
		WithStatePatch(State{"items": []string{"edited"}, "current": "human"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"plan", "edited", "act", "report"}, resumed.State["items"])
	assert.Equal(t, "human", resumed.State["current"])

	_, err = exec.Resume(context.Background(), res.Token, &testConfig{},
		WithStatePatch(State{"unknown": 1}))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestResumeAfterFailure(t *testing.T) {
	attempts := 0
	flaky := NodeFunc[*testConfig](func(ctx context.Context, state State, cfg *testConfig) (State, error) {
		attempts++
		if attempts == 1 {
			return nil, NewExternalCallError("tool", "search", errors.New("timeout"))
		}
		return State{"items": []string{"flaky"}}, nil
	})
	exec := NewStateGraph[*testConfig](testSchema()).
		AddNode("a", appendNode("a")).
		AddNode("flaky", flaky).
		SetEntryPoint("a").
		AddEdge("a", "flaky").
		MustCompile()

	res, err := exec.Run(context.Background(), nil, &testConfig{})
	require.True(t, IsExternalCallError(err))
	resumed, err := exec.Resume(context.Background(), res.Token, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "flaky"}, resumed.State["items"])
	assert.Equal(t, 2, attempts)
}

func TestResumeRejectsForeignTokens(t *testing.T) {
	exec, _ := approvalGraph(t, WithInterruptBefore("act"))
	res, err := exec.Run(context.Background(), nil, &testConfig{})
	require.NoError(t, err)
	other := loopGraph(t)

	tests := map[string]*ResumeToken{
		"nil":           nil,
		"other graph":   res.Token,
		"unknown phase": {Graph: "approval", NodeID: "act", Phase: "during"},
		"unknown node":  {Graph: "approval", NodeID: "ghost", Phase: PhaseBefore},
		"negative step": {Graph: "approval", NodeID: "act", Phase: PhaseBefore, Step: -1},
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			target := exec
			if name == "other graph" {
				target = other
			}
			res, err := target.Resume(context.Background(), token, &testConfig{})
			assert.ErrorIs(t, err, ErrInvalidResumeToken)
			assert.Nil(t, res)
		})
	}

	bad := *res.Token
	bad.State = State{"count": "three"}
	_, err = exec.Resume(context.Background(), &bad, &testConfig{})
	assert.ErrorIs(t, err, ErrInvalidResumeToken)
	assert.ErrorIs(t, err, ErrFieldType)
}

func TestDecodeTokenRoundTrip(t *testing.T) {
	exec, act := approvalGraph(t, WithInterruptBefore("act"))
	res, err := exec.Run(context.Background(), State{"count": 4}, &testConfig{})
	require.NoError(t, err)

	data, err := json.Marshal(res.Token)
	require.NoError(t, err)
	token, err := exec.DecodeToken(data)
	require.NoError(t, err)
	assert.Equal(t, res.Token.ID, token.ID)
	assert.Equal(t, res.Token.Step, token.Step)
	assert.True(t, res.Token.CreatedAt.Equal(token.CreatedAt))
	assert.Equal(t, []string{"plan"}, token.State["items"])
	assert.Equal(t, 4, token.State["count"])

	resumed, err := exec.Resume(context.Background(), token, &testConfig{})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resumed.Status)
	assert.Equal(t, 1, act.calls)

	_, err = exec.DecodeToken([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidResumeToken)
	_, err = exec.DecodeToken([]byte(`{"graph":"approval","node_id":"act","phase":"before","state":{"bogus":1}}`))
	assert.ErrorIs(t, err, ErrInvalidResumeToken)
	_, err = exec.DecodeToken([]byte(`{"graph":"other","node_id":"act","phase":"before"}`))
	assert.ErrorIs(t, err, ErrInvalidResumeToken)
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	itelemetry "trpc.group/trpc-go/trpc-agent-graph/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/trace"
)

// RunStatus is the final status of a Run or Resume call.
type RunStatus string

// Run statuses.
const (
	// RunCompleted means routing reached End.
	RunCompleted RunStatus = "completed"
	// RunSuspended means the run stopped at an interrupt point.
	RunSuspended RunStatus = "suspended"
	// RunFailed means a node, a merge or a routing function failed, or the
	// context was cancelled.
	RunFailed RunStatus = "failed"
)

// Node execution outcomes recorded in metrics.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Result is the outcome of a Run or Resume call.
type Result struct {
	// RunID identifies the run. Resumed runs keep the id of the run they
	// continue.
	RunID string `json:"run_id"`
	// Status is the final status of the call.
	Status RunStatus `json:"status"`
	// State is the last merged state.
	State State `json:"state"`
	// Token resumes a suspended or failed run. It is nil for completed runs.
	Token *ResumeToken `json:"token,omitempty"`
	// NodeID is the node the run stopped at. It is empty for completed runs.
	NodeID string `json:"node_id,omitempty"`
	// Steps is the number of node executions attempted by this call.
	Steps int `json:"steps"`
}

// RunOption configures a Run or Resume call.
type RunOption func(*runOptions)

type runOptions struct {
	runID     string
	patch     State
	callbacks *NodeCallbacks
}

// WithRunID sets the run id. By default Run generates one and Resume keeps
// the token's.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = id
	}
}

// WithStatePatch merges patch into the state through the schema before the
// first step. It is typically used to apply a human edit on resume.
func WithStatePatch(patch State) RunOption {
	return func(o *runOptions) {
		o.patch = patch
	}
}

// WithCallbacks adds node callbacks for this call only.
func WithCallbacks(callbacks *NodeCallbacks) RunOption {
	return func(o *runOptions) {
		o.callbacks = o.callbacks.Merge(callbacks)
	}
}

// cursor is the point where the step loop starts.
type cursor struct {
	nodeID string
	// phase is PhaseBefore to execute nodeID, PhaseAfter to resolve the
	// outgoing edge of nodeID.
	phase InterruptPhase
	step  int
	// skipInterrupt disables the interrupt-before check of the first node.
	skipInterrupt bool
}

// Run executes the graph from its entry point with the given initial state.
//
// The returned error is the failure of the run exactly as produced by the
// node, merge or routing function; errors.As recovers its kind. A non-nil
// Result accompanies every run that started, including failed ones, and
// carries the last merged state and a token to retry from the failure point.
func (e *Executable[C]) Run(ctx context.Context, initial State, cfg C, opts ...RunOption) (*Result, error) {
	o := newRunOptions(opts)
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	state, err := e.schema.Initialize(initial)
	if err != nil {
		return nil, fmt.Errorf("graph %s: initial state: %w", e.name, err)
	}
	if o.patch != nil {
		if state, err = e.schema.ApplyUpdate(state, o.patch); err != nil {
			return nil, fmt.Errorf("graph %s: state patch: %w", e.name, err)
		}
	}
	return e.run(ctx, cfg, o, state, cursor{nodeID: e.entry, phase: PhaseBefore})
}

func newRunOptions(opts []RunOption) *runOptions {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (e *Executable[C]) run(
	ctx context.Context,
	cfg C,
	o *runOptions,
	state State,
	cur cursor,
) (*Result, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameExecuteGraph)
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeyGraph, e.name),
		attribute.String(itelemetry.KeyRunID, o.runID),
	)
	start := time.Now()
	callbacks := e.callbacks.Merge(o.callbacks)

	res, err := e.loop(ctx, cfg, o.runID, callbacks, state, cur)

	span.SetAttributes(
		attribute.String(itelemetry.KeyRunStatus, string(res.Status)),
		attribute.Int(itelemetry.KeyStep, res.Steps),
	)
	metric.RecordRunDuration(ctx, e.name, string(res.Status), time.Since(start))
	switch {
	case err == nil && res.Status == RunSuspended:
		log.Debugf("graph %s run %s suspended at %s (%s)", e.name, o.runID, res.NodeID, res.Token.Phase)
	case err == nil:
		log.Debugf("graph %s run %s completed after %d steps", e.name, o.runID, res.Steps)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		span.SetStatus(codes.Error, err.Error())
		log.Warnf("graph %s run %s interrupted at %s: %v", e.name, o.runID, res.NodeID, err)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("graph %s run %s failed at %s: %v", e.name, o.runID, res.NodeID, err)
	}
	return res, err
}

// loop is the single active node state machine.
func (e *Executable[C]) loop(
	ctx context.Context,
	cfg C,
	runID string,
	callbacks *NodeCallbacks,
	state State,
	cur cursor,
) (*Result, error) {
	res := &Result{RunID: runID}
	step := cur.step
	next := cur.nodeID
	skip := cur.skipInterrupt
	if cur.phase == PhaseAfter {
		to, err := e.nextNode(ctx, cur.nodeID, state)
		if err != nil {
			return e.fail(res, state, cur.nodeID, PhaseAfter, step, err)
		}
		next = to
	}
	for next != End {
		if e.interruptBefore[next] && !skip {
			return e.suspend(res, state, next, PhaseBefore, step), nil
		}
		skip = false
		if err := ctx.Err(); err != nil {
			return e.fail(res, state, next, PhaseBefore, step, err)
		}

		res.Steps++
		update, err := e.executeNode(ctx, cfg, runID, callbacks, next, step, state)
		if err != nil {
			return e.fail(res, state, next, PhaseBefore, step, err)
		}
		merged, err := e.schema.ApplyUpdate(state, update)
		if err != nil {
			return e.fail(res, state, next, PhaseBefore, step,
				fmt.Errorf("merge update of node %s: %w", next, err))
		}
		state = merged
		step++

		if e.interruptAfter[next] {
			return e.suspend(res, state, next, PhaseAfter, step), nil
		}
		to, err := e.nextNode(ctx, next, state)
		if err != nil {
			return e.fail(res, state, next, PhaseAfter, step, err)
		}
		next = to
	}
	res.Status = RunCompleted
	res.State = state
	return res, nil
}

// executeNode runs one node with its callbacks and returns its update.
func (e *Executable[C]) executeNode(
	ctx context.Context,
	cfg C,
	runID string,
	callbacks *NodeCallbacks,
	nodeID string,
	step int,
	state State,
) (State, error) {
	entry := e.nodes[nodeID]
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteNodeSpanName(nodeID))
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeyNodeID, nodeID),
		attribute.String(itelemetry.KeyNodeName, entry.info.Name),
		attribute.String(itelemetry.KeyNodeType, string(entry.info.Type)),
		attribute.String(itelemetry.KeyRunID, runID),
		attribute.Int(itelemetry.KeyStep, step),
	)
	cbCtx := &NodeCallbackContext{
		Graph:     e.name,
		RunID:     runID,
		NodeID:    nodeID,
		NodeName:  entry.info.Name,
		NodeType:  entry.info.Type,
		Step:      step,
		StartTime: time.Now(),
	}
	log.Debugf("graph %s run %s: step %d executing node %s", e.name, runID, step, nodeID)

	update, err := invokeNode(ctx, cfg, entry.node, callbacks, cbCtx, state)
	if err == nil {
		// A node finishing after cancellation contributes nothing.
		if cerr := ctx.Err(); cerr != nil {
			update, err = nil, cerr
		}
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		callbacks.RunOnNodeError(ctx, cbCtx, state.Clone(), err)
	}
	span.SetAttributes(attribute.String(itelemetry.KeyOutcome, outcome))
	metric.RecordNodeExecution(ctx, e.name, nodeID, outcome)
	log.Debugf("graph %s run %s: node %s finished in %s (%s)",
		e.name, runID, nodeID, time.Since(cbCtx.StartTime), outcome)
	return update, err
}

func invokeNode[C any](
	ctx context.Context,
	cfg C,
	node Node[C],
	callbacks *NodeCallbacks,
	cbCtx *NodeCallbackContext,
	state State,
) (State, error) {
	update, err := callbacks.RunBeforeNode(ctx, cbCtx, state.Clone())
	if err != nil || update != nil {
		return update, err
	}
	update, err = node.Execute(ctx, state.Clone(), cfg)
	if err != nil {
		return nil, err
	}
	return callbacks.RunAfterNode(ctx, cbCtx, state.Clone(), update)
}

// nextNode resolves the outgoing edge of a node. Nodes without an outgoing
// edge route to End.
func (e *Executable[C]) nextNode(ctx context.Context, from string, state State) (string, error) {
	span := oteltrace.SpanFromContext(ctx)
	if to, ok := e.edges[from]; ok {
		span.AddEvent("route", oteltrace.WithAttributes(
			attribute.String(itelemetry.KeyNodeID, from),
			attribute.String(itelemetry.KeyNextNode, to),
		))
		return to, nil
	}
	ce, ok := e.condEdges[from]
	if !ok {
		return End, nil
	}
	label, err := ce.Route(ctx, state.Clone())
	if err != nil {
		return "", fmt.Errorf("route from %s: %w", from, err)
	}
	to, ok := e.resolveLabel(ce, label)
	if !ok {
		return "", &InvalidRouteError{From: from, Label: label}
	}
	span.AddEvent("route", oteltrace.WithAttributes(
		attribute.String(itelemetry.KeyNodeID, from),
		attribute.String(itelemetry.KeyRouteLabel, label),
		attribute.String(itelemetry.KeyNextNode, to),
	))
	log.Debugf("graph %s: %s routed %q to %s", e.name, from, label, to)
	return to, nil
}

func (e *Executable[C]) suspend(
	res *Result,
	state State,
	nodeID string,
	phase InterruptPhase,
	step int,
) *Result {
	res.Status = RunSuspended
	res.State = state
	res.NodeID = nodeID
	res.Token = e.newToken(res.RunID, nodeID, phase, step, state)
	return res
}

func (e *Executable[C]) fail(
	res *Result,
	state State,
	nodeID string,
	phase InterruptPhase,
	step int,
	err error,
) (*Result, error) {
	res.Status = RunFailed
	res.State = state
	res.NodeID = nodeID
	res.Token = e.newToken(res.RunID, nodeID, phase, step, state)
	return res, err
}

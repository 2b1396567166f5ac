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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InterruptPhase tells where a resume token is bound.
type InterruptPhase string

// Interrupt phases.
const (
	// PhaseBefore binds a token to a node that has not executed yet.
	PhaseBefore InterruptPhase = "before"
	// PhaseAfter binds a token to the outgoing edge of a node whose update
	// is already merged.
	PhaseAfter InterruptPhase = "after"
)

// ResumeToken identifies the point where a run stopped. It carries a
// snapshot of the state so the Executable keeps no per-run data.
type ResumeToken struct {
	// ID is the unique identifier of the token.
	ID string `json:"id"`
	// RunID is the run the token belongs to.
	RunID string `json:"run_id"`
	// Graph is the name of the graph that issued the token.
	Graph string `json:"graph"`
	// NodeID is the node the token is bound to.
	NodeID string `json:"node_id"`
	// Phase tells whether the run resumes by executing NodeID or by
	// resolving its outgoing edge.
	Phase InterruptPhase `json:"phase"`
	// Step is the index of the next step.
	Step int `json:"step"`
	// CreatedAt is when the token was issued.
	CreatedAt time.Time `json:"created_at"`
	// State is the last merged state.
	State State `json:"state"`
}

func (e *Executable[C]) newToken(
	runID, nodeID string,
	phase InterruptPhase,
	step int,
	state State,
) *ResumeToken {
	return &ResumeToken{
		ID:        uuid.NewString(),
		RunID:     runID,
		Graph:     e.name,
		NodeID:    nodeID,
		Phase:     phase,
		Step:      step,
		CreatedAt: time.Now().UTC(),
		State:     state.Clone(),
	}
}

// Resume re-enters the step loop at the point bound by token. A PhaseBefore
// token executes its node without triggering the node's interrupt again; a
// PhaseAfter token resolves the node's outgoing edge. A patch given with
// WithStatePatch is merged through the schema first.
func (e *Executable[C]) Resume(
	ctx context.Context,
	token *ResumeToken,
	cfg C,
	opts ...RunOption,
) (*Result, error) {
	if err := e.checkToken(token); err != nil {
		return nil, err
	}
	o := newRunOptions(opts)
	if o.runID == "" {
		o.runID = token.RunID
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	state, err := e.schema.Initialize(token.State)
	if err != nil {
		return nil, fmt.Errorf("%w: state: %w", ErrInvalidResumeToken, err)
	}
	if o.patch != nil {
		if state, err = e.schema.ApplyUpdate(state, o.patch); err != nil {
			return nil, fmt.Errorf("graph %s: state patch: %w", e.name, err)
		}
	}
	return e.run(ctx, cfg, o, state, cursor{
		nodeID:        token.NodeID,
		phase:         token.Phase,
		step:          token.Step,
		skipInterrupt: token.Phase == PhaseBefore,
	})
}

func (e *Executable[C]) checkToken(token *ResumeToken) error {
	switch {
	case token == nil:
		return fmt.Errorf("%w: nil token", ErrInvalidResumeToken)
	case token.Graph != e.name:
		return fmt.Errorf("%w: issued by graph %q, not %q", ErrInvalidResumeToken, token.Graph, e.name)
	case token.Phase != PhaseBefore && token.Phase != PhaseAfter:
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidResumeToken, token.Phase)
	case token.Step < 0:
		return fmt.Errorf("%w: negative step", ErrInvalidResumeToken)
	}
	if _, ok := e.nodes[token.NodeID]; !ok {
		return fmt.Errorf("%w: node %q is not declared", ErrInvalidResumeToken, token.NodeID)
	}
	return nil
}

// DecodeToken parses a JSON encoded token issued by this graph. State
// values are decoded with the types declared in the schema.
func (e *Executable[C]) DecodeToken(data []byte) (*ResumeToken, error) {
	var raw struct {
		ID        string                     `json:"id"`
		RunID     string                     `json:"run_id"`
		Graph     string                     `json:"graph"`
		NodeID    string                     `json:"node_id"`
		Phase     InterruptPhase             `json:"phase"`
		Step      int                        `json:"step"`
		CreatedAt time.Time                  `json:"created_at"`
		State     map[string]json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResumeToken, err)
	}
	state, err := e.schema.DecodeState(raw.State)
	if err != nil {
		return nil, fmt.Errorf("%w: state: %w", ErrInvalidResumeToken, err)
	}
	token := &ResumeToken{
		ID:        raw.ID,
		RunID:     raw.RunID,
		Graph:     raw.Graph,
		NodeID:    raw.NodeID,
		Phase:     raw.Phase,
		Step:      raw.Step,
		CreatedAt: raw.CreatedAt,
		State:     state,
	}
	if err := e.checkToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

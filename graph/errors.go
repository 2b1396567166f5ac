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
	"errors"
	"fmt"
)

// Causes wrapped by GraphValidationError.
var (
	ErrEmptyNodeID        = errors.New("node id cannot be empty")
	ErrReservedNodeID     = errors.New("node id is reserved")
	ErrDuplicateNode      = errors.New("duplicate node id")
	ErrNilNode            = errors.New("node implementation is nil")
	ErrUndeclaredNode     = errors.New("undeclared node")
	ErrInvalidEdge        = errors.New("invalid edge")
	ErrConflictingEdges   = errors.New("conflicting outgoing edges")
	ErrNoEntryPoint       = errors.New("no entry edge from start")
	ErrMultipleEntries    = errors.New("multiple entry edges from start")
	ErrUnreachableNode    = errors.New("node is not reachable from start")
	ErrMissingMergePolicy = errors.New("state field has no merge policy")
)

// Run-time errors.
var (
	// ErrUnknownField is returned when a state update names a field the schema
	// does not declare.
	ErrUnknownField = errors.New("unknown state field")
	// ErrFieldType is returned when a state value does not match the declared
	// field type.
	ErrFieldType = errors.New("state field type mismatch")
	// ErrInvalidResumeToken is returned by Resume for tokens that do not belong
	// to the executable or are malformed.
	ErrInvalidResumeToken = errors.New("invalid resume token")
)

// GraphValidationError reports a graph definition that cannot be compiled.
// It is only ever returned by Compile.
type GraphValidationError struct {
	// Graph is the name of the graph being compiled.
	Graph string
	// Reason describes the offending element.
	Reason string
	// Err is one of the Err* causes above.
	Err error
}

// Error implements the error interface.
func (e *GraphValidationError) Error() string {
	if e.Graph == "" {
		return fmt.Sprintf("invalid graph: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid graph %q: %s: %v", e.Graph, e.Reason, e.Err)
}

// Unwrap returns the cause for errors.Is support.
func (e *GraphValidationError) Unwrap() error {
	return e.Err
}

// InvalidRouteError is returned when a routing function produces a label that
// is missing from the conditional edge's path map. It is fatal to the run.
type InvalidRouteError struct {
	// From is the node owning the conditional edge.
	From string
	// Label is the label returned by the routing function.
	Label string
}

// Error implements the error interface.
func (e *InvalidRouteError) Error() string {
	return fmt.Sprintf("route from node %s returned unmapped label %q", e.From, e.Label)
}

// ExternalCallError reports a failed model, tool or retriever invocation made
// by a node. The engine returns it to the caller as is and never retries.
type ExternalCallError struct {
	// Service names the collaborator, e.g. "model", "tool", "retriever".
	Service string
	// Op names the operation or target, e.g. a model id or a tool name.
	Op string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s call %s failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

// NewExternalCallError wraps err as an ExternalCallError. Errors that already
// are ExternalCallErrors are returned unchanged so that the innermost
// collaborator is reported.
func NewExternalCallError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalCallError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalCallError{Service: service, Op: op, Err: err}
}

// IsExternalCallError reports whether err wraps an ExternalCallError.
func IsExternalCallError(err error) bool {
	var ext *ExternalCallError
	return errors.As(err, &ext)
}

func validationError(graph, reason string, cause error) *GraphValidationError {
	return &GraphValidationError{Graph: graph, Reason: reason, Err: cause}
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
// Package tool provides the tool contract bound to models and executed by
// tool nodes.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolNotFound is returned when a call names a tool that is not in a Set.
var ErrToolNotFound = errors.New("tool not found")

// Tool is anything a model can be told about.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration
}

// CallableTool defines the interface for tools that support calling operations.
type CallableTool interface {
	// Call calls the tool with the provided context and arguments.
	// Returns the result of execution or an error if the operation fails.
	Call(ctx context.Context, jsonArgs []byte) (any, error)

	Tool
}

// Declaration describes the metadata of a tool, such as its name, description, and expected arguments.
type Declaration struct {
	// Name is the unique identifier of the tool
	Name string `json:"name"`

	// Description explains the tool's purpose and functionality
	Description string `json:"description"`

	// InputSchema defines the expected input for the tool in JSON schema format.
	InputSchema *Schema `json:"inputSchema"`

	// OutputSchema defines the expected output for the tool in JSON schema format.
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Schema represents the structure of JSON Schema used for defining arguments and responses.
type Schema struct {
	//  Type Specifies the data type (e.g., "object", "array", "string", "number")
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the arguments, each with its own schema
	Properties map[string]*Schema `json:"properties,omitempty"`
	// For array types, defines the schema of items in the array
	Items *Schema `json:"items,omitempty"`
	// AdditionalProperties: Controls whether properties not defined in Properties are allowed
	AdditionalProperties any `json:"additionalProperties,omitempty"`
}

// Set is a registry of callable tools keyed by name. It is safe for
// concurrent use.
type Set struct {
	mu    sync.RWMutex
	tools map[string]CallableTool
}

// NewSet creates a set holding tools. A later tool replaces an earlier one
// with the same name.
func NewSet(tools ...CallableTool) *Set {
	s := &Set{tools: make(map[string]CallableTool, len(tools))}
	for _, t := range tools {
		s.Add(t)
	}
	return s
}

// Add registers t under its declared name.
func (s *Set) Add(t CallableTool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.Declaration().Name] = t
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (CallableTool, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// Names returns the registered names, sorted.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered tools ordered by name, ready to be bound to
// a model.
func (s *Set) Tools() []Tool {
	names := s.Names()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, _ := s.Get(name)
		out = append(out, t)
	}
	return out
}

// Call runs the named tool. ErrToolNotFound is returned for unknown names.
func (s *Set) Call(ctx context.Context, name string, jsonArgs []byte) (any, error) {
	t, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.Call(ctx, jsonArgs)
}

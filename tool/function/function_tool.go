//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package function wraps Go functions as callable tools.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/kaptinlin/jsonrepair"

	itool "trpc.group/trpc-go/trpc-agent-graph/internal/tool"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/tool"
)

// FunctionTool calls fn with arguments decoded from the model's JSON. The
// input schema is derived from I, the output schema from O.
type FunctionTool[I, O any] struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	fn           func(context.Context, I) (O, error)
}

// Option configures a FunctionTool.
type Option func(*functionToolOptions)

type functionToolOptions struct {
	name        string
	description string
}

// WithName sets the declared tool name.
func WithName(name string) Option {
	return func(opts *functionToolOptions) {
		opts.name = name
	}
}

// WithDescription sets the description shown to the model.
func WithDescription(description string) Option {
	return func(opts *functionToolOptions) {
		opts.description = description
	}
}

// NewFunctionTool creates a tool calling fn.
func NewFunctionTool[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	options := &functionToolOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return &FunctionTool[I, O]{
		name:         options.name,
		description:  options.description,
		fn:           fn,
		inputSchema:  itool.GenerateJSONSchema(reflect.TypeOf((*I)(nil)).Elem()),
		outputSchema: itool.GenerateJSONSchema(reflect.TypeOf((*O)(nil)).Elem()),
	}
}

// Call decodes jsonArgs into the input type and calls the function. Empty
// arguments decode as the zero input. Malformed JSON, such as a truncated
// object or single quoted keys, is repaired before decoding.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := ft.decode(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("tool %s: invalid arguments: %w", ft.name, err)
		}
	}
	return ft.fn(ctx, input)
}

func (ft *FunctionTool[I, O]) decode(args []byte, v any) error {
	err := json.Unmarshal(args, v)
	if err == nil || json.Valid(args) {
		return err
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(args))
	if repairErr != nil {
		return err
	}
	log.Debugf("tool %s: repaired arguments %s", ft.name, repaired)
	return json.Unmarshal([]byte(repaired), v)
}

// Declaration describes the tool to the model.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         ft.name,
		Description:  ft.description,
		InputSchema:  ft.inputSchema,
		OutputSchema: ft.outputSchema,
	}
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
package function

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addInput struct {
	A int `json:"a"`
	B int `json:"b"`
}

type addOutput struct {
	Sum int `json:"sum"`
}

func newAddTool() *FunctionTool[addInput, addOutput] {
	return NewFunctionTool(func(ctx context.Context, in addInput) (addOutput, error) {
		if in.A < 0 {
			return addOutput{}, errors.New("negative")
		}
		return addOutput{Sum: in.A + in.B}, nil
	}, WithName("add"), WithDescription("adds two numbers"))
}

func TestFunctionToolDeclaration(t *testing.T) {
	decl := newAddTool().Declaration()
	assert.Equal(t, "add", decl.Name)
	assert.Equal(t, "adds two numbers", decl.Description)
	require.NotNil(t, decl.InputSchema)
	assert.Equal(t, "object", decl.InputSchema.Type)
	assert.Equal(t, []string{"a", "b"}, decl.InputSchema.Required)
	assert.Equal(t, "integer", decl.OutputSchema.Properties["sum"].Type)
}

func TestFunctionToolCall(t *testing.T) {
	ft := newAddTool()
	out, err := ft.Call(context.Background(), []byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, addOutput{Sum: 3}, out)

	out, err = ft.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, addOutput{}, out)

	_, err = ft.Call(context.Background(), []byte(`[1, 2]`))
	assert.ErrorContains(t, err, "tool add: invalid arguments")

	_, err = ft.Call(context.Background(), []byte(`{"a":-1}`))
	assert.EqualError(t, err, "negative")
}

func TestFunctionToolRepairsArguments(t *testing.T) {
	ft := newAddTool()
	for _, args := range []string{
		`{"a": 1, "b": 2`,
		`{'a': 1, 'b': 2}`,
		`{"a": 1, "b": 2,}`,
	} {
		out, err := ft.Call(context.Background(), []byte(args))
		require.NoError(t, err, args)
		assert.Equal(t, addOutput{Sum: 3}, out, args)
	}
}

func TestFunctionToolPointerInput(t *testing.T) {
	ft := NewFunctionTool(func(ctx context.Context, in *addInput) (string, error) {
		if in == nil {
			return "nil", nil
		}
		return "set", nil
	}, WithName("ptr"))
	assert.Equal(t, "object", ft.Declaration().InputSchema.Type)
	out, err := ft.Call(context.Background(), []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "set", out)
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelID(t *testing.T) {
	tests := []struct {
		id       string
		provider string
		name     string
		wantErr  bool
	}{
		{id: "openai/gpt-4o-mini", provider: "openai", name: "gpt-4o-mini"},
		{id: "gpt-4o", provider: DefaultProvider, name: "gpt-4o"},
		{id: " OpenAI / gpt-4o ", provider: "openai", name: "gpt-4o"},
		{id: "router/meta/llama", provider: "router", name: "meta/llama"},
		{id: "", wantErr: true},
		{id: "openai/", wantErr: true},
		{id: "/gpt", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			provider, name, err := ParseModelID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidModelID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestRegistryLoad(t *testing.T) {
	r := NewRegistry()
	var loaded []string
	r.Register("OpenAI", func(ctx context.Context, name string) (Model, error) {
		loaded = append(loaded, name)
		return &fakeModel{}, nil
	})
	r.Register("broken", func(ctx context.Context, name string) (Model, error) {
		return nil, errors.New("no key")
	})
	assert.Equal(t, []string{"broken", "openai"}, r.Providers())

	h, err := r.Load(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", h.ID())
	assert.Equal(t, []string{"gpt-4o"}, loaded)

	_, err = r.Load(context.Background(), "anthropic/claude")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Load(context.Background(), "broken/x")
	assert.EqualError(t, err, "load model broken/x: no key")
}

func TestDefaultRegistry(t *testing.T) {
	Register("unit-test", func(ctx context.Context, name string) (Model, error) {
		return &fakeModel{}, nil
	})
	h, err := Load(context.Background(), "unit-test/m")
	require.NoError(t, err)
	assert.Equal(t, "unit-test/m", h.ID())
}

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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var querySchema = map[string]any{
	"title": "search_query",
	"type":  "object",
	"properties": map[string]any{
		"query": map[string]any{"type": "string"},
		"limit": map[string]any{"type": "integer"},
		"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []any{"query"},
}

type queryOut struct {
	Query string   `json:"query"`
	Limit int      `json:"limit"`
	Tags  []string `json:"tags"`
}

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want queryOut
	}{
		{name: "plain", raw: `{"query":"go","limit":3}`, want: queryOut{Query: "go", Limit: 3}},
		{name: "fenced", raw: "```json\n{\"query\":\"go\"}\n```", want: queryOut{Query: "go"}},
		{name: "fenced without language", raw: "```\n{\"query\":\"go\"}\n```", want: queryOut{Query: "go"}},
		{name: "single quotes repaired", raw: `{'query': 'go', 'tags': ['a',]}`, want: queryOut{Query: "go", Tags: []string{"a"}}},
		{name: "missing brace repaired", raw: `{"query": "go"`, want: queryOut{Query: "go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out queryOut
			require.NoError(t, ParseStructured(tt.raw, querySchema, &out))
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestParseStructuredViolations(t *testing.T) {
	tests := map[string]string{
		"empty":            "  ",
		"missing required": `{"limit": 1}`,
		"wrong type":       `{"query": 42}`,
		"not integer":      `{"query": "go", "limit": 1.5}`,
		"bad item":         `{"query": "go", "tags": [1]}`,
		"not an object":    `["query"]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			err := ParseStructured(raw, querySchema, &queryOut{})
			var sve *SchemaViolationError
			require.True(t, errors.As(err, &sve), "got %v", err)
			assert.Equal(t, "search_query", sve.Schema)
			assert.Equal(t, raw, sve.Raw)
			assert.NotEmpty(t, sve.Reason)
		})
	}
}

func TestParseStructuredNilOut(t *testing.T) {
	assert.NoError(t, ParseStructured(`{"query":"x"}`, querySchema, nil))
	assert.NoError(t, ParseStructured(`{"anything":true}`, nil, nil))
}

func TestSchemaViolationErrorMessage(t *testing.T) {
	assert.EqualError(t, &SchemaViolationError{Reason: "bad"}, "structured output violates schema: bad")
	assert.EqualError(t, &SchemaViolationError{Schema: "s", Reason: "bad"}, "structured output violates schema s: bad")
}

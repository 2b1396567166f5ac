//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder"
)

// newServer answers every embeddings call with one vector per input,
// where vector i is {i+1, 0.5}. Decoded requests are recorded.
func newServer(t *testing.T, vectors int) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		n := vectors
		if n < 0 {
			switch in := body["input"].(type) {
			case []any:
				n = len(in)
			default:
				n = 1
			}
		}
		data := make([]map[string]any, n)
		// Reverse order to check that results are placed by index.
		for i := 0; i < n; i++ {
			idx := n - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": idx,
				"embedding": []float64{float64(idx + 1), 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		}))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestNew(t *testing.T) {
	e := New()
	assert.Equal(t, DefaultModel, e.model)
	assert.Equal(t, DefaultDimensions, e.GetDimensions())

	e = New(WithModel("openai/text-embedding-3-large"), WithDimensions(256), WithUser("u"))
	assert.Equal(t, "text-embedding-3-large", e.model)
	assert.Equal(t, 256, e.GetDimensions())
	assert.Equal(t, "u", e.user)
}

func TestGetEmbedding(t *testing.T) {
	srv, requests := newServer(t, -1)
	e := New(WithAPIKey("k"), WithBaseURL(srv.URL), WithDimensions(2), WithUser("alice"))

	vec, err := e.GetEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5}, vec)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "hello", req["input"])
	assert.Equal(t, "text-embedding-3-small", req["model"])
	assert.Equal(t, "float", req["encoding_format"])
	assert.EqualValues(t, 2, req["dimensions"])
	assert.Equal(t, "alice", req["user"])
}

func TestGetEmbeddings(t *testing.T) {
	srv, requests := newServer(t, -1)
	e := New(WithAPIKey("k"), WithBaseURL(srv.URL))

	vecs, err := e.GetEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0.5}, {2, 0.5}, {3, 0.5}}, vecs)
	assert.Equal(t, []any{"a", "b", "c"}, (*requests)[0]["input"])

	vecs, err = e.GetEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Len(t, *requests, 1)
}

func TestGetEmbeddingsBatches(t *testing.T) {
	srv, requests := newServer(t, -1)
	e := New(WithAPIKey("k"), WithBaseURL(srv.URL), WithBatchSize(2))

	vecs, err := e.GetEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, *requests, 2)
	assert.Equal(t, []any{"a", "b"}, (*requests)[0]["input"])
	assert.Equal(t, []any{"c"}, (*requests)[1]["input"])
	// Indices restart per batch.
	assert.Equal(t, [][]float64{{1, 0.5}, {2, 0.5}, {1, 0.5}}, vecs)
}

func TestDimensionsOnlyForEmbedding3(t *testing.T) {
	srv, requests := newServer(t, -1)
	e := New(WithAPIKey("k"), WithBaseURL(srv.URL), WithModel("text-embedding-ada-002"))
	_, err := e.GetEmbedding(context.Background(), "x")
	require.NoError(t, err)
	_, ok := (*requests)[0]["dimensions"]
	assert.False(t, ok)
}

func TestEmbeddingErrors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		_, err := New(WithAPIKey("k")).GetEmbedding(context.Background(), "")
		assert.Error(t, err)
		_, err = New(WithAPIKey("k")).GetEmbeddings(context.Background(), []string{"a", ""})
		assert.ErrorContains(t, err, "text 1 is empty")
	})

	t.Run("missing vectors", func(t *testing.T) {
		srv, _ := newServer(t, 0)
		e := New(WithAPIKey("k"), WithBaseURL(srv.URL))
		_, err := e.GetEmbedding(context.Background(), "x")
		assert.ErrorIs(t, err, embedder.ErrEmptyEmbedding)
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		defer srv.Close()
		e := New(WithAPIKey("k"), WithBaseURL(srv.URL),
			WithRequestOptions(option.WithMaxRetries(0)))
		_, err := e.GetEmbedding(context.Background(), "x")
		assert.ErrorContains(t, err, "openai embedder")
	})
}

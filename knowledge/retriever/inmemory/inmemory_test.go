//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
)

// axisEmbedder maps a text to a fixed vector looked up by content.
type axisEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (a *axisEmbedder) GetEmbedding(_ context.Context, text string) ([]float64, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.vectors[text], nil
}

func (a *axisEmbedder) GetEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := a.GetEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a *axisEmbedder) GetDimensions() int { return 2 }

func corpus() []*document.Document {
	return []*document.Document{
		{ID: "go", Content: "Go is a programming language with goroutines."},
		{ID: "rust", Content: "Rust is a systems programming language."},
		{ID: "tea", Content: "Green tea is a drink."},
		{ID: "private", Content: "Go notes of alice.", Metadata: map[string]any{retriever.MetaUserID: "alice"}},
		{ID: "empty"},
	}
}

func ids(r *retriever.Result) []string {
	out := make([]string, len(r.Documents))
	for i, d := range r.Documents {
		out[i] = d.Document.ID
	}
	return out
}

func TestKeywordRetrieve(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, corpus(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())

	t.Run("ranks by matched terms", func(t *testing.T) {
		res, err := r.Retrieve(ctx, &retriever.Query{Text: "Go programming language", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "rust", "private"}, ids(res))
		assert.InDelta(t, 1.0, res.Documents[0].Score, 1e-9)
		assert.InDelta(t, 2.0/3.0, res.Documents[1].Score, 1e-9)
	})

	t.Run("limit and default limit", func(t *testing.T) {
		res, err := r.Retrieve(ctx, &retriever.Query{Text: "go programming language", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"go"}, ids(res))

		res, err = r.Retrieve(ctx, &retriever.Query{Text: "is a go notes"})
		require.NoError(t, err)
		assert.Len(t, res.Documents, config.DefaultSearchK)
	})

	t.Run("min score", func(t *testing.T) {
		res, err := r.Retrieve(ctx, &retriever.Query{Text: "go programming language", MinScore: 0.9})
		require.NoError(t, err)
		assert.Equal(t, []string{"go"}, ids(res))
	})

	t.Run("user scoping", func(t *testing.T) {
		res, err := r.Retrieve(ctx, &retriever.Query{Text: "notes", UserID: "bob"})
		require.NoError(t, err)
		assert.Empty(t, res.Documents)

		res, err = r.Retrieve(ctx, &retriever.Query{Text: "notes", UserID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, []string{"private"}, ids(res))
	})

	t.Run("no match and empty query", func(t *testing.T) {
		res, err := r.Retrieve(ctx, &retriever.Query{Text: "kubernetes"})
		require.NoError(t, err)
		assert.Empty(t, res.Documents)
		res, err = r.Retrieve(ctx, &retriever.Query{Text: "  "})
		require.NoError(t, err)
		assert.Empty(t, res.Documents)
	})

	t.Run("results are copies", func(t *testing.T) {
		res, err := r.Retrieve(ctx, &retriever.Query{Text: "tea"})
		require.NoError(t, err)
		res.Documents[0].Document.Content = "changed"
		res, err = r.Retrieve(ctx, &retriever.Query{Text: "tea"})
		require.NoError(t, err)
		assert.Equal(t, "Green tea is a drink.", res.Documents[0].Document.Content)
	})

	t.Run("nil query and cancelled context", func(t *testing.T) {
		_, err := r.Retrieve(ctx, nil)
		assert.Error(t, err)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = r.Retrieve(cctx, &retriever.Query{Text: "go"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEmbeddingRetrieve(t *testing.T) {
	ctx := context.Background()
	docs := []*document.Document{
		{ID: "x", Content: "east"},
		{ID: "y", Content: "north"},
		{ID: "xy", Content: "north east"},
		{ID: "neg", Content: "west"},
	}
	emb := &axisEmbedder{vectors: map[string][]float64{
		"east":       {1, 0},
		"north":      {0, 1},
		"north east": {1, 1},
		"west":       {-1, 0},
		"query":      {1, 0.1},
	}}
	r, err := New(ctx, docs, emb)
	require.NoError(t, err)
	assert.Equal(t, 4, emb.calls)

	res, err := r.Retrieve(ctx, &retriever.Query{Text: "query", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "xy", "y"}, ids(res))
	assert.Greater(t, res.Documents[0].Score, res.Documents[1].Score)

	emb.err = errors.New("quota")
	_, err = r.Retrieve(ctx, &retriever.Query{Text: "query"})
	assert.ErrorContains(t, err, "embed query: quota")

	_, err = New(ctx, docs, emb)
	assert.ErrorContains(t, err, "embed corpus: quota")
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kb.md"), []byte("# Graphs\n\nNodes and edges."), 0o644))

	cfg := config.Default()
	cfg.Corpus = []string{dir}
	r, err := retriever.MakeRetriever(context.Background(), cfg,
		retriever.WithDocuments(document.New("extra", "Edges route between nodes.")))
	require.NoError(t, err)
	defer r.Close()

	res, err := r.Retrieve(context.Background(), retriever.NewQuery(cfg, "edges"))
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "# Graphs\n\nNodes and edges.", res.Documents[0].Document.Content)

	cfg.Corpus = []string{filepath.Join(dir, "missing")}
	_, err = retriever.MakeRetriever(context.Background(), cfg)
	assert.Error(t, err)
}

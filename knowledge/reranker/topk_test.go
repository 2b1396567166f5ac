//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
)

func hits() []*retriever.RelevantDocument {
	return []*retriever.RelevantDocument{
		{Document: &document.Document{ID: "1"}, Score: 0.5},
		{Document: &document.Document{ID: "2"}, Score: 0.9},
		{Document: &document.Document{ID: "3"}, Score: 0.5},
	}
}

func ids(hs []*retriever.RelevantDocument) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Document.ID
	}
	return out
}

func TestTopKReranker(t *testing.T) {
	out, err := NewTopKReranker(WithK(2)).Rerank(context.Background(), hits())
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids(out))

	out, err = NewTopKReranker(WithK(10)).Rerank(context.Background(), hits())
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1", "3"}, ids(out))

	out, err = NewTopKReranker(WithK(0)).Rerank(context.Background(), hits())
	require.NoError(t, err)
	assert.Len(t, out, 3)

	out, err = NewTopKReranker().Rerank(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

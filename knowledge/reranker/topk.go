//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package reranker orders and trims retrieval hits.
package reranker

import (
	"context"
	"sort"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
)

// Reranker re-orders retrieval hits.
type Reranker interface {
	Rerank(ctx context.Context, hits []*retriever.RelevantDocument) ([]*retriever.RelevantDocument, error)
}

const defaultTopK = -1

// TopKReranker orders hits by decreasing score and keeps the first k.
// Hits with equal scores keep their input order.
type TopKReranker struct {
	k int
}

// Option configures a TopKReranker.
type Option func(*TopKReranker)

// WithK sets the number of hits kept. Non-positive keeps all.
func WithK(k int) Option {
	return func(tkr *TopKReranker) {
		if k <= 0 {
			k = defaultTopK
		}
		tkr.k = k
	}
}

// NewTopKReranker creates a TopKReranker keeping all hits by default.
func NewTopKReranker(opts ...Option) *TopKReranker {
	tkr := &TopKReranker{k: defaultTopK}
	for _, opt := range opts {
		opt(tkr)
	}
	return tkr
}

// Rerank sorts hits in place and returns the top k.
func (t *TopKReranker) Rerank(_ context.Context, hits []*retriever.RelevantDocument) ([]*retriever.RelevantDocument, error) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if t.k <= 0 || len(hits) <= t.k {
		return hits, nil
	}
	return hits[:t.k], nil
}

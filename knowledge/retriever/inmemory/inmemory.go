//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory implements a retriever over a corpus held in process.
//
// Without an embedder documents are scored by the share of distinct query
// terms they contain. With one they are scored by cosine similarity.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/reranker"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
)

func init() {
	retriever.Register(config.ProviderInMemory, factory)
}

func factory(ctx context.Context, cfg *config.Config, opts retriever.Options) (retriever.Retriever, error) {
	docs, err := retriever.LoadCorpus(cfg.Corpus)
	if err != nil {
		return nil, err
	}
	docs = append(docs, opts.Documents...)
	return New(ctx, docs, opts.Embedder)
}

type entry struct {
	doc    *document.Document
	terms  map[string]struct{}
	vector []float64
}

// Retriever searches an immutable in-process corpus. It is safe for
// concurrent use.
type Retriever struct {
	entries  []entry
	embedder embedder.Embedder
}

var _ retriever.Retriever = (*Retriever)(nil)

// New indexes docs. When emb is not nil every document is embedded up
// front in a single batch.
func New(ctx context.Context, docs []*document.Document, emb embedder.Embedder) (*Retriever, error) {
	r := &Retriever{embedder: emb}
	for _, d := range docs {
		if d.IsEmpty() {
			continue
		}
		r.entries = append(r.entries, entry{doc: d.Clone(), terms: terms(d.Content)})
	}
	if emb == nil || len(r.entries) == 0 {
		return r, nil
	}
	texts := make([]string, len(r.entries))
	for i, e := range r.entries {
		texts[i] = e.doc.Content
	}
	vecs, err := emb.GetEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed corpus: got %d vectors for %d documents", len(vecs), len(texts))
	}
	for i := range r.entries {
		r.entries[i].vector = vecs[i]
	}
	return r, nil
}

// Len returns the number of indexed documents.
func (r *Retriever) Len() int { return len(r.entries) }

// Retrieve implements retriever.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, q *retriever.Query) (*retriever.Result, error) {
	if q == nil {
		return nil, errors.New("inmemory: nil query")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	score, err := r.scorer(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = config.DefaultSearchK
	}

	var hits []*retriever.RelevantDocument
	for _, e := range r.entries {
		if !visible(e.doc, q.UserID) {
			continue
		}
		s := score(e)
		if s <= 0 || s < q.MinScore {
			continue
		}
		hits = append(hits, &retriever.RelevantDocument{Document: e.doc.Clone(), Score: s})
	}
	// Stable ranking keeps corpus order among equal scores.
	hits, err = reranker.NewTopKReranker(reranker.WithK(limit)).Rerank(ctx, hits)
	if err != nil {
		return nil, err
	}
	return &retriever.Result{Documents: hits}, nil
}

// Close implements retriever.Retriever.
func (r *Retriever) Close() error { return nil }

func (r *Retriever) scorer(ctx context.Context, text string) (func(entry) float64, error) {
	if r.embedder == nil {
		qt := terms(text)
		return func(e entry) float64 {
			if len(qt) == 0 {
				return 0
			}
			n := 0
			for t := range qt {
				if _, ok := e.terms[t]; ok {
					n++
				}
			}
			return float64(n) / float64(len(qt))
		}, nil
	}
	if strings.TrimSpace(text) == "" || len(r.entries) == 0 {
		return func(entry) float64 { return 0 }, nil
	}
	qv, err := r.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return func(e entry) float64 {
		return max(embedder.Cosine(qv, e.vector), 0)
	}, nil
}

func visible(d *document.Document, userID string) bool {
	if userID == "" {
		return true
	}
	owner, ok := d.Metadata[retriever.MetaUserID]
	if !ok {
		return true
	}
	return fmt.Sprint(owner) == userID
}

// terms returns the distinct lower-cased words of s.
func terms(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package retriever defines the document retrieval contract and the
// provider registry behind MakeRetriever.
//
// Providers live in sub-packages and register themselves from init, so a
// binary selects the providers it supports by importing them:
//
//	import _ "trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever/inmemory"
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder/gemini"
	openaiembedder "trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder/openai"
)

const googlePrefix = "google/"

// ErrUnknownProvider is returned by MakeRetriever for an unregistered provider.
var ErrUnknownProvider = errors.New("retriever: unknown provider")

// Metadata keys read or written by retrievers.
const (
	// MetaScore records relevance on documents returned by Result.Docs.
	MetaScore = "score"
	// MetaUserID scopes a document to one user. Documents without it are
	// visible to every user.
	MetaUserID = "user_id"
)

// Retriever finds documents relevant to a query.
type Retriever interface {
	// Retrieve returns documents ordered by decreasing relevance.
	Retrieve(ctx context.Context, query *Query) (*Result, error)
	// Close releases resources held by the retriever.
	Close() error
}

// Query is a retrieval request.
type Query struct {
	// Text is the search text.
	Text string
	// UserID restricts results to one user's documents when set.
	UserID string
	// Limit is the maximum number of documents returned. Zero means the
	// provider default.
	Limit int
	// MinScore drops documents scoring below it.
	MinScore float64
}

// Result is the outcome of a retrieval.
type Result struct {
	Documents []*RelevantDocument
}

// RelevantDocument is a document with its relevance score in [0, 1].
type RelevantDocument struct {
	Document *document.Document
	Score    float64
}

// Docs returns the documents of r in order, each a copy carrying its score
// under MetaScore.
func (r *Result) Docs() []*document.Document {
	if r == nil {
		return nil
	}
	out := make([]*document.Document, 0, len(r.Documents))
	for _, rd := range r.Documents {
		if rd == nil || rd.Document == nil {
			continue
		}
		d := rd.Document.Clone()
		if d.Metadata == nil {
			d.Metadata = make(map[string]any, 1)
		}
		d.Metadata[MetaScore] = rd.Score
		out = append(out, d)
	}
	return out
}

// NewQuery builds a query from the search settings of cfg.
func NewQuery(cfg *config.Config, text string) *Query {
	return &Query{
		Text:     text,
		UserID:   cfg.UserID,
		Limit:    cfg.SearchKwargs.K,
		MinScore: cfg.SearchKwargs.MinScore,
	}
}

// Options are passed to provider factories.
type Options struct {
	// Embedder scores by vector similarity when set.
	Embedder embedder.Embedder
	// Documents seed providers that hold their corpus in process.
	Documents []*document.Document
}

// Option configures MakeRetriever.
type Option func(*Options)

// WithEmbedder sets the embedder, overriding the one built from
// config.Config.EmbeddingModel.
func WithEmbedder(e embedder.Embedder) Option {
	return func(o *Options) { o.Embedder = e }
}

// WithDocuments adds documents to the corpus.
func WithDocuments(docs ...*document.Document) Option {
	return func(o *Options) { o.Documents = append(o.Documents, docs...) }
}

// Factory builds a retriever for cfg.
type Factory func(ctx context.Context, cfg *config.Config, opts Options) (Retriever, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a provider available to MakeRetriever. It is meant to be
// called from init and panics on a duplicate name.
func Register(provider string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[provider]; dup {
		panic("retriever: provider registered twice: " + provider)
	}
	factories[provider] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MakeRetriever builds the retriever selected by cfg.RetrieverProvider.
// An empty provider selects the in-memory one.
func MakeRetriever(ctx context.Context, cfg *config.Config, opts ...Option) (Retriever, error) {
	provider := cfg.RetrieverProvider
	if provider == "" {
		provider = config.ProviderInMemory
	}
	mu.RLock()
	f, ok := factories[provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, provider, Providers())
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Embedder == nil && cfg.EmbeddingModel != "" {
		e, err := newEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("embedding model %s: %w", cfg.EmbeddingModel, err)
		}
		o.Embedder = e
	}
	r, err := f(ctx, cfg, o)
	if err != nil {
		return nil, fmt.Errorf("retriever %s: %w", provider, err)
	}
	return r, nil
}

// newEmbedder picks the embedding client from the provider prefix of
// cfg.EmbeddingModel. Unprefixed ids go to the OpenAI compatible endpoint.
func newEmbedder(ctx context.Context, cfg *config.Config) (embedder.Embedder, error) {
	if strings.HasPrefix(cfg.EmbeddingModel, googlePrefix) {
		return gemini.New(ctx,
			gemini.WithModel(cfg.EmbeddingModel),
			gemini.WithAPIKey(cfg.Google.APIKey),
			gemini.WithBaseURL(cfg.Google.BaseURL),
		)
	}
	return openaiembedder.New(
		openaiembedder.WithModel(cfg.EmbeddingModel),
		openaiembedder.WithAPIKey(cfg.OpenAI.APIKey),
		openaiembedder.WithBaseURL(cfg.OpenAI.BaseURL),
	), nil
}

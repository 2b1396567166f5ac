//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package gemini implements embedder.Embedder on the Gemini embeddings API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder"
	"trpc.group/trpc-go/trpc-agent-graph/log"
)

var _ embedder.Embedder = (*Embedder)(nil)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "gemini-embedding-001"
	// DefaultDimensions is the requested output size.
	DefaultDimensions = 1536
	// DefaultBatchSize is the most contents one batchEmbedContents call accepts.
	DefaultBatchSize = 100

	// TaskTypeRetrievalDocument embeds texts that will be searched.
	TaskTypeRetrievalDocument = "RETRIEVAL_DOCUMENT"
	// TaskTypeRetrievalQuery embeds search queries.
	TaskTypeRetrievalQuery = "RETRIEVAL_QUERY"

	// APIKeyEnv is read when no key is configured.
	APIKeyEnv = "GOOGLE_API_KEY"
)

// ErrNoAPIKey is returned by New when neither an option nor GOOGLE_API_KEY
// provides a key.
var ErrNoAPIKey = errors.New("gemini embedder: " + APIKeyEnv + " is not provided")

// Embedder calls the Gemini embedContent endpoint.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
	batchSize  int
	// GetEmbedding embeds queries, GetEmbeddings embeds corpus documents.
	queryTask    string
	documentTask string
	apiKey       string
	baseURL      string
}

// Option configures the Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model. A "google/" or "models/" prefix is
// stripped.
func WithModel(model string) Option {
	return func(e *Embedder) {
		model = strings.TrimPrefix(model, "google/")
		e.model = strings.TrimPrefix(model, "models/")
	}
}

// WithDimensions sets the requested vector size.
func WithDimensions(dimensions int) Option {
	return func(e *Embedder) {
		e.dimensions = dimensions
	}
}

// WithBatchSize splits GetEmbeddings into requests of at most n inputs.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTaskTypes sets the task types of query and document embeddings.
// Empty values keep the defaults.
func WithTaskTypes(query, document string) Option {
	return func(e *Embedder) {
		if query != "" {
			e.queryTask = query
		}
		if document != "" {
			e.documentTask = document
		}
	}
}

// WithAPIKey sets the API key. GOOGLE_API_KEY is used otherwise.
func WithAPIKey(apiKey string) Option {
	return func(e *Embedder) {
		if apiKey != "" {
			e.apiKey = apiKey
		}
	}
}

// WithBaseURL points the client at another Gemini API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(e *Embedder) {
		e.baseURL = baseURL
	}
}

// New creates an Embedder on the Gemini developer API.
func New(ctx context.Context, opts ...Option) (*Embedder, error) {
	e := &Embedder{
		model:        DefaultModel,
		dimensions:   DefaultDimensions,
		batchSize:    DefaultBatchSize,
		queryTask:    TaskTypeRetrievalQuery,
		documentTask: TaskTypeRetrievalDocument,
		apiKey:       os.Getenv(APIKeyEnv),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cc := &genai.ClientConfig{
		APIKey:  e.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if e.baseURL != "" {
		cc.HTTPOptions.BaseURL = e.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	e.client = client
	return e, nil
}

// GetEmbedding implements embedder.Embedder.
func (e *Embedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("gemini embedder: text cannot be empty")
	}
	vecs, err := e.embed(ctx, []string{text}, e.queryTask)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GetEmbeddings implements embedder.Embedder.
func (e *Embedder) GetEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("gemini embedder: text %d is empty", i)
		}
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		batch := texts[start:min(start+e.batchSize, len(texts))]
		vecs, err := e.embed(ctx, batch, e.documentTask)
		if err != nil {
			return nil, fmt.Errorf("batch at %d: %w", start, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// GetDimensions implements embedder.Embedder.
func (e *Embedder) GetDimensions() int {
	return e.dimensions
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float64, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	req := &genai.EmbedContentConfig{TaskType: task}
	if e.dimensions > 0 {
		d := int32(e.dimensions)
		req.OutputDimensionality = &d
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, req)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: got %d vectors for %d inputs: %w",
			len(resp.Embeddings), len(texts), embedder.ErrEmptyEmbedding)
	}
	out := make([][]float64, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embedder: bad vector at index %d: %w",
				i, embedder.ErrEmptyEmbedding)
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	log.Debugf("gemini embedder: model=%s task=%s inputs=%d", e.model, task, len(texts))
	return out, nil
}

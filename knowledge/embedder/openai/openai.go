//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package openai implements embedder.Embedder on the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/metric"
)

var _ embedder.Embedder = (*Embedder)(nil)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions matches DefaultModel.
	DefaultDimensions = 1536

	// DefaultBatchSize bounds the inputs sent in one request.
	DefaultBatchSize = 256

	textEmbedding3Prefix = "text-embedding-3"
)

// Embedder calls the OpenAI embeddings endpoint.
type Embedder struct {
	client         openai.Client
	model          string
	dimensions     int
	batchSize      int
	user           string
	apiKey         string
	baseURL        string
	requestOptions []option.RequestOption
}

// Option configures the Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model. An "openai/" prefix is stripped.
func WithModel(model string) Option {
	return func(e *Embedder) {
		e.model = strings.TrimPrefix(model, "openai/")
	}
}

// WithDimensions sets the vector size. Only text-embedding-3 models honor it.
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

// WithUser sets the end-user identifier sent with each request.
func WithUser(user string) Option {
	return func(e *Embedder) {
		e.user = user
	}
}

// WithAPIKey sets the API key. OPENAI_API_KEY is used otherwise.
func WithAPIKey(apiKey string) Option {
	return func(e *Embedder) {
		e.apiKey = apiKey
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(e *Embedder) {
		e.baseURL = baseURL
	}
}

// WithRequestOptions appends raw client request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(e *Embedder) {
		e.requestOptions = append(e.requestOptions, opts...)
	}
}

// New creates an Embedder.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		batchSize:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	var clientOpts []option.RequestOption
	if e.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(e.apiKey))
	}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	clientOpts = append(clientOpts, e.requestOptions...)
	e.client = openai.NewClient(clientOpts...)
	return e
}

// GetEmbedding implements embedder.Embedder.
func (e *Embedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("openai embedder: text cannot be empty")
	}
	vecs, err := e.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
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
			return nil, fmt.Errorf("openai embedder: text %d is empty", i)
		}
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		batch := texts[start:min(start+e.batchSize, len(texts))]
		vecs, err := e.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch}, len(batch))
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

func (e *Embedder) embed(
	ctx context.Context,
	input openai.EmbeddingNewParamsInputUnion,
	want int,
) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Input:          input,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.user != "" {
		params.User = openai.String(e.user)
	}
	if strings.HasPrefix(e.model, textEmbedding3Prefix) && e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("openai embedder: got %d vectors for %d inputs: %w",
			len(resp.Data), want, embedder.ErrEmptyEmbedding)
	}
	out := make([][]float64, want)
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= want || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("openai embedder: bad vector at index %d: %w",
				d.Index, embedder.ErrEmptyEmbedding)
		}
		out[d.Index] = d.Embedding
	}
	log.Debugf("openai embedder: model=%s inputs=%d tokens=%d", e.model, want, resp.Usage.TotalTokens)
	metric.RecordTokenUsage(ctx, e.model, int(resp.Usage.PromptTokens), 0)
	return out, nil
}

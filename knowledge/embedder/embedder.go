//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package embedder defines the text embedding contract used by vector retrieval.
package embedder

import (
	"context"
	"errors"
	"math"
)

// ErrEmptyEmbedding is returned when a provider answers without a vector.
var ErrEmptyEmbedding = errors.New("embedder: empty embedding")

// Embedder turns text into vectors.
type Embedder interface {
	// GetEmbedding embeds a single text.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)
	// GetEmbeddings embeds texts in one call, preserving input order.
	GetEmbeddings(ctx context.Context, texts []string) ([][]float64, error)
	// GetDimensions returns the vector size, or 0 when unknown.
	GetDimensions() int
}

// Cosine returns the cosine similarity of a and b, or 0 when the vectors
// differ in length or either is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package chunking

import (
	"unicode"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
)

// FixedSizeChunking splits text into windows of at most chunkSize runes,
// preferring to break on whitespace. Consecutive windows share overlap runes.
type FixedSizeChunking struct {
	chunkSize int
	overlap   int
}

// Option configures FixedSizeChunking.
type Option func(*FixedSizeChunking)

// WithChunkSize sets the maximum chunk size in runes.
func WithChunkSize(size int) Option {
	return func(f *FixedSizeChunking) { f.chunkSize = size }
}

// WithOverlap sets the number of runes shared by consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(f *FixedSizeChunking) { f.overlap = overlap }
}

// NewFixedSizeChunking creates a fixed-size strategy. Invalid sizes fall
// back to the defaults.
func NewFixedSizeChunking(opts ...Option) *FixedSizeChunking {
	f := &FixedSizeChunking{chunkSize: defaultChunkSize, overlap: defaultOverlap}
	for _, opt := range opts {
		opt(f)
	}
	if f.chunkSize <= 0 {
		f.chunkSize = defaultChunkSize
	}
	if f.overlap < 0 {
		f.overlap = 0
	}
	if f.overlap >= f.chunkSize {
		f.overlap = min(defaultOverlap, f.chunkSize-1)
	}
	return f
}

// Chunk implements Strategy.
func (f *FixedSizeChunking) Chunk(doc *document.Document) ([]*document.Document, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}
	content := cleanText(doc.Content)
	if content == "" {
		return nil, ErrEmptyDocument
	}
	runes := []rune(content)
	if len(runes) <= f.chunkSize {
		return []*document.Document{createChunk(doc, content, 1)}, nil
	}

	var chunks []*document.Document
	for start, n := 0, 1; start < len(runes); n++ {
		end := min(start+f.chunkSize, len(runes))
		if end < len(runes) {
			// Only accept a break that still moves past the overlap window.
			if bp := breakPoint(runes, start, end); bp-start > f.overlap {
				end = bp
			}
		}
		chunks = append(chunks, createChunk(doc, string(runes[start:end]), n))
		if end == len(runes) {
			break
		}
		start = end - f.overlap
	}
	return chunks, nil
}

// breakPoint returns the index just past the last whitespace in
// runes[start:end], or -1.
func breakPoint(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return -1
}

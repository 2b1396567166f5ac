//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package chunking splits corpus documents into retrievable pieces.
package chunking

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/log"
)

// Metadata keys set on every chunk.
const (
	MetaChunkIndex = "chunk_index"
	MetaChunkSize  = "chunk_size"
	MetaSourceID   = "source_id"
)

// Strategy splits a document into chunks.
type Strategy interface {
	Chunk(doc *document.Document) ([]*document.Document, error)
}

const (
	defaultChunkSize = 1024
	defaultOverlap   = 128
)

// ForPath picks a strategy from the file extension of path.
func ForPath(path string) Strategy {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return NewMarkdownChunking()
	default:
		return NewFixedSizeChunking()
	}
}

// cleanText replaces invalid UTF-8, normalizes line breaks and trims each line.
func cleanText(content string) string {
	if !utf8.ValidString(content) {
		log.Debugf("chunking: replacing invalid utf-8 in %d bytes of content", len(content))
		content = strings.ToValidUTF8(content, "�")
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

// createChunk derives chunk n of doc. The chunk inherits the parent
// metadata so filters such as user_id keep applying after chunking.
func createChunk(doc *document.Document, content string, n int) *document.Document {
	chunk := doc.Clone()
	chunk.Content = content
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]any, 3)
	}
	chunk.Metadata[MetaChunkIndex] = n
	chunk.Metadata[MetaChunkSize] = utf8.RuneCountInString(content)

	base := doc.ID
	if base == "" {
		base = doc.Name
	}
	if base == "" {
		base = "chunk"
	}
	if doc.ID != "" {
		chunk.Metadata[MetaSourceID] = doc.ID
	}
	chunk.ID = base + "_" + strconv.Itoa(n)
	return chunk
}

func validate(doc *document.Document) error {
	if doc == nil {
		return ErrNilDocument
	}
	if doc.IsEmpty() {
		return ErrEmptyDocument
	}
	return nil
}

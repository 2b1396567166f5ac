//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package retriever

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"trpc.group/trpc-go/trpc-agent-graph/knowledge/chunking"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/internal/encoding"
	"trpc.group/trpc-go/trpc-agent-graph/log"
)

// Metadata keys set on corpus chunks.
const (
	// MetaSource holds the file a chunk was read from.
	MetaSource = "source"
	// MetaEncoding holds the encoding the file was decoded from.
	MetaEncoding = "encoding"
)

var corpusExts = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// LoadCorpus reads the files named by paths and returns their chunks.
// Directories are walked for markdown and text files; a file named
// directly is loaded whatever its extension. A path holding glob
// metacharacters, such as docs/**/*.md, is expanded first and must match
// something. Empty files are skipped.
func LoadCorpus(paths []string) ([]*document.Document, error) {
	var docs []*document.Document
	for _, p := range paths {
		roots := []string{p}
		if hasMeta(p) {
			matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("load corpus: %w", err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("load corpus: no files match %q", p)
			}
			roots = matches
		}
		for _, root := range roots {
			chunks, err := loadPath(root)
			if err != nil {
				return nil, err
			}
			docs = append(docs, chunks...)
		}
	}
	log.Debugf("loaded %d corpus chunks from %d paths", len(docs), len(paths))
	return docs, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(filepath.ToSlash(p), "*?[{")
}

func loadPath(root string) ([]*document.Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	if !info.IsDir() {
		return loadFile(root)
	}
	var docs []*document.Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !corpusExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		chunks, err := loadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, chunks...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return docs, nil
}

func loadFile(path string) ([]*document.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	text, enc, err := encoding.ToUTF8(b)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if enc != encoding.UTF8 {
		log.Debugf("corpus file %s decoded from %s", path, enc)
	}
	src := filepath.ToSlash(path)
	doc := &document.Document{
		ID:       src,
		Name:     filepath.Base(path),
		Content:  text,
		Metadata: map[string]any{MetaSource: src, MetaEncoding: enc},
	}
	chunks, err := chunking.ForPath(path).Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", path, err)
	}
	return chunks, nil
}

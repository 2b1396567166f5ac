//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
// Package document defines the documents returned by retrievers.
package document

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is a piece of retrieved content with provenance metadata.
type Document struct {
	// ID is the unique identifier of the document.
	ID string `json:"id"`
	// Name is a human readable name, usually the source file.
	Name string `json:"name,omitempty"`
	// Content is the body text.
	Content string `json:"content"`
	// Metadata holds provenance such as source or user_id.
	Metadata map[string]any `json:"metadata,omitempty"`
	// CreatedAt is when the document was created.
	CreatedAt time.Time `json:"created_at,omitempty"`
	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// New creates a document with a random id.
func New(name, content string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsEmpty reports whether d is nil or has no content.
func (d *Document) IsEmpty() bool {
	return d == nil || d.Content == ""
}

// Clone returns a copy of d with its own metadata map.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Format renders d as a <document> element. The id comes first, then the
// metadata attributes in key order.
func (d *Document) Format() string {
	var b strings.Builder
	b.WriteString("<document")
	if d.ID != "" {
		fmt.Fprintf(&b, " id=%q", d.ID)
	}
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, fmt.Sprint(d.Metadata[k]))
	}
	b.WriteString(">\n")
	b.WriteString(d.Content)
	b.WriteString("\n</document>")
	return b.String()
}

// FormatDocs renders documents for a prompt inside a <documents> element.
// Nil documents are skipped.
func FormatDocs(docs []*Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			parts = append(parts, d.Format())
		}
	}
	if len(parts) == 0 {
		return "<documents></documents>"
	}
	return "<documents>\n" + strings.Join(parts, "\n") + "\n</documents>"
}

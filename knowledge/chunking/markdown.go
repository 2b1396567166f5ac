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
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
)

// Markdown metadata keys.
const (
	MetaMarkdownTitle = "markdown_title"
	MetaMarkdownLevel = "markdown_level"
)

// MarkdownChunking splits markdown at top-level headings. Sections larger
// than chunkSize are packed paragraph by paragraph, repeating the heading
// on each continuation chunk.
type MarkdownChunking struct {
	chunkSize int
	md        goldmark.Markdown
}

// MarkdownOption configures MarkdownChunking.
type MarkdownOption func(*MarkdownChunking)

// WithMarkdownChunkSize sets the maximum chunk size in runes.
func WithMarkdownChunkSize(size int) MarkdownOption {
	return func(m *MarkdownChunking) { m.chunkSize = size }
}

// NewMarkdownChunking creates a markdown strategy.
func NewMarkdownChunking(opts ...MarkdownOption) *MarkdownChunking {
	m := &MarkdownChunking{chunkSize: defaultChunkSize, md: goldmark.New()}
	for _, opt := range opts {
		opt(m)
	}
	if m.chunkSize <= 0 {
		m.chunkSize = defaultChunkSize
	}
	return m
}

type section struct {
	level int
	title string
	body  string
}

// Chunk implements Strategy.
func (m *MarkdownChunking) Chunk(doc *document.Document) ([]*document.Document, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}
	content := cleanText(doc.Content)
	if content == "" {
		return nil, ErrEmptyDocument
	}

	var chunks []*document.Document
	emit := func(s section, body string) {
		c := createChunk(doc, render(s, body), len(chunks)+1)
		if s.level > 0 {
			c.Metadata[MetaMarkdownTitle] = s.title
			c.Metadata[MetaMarkdownLevel] = s.level
		}
		chunks = append(chunks, c)
	}
	for _, s := range m.sections(content) {
		if utf8.RuneCountInString(render(s, s.body)) <= m.chunkSize {
			emit(s, s.body)
			continue
		}
		for _, part := range m.pack(s) {
			emit(s, part)
		}
	}
	return chunks, nil
}

// sections cuts content at the start line of every top-level heading.
// Headings inside code fences are not headings to the parser and stay in
// the body.
func (m *MarkdownChunking) sections(content string) []section {
	src := []byte(content)
	root := m.md.Parser().Parse(text.NewReader(src))

	type cut struct {
		at    int
		level int
		title string
		body  int
	}
	var cuts []cut
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		lines := h.Lines()
		first := lines.At(0)
		last := lines.At(lines.Len() - 1)
		bodyStart := len(src)
		if i := bytes.IndexByte(src[last.Stop:], '\n'); i >= 0 {
			bodyStart = last.Stop + i + 1
		}
		at := bytes.LastIndexByte(src[:first.Start], '\n') + 1
		atx := bytes.HasPrefix(bytes.TrimLeft(src[at:], " "), []byte("#"))
		// A setext underline follows the heading text.
		if !atx && bodyStart < len(src) && isSetextUnderline(src[bodyStart:]) {
			if i := bytes.IndexByte(src[bodyStart:], '\n'); i >= 0 {
				bodyStart += i + 1
			} else {
				bodyStart = len(src)
			}
		}
		cuts = append(cuts, cut{
			at:    at,
			level: h.Level,
			title: strings.TrimSpace(string(lines.Value(src))),
			body:  bodyStart,
		})
	}

	var out []section
	add := func(s section) {
		s.body = strings.TrimSpace(s.body)
		if s.body != "" || s.level > 0 {
			out = append(out, s)
		}
	}
	// Text before the first heading, or the whole file without headings.
	lead := len(content)
	if len(cuts) > 0 {
		lead = cuts[0].at
	}
	add(section{body: content[:lead]})
	for i, c := range cuts {
		end := len(src)
		if i+1 < len(cuts) {
			end = cuts[i+1].at
		}
		body := ""
		if c.body < end {
			body = content[c.body:end]
		}
		add(section{level: c.level, title: c.title, body: body})
	}
	return out
}

// pack groups paragraphs of an oversized section into bodies that fit
// alongside the heading. A single paragraph that cannot fit is split by
// the fixed-size strategy.
func (m *MarkdownChunking) pack(s section) []string {
	overhead := 0
	if s.level > 0 {
		overhead = utf8.RuneCountInString(render(s, "")) + len("\n\n")
	}
	budget := max(m.chunkSize-overhead, 1)
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, para := range strings.Split(s.body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		size := utf8.RuneCountInString(para)
		if size > budget {
			flush()
			fixed := NewFixedSizeChunking(WithChunkSize(budget), WithOverlap(0))
			pieces, err := fixed.Chunk(&document.Document{Content: para})
			if err != nil {
				continue
			}
			for _, p := range pieces {
				parts = append(parts, p.Content)
			}
			continue
		}
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+2+size > budget {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return parts
}

func render(s section, body string) string {
	if s.level == 0 {
		return body
	}
	heading := strings.Repeat("#", s.level) + " " + s.title
	if body == "" {
		return heading
	}
	return heading + "\n\n" + body
}

func isSetextUnderline(b []byte) bool {
	line := b
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		line = b[:i]
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}
	return bytes.Count(line, line[:1]) == len(line) && (line[0] == '=' || line[0] == '-')
}

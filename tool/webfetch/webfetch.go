//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
// Package webfetch provides a tool fetching web pages as markdown text.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"trpc.group/trpc-go/trpc-agent-graph/tool"
	"trpc.group/trpc-go/trpc-agent-graph/tool/function"
)

const (
	// ToolName is the declared name of the fetch tool.
	ToolName = "web_fetch"

	defaultTimeout  = 30 * time.Second
	defaultMaxURLs  = 5
	defaultMaxBytes = 512 << 10
	userAgent       = "trpc-agent-graph/web-fetch"
)

// Option configures the fetch tool.
type Option func(*config)

type config struct {
	httpClient *http.Client
	maxURLs    int
	maxBytes   int64
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// WithMaxURLs bounds the number of URLs fetched per call.
func WithMaxURLs(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxURLs = n
		}
	}
}

// WithMaxBytes bounds the body size read per URL. Longer bodies are
// truncated.
func WithMaxBytes(n int64) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxBytes = n
		}
	}
}

type fetchRequest struct {
	URLs []string `json:"urls" jsonschema:"description=The URLs to fetch content from"`
}

type fetchResponse struct {
	Results []resultItem `json:"results"`
	Summary string       `json:"summary"`
}

type resultItem struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Content    string `json:"content,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	Error      string `json:"error,omitempty"`
}

type fetcher struct {
	client   *http.Client
	maxURLs  int
	maxBytes int64
	conv     *converter.Converter
}

// NewTool creates the web fetch tool. Per-URL failures are reported in the
// result so one dead link does not fail the whole call.
func NewTool(opts ...Option) tool.CallableTool {
	cfg := &config{
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxURLs:    defaultMaxURLs,
		maxBytes:   defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	f := &fetcher{
		client:   cfg.httpClient,
		maxURLs:  cfg.maxURLs,
		maxBytes: cfg.maxBytes,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
	return function.NewFunctionTool(
		f.fetch,
		function.WithName(ToolName),
		function.WithDescription(fmt.Sprintf("Fetches web pages and returns their text as markdown. "+
			"Accepts up to %d URLs per call.", cfg.maxURLs)),
	)
}

func (f *fetcher) fetch(ctx context.Context, req fetchRequest) (fetchResponse, error) {
	seen := make(map[string]struct{})
	var urls []string
	for _, u := range req.URLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return fetchResponse{Results: []resultItem{}, Summary: "No URLs provided"}, nil
	}
	if len(urls) > f.maxURLs {
		urls = urls[:f.maxURLs]
	}

	results := make([]resultItem, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.fetchOne(ctx, u)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fetchResponse{}, err
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	return fetchResponse{
		Results: results,
		Summary: fmt.Sprintf("Fetched %d URLs, %d failed", len(urls), failed),
	}, nil
}

func (f *fetcher) fetchOne(ctx context.Context, u string) resultItem {
	item := resultItem{URL: u}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	defer resp.Body.Close()
	item.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		item.Error = fmt.Sprintf("HTTP status %d", resp.StatusCode)
		return item
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		item.Error = fmt.Sprintf("failed to read response body: %v", err)
		return item
	}
	if int64(len(body)) > f.maxBytes {
		body = body[:f.maxBytes]
		item.Truncated = true
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		markdown, err := f.conv.ConvertString(string(body))
		if err != nil {
			item.Error = fmt.Sprintf("convert html: %v", err)
			return item
		}
		item.Content = markdown
	case isText(mediaType):
		item.Content = string(body)
	default:
		item.Error = fmt.Sprintf("unsupported content type: %s", mediaType)
	}
	return item
}

func isText(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml":
		return true
	}
	return false
}

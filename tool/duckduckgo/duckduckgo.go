//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
// Package duckduckgo exposes the DuckDuckGo Instant Answer API as the web
// search tool of the ReAct graph. Instant answers cover entities,
// definitions and calculations; they carry no live data.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-agent-graph/tool"
	"trpc.group/trpc-go/trpc-agent-graph/tool/duckduckgo/internal/client"
	"trpc.group/trpc-go/trpc-agent-graph/tool/function"
)

// ToolName is the name the model calls the tool by.
const ToolName = "duckduckgo_search"

const (
	defaultMaxResults = 5
	maxTitleLength    = 50
	defaultBaseURL    = "https://api.duckduckgo.com"
	defaultUserAgent  = "trpc-agent-graph-duckduckgo/1.0"
	defaultTimeout    = 30 * time.Second
	webSearchURL      = "https://duckduckgo.com/?q="
	description       = "Look up factual, encyclopedic information on DuckDuckGo: " +
		"people, companies, places, definitions, calculations and history. " +
		"Does not know weather, prices or news. " +
		"Returns instant answers, abstracts and related topics."
)

type options struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	maxResults int
}

// Option configures the search tool.
type Option func(*options)

// WithBaseURL overrides the Instant Answer endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithMaxResults caps the hits per search. Values below one are ignored.
func WithMaxResults(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

type searchInput struct {
	Query string `json:"query" jsonschema:"description=The search query to execute on DuckDuckGo"`
}

type searchOutput struct {
	Query   string `json:"query"`
	Results []hit  `json:"results"`
	Summary string `json:"summary"`
}

type hit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type searcher struct {
	api   *client.Client
	limit int
}

// NewTool returns the DuckDuckGo search tool.
func NewTool(opts ...Option) tool.CallableTool {
	o := &options{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxResults: defaultMaxResults,
	}
	for _, opt := range opts {
		opt(o)
	}
	s := &searcher{
		api:   client.New(o.baseURL, o.userAgent, o.httpClient),
		limit: o.maxResults,
	}
	return function.NewFunctionTool(s.search,
		function.WithName(ToolName),
		function.WithDescription(description))
}

// search answers a blank query in the summary so the model can retry with
// a better one. Transport failures are errors.
func (s *searcher) search(ctx context.Context, in searchInput) (searchOutput, error) {
	out := searchOutput{Query: in.Query, Results: []hit{}}
	if strings.TrimSpace(in.Query) == "" {
		out.Summary = "Error: Empty search query provided"
		return out, nil
	}
	rsp, err := s.api.Search(ctx, in.Query)
	if err != nil {
		return searchOutput{}, fmt.Errorf("duckduckgo search %q: %w", in.Query, err)
	}

	for _, topic := range rsp.Topics() {
		if len(out.Results) == s.limit {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		out.Results = append(out.Results, hit{
			Title:       extractTitleFromTopic(topic.Text),
			URL:         topic.FirstURL,
			Description: topic.Text,
		})
	}

	facts := instantFacts(rsp)
	if len(facts) == 0 {
		out.Summary = fmt.Sprintf("Found %d results for query '%s'", len(out.Results), in.Query)
		return out, nil
	}
	out.Summary = strings.Join(facts, " | ")
	if len(out.Results) == 0 {
		out.Results = append(out.Results, hit{
			Title:       "DuckDuckGo search: " + in.Query,
			URL:         webSearchURL + url.QueryEscape(in.Query),
			Description: out.Summary,
		})
	}
	return out, nil
}

// instantFacts lists the labelled instant answer fields that are present.
func instantFacts(rsp *client.Response) []string {
	var facts []string
	add := func(label, value string) {
		if value != "" {
			facts = append(facts, label+": "+value)
		}
	}
	add("Answer", rsp.Answer)
	if rsp.AbstractText != "" {
		add("Abstract", rsp.AbstractText)
		add("Source", rsp.AbstractSource)
	}
	if rsp.Definition != "" {
		add("Definition", rsp.Definition)
		add("Definition Source", rsp.DefinitionSource)
	}
	return facts
}

// extractTitleFromTopic takes the part before " - " and truncates it.
func extractTitleFromTopic(text string) string {
	title, _, _ := strings.Cut(text, " - ")
	if title = strings.TrimSpace(title); title == "" {
		title = strings.TrimSpace(text)
	}
	if len(title) > maxTitleLength {
		return title[:maxTitleLength-3] + "..."
	}
	return title
}

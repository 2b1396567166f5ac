//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
package duckduckgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, args string, opts ...Option) (searchOutput, error) {
	t.Helper()
	opts = append([]Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)
	out, err := NewTool(opts...).Call(context.Background(), []byte(args))
	if err != nil {
		return searchOutput{}, err
	}
	return out.(searchOutput), nil
}

func TestSearchRelatedTopics(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{
		"AbstractText": "Beijing is the capital of China.",
		"AbstractSource": "Wikipedia",
		"RelatedTopics": [
			{"Text": "Beijing Capital International Airport - The main airport.", "FirstURL": "https://duckduckgo.com/Airport"},
			{"Name": "Culture", "Topics": [
				{"Text": "Peking opera - A form of Chinese opera.", "FirstURL": "https://duckduckgo.com/Opera"},
				{"Text": "Hutong - Narrow alleys.", "FirstURL": "https://duckduckgo.com/Hutong"}
			]},
			{"Text": "", "FirstURL": "https://duckduckgo.com/Empty"}
		]
	}`)

	rsp, err := call(t, srv, `{"query":"Beijing"}`, WithMaxResults(2))
	require.NoError(t, err)
	assert.Equal(t, "Beijing", rsp.Query)
	require.Len(t, rsp.Results, 2)
	assert.Equal(t, "Beijing Capital International Airport", rsp.Results[0].Title)
	assert.Equal(t, "Peking opera", rsp.Results[1].Title)
	assert.Equal(t, "Abstract: Beijing is the capital of China. | Source: Wikipedia", rsp.Summary)
}

func TestSearchSummaryOnly(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"Answer": "4", "Definition": "Addition", "DefinitionSource": "Math"}`)
	rsp, err := call(t, srv, `{"query":"2 + 2"}`)
	require.NoError(t, err)
	require.Len(t, rsp.Results, 1)
	assert.Equal(t, "https://duckduckgo.com/?q=2+%2B+2", rsp.Results[0].URL)
	assert.Equal(t, "Answer: 4 | Definition: Addition | Definition Source: Math", rsp.Summary)
}

func TestSearchNoResults(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`)
	rsp, err := call(t, srv, `{"query":"zzzz"}`)
	require.NoError(t, err)
	assert.Empty(t, rsp.Results)
	assert.Equal(t, "Found 0 results for query 'zzzz'", rsp.Summary)
}

func TestSearchEmptyQuery(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`)
	rsp, err := call(t, srv, `{"query":"  "}`)
	require.NoError(t, err)
	assert.Equal(t, "Error: Empty search query provided", rsp.Summary)
}

func TestSearchFailure(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, ``)
	_, err := call(t, srv, `{"query":"go"}`)
	assert.ErrorContains(t, err, "API returned status 500")
}

func TestDeclaration(t *testing.T) {
	decl := NewTool().Declaration()
	assert.Equal(t, ToolName, decl.Name)
	assert.Equal(t, []string{"query"}, decl.InputSchema.Required)
	assert.NotEmpty(t, decl.InputSchema.Properties["query"].Description)
}

func TestExtractTitleFromTopic(t *testing.T) {
	assert.Equal(t, "Go", extractTitleFromTopic("Go - a language"))
	assert.Equal(t, "plain", extractTitleFromTopic("plain"))
	long := extractTitleFromTopic(strings.Repeat("x", 80))
	assert.Len(t, long, maxTitleLength)
	assert.True(t, strings.HasSuffix(long, "..."))
}

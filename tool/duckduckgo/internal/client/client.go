//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package client calls the DuckDuckGo Instant Answer API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxBodySize bounds the answer body read from the API.
const maxBodySize = 2 << 20

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// StatusError reports a non-200 answer from the API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d", e.Code)
}

// Client queries one Instant Answer endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// New creates a client for baseURL sending userAgent.
func New(baseURL, userAgent string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

// FlexibleString accepts JSON strings, numbers and booleans. The API sends
// AnswerType as either.
type FlexibleString string

// UnmarshalJSON implements json.Unmarshaler.
func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*fs = FlexibleString(s)
		return nil
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*fs = FlexibleString(fmt.Sprint(v))
	return nil
}

// String returns the raw value.
func (fs FlexibleString) String() string {
	return string(fs)
}

// Response is the subset of an Instant Answer the search tool reads.
type Response struct {
	Type             string         `json:"Type"`
	AnswerType       FlexibleString `json:"AnswerType"`
	Heading          string         `json:"Heading"`
	Answer           string         `json:"Answer"`
	AbstractText     string         `json:"AbstractText"`
	AbstractSource   string         `json:"AbstractSource"`
	AbstractURL      string         `json:"AbstractURL"`
	Definition       string         `json:"Definition"`
	DefinitionSource string         `json:"DefinitionSource"`
	DefinitionURL    string         `json:"DefinitionURL"`
	RelatedTopics    []RelatedTopic `json:"RelatedTopics"`
}

// RelatedTopic is a topic or, when Name is set, a group of topics.
type RelatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Name     string         `json:"Name,omitempty"`
	Topics   []RelatedTopic `json:"Topics,omitempty"`
}

// Topics returns the related topics with groups expanded in place.
func (r *Response) Topics() []RelatedTopic {
	return flatten(r.RelatedTopics)
}

func flatten(topics []RelatedTopic) []RelatedTopic {
	out := make([]RelatedTopic, 0, len(topics))
	for _, topic := range topics {
		if len(topic.Topics) > 0 {
			out = append(out, flatten(topic.Topics)...)
			continue
		}
		out = append(out, topic)
	}
	return out
}

// Search asks the API about query.
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

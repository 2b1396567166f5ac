//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package openai implements model.Model on top of any OpenAI-compatible
// chat completion endpoint.
package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/model"
)

// ProviderName is the provider prefix of OpenAI model ids.
const ProviderName = "openai"

const defaultTimeout = 2 * time.Minute

// Model is a chat model served by an OpenAI-compatible API. Completions are
// requested without streaming and delivered as one final response.
type Model struct {
	client      openai.Client
	name        string
	extraFields map[string]any
}

type options struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	maxRetries  int
	extraFields map[string]any
	raw         []openaiopt.RequestOption
}

// Option configures a Model.
type Option func(*options)

// WithAPIKey sets the API key. OPENAI_API_KEY is used when it is empty.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient replaces the HTTP client. The timeout option is ignored
// when a client is given.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout bounds every completion request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxRetries sets how often the client retries transient failures.
// A negative value keeps the client default.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithOpenAIOptions appends raw openai-go request options.
func WithOpenAIOptions(raw ...openaiopt.RequestOption) Option {
	return func(o *options) { o.raw = append(o.raw, raw...) }
}

// WithExtraFields merges fields into every request body.
func WithExtraFields(fields map[string]any) Option {
	return func(o *options) {
		if o.extraFields == nil {
			o.extraFields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			o.extraFields[k] = v
		}
	}
}

// New creates a model named name.
func New(name string, opts ...Option) *Model {
	o := &options{timeout: defaultTimeout, maxRetries: -1}
	for _, opt := range opts {
		opt(o)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}
	clientOpts := []openaiopt.RequestOption{openaiopt.WithHTTPClient(httpClient)}
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	if o.maxRetries >= 0 {
		clientOpts = append(clientOpts, openaiopt.WithMaxRetries(o.maxRetries))
	}
	clientOpts = append(clientOpts, o.raw...)
	return &Model{
		client:      openai.NewClient(clientOpts...),
		name:        name,
		extraFields: o.extraFields,
	}
}

// Register makes the provider loadable from reg as "openai/<name>".
func Register(reg *model.Registry, opts ...Option) {
	reg.Register(ProviderName, func(_ context.Context, name string) (model.Model, error) {
		return New(name, opts...), nil
	})
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements model.Model. API failures are reported in
// Response.Error rather than as the returned error.
func (m *Model) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	if req == nil {
		return nil, errors.New("openai: nil request")
	}
	params := m.buildRequest(req)
	reqOpts := make([]openaiopt.RequestOption, 0, len(m.extraFields))
	for k, v := range m.extraFields {
		reqOpts = append(reqOpts, openaiopt.WithJSONSet(k, v))
	}

	out := make(chan *model.Response, 1)
	go func() {
		defer close(out)
		completion, err := m.client.Chat.Completions.New(ctx, params, reqOpts...)
		var rsp *model.Response
		if err != nil {
			log.Debugf("openai: completion for %s failed: %v", m.name, err)
			rsp = errorResponse(err)
		} else {
			rsp = fromCompletion(completion)
		}
		select {
		case out <- rsp:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func errorResponse(err error) *model.Response {
	return &model.Response{
		Object:    model.ObjectTypeError,
		Timestamp: time.Now(),
		Done:      true,
		Error: &model.ResponseError{
			Type:    model.ErrorTypeAPIError,
			Message: err.Error(),
		},
	}
}

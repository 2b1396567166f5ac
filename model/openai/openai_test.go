//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openaiopt "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/tool"
)

const completionWithToolCall = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "search", "arguments": "{\"query\":\"go\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

const completionWithText = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"query\":\"go\"}"}
  }]
}`

type searchTool struct{}

func (searchTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        "search",
		Description: "search the web",
		InputSchema: &tool.Schema{
			Type:       "object",
			Properties: map[string]*tool.Schema{"query": {Type: "string"}},
			Required:   []string{"query"},
		},
	}
}

// newServer serves body for every chat completion and records the
// decoded requests.
func newServer(t *testing.T, status int, body string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

type countingTransport struct {
	next  http.RoundTripper
	calls int
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	return c.next.RoundTrip(r)
}

func newTestModel(srv *httptest.Server, opts ...Option) *Model {
	opts = append([]Option{
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
		WithMaxRetries(0),
	}, opts...)
	return New("gpt-4o-mini", opts...)
}

func TestGenerateContentToolCalls(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK, completionWithToolCall)
	m := newTestModel(srv)

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("be brief"),
			model.NewUserMessage("find go"),
		},
		Tools: map[string]tool.Tool{"search": searchTool{}},
	})
	require.NoError(t, err)
	rsp := <-ch
	require.NotNil(t, rsp)
	require.Nil(t, rsp.Error)
	assert.True(t, rsp.Done)
	assert.True(t, rsp.IsToolCallResponse())
	call := rsp.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "search", call.Function.Name)
	assert.JSONEq(t, `{"query":"go"}`, string(call.Function.Arguments))
	require.NotNil(t, rsp.Usage)
	assert.Equal(t, 15, rsp.Usage.TotalTokens)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "gpt-4o-mini", req["model"])
	tools, ok := req["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
	msgs := req["messages"].([]any)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestGenerateContentStructuredOutput(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK, completionWithText)
	rt := &countingTransport{next: http.DefaultTransport}
	m := newTestModel(srv, WithHTTPClient(&http.Client{Transport: rt}))

	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []any{"query"},
	}
	h := model.NewHandle(m, "openai/gpt-4o-mini").WithStructuredOutput("search_query", schema)
	var out struct {
		Query string `json:"query"`
	}
	require.NoError(t, h.Invoke(context.Background(), []model.Message{model.NewUserMessage("q")}, &out))
	assert.Equal(t, "go", out.Query)
	assert.Equal(t, 1, rt.calls)

	format := (*requests)[0]["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "search_query", js["name"])
	assert.Equal(t, true, js["strict"])
}

func TestGenerateContentToolHistory(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK, completionWithText)
	m := newTestModel(srv)
	assistant := model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{
		ID:       "call_1",
		Type:     functionToolType,
		Function: model.FunctionDefinitionParam{Name: "search", Arguments: []byte(`{"query":"go"}`)},
	}}}
	ch, err := m.GenerateContent(context.Background(), &model.Request{Messages: []model.Message{
		model.NewUserMessage("find go"),
		assistant,
		model.NewToolMessage("call_1", "search", "result"),
	}})
	require.NoError(t, err)
	<-ch

	msgs := (*requests)[0]["messages"].([]any)
	require.Len(t, msgs, 3)
	calls := msgs[1].(map[string]any)["tool_calls"].([]any)
	assert.Equal(t, "call_1", calls[0].(map[string]any)["id"])
	toolMsg := msgs[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
}

func TestGenerateContentAPIError(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	m := newTestModel(srv)

	ch, err := m.GenerateContent(context.Background(), &model.Request{})
	require.NoError(t, err)
	rsp := <-ch
	require.NotNil(t, rsp.Error)
	assert.Equal(t, model.ErrorTypeAPIError, rsp.Error.Type)
	assert.Equal(t, model.ObjectTypeError, rsp.Object)

	_, err = model.NewHandle(m, "openai/gpt-4o-mini").Invoke(context.Background(), nil)
	assert.True(t, graph.IsExternalCallError(err))
}

func TestGenerateContentNilRequest(t *testing.T) {
	_, err := New("gpt").GenerateContent(context.Background(), nil)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK, completionWithText)
	reg := model.NewRegistry()
	Register(reg, WithAPIKey("k"), WithBaseURL(srv.URL), WithExtraFields(map[string]any{"user": "tester"}))

	h, err := reg.Load(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", h.ID())
	msg, err := h.Invoke(context.Background(), []model.Message{model.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, `{"query":"go"}`, msg.Content)
	assert.Equal(t, "gpt-4o", (*requests)[0]["model"])
	assert.Equal(t, "tester", (*requests)[0]["user"])
}

func TestBuildRequestGenerationConfig(t *testing.T) {
	maxTokens := 64
	temperature := 0.2
	req := New("gpt").buildRequest(&model.Request{GenerationConfig: model.GenerationConfig{
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Stop:        []string{"END", "STOP"},
	}})
	assert.Equal(t, int64(64), req.MaxCompletionTokens.Value)
	assert.Equal(t, 0.2, req.Temperature.Value)
	assert.Equal(t, "END", req.Stop.OfString.Value)
}

func TestRawOptionsApplied(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK, completionWithText)
	m := newTestModel(srv, WithOpenAIOptions(openaiopt.WithHeader("X-Trace", "1")),
		WithExtraFields(map[string]any{"seed": 7}))
	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	rsp := <-ch
	require.Nil(t, rsp.Error)
	assert.Equal(t, "chatcmpl-2", rsp.ID)
	assert.EqualValues(t, 7, (*requests)[0]["seed"])
}

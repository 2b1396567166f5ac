//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"trpc.group/trpc-go/trpc-agent-graph/graph"
	itelemetry "trpc.group/trpc-go/trpc-agent-graph/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-graph/tool"
)

// serviceModel names the model collaborator in ExternalCallError.
const serviceModel = "model"

// ErrEmptyResponse is returned when a model produces no choice.
var ErrEmptyResponse = errors.New("model returned no choices")

// Handle is a loaded model ready to be invoked. Handles are immutable:
// BindTools and the With* methods return derived handles.
type Handle struct {
	model     Model
	id        string
	tools     map[string]tool.Tool
	config    GenerationConfig
	callbacks *ModelCallbacks
}

// NewHandle wraps a model. id is the identifier reported in errors and
// traces; it defaults to the model name.
func NewHandle(m Model, id string) *Handle {
	if id == "" {
		id = m.Info().Name
	}
	return &Handle{model: m, id: id}
}

// ID returns the model identifier.
func (h *Handle) ID() string {
	return h.id
}

// Tools returns the bound tools keyed by name.
func (h *Handle) Tools() map[string]tool.Tool {
	out := make(map[string]tool.Tool, len(h.tools))
	for k, v := range h.tools {
		out[k] = v
	}
	return out
}

func (h *Handle) clone() *Handle {
	c := *h
	c.tools = h.Tools()
	return &c
}

// BindTools returns a handle whose invocations advertise tools. Subsequent
// invocations may answer with tool call requests.
func (h *Handle) BindTools(tools ...tool.Tool) *Handle {
	c := h.clone()
	for _, t := range tools {
		c.tools[t.Declaration().Name] = t
	}
	return c
}

// WithGenerationConfig returns a handle using cfg for every request.
func (h *Handle) WithGenerationConfig(cfg GenerationConfig) *Handle {
	c := h.clone()
	c.config = cfg
	return c
}

// WithCallbacks returns a handle running callbacks around every request,
// after any callbacks h already runs.
func (h *Handle) WithCallbacks(callbacks *ModelCallbacks) *Handle {
	c := h.clone()
	c.callbacks = h.callbacks.Merge(callbacks)
	return c
}

// WithStructuredOutput returns a handle whose answers are JSON objects
// conforming to schema.
func (h *Handle) WithStructuredOutput(name string, schema map[string]any) *StructuredHandle {
	return &StructuredHandle{
		handle: h.clone(),
		output: StructuredOutput{Name: name, Schema: schema, Strict: true},
	}
}

// Invoke sends the conversation to the model and returns its message.
// Communication and API failures are returned as *graph.ExternalCallError.
func (h *Handle) Invoke(ctx context.Context, messages []Message) (Message, error) {
	rsp, err := h.generate(ctx, &Request{
		Messages:         messages,
		GenerationConfig: h.config,
		Tools:            h.tools,
	})
	if err != nil {
		return Message{}, err
	}
	return rsp.Choices[0].Message, nil
}

func (h *Handle) generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewChatSpanName(h.id))
	defer span.End()

	rsp, err := h.callbacks.RunBeforeModel(ctx, req)
	if err == nil && rsp == nil {
		rsp, err = h.receive(ctx, req)
	}
	if custom, cbErr := h.callbacks.RunAfterModel(ctx, req, rsp, err); cbErr != nil {
		err = cbErr
	} else if custom != nil {
		rsp, err = custom, nil
	}
	if err == nil && len(rsp.Choices) == 0 {
		err = ErrEmptyResponse
	}
	itelemetry.TraceChat(span, h.id, req, rsp)
	if rsp != nil && rsp.Usage != nil {
		metric.RecordTokenUsage(ctx, h.id, rsp.Usage.PromptTokens, rsp.Usage.CompletionTokens)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("model %s: %v", h.id, err)
		return nil, graph.NewExternalCallError(serviceModel, h.id, err)
	}
	return rsp, nil
}

// receive drains the response channel and returns the last complete
// response.
func (h *Handle) receive(ctx context.Context, req *Request) (*Response, error) {
	ch, err := h.model.GenerateContent(ctx, req)
	if err != nil {
		return nil, err
	}
	var final *Response
	for rsp := range ch {
		if rsp == nil {
			continue
		}
		if rsp.Error != nil {
			return nil, rsp.Error
		}
		if !rsp.IsPartial {
			final = rsp
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if final == nil {
		return nil, ErrEmptyResponse
	}
	return final, nil
}

// StructuredHandle is a handle whose answers are decoded into Go values.
type StructuredHandle struct {
	handle *Handle
	output StructuredOutput
}

// Schema returns the requested JSON schema.
func (s *StructuredHandle) Schema() map[string]any {
	return s.output.Schema
}

// Invoke sends the conversation and decodes the answer into out, which must
// be a pointer. A failed call is a *graph.ExternalCallError; an answer that
// does not conform to the schema is a *SchemaViolationError.
func (s *StructuredHandle) Invoke(ctx context.Context, messages []Message, out any) error {
	output := s.output
	rsp, err := s.handle.generate(ctx, &Request{
		Messages:         messages,
		GenerationConfig: s.handle.config,
		StructuredOutput: &output,
	})
	if err != nil {
		return err
	}
	msg := rsp.Choices[0].Message
	if err := ParseStructured(msg.Content, s.output.Schema, out); err != nil {
		var sve *SchemaViolationError
		if errors.As(err, &sve) && sve.Schema == "" {
			sve.Schema = s.output.Name
		}
		log.Warnf("model %s: %v", s.handle.id, err)
		return fmt.Errorf("model %s: %w", s.handle.id, err)
	}
	return nil
}

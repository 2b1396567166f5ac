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
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/tool"
)

const functionToolType = "function"

func (m *Model) buildRequest(req *model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: toMessages(req.Messages),
		Tools:    toTools(req.Tools),
	}
	if so := req.StructuredOutput; so != nil && so.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   so.Name,
					Schema: so.Schema,
					Strict: openai.Bool(so.Strict),
				},
			},
		}
	}
	gc := req.GenerationConfig
	// o-series models reject max_tokens.
	if gc.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*gc.MaxTokens))
	}
	if gc.Temperature != nil {
		params.Temperature = openai.Float(*gc.Temperature)
	}
	if gc.TopP != nil {
		params.TopP = openai.Float(*gc.TopP)
	}
	if len(gc.Stop) > 0 {
		// Only the first stop sequence is forwarded.
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfString: openai.String(gc.Stop[0])}
	}
	return params
}

func toMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			a := &openai.ChatCompletionAssistantMessageParam{ToolCalls: toToolCalls(msg.ToolCalls)}
			if msg.Content != "" {
				a.Content.OfString = openai.String(msg.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: a})
		case model.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toToolCalls(calls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	if len(calls) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, c := range calls {
		out[i] = openai.ChatCompletionMessageToolCallParam{
			ID: c.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Function.Name,
				Arguments: string(c.Function.Arguments),
			},
		}
	}
	return out
}

// toTools skips tools whose schema cannot be expressed as JSON parameters.
func toTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	var out []openai.ChatCompletionToolParam
	for _, t := range tools {
		decl := t.Declaration()
		raw, err := json.Marshal(decl.InputSchema)
		if err != nil {
			log.Errorf("openai: tool %s: encode schema: %v", decl.Name, err)
			continue
		}
		var params shared.FunctionParameters
		if err := json.Unmarshal(raw, &params); err != nil {
			log.Errorf("openai: tool %s: decode schema: %v", decl.Name, err)
			continue
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

func fromCompletion(c *openai.ChatCompletion) *model.Response {
	rsp := &model.Response{
		ID:        c.ID,
		Object:    string(c.Object),
		Created:   c.Created,
		Model:     c.Model,
		Timestamp: time.Now(),
		Done:      true,
		Choices:   make([]model.Choice, len(c.Choices)),
	}
	for i, choice := range c.Choices {
		msg := model.Message{Role: model.RoleAssistant, Content: choice.Message.Content}
		for j, tc := range choice.Message.ToolCalls {
			id := tc.ID
			if id == "" {
				// Some compatible providers omit call ids.
				id = fmt.Sprintf("auto_call_%d", j)
			}
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID:   id,
				Type: functionToolType,
				Function: model.FunctionDefinitionParam{
					Name:      tc.Function.Name,
					Arguments: []byte(tc.Function.Arguments),
				},
			})
		}
		rsp.Choices[i] = model.Choice{Index: int(choice.Index), Message: msg}
		if choice.FinishReason != "" {
			reason := choice.FinishReason
			rsp.Choices[i].FinishReason = &reason
		}
	}
	if u := c.Usage; u.PromptTokens > 0 || u.CompletionTokens > 0 {
		rsp.Usage = &model.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		}
	}
	return rsp
}

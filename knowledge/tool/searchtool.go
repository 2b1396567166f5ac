//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package tool exposes retrieval as a tool a model can call.
package tool

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
	ctool "trpc.group/trpc-go/trpc-agent-graph/tool"
	"trpc.group/trpc-go/trpc-agent-graph/tool/function"
)

// Name is the declared name of the knowledge search tool.
const Name = "knowledge_search"

// KnowledgeSearchRequest is the argument of the knowledge search tool.
type KnowledgeSearchRequest struct {
	Query string `json:"query" jsonschema:"description=The search query to find relevant information in the knowledge base"`
}

// KnowledgeSearchResponse lists the matching documents.
type KnowledgeSearchResponse struct {
	Documents []KnowledgeSearchHit `json:"documents,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// KnowledgeSearchHit is one matching document.
type KnowledgeSearchHit struct {
	ID      string  `json:"id,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// NewKnowledgeSearchTool returns a tool searching the retriever configured by
// cfg. A retriever is built per call so config changes between runs apply.
func NewKnowledgeSearchTool(cfg *config.Config, opts ...retriever.Option) ctool.CallableTool {
	searchFunc := func(ctx context.Context, req *KnowledgeSearchRequest) (*KnowledgeSearchResponse, error) {
		if req == nil || req.Query == "" {
			return nil, errors.New("query cannot be empty")
		}
		r, err := retriever.MakeRetriever(ctx, cfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		defer r.Close()

		res, err := r.Retrieve(ctx, retriever.NewQuery(cfg, req.Query))
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		rsp := &KnowledgeSearchResponse{}
		for _, rd := range res.Documents {
			if rd == nil || rd.Document == nil {
				continue
			}
			rsp.Documents = append(rsp.Documents, KnowledgeSearchHit{
				ID:      rd.Document.ID,
				Content: rd.Document.Content,
				Score:   rd.Score,
			})
		}
		if len(rsp.Documents) == 0 {
			rsp.Message = "No relevant information found"
			return rsp, nil
		}
		rsp.Message = fmt.Sprintf("Found %d relevant documents (top score: %.2f)",
			len(rsp.Documents), rsp.Documents[0].Score)
		return rsp, nil
	}

	return function.NewFunctionTool(
		searchFunc,
		function.WithName(Name),
		function.WithDescription("Search for relevant information in the knowledge base. "+
			"Use this tool to find context and facts to help answer user questions."),
	)
}

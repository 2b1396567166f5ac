//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package retrieval builds the retrieval graph: formulate a search query,
// retrieve matching documents and answer from them.
package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"trpc.group/trpc-go/trpc-agent-graph/agent"
	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	itelemetry "trpc.group/trpc-go/trpc-agent-graph/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/trace"

	// Register the retriever providers selectable by configuration.
	_ "trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever/elasticsearch"
	_ "trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever/inmemory"
)

// Graph and node identifiers.
const (
	GraphName         = "Retrieval Graph"
	NodeGenerateQuery = "generateQuery"
	NodeRetrieve      = "retrieve"
	NodeRespond       = "respond"
)

const serviceRetriever = "retriever"

// SearchQueryName names the structured output of the query model.
const SearchQueryName = "search_query"

// ErrNoQuery is returned when the retrieve node runs before any query was
// generated.
var ErrNoQuery = errors.New("no search query")

// searchQuerySchema constrains the query model to {"query": string}.
var searchQuerySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Search the indexed documents for a query.",
		},
	},
	"required":             []any{"query"},
	"additionalProperties": false,
}

// SearchQuery is the structured answer of the query model.
type SearchQuery struct {
	Query string `json:"query"`
}

// QueryNode appends a search query to the state. The first human turn is
// used verbatim; later turns ask cfg.QueryModel to formulate one.
// QueryModel and ResponseModel share the default config.DefaultModel, so a
// config that sets neither formulates queries with the response model.
type QueryNode struct {
	registry  *model.Registry
	callbacks *model.ModelCallbacks
	now       func() time.Time
}

// Execute implements graph.Node.
func (n *QueryNode) Execute(ctx context.Context, state graph.State, cfg *config.Config) (graph.State, error) {
	msgs := agent.Messages(state)
	if len(msgs) == 1 {
		return graph.State{agent.StateKeyQueries: []string{msgs[0].Content}}, nil
	}
	h, err := n.registry.Load(ctx, cfg.QueryModel)
	if err != nil {
		return nil, err
	}
	if n.callbacks != nil {
		h = h.WithCallbacks(n.callbacks)
	}
	system := config.FormatTemplate(cfg.QuerySystemPromptTemplate, map[string]string{
		config.PlaceholderQueries:    strings.Join(agent.Queries(state), "\n- "),
		config.PlaceholderSystemTime: config.SystemTime(n.now()),
	})
	var out SearchQuery
	err = h.WithStructuredOutput(SearchQueryName, searchQuerySchema).
		Invoke(ctx, append([]model.Message{model.NewSystemMessage(system)}, msgs...), &out)
	if err != nil {
		return nil, err
	}
	log.Debugf("generated search query %q", out.Query)
	return graph.State{agent.StateKeyQueries: []string{out.Query}}, nil
}

// RetrieveNode searches with the latest query and replaces the retrieved
// documents with the result.
type RetrieveNode struct {
	opts []retriever.Option
}

// Execute implements graph.Node.
func (n *RetrieveNode) Execute(ctx context.Context, state graph.State, cfg *config.Config) (graph.State, error) {
	queries := agent.Queries(state)
	if len(queries) == 0 {
		return nil, ErrNoQuery
	}
	query := queries[len(queries)-1]

	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNamePrefixRetrieve)
	defer span.End()
	span.SetAttributes(
		attribute.String("retriever.provider", cfg.RetrieverProvider),
		attribute.String("retriever.query", query),
	)

	docs, err := n.retrieve(ctx, cfg, query)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("retriever.documents", len(docs)))
	return graph.State{agent.StateKeyRetrievedDocs: docs}, nil
}

func (n *RetrieveNode) retrieve(ctx context.Context, cfg *config.Config, query string) ([]*document.Document, error) {
	r, err := retriever.MakeRetriever(ctx, cfg, n.opts...)
	if err != nil {
		if errors.Is(err, retriever.ErrUnknownProvider) {
			return nil, err
		}
		return nil, graph.NewExternalCallError(serviceRetriever, cfg.RetrieverProvider, err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warnf("close retriever: %v", err)
		}
	}()
	res, err := r.Retrieve(ctx, retriever.NewQuery(cfg, query))
	if err != nil {
		return nil, graph.NewExternalCallError(serviceRetriever, cfg.RetrieverProvider, err)
	}
	docs := res.Docs()
	if docs == nil {
		docs = []*document.Document{}
	}
	return docs, nil
}

// RespondNode answers the conversation from the retrieved documents with
// cfg.ResponseModel.
type RespondNode struct {
	registry  *model.Registry
	callbacks *model.ModelCallbacks
	now       func() time.Time
}

// Execute implements graph.Node.
func (n *RespondNode) Execute(ctx context.Context, state graph.State, cfg *config.Config) (graph.State, error) {
	h, err := n.registry.Load(ctx, cfg.ResponseModel)
	if err != nil {
		return nil, err
	}
	if n.callbacks != nil {
		h = h.WithCallbacks(n.callbacks)
	}
	system := config.FormatTemplate(cfg.ResponseSystemPromptTemplate, map[string]string{
		config.PlaceholderRetrievedDocs: document.FormatDocs(agent.RetrievedDocs(state)),
		config.PlaceholderSystemTime:    config.SystemTime(n.now()),
	})
	reply, err := h.Invoke(ctx, append([]model.Message{model.NewSystemMessage(system)}, agent.Messages(state)...))
	if err != nil {
		return nil, err
	}
	return graph.State{agent.StateKeyMessages: []model.Message{reply}}, nil
}

type options struct {
	registry       *model.Registry
	modelCallbacks *model.ModelCallbacks
	nodeCallbacks  *graph.NodeCallbacks
	retrieverOpts  []retriever.Option
	now            func() time.Time
}

// Option configures NewGraph.
type Option func(*options)

// WithRegistry sets the model registry. model.DefaultRegistry is used
// otherwise.
func WithRegistry(r *model.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithModelCallbacks sets callbacks run around every model request.
func WithModelCallbacks(cb *model.ModelCallbacks) Option {
	return func(o *options) { o.modelCallbacks = cb }
}

// WithNodeCallbacks sets graph node callbacks.
func WithNodeCallbacks(cb *graph.NodeCallbacks) Option {
	return func(o *options) { o.nodeCallbacks = cb }
}

// WithRetrieverOptions passes options to every retriever the graph builds,
// for example seeded documents or an embedder.
func WithRetrieverOptions(opts ...retriever.Option) Option {
	return func(o *options) { o.retrieverOpts = append(o.retrieverOpts, opts...) }
}

// WithClock sets the clock used for the {system_time} placeholder.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewGraph compiles the retrieval graph with the interrupt points of cfg.
func NewGraph(cfg *config.Config, opts ...Option) (*graph.Executable[*config.Config], error) {
	o := &options{registry: model.DefaultRegistry, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	sg := graph.NewStateGraph[*config.Config](agent.RetrievalSchema()).
		AddNode(NodeGenerateQuery,
			&QueryNode{registry: o.registry, callbacks: o.modelCallbacks, now: o.now},
			graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("formulates a search query")).
		AddNode(NodeRetrieve,
			&RetrieveNode{opts: o.retrieverOpts},
			graph.WithNodeType(graph.NodeTypeRetriever),
			graph.WithDescription("retrieves documents for the latest query")).
		AddNode(NodeRespond,
			&RespondNode{registry: o.registry, callbacks: o.modelCallbacks, now: o.now},
			graph.WithNodeType(graph.NodeTypeLLM),
			graph.WithDescription("answers from the retrieved documents")).
		SetEntryPoint(NodeGenerateQuery).
		AddEdge(NodeGenerateQuery, NodeRetrieve).
		AddEdge(NodeRetrieve, NodeRespond).
		SetFinishPoint(NodeRespond)

	copts := []graph.CompileOption{
		graph.WithGraphName(GraphName),
		graph.WithInterruptBefore(cfg.InterruptBefore...),
		graph.WithInterruptAfter(cfg.InterruptAfter...),
	}
	if o.nodeCallbacks != nil {
		copts = append(copts, graph.WithNodeCallbacks(o.nodeCallbacks))
	}
	return sg.Compile(copts...)
}

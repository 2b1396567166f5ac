//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-graph/agent"
	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
	"trpc.group/trpc-go/trpc-agent-graph/model"
)

const brokenProvider = "broken-for-retrieval-test"

func init() {
	retriever.Register(brokenProvider, func(context.Context, *config.Config, retriever.Options) (retriever.Retriever, error) {
		return nil, errors.New("connection refused")
	})
}

type scripted struct {
	mu       sync.Mutex
	replies  []string
	requests []*model.Request
}

func (s *scripted) GenerateContent(_ context.Context, req *model.Request) (<-chan *model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	content := s.replies[0]
	s.replies = s.replies[1:]
	ch := make(chan *model.Response, 1)
	ch <- &model.Response{Choices: []model.Choice{{Message: model.NewAssistantMessage(content)}}, Done: true}
	close(ch)
	return ch, nil
}

func (s *scripted) Info() model.Info { return model.Info{Name: "scripted"} }

func registryWith(m model.Model) *model.Registry {
	r := model.NewRegistry()
	r.Register("fake", func(context.Context, string) (model.Model, error) { return m, nil })
	return r
}

var fixed = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixed }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.QueryModel = "fake/query"
	cfg.ResponseModel = "fake/response"
	cfg.QuerySystemPromptTemplate = "Previous:\n- {queries}\nAt {system_time}"
	cfg.ResponseSystemPromptTemplate = "Docs:\n{retrieved_docs}\nAt {systemTime}"
	return cfg
}

func corpus() []*document.Document {
	return []*document.Document{
		{ID: "go", Content: "A goroutine is a lightweight thread managed by the Go runtime."},
		{ID: "py", Content: "Python uses a global interpreter lock."},
		{ID: "fruit", Content: "Bananas are yellow."},
	}
}

func TestRetrievalGraphFirstTurn(t *testing.T) {
	m := &scripted{replies: []string{"A goroutine is a lightweight thread."}}
	cfg := testConfig()
	g, err := NewGraph(cfg, WithRegistry(registryWith(m)), WithClock(clock),
		WithRetrieverOptions(retriever.WithDocuments(corpus()...)))
	require.NoError(t, err)
	assert.Equal(t, GraphName, g.Name())

	res, err := g.Run(context.Background(), agent.Input("What is a goroutine?"), cfg)
	require.NoError(t, err)
	assert.Equal(t, graph.RunCompleted, res.Status)
	assert.Equal(t, 3, res.Steps)

	assert.Equal(t, []string{"What is a goroutine?"}, agent.Queries(res.State))
	docs := agent.RetrievedDocs(res.State)
	require.Len(t, docs, 2)
	assert.Equal(t, "go", docs[0].ID)
	assert.Equal(t, 0.75, docs[0].Metadata[retriever.MetaScore])
	assert.Equal(t, "py", docs[1].ID)

	msgs := agent.Messages(res.State)
	require.Len(t, msgs, 2)
	assert.Equal(t, "A goroutine is a lightweight thread.", msgs[1].Content)

	// only the respond node calls a model on the first turn
	require.Len(t, m.requests, 1)
	system := m.requests[0].Messages[0]
	assert.Equal(t, model.RoleSystem, system.Role)
	assert.Contains(t, system.Content, `<document id="go" score="0.75">`)
	assert.Contains(t, system.Content, "At 2025-03-01T12:00:00.000Z")
	assert.Nil(t, m.requests[0].StructuredOutput)
}

func TestQueryNodeSingleMessage(t *testing.T) {
	m := &scripted{}
	n := &QueryNode{registry: registryWith(m), now: clock}
	update, err := n.Execute(context.Background(), agent.Input("What is 2+2?"), testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"What is 2+2?"}, update[agent.StateKeyQueries])
	assert.Empty(t, m.requests)
}

func TestQueryNodeFollowUp(t *testing.T) {
	m := &scripted{replies: []string{"```json\n{\"query\": \"goroutine scheduling\"}\n```"}}
	n := &QueryNode{registry: registryWith(m), now: clock}
	state := graph.State{
		agent.StateKeyMessages: []model.Message{
			model.NewUserMessage("What is a goroutine?"),
			model.NewAssistantMessage("A lightweight thread."),
			model.NewUserMessage("How are they scheduled?"),
		},
		agent.StateKeyQueries: []string{"What is a goroutine?", "go threads"},
	}
	update, err := n.Execute(context.Background(), state, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"goroutine scheduling"}, update[agent.StateKeyQueries])

	require.Len(t, m.requests, 1)
	req := m.requests[0]
	require.NotNil(t, req.StructuredOutput)
	assert.Equal(t, SearchQueryName, req.StructuredOutput.Name)
	require.Len(t, req.Messages, 4)
	assert.Equal(t,
		"Previous:\n- What is a goroutine?\n- go threads\nAt 2025-03-01T12:00:00.000Z",
		req.Messages[0].Content)
}

func TestQueryNodeSchemaViolation(t *testing.T) {
	m := &scripted{replies: []string{`{"q": "missing"}`}}
	n := &QueryNode{registry: registryWith(m), now: clock}
	state := graph.State{agent.StateKeyMessages: []model.Message{
		model.NewUserMessage("a"), model.NewAssistantMessage("b"), model.NewUserMessage("c"),
	}}
	_, err := n.Execute(context.Background(), state, testConfig())
	var sve *model.SchemaViolationError
	require.ErrorAs(t, err, &sve)
	assert.Equal(t, SearchQueryName, sve.Schema)
}

func TestRetrieveNodeUsesLatestQuery(t *testing.T) {
	n := &RetrieveNode{opts: []retriever.Option{retriever.WithDocuments(corpus()...)}}
	state := graph.State{
		agent.StateKeyQueries:       []string{"goroutine", "bananas"},
		agent.StateKeyRetrievedDocs: []*document.Document{{ID: "stale"}},
	}
	update, err := n.Execute(context.Background(), state, testConfig())
	require.NoError(t, err)
	docs := update[agent.StateKeyRetrievedDocs].([]*document.Document)
	require.Len(t, docs, 1)
	assert.Equal(t, "fruit", docs[0].ID)
}

func TestRetrieveNodeNoMatches(t *testing.T) {
	n := &RetrieveNode{opts: []retriever.Option{retriever.WithDocuments(corpus()...)}}
	state := graph.State{agent.StateKeyQueries: []string{"kubernetes"}}
	update, err := n.Execute(context.Background(), state, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []*document.Document{}, update[agent.StateKeyRetrievedDocs])
}

func TestRetrieveNodeErrors(t *testing.T) {
	ctx := context.Background()
	n := &RetrieveNode{}

	_, err := n.Execute(ctx, graph.State{}, testConfig())
	assert.ErrorIs(t, err, ErrNoQuery)

	state := graph.State{agent.StateKeyQueries: []string{"q"}}
	cfg := testConfig()
	cfg.RetrieverProvider = "nowhere"
	_, err = n.Execute(ctx, state, cfg)
	assert.ErrorIs(t, err, retriever.ErrUnknownProvider)
	assert.False(t, graph.IsExternalCallError(err))

	cfg.RetrieverProvider = brokenProvider
	_, err = n.Execute(ctx, state, cfg)
	var ece *graph.ExternalCallError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, "retriever", ece.Service)
	assert.Equal(t, brokenProvider, ece.Op)
}

func TestRetrievalGraphRetrieverFailure(t *testing.T) {
	m := &scripted{}
	cfg := testConfig()
	cfg.RetrieverProvider = brokenProvider
	g, err := NewGraph(cfg, WithRegistry(registryWith(m)))
	require.NoError(t, err)

	res, err := g.Run(context.Background(), agent.Input("hello"), cfg)
	require.True(t, graph.IsExternalCallError(err))
	require.NotNil(t, res)
	assert.Equal(t, graph.RunFailed, res.Status)
	assert.Equal(t, NodeRetrieve, res.NodeID)
	assert.Equal(t, []string{"hello"}, agent.Queries(res.State))
	assert.Empty(t, m.requests)
}

func TestRetrievalGraphInterruptAfterRetrieve(t *testing.T) {
	m := &scripted{replies: []string{"answer"}}
	cfg := testConfig()
	cfg.InterruptAfter = []string{NodeRetrieve}
	g, err := NewGraph(cfg, WithRegistry(registryWith(m)), WithClock(clock),
		WithRetrieverOptions(retriever.WithDocuments(corpus()...)))
	require.NoError(t, err)

	res, err := g.Run(context.Background(), agent.Input("goroutine"), cfg)
	require.NoError(t, err)
	require.Equal(t, graph.RunSuspended, res.Status)
	assert.Len(t, agent.RetrievedDocs(res.State), 1)
	assert.Empty(t, m.requests)

	// a reviewer drops the retrieved documents before answering
	res, err = g.Resume(context.Background(), res.Token, cfg,
		graph.WithStatePatch(graph.State{agent.StateKeyRetrievedDocs: []*document.Document{}}))
	require.NoError(t, err)
	assert.Equal(t, graph.RunCompleted, res.Status)
	require.Len(t, m.requests, 1)
	assert.Contains(t, m.requests[0].Messages[0].Content, "<documents></documents>")
}

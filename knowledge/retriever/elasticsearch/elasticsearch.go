//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package elasticsearch implements a retriever backed by an Elasticsearch
// index. Text queries use BM25 over name and content; with an embedder
// configured documents are ranked by cosine similarity instead.
package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v9/typedapi/esdsl"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types/enums/densevectorsimilarity"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types/enums/dynamicmapping"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types/enums/textquerytype"

	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/document"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/embedder"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	storage "trpc.group/trpc-go/trpc-agent-graph/storage/elasticsearch"
)

// Index field names.
const (
	fieldID        = "id"
	fieldName      = "name"
	fieldContent   = "content"
	fieldUserID    = "user_id"
	fieldMetadata  = "metadata"
	fieldCreatedAt = "created_at"
	fieldEmbedding = "embedding"
)

func init() {
	retriever.Register(config.ProviderElasticsearch, factory)
}

func factory(ctx context.Context, cfg *config.Config, opts retriever.Options) (retriever.Retriever, error) {
	es := cfg.Elasticsearch
	c, err := storage.NewClient(storage.Config{
		Addresses: es.Addresses,
		Username:  es.Username,
		Password:  es.Password,
		APIKey:    es.APIKey,
	})
	if err != nil {
		return nil, err
	}
	r := New(c, es.Index, opts.Embedder)
	if len(opts.Documents) > 0 {
		if err := r.Ingest(ctx, opts.Documents); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Retriever searches one index.
type Retriever struct {
	client   storage.Client
	index    string
	embedder embedder.Embedder
}

var _ retriever.Retriever = (*Retriever)(nil)

// New creates a retriever over index. An empty index selects
// config.DefaultIndex. emb may be nil.
func New(c storage.Client, index string, emb embedder.Embedder) *Retriever {
	if index == "" {
		index = config.DefaultIndex
	}
	return &Retriever{client: c, index: index, embedder: emb}
}

// source is the stored form of a document.
type source struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Content   string         `json:"content"`
	UserID    string         `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Embedding []float64      `json:"embedding,omitempty"`
}

type indexCreateBody struct {
	Mappings *types.TypeMapping   `json:"mappings,omitempty"`
	Settings *types.IndexSettings `json:"settings,omitempty"`
}

// EnsureIndex creates the index when it does not exist.
func (r *Retriever) EnsureIndex(ctx context.Context) error {
	ok, err := r.client.IndexExists(ctx, r.index)
	if err != nil || ok {
		return err
	}
	log.Infof("creating elasticsearch index %s", r.index)
	return r.client.CreateIndex(ctx, r.index, r.indexBody())
}

func (r *Retriever) indexBody() *indexCreateBody {
	tm := types.NewTypeMapping()
	tm.Properties = map[string]types.Property{
		fieldID:        types.NewKeywordProperty(),
		fieldName:      types.NewTextProperty(),
		fieldContent:   types.NewTextProperty(),
		fieldUserID:    types.NewKeywordProperty(),
		fieldCreatedAt: types.NewDateProperty(),
	}
	meta := types.NewObjectProperty()
	dm := dynamicmapping.True
	meta.Dynamic = &dm
	tm.Properties[fieldMetadata] = meta
	if r.embedder != nil && r.embedder.GetDimensions() > 0 {
		dv := types.NewDenseVectorProperty()
		dims := r.embedder.GetDimensions()
		dv.Dims = &dims
		indexed := true
		dv.Index = &indexed
		sim := densevectorsimilarity.Cosine
		dv.Similarity = &sim
		tm.Properties[fieldEmbedding] = dv
	}
	is := types.NewIndexSettings()
	shards, replicas := "1", "0"
	is.NumberOfShards = &shards
	is.NumberOfReplicas = &replicas
	return &indexCreateBody{Mappings: tm, Settings: is}
}

// Ingest creates the index if needed and indexes docs, embedding them
// first when an embedder is set. Documents are keyed by id so ingesting
// twice overwrites.
func (r *Retriever) Ingest(ctx context.Context, docs []*document.Document) error {
	if err := r.EnsureIndex(ctx); err != nil {
		return err
	}
	var kept []*document.Document
	for _, d := range docs {
		if !d.IsEmpty() {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	var vecs [][]float64
	if r.embedder != nil {
		texts := make([]string, len(kept))
		for i, d := range kept {
			texts[i] = d.Content
		}
		var err error
		if vecs, err = r.embedder.GetEmbeddings(ctx, texts); err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
	}
	bulk := make([]storage.BulkDocument, len(kept))
	for i, d := range kept {
		src := toSource(d)
		if i < len(vecs) {
			src.Embedding = vecs[i]
		}
		bulk[i] = storage.BulkDocument{ID: src.ID, Document: src}
	}
	if err := r.client.BulkIndex(ctx, r.index, bulk); err != nil {
		return err
	}
	log.Infof("indexed %d documents into %s", len(bulk), r.index)
	return nil
}

func toSource(d *document.Document) *source {
	src := &source{
		ID:        d.ID,
		Name:      d.Name,
		Content:   d.Content,
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
	}
	if src.ID == "" {
		src.ID = document.New(d.Name, d.Content).ID
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	if owner, ok := d.Metadata[retriever.MetaUserID].(string); ok {
		src.UserID = owner
	}
	return src
}

// Retrieve implements retriever.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, q *retriever.Query) (*retriever.Result, error) {
	if q == nil {
		return nil, errors.New("elasticsearch: nil query")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = config.DefaultSearchK
	}
	var (
		body   *types.SearchRequestBody
		vector bool
	)
	if r.embedder != nil {
		vec, err := r.embedder.GetEmbedding(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		b, err := vectorQuery(vec, q.UserID, limit)
		if err != nil {
			return nil, err
		}
		body, vector = b, true
	} else {
		body = keywordQuery(q.Text, q.UserID, limit)
	}
	raw, err := r.client.Search(ctx, r.index, body)
	if err != nil {
		return nil, err
	}
	return parseHits(raw, vector, q.MinScore)
}

// Close implements retriever.Retriever.
func (r *Retriever) Close() error { return r.client.Close() }

// userFilter keeps documents owned by userID and documents with no owner.
func userFilter(userID string) *types.Query {
	if userID == "" {
		return nil
	}
	return &types.Query{Bool: &types.BoolQuery{
		Should: []types.Query{
			{Term: map[string]types.TermQuery{fieldUserID: {Value: userID}}},
			{Bool: &types.BoolQuery{MustNot: []types.Query{{Exists: &types.ExistsQuery{Field: fieldUserID}}}}},
		},
		MinimumShouldMatch: 1,
	}}
}

func keywordQuery(text, userID string, limit int) *types.SearchRequestBody {
	match := esdsl.NewMultiMatchQuery(text).
		Fields(fieldContent+"^2", fieldName+"^1.5").
		Type(textquerytype.Bestfields)
	q := &types.Query{Bool: &types.BoolQuery{Must: []types.Query{*match.QueryCaster()}}}
	if f := userFilter(userID); f != nil {
		q.Bool.Filter = []types.Query{*f}
	}
	return esdsl.NewSearchRequestBody().Query(q).Size(limit).SearchRequestBodyCaster()
}

func vectorQuery(vec []float64, userID string, limit int) (*types.SearchRequestBody, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("elasticsearch: %w", embedder.ErrEmptyEmbedding)
	}
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return nil, err
	}
	// Shifted by one so scores stay non-negative; parseHits maps back to [0, 1].
	src := fmt.Sprintf("if (doc['%s'].size() > 0) { cosineSimilarity(params.query_vector, '%s') + 1.0 } else { 0.0 }",
		fieldEmbedding, fieldEmbedding)
	script := esdsl.NewScript().
		Source(esdsl.NewScriptSource().String(src)).
		AddParam("query_vector", json.RawMessage(vecJSON))
	base := &types.Query{MatchAll: types.NewMatchAllQuery()}
	if f := userFilter(userID); f != nil {
		base = &types.Query{Bool: &types.BoolQuery{Filter: []types.Query{*f}}}
	}
	return esdsl.NewSearchRequestBody().
		Query(esdsl.NewScriptScoreQuery(base, script)).
		Size(limit).
		SearchRequestBodyCaster(), nil
}

// parseHits converts a search response. BM25 scores are divided by the top
// score; vector scores are mapped from [0, 2] to [0, 1].
func parseHits(raw []byte, vector bool, minScore float64) (*retriever.Result, error) {
	var resp search.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("elasticsearch: decode search response: %w", err)
	}
	var top float64
	for _, h := range resp.Hits.Hits {
		if h.Score_ != nil && float64(*h.Score_) > top {
			top = float64(*h.Score_)
		}
	}
	res := &retriever.Result{}
	for _, h := range resp.Hits.Hits {
		if h.Score_ == nil || len(h.Source_) == 0 {
			continue
		}
		score := float64(*h.Score_)
		if vector {
			score /= 2
		} else if top > 0 {
			score /= top
		}
		if score <= 0 || score < minScore {
			continue
		}
		var src source
		if err := json.Unmarshal(h.Source_, &src); err != nil {
			log.Errorf("elasticsearch: skip malformed hit: %v", err)
			continue
		}
		meta := src.Metadata
		if src.UserID != "" {
			if meta == nil {
				meta = make(map[string]any, 1)
			}
			meta[retriever.MetaUserID] = src.UserID
		}
		res.Documents = append(res.Documents, &retriever.RelevantDocument{
			Document: &document.Document{
				ID:        src.ID,
				Name:      src.Name,
				Content:   src.Content,
				Metadata:  meta,
				CreatedAt: src.CreatedAt,
			},
			Score: score,
		})
	}
	return res, nil
}

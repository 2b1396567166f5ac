//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package elasticsearch wraps the go-elasticsearch client with the few
// index and search calls the retriever needs.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
)

// Config holds client connection settings.
type Config struct {
	// Addresses is a list of node URLs.
	Addresses []string
	// Username is the basic auth user.
	Username string
	// Password is the basic auth password.
	Password string
	// APIKey is used instead of basic auth when set.
	APIKey string
	// MaxRetries bounds transport level retries.
	MaxRetries int
	// Transport replaces the default HTTP transport.
	Transport http.RoundTripper
}

// Client is the subset of Elasticsearch operations used by this module.
type Client interface {
	// Ping checks that the cluster is reachable.
	Ping(ctx context.Context) error
	// IndexExists reports whether index exists.
	IndexExists(ctx context.Context, index string) (bool, error)
	// CreateIndex creates index with a JSON encodable settings and mappings body.
	CreateIndex(ctx context.Context, index string, body any) error
	// BulkIndex indexes docs and makes them searchable before returning.
	BulkIndex(ctx context.Context, index string, docs []BulkDocument) error
	// Search runs a JSON encodable request against index and returns the
	// raw response body.
	Search(ctx context.Context, index string, query any) ([]byte, error)
	// Close releases client resources.
	Close() error
}

// BulkDocument is one document of a bulk index request.
type BulkDocument struct {
	ID       string
	Document any
}

type bulkMeta struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

type client struct {
	es *elasticsearch.Client
}

// NewClient creates a Client.
func NewClient(cfg Config) (Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("elasticsearch: no addresses configured")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		APIKey:     cfg.APIKey,
		MaxRetries: cfg.MaxRetries,
		Transport:  cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}
	return &client{es: es}, nil
}

// Ping implements Client.
func (c *client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

// IndexExists implements Client.
func (c *client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("elasticsearch index exists: %w", err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("elasticsearch index exists: %s", res.Status())
	}
}

// CreateIndex implements Client.
func (c *client) CreateIndex(ctx context.Context, index string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	res, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch create index: %s: %s", res.Status(), readBody(res.Body))
	}
	return nil
}

// BulkIndex implements Client.
func (c *client) BulkIndex(ctx context.Context, index string, docs []BulkDocument) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		if err := enc.Encode(bulkMeta{Index: bulkTarget{Index: index, ID: d.ID}}); err != nil {
			return err
		}
		if err := enc.Encode(d.Document); err != nil {
			return err
		}
	}
	res, err := c.es.Bulk(&buf,
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk: %s: %s", res.Status(), readBody(res.Body))
	}
	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}
	if !out.Errors {
		return nil
	}
	for _, item := range out.Items {
		for _, r := range item {
			if r.Error != nil {
				return fmt.Errorf("elasticsearch bulk: document %s: %s: %s", r.ID, r.Error.Type, r.Error.Reason)
			}
		}
	}
	return errors.New("elasticsearch bulk: request reported errors")
}

// Search implements Client.
func (c *client) Search(ctx context.Context, index string, query any) ([]byte, error) {
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: read body: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search: %s: %s", res.Status(), body)
	}
	return body, nil
}

// Close implements Client.
func (c *client) Close() error { return nil }

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	return string(b)
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
// Package config resolves the read-only configuration shared by the nodes
// of a run.
//
// Values are layered: built-in defaults, an optional YAML file, a .env file
// and the process environment, then caller overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Retriever providers.
const (
	ProviderInMemory      = "inmemory"
	ProviderElasticsearch = "elasticsearch"
)

// Defaults.
const (
	DefaultModel            = "openai/gpt-4o-mini"
	DefaultSearchK          = 4
	DefaultMaxSearchResults = 10
	DefaultRecursionLimit   = 25
	DefaultToolParallelism  = 4
	DefaultIndex            = "agent_documents"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// SearchKwargs tunes retrieval.
type SearchKwargs struct {
	// K is the number of documents to retrieve.
	K int `yaml:"k" json:"k"`
	// MinScore drops documents scoring below it.
	MinScore float64 `yaml:"min_score" json:"min_score"`
}

// OpenAI holds the credentials of the OpenAI compatible endpoint.
type OpenAI struct {
	APIKey  string `yaml:"api_key" json:"-"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
}

// Google holds the credentials of the Gemini API, used by "google/" embedding models.
type Google struct {
	APIKey  string `yaml:"api_key" json:"-"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
}

// Elasticsearch holds the connection settings of the elasticsearch retriever.
type Elasticsearch struct {
	Addresses []string `yaml:"addresses" json:"addresses,omitempty"`
	Username  string   `yaml:"username" json:"username,omitempty"`
	Password  string   `yaml:"password" json:"-"`
	APIKey    string   `yaml:"api_key" json:"-"`
	Index     string   `yaml:"index" json:"index,omitempty"`
}

// Config is the configuration of a run. Nodes receive it by pointer and
// must not modify it.
type Config struct {
	// Model is the "provider/name" id of the reason-act model.
	Model string `yaml:"model" json:"model"`
	// QueryModel formulates retrieval queries.
	QueryModel string `yaml:"query_model" json:"query_model"`
	// ResponseModel answers from retrieved documents.
	ResponseModel string `yaml:"response_model" json:"response_model"`

	SystemPromptTemplate         string `yaml:"system_prompt_template" json:"system_prompt_template"`
	QuerySystemPromptTemplate    string `yaml:"query_system_prompt_template" json:"query_system_prompt_template"`
	ResponseSystemPromptTemplate string `yaml:"response_system_prompt_template" json:"response_system_prompt_template"`

	// RetrieverProvider is one of ProviderInMemory or ProviderElasticsearch.
	RetrieverProvider string `yaml:"retriever_provider" json:"retriever_provider"`
	// EmbeddingModel enables vector scoring when set, for example
	// "openai/text-embedding-3-small" or "google/gemini-embedding-001".
	EmbeddingModel string       `yaml:"embedding_model" json:"embedding_model,omitempty"`
	SearchKwargs   SearchKwargs `yaml:"search_kwargs" json:"search_kwargs"`
	// UserID scopes retrieval to the documents of one user.
	UserID string `yaml:"user_id" json:"user_id,omitempty"`
	// Corpus lists files seeding the in-memory retriever.
	Corpus []string `yaml:"corpus" json:"corpus,omitempty"`

	// MaxSearchResults bounds the results of the search tool.
	MaxSearchResults int `yaml:"max_search_results" json:"max_search_results"`
	// RecursionLimit bounds the node executions of one run.
	RecursionLimit int `yaml:"recursion_limit" json:"recursion_limit"`
	// ToolParallelism bounds the tool calls executed concurrently.
	ToolParallelism int `yaml:"tool_parallelism" json:"tool_parallelism"`

	InterruptBefore []string `yaml:"interrupt_before" json:"interrupt_before,omitempty"`
	InterruptAfter  []string `yaml:"interrupt_after" json:"interrupt_after,omitempty"`

	OpenAI        OpenAI        `yaml:"openai" json:"openai"`
	Google        Google        `yaml:"google" json:"google"`
	Elasticsearch Elasticsearch `yaml:"elasticsearch" json:"elasticsearch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:                        DefaultModel,
		QueryModel:                   DefaultModel,
		ResponseModel:                DefaultModel,
		SystemPromptTemplate:         SystemPrompt,
		QuerySystemPromptTemplate:    QuerySystemPrompt,
		ResponseSystemPromptTemplate: ResponseSystemPrompt,
		RetrieverProvider:            ProviderInMemory,
		SearchKwargs:                 SearchKwargs{K: DefaultSearchK},
		MaxSearchResults:             DefaultMaxSearchResults,
		RecursionLimit:               DefaultRecursionLimit,
		ToolParallelism:              DefaultToolParallelism,
		Elasticsearch:                Elasticsearch{Index: DefaultIndex},
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Corpus = append([]string(nil), c.Corpus...)
	out.InterruptBefore = append([]string(nil), c.InterruptBefore...)
	out.InterruptAfter = append([]string(nil), c.InterruptAfter...)
	out.Elasticsearch.Addresses = append([]string(nil), c.Elasticsearch.Addresses...)
	return &out
}

// Override changes a configuration after loading.
type Override func(*Config)

// WithModel sets the reason-act model.
func WithModel(id string) Override {
	return func(c *Config) { c.Model = id }
}

// WithQueryModel sets the query formulation model.
func WithQueryModel(id string) Override {
	return func(c *Config) { c.QueryModel = id }
}

// WithResponseModel sets the answering model of the retrieval graph.
func WithResponseModel(id string) Override {
	return func(c *Config) { c.ResponseModel = id }
}

// WithRetrieverProvider selects the retriever.
func WithRetrieverProvider(provider string) Override {
	return func(c *Config) { c.RetrieverProvider = provider }
}

// WithUserID scopes retrieval to a user.
func WithUserID(id string) Override {
	return func(c *Config) { c.UserID = id }
}

// WithRecursionLimit bounds node executions per run.
func WithRecursionLimit(n int) Override {
	return func(c *Config) { c.RecursionLimit = n }
}

// WithInterruptBefore sets the nodes to suspend before.
func WithInterruptBefore(ids ...string) Override {
	return func(c *Config) { c.InterruptBefore = ids }
}

// WithInterruptAfter sets the nodes to suspend after.
func WithInterruptAfter(ids ...string) Override {
	return func(c *Config) { c.InterruptAfter = ids }
}

// Apply returns a copy of c with overrides applied.
func (c *Config) Apply(overrides ...Override) *Config {
	out := c.Clone()
	for _, o := range overrides {
		o(out)
	}
	return out
}

// LoadFile reads a YAML file over the defaults. Keys absent from the file
// keep their default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves the configuration: defaults, then the YAML file at path if
// path is not empty, then environment variables (a .env file in the working
// directory fills variables the process does not set), then overrides. The
// result is validated.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	env, err := environment(".env")
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, env)
	cfg = cfg.Apply(overrides...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// environment returns a lookup over the process environment backed by the
// given dotenv files. Missing files are ignored.
func environment(files ...string) (func(string) (string, bool), error) {
	dotenv := make(map[string]string)
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		vars, err := godotenv.Read(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vars {
			if _, ok := dotenv[k]; !ok {
				dotenv[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func applyEnv(c *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("AGENT_MODEL", &c.Model)
	str("AGENT_QUERY_MODEL", &c.QueryModel)
	str("AGENT_RESPONSE_MODEL", &c.ResponseModel)
	str("AGENT_RETRIEVER_PROVIDER", &c.RetrieverProvider)
	str("AGENT_EMBEDDING_MODEL", &c.EmbeddingModel)
	str("AGENT_USER_ID", &c.UserID)
	num("AGENT_SEARCH_K", &c.SearchKwargs.K)
	num("AGENT_MAX_SEARCH_RESULTS", &c.MaxSearchResults)
	num("AGENT_RECURSION_LIMIT", &c.RecursionLimit)
	num("AGENT_TOOL_PARALLELISM", &c.ToolParallelism)
	list("AGENT_CORPUS", &c.Corpus)
	list("AGENT_INTERRUPT_BEFORE", &c.InterruptBefore)
	list("AGENT_INTERRUPT_AFTER", &c.InterruptAfter)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("GOOGLE_API_KEY", &c.Google.APIKey)
	str("GOOGLE_BASE_URL", &c.Google.BaseURL)
	list("ELASTICSEARCH_URL", &c.Elasticsearch.Addresses)
	str("ELASTICSEARCH_USER", &c.Elasticsearch.Username)
	str("ELASTICSEARCH_PASSWORD", &c.Elasticsearch.Password)
	str("ELASTICSEARCH_API_KEY", &c.Elasticsearch.APIKey)
	str("ELASTICSEARCH_INDEX", &c.Elasticsearch.Index)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first structural problem of c.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	models := []struct{ name, id string }{
		{"model", c.Model},
		{"query_model", c.QueryModel},
		{"response_model", c.ResponseModel},
	}
	for _, m := range models {
		if strings.TrimSpace(m.id) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, m.name)
		}
	}
	switch c.RetrieverProvider {
	case ProviderInMemory:
	case ProviderElasticsearch:
		if len(c.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("%w: elasticsearch.addresses is required for the elasticsearch retriever", ErrInvalidConfig)
		}
		if c.Elasticsearch.Index == "" {
			return fmt.Errorf("%w: elasticsearch.index is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown retriever provider %q", ErrInvalidConfig, c.RetrieverProvider)
	}
	limits := []struct {
		name string
		n    int
	}{
		{"search_kwargs.k", c.SearchKwargs.K},
		{"max_search_results", c.MaxSearchResults},
		{"recursion_limit", c.RecursionLimit},
		{"tool_parallelism", c.ToolParallelism},
	}
	for _, l := range limits {
		if l.n < 0 {
			return fmt.Errorf("%w: %s cannot be negative: %d", ErrInvalidConfig, l.name, l.n)
		}
	}
	if c.SearchKwargs.MinScore < 0 || c.SearchKwargs.MinScore > 1 {
		return fmt.Errorf("%w: search_kwargs.min_score must be within [0, 1]", ErrInvalidConfig)
	}
	if !hasPlaceholder(c.QuerySystemPromptTemplate, PlaceholderQueries) {
		return fmt.Errorf("%w: query_system_prompt_template lacks {%s}", ErrInvalidConfig, PlaceholderQueries)
	}
	if !hasPlaceholder(c.ResponseSystemPromptTemplate, PlaceholderRetrievedDocs) {
		return fmt.Errorf("%w: response_system_prompt_template lacks {%s}", ErrInvalidConfig, PlaceholderRetrievedDocs)
	}
	return nil
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//


package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Overlay is the part of a Config a remote caller may change for one run.
// Credentials, endpoints, corpus paths and the user identity are not
// part of it and stay as the server resolved them.
type Overlay struct {
	Model         *string `json:"model,omitempty"`
	QueryModel    *string `json:"query_model,omitempty"`
	ResponseModel *string `json:"response_model,omitempty"`

	SystemPromptTemplate         *string `json:"system_prompt_template,omitempty"`
	QuerySystemPromptTemplate    *string `json:"query_system_prompt_template,omitempty"`
	ResponseSystemPromptTemplate *string `json:"response_system_prompt_template,omitempty"`

	SearchKwargs *SearchKwargsOverlay `json:"search_kwargs,omitempty"`

	MaxSearchResults *int `json:"max_search_results,omitempty"`
	RecursionLimit   *int `json:"recursion_limit,omitempty"`
	ToolParallelism  *int `json:"tool_parallelism,omitempty"`
}

// SearchKwargsOverlay changes retrieval tuning key by key.
type SearchKwargsOverlay struct {
	K        *int     `json:"k,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// DecodeOverlay parses raw strictly: a key outside Overlay is an error
// wrapping ErrInvalidConfig. Empty input yields an empty overlay.
func DecodeOverlay(raw []byte) (*Overlay, error) {
	o := &Overlay{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return o, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return o, nil
}

// Override returns the overlay as an Override. Unset keys keep the
// value of the config it is applied to.
func (o *Overlay) Override() Override {
	return func(c *Config) {
		if o == nil {
			return
		}
		setString(&c.Model, o.Model)
		setString(&c.QueryModel, o.QueryModel)
		setString(&c.ResponseModel, o.ResponseModel)
		setString(&c.SystemPromptTemplate, o.SystemPromptTemplate)
		setString(&c.QuerySystemPromptTemplate, o.QuerySystemPromptTemplate)
		setString(&c.ResponseSystemPromptTemplate, o.ResponseSystemPromptTemplate)
		if sk := o.SearchKwargs; sk != nil {
			setInt(&c.SearchKwargs.K, sk.K)
			if sk.MinScore != nil {
				c.SearchKwargs.MinScore = *sk.MinScore
			}
		}
		setInt(&c.MaxSearchResults, o.MaxSearchResults)
		setInt(&c.RecursionLimit, o.RecursionLimit)
		setInt(&c.ToolParallelism, o.ToolParallelism)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

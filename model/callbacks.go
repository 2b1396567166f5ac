//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package model

import "context"

// BeforeModelCallback runs before a request is sent and may edit it. A
// non-nil response is used in place of calling the model. An error fails
// the invocation.
type BeforeModelCallback func(ctx context.Context, req *Request) (*Response, error)

// AfterModelCallback runs after the model answered req, or failed with
// modelErr. A non-nil response replaces the answer and clears modelErr.
type AfterModelCallback func(ctx context.Context, req *Request, rsp *Response, modelErr error) (*Response, error)

// ModelCallbacks holds the callbacks of a Handle. A nil *ModelCallbacks
// runs nothing.
type ModelCallbacks struct {
	BeforeModel []BeforeModelCallback
	AfterModel  []AfterModelCallback
}

// NewModelCallbacks creates an empty ModelCallbacks.
func NewModelCallbacks() *ModelCallbacks {
	return &ModelCallbacks{}
}

// RegisterBeforeModel appends cb and returns c for chaining.
func (c *ModelCallbacks) RegisterBeforeModel(cb BeforeModelCallback) *ModelCallbacks {
	c.BeforeModel = append(c.BeforeModel, cb)
	return c
}

// RegisterAfterModel appends cb and returns c for chaining.
func (c *ModelCallbacks) RegisterAfterModel(cb AfterModelCallback) *ModelCallbacks {
	c.AfterModel = append(c.AfterModel, cb)
	return c
}

// RunBeforeModel runs the before callbacks in order and stops at the first
// response or error.
func (c *ModelCallbacks) RunBeforeModel(ctx context.Context, req *Request) (*Response, error) {
	if c == nil {
		return nil, nil
	}
	for _, cb := range c.BeforeModel {
		rsp, err := cb(ctx, req)
		if err != nil || rsp != nil {
			return rsp, err
		}
	}
	return nil, nil
}

// RunAfterModel runs the after callbacks in order and stops at the first
// response or error.
func (c *ModelCallbacks) RunAfterModel(ctx context.Context, req *Request, rsp *Response, modelErr error) (*Response, error) {
	if c == nil {
		return nil, nil
	}
	for _, cb := range c.AfterModel {
		custom, err := cb(ctx, req, rsp, modelErr)
		if err != nil || custom != nil {
			return custom, err
		}
	}
	return nil, nil
}

// Merge returns callbacks running c's then other's. Either may be nil.
func (c *ModelCallbacks) Merge(other *ModelCallbacks) *ModelCallbacks {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	return &ModelCallbacks{
		BeforeModel: append(append([]BeforeModelCallback{}, c.BeforeModel...), other.BeforeModel...),
		AfterModel:  append(append([]AfterModelCallback{}, c.AfterModel...), other.AfterModel...),
	}
}

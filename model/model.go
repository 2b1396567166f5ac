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

// Package model provides the language model contract used by graph nodes.
//
// Providers implement Model. Nodes do not use providers directly: they load a
// Handle from a Registry by model id and call Invoke, optionally after
// binding tools or requesting structured output.
package model

import "context"

// Model is a chat model provider.
//
// Failures come in two layers. GenerateContent returns an error when the
// request cannot be sent at all, for example a nil request. Failures the
// provider reports, such as rate limits or content filtering, arrive as a
// Response whose Error is set. Handle.Invoke turns both into a
// graph.ExternalCallError.
type Model interface {
	// GenerateContent sends request. The last response on the channel that
	// is not partial carries the complete message.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	Info() Info
}

// Info describes a Model.
type Info struct {
	Name string
}

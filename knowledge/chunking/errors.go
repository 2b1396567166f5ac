//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package chunking

import "errors"

var (
	// ErrEmptyDocument is returned for a document without content.
	ErrEmptyDocument = errors.New("chunking: document content is empty")
	// ErrNilDocument is returned for a nil document.
	ErrNilDocument = errors.New("chunking: document cannot be nil")
)

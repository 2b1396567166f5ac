//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultProvider is used for model ids without a provider prefix.
const DefaultProvider = "openai"

var (
	// ErrInvalidModelID is returned for malformed model ids.
	ErrInvalidModelID = errors.New("invalid model id")
	// ErrUnknownProvider is returned when no factory is registered for a provider.
	ErrUnknownProvider = errors.New("unknown model provider")
)

// Factory creates a model of a provider by name.
type Factory func(ctx context.Context, name string) (Model, error)

// Registry resolves "provider/name" model ids to handles.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry is the registry used by the package level functions.
var DefaultRegistry = NewRegistry()

// Register registers the factory of a provider, replacing any previous one.
func (r *Registry) Register(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(provider)] = factory
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Load resolves a model id of the form "provider/name" and returns a handle.
// Ids without a provider use DefaultProvider.
func (r *Registry) Load(ctx context.Context, id string) (*Handle, error) {
	provider, name, err := ParseModelID(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	factory, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	m, err := factory(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", id, err)
	}
	return NewHandle(m, provider+"/"+name), nil
}

// ParseModelID splits a model id into provider and name.
func ParseModelID(id string) (provider, name string, err error) {
	id = strings.TrimSpace(id)
	provider, name, found := strings.Cut(id, "/")
	if !found {
		provider, name = DefaultProvider, id
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	name = strings.TrimSpace(name)
	if provider == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidModelID, id)
	}
	return provider, name, nil
}

// Register registers a provider factory in DefaultRegistry.
func Register(provider string, factory Factory) {
	DefaultRegistry.Register(provider, factory)
}

// Load loads a model from DefaultRegistry.
func Load(ctx context.Context, id string) (*Handle, error) {
	return DefaultRegistry.Load(ctx, id)
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrRunnerExists   = errors.New("runner already registered")
	ErrRunnerNotFound = errors.New("runner not found")
)

// Registry holds runners by graph name. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// RegisterRunner adds r under its graph name.
func (reg *Registry) RegisterRunner(r Runner) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	name := r.Name()
	if _, ok := reg.runners[name]; ok {
		return fmt.Errorf("%w: %s", ErrRunnerExists, name)
	}
	reg.runners[name] = r
	return nil
}

// GetRunner returns the runner of the named graph.
func (reg *Registry) GetRunner(name string) (Runner, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.runners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunnerNotFound, name)
	}
	return r, nil
}

// ListRunners returns the registered graph names in order.
func (reg *Registry) ListRunners() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.runners))
	for name := range reg.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

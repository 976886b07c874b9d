// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentmux/agentmux/pkg/errors"
)

// Resolver maps adapter names to registered adapters. Registration happens
// at daemon assembly; lookups happen on every session create.
type Resolver struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name. Registering the same name
// twice is a programming error and fails loudly.
func (r *Resolver) Register(a Adapter) error {
	if a == nil || a.Name() == "" {
		return errors.NewValidationError("adapter must have a name", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Name()]; ok {
		return errors.NewValidationError(fmt.Sprintf("adapter %q already registered", a.Name()), nil)
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter registered under name.
func (r *Resolver) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown adapter %q", name), nil)
	}
	return a, nil
}

// Names returns all registered adapter names, sorted.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

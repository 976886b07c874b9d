// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/errors"
)

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Capabilities() Capabilities {
	return Capabilities{Streaming: true, Availability: AvailabilityAvailable}
}

func (f *fakeAdapter) Connect(context.Context, string, ConnectOptions) (BackendSession, error) {
	return nil, errors.NewBackendUnavailableError("fake adapter cannot connect")
}

func TestResolverRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	require.NoError(t, r.Register(&fakeAdapter{name: "claude-cli"}))
	require.NoError(t, r.Register(&fakeAdapter{name: "inverted-ws"}))

	a, err := r.Get("claude-cli")
	require.NoError(t, err)
	assert.Equal(t, "claude-cli", a.Name())

	_, err = r.Get("nonexistent")
	assert.True(t, errors.IsValidation(err))
}

func TestResolverRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	require.NoError(t, r.Register(&fakeAdapter{name: "claude-cli"}))
	err := r.Register(&fakeAdapter{name: "claude-cli"})
	assert.True(t, errors.IsValidation(err))
}

func TestResolverRejectsAnonymousAdapter(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	assert.True(t, errors.IsValidation(r.Register(&fakeAdapter{})))
	assert.True(t, errors.IsValidation(r.Register(nil)))
}

func TestResolverNamesSorted(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	require.NoError(t, r.Register(&fakeAdapter{name: "zeta"}))
	require.NoError(t, r.Register(&fakeAdapter{name: "alpha"}))
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

// Compile-time check that the fake satisfies the contract the resolver
// hands out.
var _ Adapter = (*fakeAdapter)(nil)

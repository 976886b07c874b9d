// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/message"
	muxerrors "github.com/agentmux/agentmux/pkg/errors"
)

type fakePermissionHost struct {
	mu      sync.Mutex
	id      string
	cap     int
	order   []string
	pending map[string]*message.PermissionRequest
}

func newFakePermissionHost(id string, capacity int) *fakePermissionHost {
	return &fakePermissionHost{
		id:      id,
		cap:     capacity,
		pending: make(map[string]*message.PermissionRequest),
	}
}

func (f *fakePermissionHost) ID() string { return f.id }

func (f *fakePermissionHost) StorePendingPermission(req *message.PermissionRequest) (*message.PermissionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req == nil || req.RequestID == "" {
		return nil, muxerrors.NewValidationError("permission request needs a request id", nil)
	}
	if _, ok := f.pending[req.RequestID]; ok {
		f.pending[req.RequestID] = req
		return nil, nil
	}
	var evicted *message.PermissionRequest
	if len(f.order) >= f.cap {
		oldest := f.order[0]
		f.order = f.order[1:]
		evicted = f.pending[oldest]
		delete(f.pending, oldest)
	}
	f.pending[req.RequestID] = req
	f.order = append(f.order, req.RequestID)
	return evicted, nil
}

func (f *fakePermissionHost) ClearPendingPermission(requestID string) (*message.PermissionRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.pending[requestID]
	if !ok {
		return nil, false
	}
	delete(f.pending, requestID)
	for i, id := range f.order {
		if id == requestID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return req, true
}

func TestGatekeeperAssignsRequestID(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()
	g := NewGatekeeper(bus)
	host := newFakePermissionHost("s1", 10)

	req := &message.PermissionRequest{ToolName: "Bash"}
	require.True(t, g.Admit(host, req))
	assert.NotEmpty(t, req.RequestID)

	// A backend-supplied id is preserved.
	req2 := &message.PermissionRequest{RequestID: "req-7", ToolName: "Edit"}
	require.True(t, g.Admit(host, req2))
	assert.Equal(t, "req-7", req2.RequestID)
}

func TestGatekeeperFirstReplyWins(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()
	g := NewGatekeeper(bus)
	host := newFakePermissionHost("s1", 10)

	req := &message.PermissionRequest{RequestID: "req-1", ToolName: "Bash"}
	require.True(t, g.Admit(host, req))

	got, ok := g.Resolve(host, "req-1", message.PermissionAllow)
	require.True(t, ok)
	assert.Equal(t, "Bash", got.ToolName)

	// The second reply is a silent no-op.
	_, ok = g.Resolve(host, "req-1", message.PermissionDeny)
	assert.False(t, ok)
}

func TestGatekeeperUnknownReplyIsNoOp(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()
	g := NewGatekeeper(bus)
	host := newFakePermissionHost("s1", 10)

	_, ok := g.Resolve(host, "never-seen", message.PermissionAllow)
	assert.False(t, ok)
}

func TestGatekeeperOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()
	g := NewGatekeeper(bus)
	host := newFakePermissionHost("s1", 1)

	require.True(t, g.Admit(host, &message.PermissionRequest{RequestID: "a", ToolName: "Bash"}))
	require.True(t, g.Admit(host, &message.PermissionRequest{RequestID: "b", ToolName: "Edit"}),
		"a full store must admit the new request, not refuse it")

	// The oldest request was evicted; its late reply is now a no-op.
	_, ok := g.Resolve(host, "a", message.PermissionAllow)
	assert.False(t, ok)

	// The newest request is the one consumers can still answer.
	got, ok := g.Resolve(host, "b", message.PermissionAllow)
	require.True(t, ok)
	assert.Equal(t, "Edit", got.ToolName)
}

func TestGatekeeperEmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	g := NewGatekeeper(bus)
	host := newFakePermissionHost("s1", 10)

	req := &message.PermissionRequest{RequestID: "req-1", ToolName: "Bash"}
	require.True(t, g.Admit(host, req))
	_, ok := g.Resolve(host, "req-1", message.PermissionAllow)
	require.True(t, ok)

	ev := <-ch
	assert.Equal(t, events.KindPermissionRequested, ev.Kind)
	requested, ok := ev.Payload.(events.PermissionPayload)
	require.True(t, ok)
	assert.Equal(t, "req-1", requested.RequestID)

	ev = <-ch
	assert.Equal(t, events.KindPermissionResolved, ev.Kind)
	resolved, ok := ev.Payload.(events.PermissionPayload)
	require.True(t, ok)
	assert.Equal(t, string(message.PermissionAllow), resolved.Behavior)
}

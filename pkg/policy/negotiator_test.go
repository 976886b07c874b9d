// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/message"
)

type fakeInitHost struct {
	mu        sync.Mutex
	id        string
	requestID string
	ch        chan *message.CapabilitySet
	supplied  *message.CapabilitySet
}

func (f *fakeInitHost) ID() string { return f.id }

func (f *fakeInitHost) SetCapabilities(caps *message.CapabilitySet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supplied = caps
}

func (f *fakeInitHost) StorePendingInitialize(requestID string) (<-chan *message.CapabilitySet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestID != "" {
		return nil, false
	}
	f.requestID = requestID
	f.ch = make(chan *message.CapabilitySet, 1)
	return f.ch, true
}

func (f *fakeInitHost) CancelPendingInitialize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestID == "" {
		return
	}
	f.requestID = ""
	close(f.ch)
}

// resolve simulates the router delivering a control response.
func (f *fakeInitHost) resolve(requestID string, caps *message.CapabilitySet) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestID != requestID {
		return false
	}
	f.requestID = ""
	f.ch <- caps
	return true
}

type readyResult struct {
	caps     *message.CapabilitySet
	timedOut bool
}

func TestNegotiatorResolvesResponse(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()

	ready := make(chan readyResult, 1)
	n := NewNegotiator(bus, time.Second, func(_ string, caps *message.CapabilitySet, timedOut bool) {
		ready <- readyResult{caps, timedOut}
	})

	host := &fakeInitHost{id: "s1"}
	var sentRequestID string
	n.Begin(context.Background(), host, func(requestID string) error {
		sentRequestID = requestID
		return nil
	})
	require.NotEmpty(t, sentRequestID)

	caps := &message.CapabilitySet{Models: []string{"opus", "sonnet"}}
	require.True(t, host.resolve(sentRequestID, caps))

	select {
	case r := <-ready:
		assert.False(t, r.timedOut)
		require.NotNil(t, r.caps)
		assert.Equal(t, []string{"opus", "sonnet"}, r.caps.Models)
	case <-time.After(time.Second):
		t.Fatal("negotiation did not complete")
	}
}

func TestNegotiatorTimesOut(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()
	timeouts, cancel := bus.Subscribe()
	defer cancel()

	ready := make(chan readyResult, 1)
	n := NewNegotiator(bus, 30*time.Millisecond, func(_ string, caps *message.CapabilitySet, timedOut bool) {
		ready <- readyResult{caps, timedOut}
	})

	host := &fakeInitHost{id: "s1"}
	n.Begin(context.Background(), host, func(string) error { return nil })

	select {
	case r := <-ready:
		assert.True(t, r.timedOut)
		assert.Nil(t, r.caps)
	case <-time.After(time.Second):
		t.Fatal("negotiation did not time out")
	}

	// The host's pending slot must be free again for later attempts.
	_, ok := host.StorePendingInitialize("next")
	assert.True(t, ok)

	sawTimeout := false
	for !sawTimeout {
		select {
		case ev := <-timeouts:
			if ev.Kind == events.KindCapabilitiesTimeout {
				sawTimeout = true
			}
		case <-time.After(time.Second):
			t.Fatal("expected a capabilities timeout event")
		}
	}
}

func TestNegotiatorSendFailure(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()

	ready := make(chan readyResult, 1)
	n := NewNegotiator(bus, time.Second, func(_ string, caps *message.CapabilitySet, timedOut bool) {
		ready <- readyResult{caps, timedOut}
	})

	host := &fakeInitHost{id: "s1"}
	n.Begin(context.Background(), host, func(string) error {
		return errors.New("backend gone")
	})

	select {
	case r := <-ready:
		assert.True(t, r.timedOut)
		assert.Nil(t, r.caps)
	case <-time.After(time.Second):
		t.Fatal("send failure should resolve immediately")
	}
}

func TestNegotiatorSingleFlight(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()

	n := NewNegotiator(bus, time.Second, func(string, *message.CapabilitySet, bool) {})

	host := &fakeInitHost{id: "s1"}
	sends := 0
	send := func(string) error { sends++; return nil }

	n.Begin(context.Background(), host, send)
	n.Begin(context.Background(), host, send)

	assert.Equal(t, 1, sends)
}

func TestNegotiatorCancelledByDisconnect(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(0)
	defer bus.Close()

	ready := make(chan readyResult, 1)
	n := NewNegotiator(bus, time.Second, func(_ string, caps *message.CapabilitySet, timedOut bool) {
		ready <- readyResult{caps, timedOut}
	})

	host := &fakeInitHost{id: "s1"}
	n.Begin(context.Background(), host, func(string) error { return nil })

	host.CancelPendingInitialize()

	select {
	case <-ready:
		t.Fatal("cancelled negotiation must not report an outcome")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNegotiatorSupplyInlineCapabilities(t *testing.T) {
	t.Parallel()

	bus := events.NewBus(8)
	defer bus.Close()
	sub, cancel := bus.Subscribe()
	defer cancel()

	ready := make(chan readyResult, 1)
	n := NewNegotiator(bus, time.Second, func(_ string, caps *message.CapabilitySet, timedOut bool) {
		ready <- readyResult{caps, timedOut}
	})

	host := &fakeInitHost{id: "s1"}
	caps := &message.CapabilitySet{AgentVersion: "2.0.0"}
	n.Supply(host, caps)

	select {
	case got := <-ready:
		require.False(t, got.timedOut)
		require.Equal(t, "2.0.0", got.caps.AgentVersion)
	case <-time.After(time.Second):
		t.Fatal("inline supply never reported readiness")
	}

	host.mu.Lock()
	require.Same(t, caps, host.supplied)
	host.mu.Unlock()

	select {
	case ev := <-sub:
		require.Equal(t, events.KindCapabilitiesReady, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no capabilities:ready event published")
	}
}

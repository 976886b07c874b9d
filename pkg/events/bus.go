// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package events provides the internal domain event bus. Policy services
// coordinate through it instead of holding references to each other; the bus
// is independent of anything consumers see on the wire.
package events

import (
	"sync"
	"time"

	"github.com/agentmux/agentmux/pkg/logger"
)

// Kind names a domain event.
type Kind string

const (
	KindConsumerConnected    Kind = "consumer:connected"
	KindConsumerDisconnected Kind = "consumer:disconnected"
	KindBackendConnected     Kind = "backend:connected"
	KindBackendDisconnected  Kind = "backend:disconnected"
	KindSessionClosed        Kind = "session:closed"
	KindPermissionRequested  Kind = "permission:requested"
	KindPermissionResolved   Kind = "permission:resolved"
	KindFirstTurnCompleted   Kind = "session:first_turn_completed"
	KindCapabilitiesReady    Kind = "capabilities:ready"
	KindCapabilitiesTimeout  Kind = "capabilities:timeout"
	KindRelaunchNeeded       Kind = "backend:relaunch_needed"
	KindAuthFailed           Kind = "auth:failed"
	KindTeamUpdated          Kind = "team:updated"
)

// Event is one domain occurrence. Payload shape depends on Kind; the typed
// payload structs below are the only shapes published by the core.
type Event struct {
	Kind      Kind
	SessionID string
	At        time.Time
	Payload   any
}

// ConsumerPayload accompanies consumer connect and disconnect events.
type ConsumerPayload struct {
	ConsumerID string
	Role       string
}

// BackendPayload accompanies backend connect and disconnect events.
type BackendPayload struct {
	AdapterName string
	Inverted    bool
	Err         error
}

// PermissionPayload accompanies permission requested and resolved events.
type PermissionPayload struct {
	RequestID string
	ToolName  string
	Behavior  string
}

// FirstTurnPayload accompanies the first-turn-completed event.
type FirstTurnPayload struct {
	FirstUserMessage string
}

// RelaunchPayload accompanies backend relaunch requests.
type RelaunchPayload struct {
	AdapterName string
	Reason      string
}

// AuthPayload accompanies consumer authentication failures.
type AuthPayload struct {
	Remote string
	Reason string
}

// Bus is a fan-out publisher with per-subscriber buffered channels. Publish
// never blocks: a subscriber that cannot keep up loses events, which is
// logged. Subscribers therefore treat events as hints and reconcile against
// authoritative state when it matters.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool
}

const defaultBuffer = 64

// NewBus creates a bus whose subscriber channels hold buffer events.
// A non-positive buffer falls back to the default.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its channel along with a
// cancel function. Cancel is idempotent; after cancel the channel is closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking. Events to full
// subscriber buffers are dropped with a warning.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Warnw("domain event dropped, subscriber buffer full",
				"kind", ev.Kind, "session_id", ev.SessionID)
		}
	}
}

// Emit is shorthand for publishing a kind, session id, and payload.
func (b *Bus) Emit(kind Kind, sessionID string, payload any) {
	b.Publish(Event{Kind: kind, SessionID: sessionID, Payload: payload})
}

// Close closes every subscriber channel and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay implements the reconnection handler: per-session sequencing
// of consumer messages, a bounded ring of recent sequenced messages, and
// per-consumer last-seen tracking. A consumer that reconnects with a
// last-seen sequence receives exactly the messages it missed, provided they
// have not fallen off the ring.
package replay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmux/agentmux/pkg/message"
)

// Handler owns replay state for every session in the process.
type Handler struct {
	mu       sync.Mutex
	ringSize int
	sessions map[string]*sessionHistory
}

type sessionHistory struct {
	nextSeq  uint64
	ring     *ring
	lastSeen map[string]uint64
	known    map[string]struct{}
}

// NewHandler creates a reconnection handler whose per-session rings hold
// ringSize sequenced messages.
func NewHandler(ringSize int) *Handler {
	if ringSize < 1 {
		ringSize = 1
	}
	return &Handler{
		ringSize: ringSize,
		sessions: make(map[string]*sessionHistory),
	}
}

func (h *Handler) history(sessionID string) *sessionHistory {
	sh, ok := h.sessions[sessionID]
	if !ok {
		sh = &sessionHistory{
			nextSeq:  1,
			ring:     newRing(h.ringSize),
			lastSeen: make(map[string]uint64),
			known:    make(map[string]struct{}),
		}
		h.sessions[sessionID] = sh
	}
	return sh
}

// Record assigns the next sequence number to payload and stores it in the
// session's ring. Sequences are per-session monotonic starting at 1. The
// broadcaster serializes calls per session, which makes sequence order equal
// broadcast order.
func (h *Handler) Record(sessionID string, payload message.Consumer) message.Sequenced {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh := h.history(sessionID)
	seq := sh.nextSeq
	sh.nextSeq++

	msg := message.Sequenced{
		Seq:       seq,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	sh.ring.push(msg)
	return msg
}

// ReplayAfter returns every recorded message with seq > afterSeq, in
// insertion order. Messages that fell off the ring are gone.
func (h *Handler) ReplayAfter(sessionID string, afterSeq uint64) []message.Sequenced {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	return sh.ring.after(afterSeq)
}

// Tail returns the most recent n messages in insertion order. Used as the
// initial window for consumers with no replay cursor.
func (h *Handler) Tail(sessionID string, n int) []message.Sequenced {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.sessions[sessionID]
	if !ok || n <= 0 {
		return nil
	}
	return sh.ring.tail(n)
}

// CurrentSeq returns the latest assigned sequence, 0 if none.
func (h *Handler) CurrentSeq(sessionID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.sessions[sessionID]
	if !ok {
		return 0
	}
	return sh.nextSeq - 1
}

// RegisterConsumer marks a consumer id as known to the session so the
// transport can distinguish returning consumers from new ones.
func (h *Handler) RegisterConsumer(sessionID, consumerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history(sessionID).known[consumerID] = struct{}{}
}

// IsKnownConsumer reports whether the consumer id was registered with the
// session before. Unknown ids are treated as brand new consumers.
func (h *Handler) IsKnownConsumer(sessionID, consumerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	_, known := sh.known[consumerID]
	return known
}

// SetLastSeen records the consumer's replay cursor, typically on disconnect.
func (h *Handler) SetLastSeen(sessionID, consumerID string, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history(sessionID).lastSeen[consumerID] = seq
}

// LastSeen returns the consumer's replay cursor.
func (h *Handler) LastSeen(sessionID, consumerID string) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sh, ok := h.sessions[sessionID]
	if !ok {
		return 0, false
	}
	seq, ok := sh.lastSeen[consumerID]
	return seq, ok
}

// DropSession discards all replay state for a closed session.
func (h *Handler) DropSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

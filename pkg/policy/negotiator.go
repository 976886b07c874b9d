// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
)

// InitializeHost is the slice of the session runtime the negotiator needs.
// The pending handle itself lives in the session record so the runtime's
// mutation guard covers it.
type InitializeHost interface {
	ID() string
	// StorePendingInitialize registers a pending capability exchange and
	// returns the channel its response will arrive on. Returns false when
	// another exchange is already pending.
	StorePendingInitialize(requestID string) (<-chan *message.CapabilitySet, bool)
	// CancelPendingInitialize drops the pending exchange, closing its
	// channel. No-op when nothing is pending.
	CancelPendingInitialize()
	// SetCapabilities records capabilities that arrived without a round
	// trip, e.g. inline on session_init.
	SetCapabilities(caps *message.CapabilitySet)
}

// InitializeSender transmits the adapter-native initialize control request.
// Adapters that negotiate capabilities over raw control frames provide this.
type InitializeSender func(requestID string) error

// ReadyFunc is called exactly once per negotiation with the outcome: the
// negotiated capabilities (nil on timeout or send failure) and whether the
// exchange timed out.
type ReadyFunc func(sessionID string, caps *message.CapabilitySet, timedOut bool)

// Negotiator drives capability negotiation for sessions whose adapter did
// not report capabilities inline during init. It sends the adapter-native
// initialize request and resolves or times out the response without ever
// stalling the session.
type Negotiator struct {
	bus     *events.Bus
	timeout time.Duration
	onReady ReadyFunc
}

// NewNegotiator creates a capability negotiator.
func NewNegotiator(bus *events.Bus, timeout time.Duration, onReady ReadyFunc) *Negotiator {
	return &Negotiator{bus: bus, timeout: timeout, onReady: onReady}
}

// Begin starts a negotiation for the session. It registers the pending
// exchange, transmits the initialize request, and waits for resolution in a
// background goroutine. A session with a negotiation already in flight is
// left alone.
func (n *Negotiator) Begin(ctx context.Context, host InitializeHost, send InitializeSender) {
	requestID := uuid.NewString()
	ch, ok := host.StorePendingInitialize(requestID)
	if !ok {
		logger.Debugw("capability negotiation already pending", "session_id", host.ID())
		return
	}

	if err := send(requestID); err != nil {
		// Treat an unsendable initialize like a timeout: report what we
		// already know rather than stalling the session.
		logger.Warnw("could not send initialize request",
			"session_id", host.ID(), "error", err)
		host.CancelPendingInitialize()
		n.bus.Emit(events.KindCapabilitiesTimeout, host.ID(), nil)
		n.onReady(host.ID(), nil, true)
		return
	}

	go n.await(ctx, host, ch)
}

// Supply short-circuits negotiation for adapters that report capabilities
// inline with session_init. No request goes out; the outcome is published
// exactly as if a response had arrived.
func (n *Negotiator) Supply(host InitializeHost, caps *message.CapabilitySet) {
	host.SetCapabilities(caps)
	n.bus.Emit(events.KindCapabilitiesReady, host.ID(), caps)
	n.onReady(host.ID(), caps, false)
}

// await resolves the exchange: response, timeout, or cancellation.
func (n *Negotiator) await(ctx context.Context, host InitializeHost, ch <-chan *message.CapabilitySet) {
	timer := time.NewTimer(n.timeout)
	defer timer.Stop()

	select {
	case caps, ok := <-ch:
		if !ok {
			// Cancelled by disconnect or session close.
			logger.Debugw("capability negotiation cancelled", "session_id", host.ID())
			return
		}
		n.bus.Emit(events.KindCapabilitiesReady, host.ID(), caps)
		n.onReady(host.ID(), caps, false)

	case <-timer.C:
		// A response may have landed between the timer firing and this
		// branch running.
		select {
		case caps, ok := <-ch:
			if ok {
				n.bus.Emit(events.KindCapabilitiesReady, host.ID(), caps)
				n.onReady(host.ID(), caps, false)
				return
			}
		default:
		}
		host.CancelPendingInitialize()
		logger.Warnw("capability negotiation timed out",
			"session_id", host.ID(), "timeout", n.timeout)
		n.bus.Emit(events.KindCapabilitiesTimeout, host.ID(), nil)
		n.onReady(host.ID(), nil, true)

	case <-ctx.Done():
		host.CancelPendingInitialize()
	}
}

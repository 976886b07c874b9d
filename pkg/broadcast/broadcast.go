// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcast fans consumer messages out to every consumer attached to
// a session. Each broadcast encodes once, assigns the per-session sequence
// through the replay handler, and writes the same buffer to every recipient.
// Slow consumers are skipped, failed consumers are removed, and neither
// stalls the rest of the fan-out.
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/replay"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// Consumer is the broadcaster's view of one attached consumer connection.
type Consumer interface {
	ID() string
	Role() string
	// BufferedAmount reports the bytes queued on the connection but not yet
	// flushed to the peer.
	BufferedAmount() int
	Send(data []byte) error
}

// Callback observes every completed broadcast. Fired once per broadcast with
// the session id and the message, regardless of per-consumer skips.
type Callback func(sessionID string, msg message.Consumer)

// RemoveFunc detaches a consumer whose socket failed mid-broadcast.
type RemoveFunc func(sessionID, consumerID string)

// Broadcaster owns fan-out policy: backpressure threshold, role filtering,
// failure isolation, and sequencing through the replay handler.
type Broadcaster struct {
	replay    *replay.Handler
	threshold int

	metrics *telemetry.Metrics
	tracer  telemetry.Tracer

	onBroadcast Callback
	remove      RemoveFunc
}

// New creates a broadcaster. threshold is the buffered-byte limit above
// which a consumer is skipped; onBroadcast and remove may be nil.
func New(replayHandler *replay.Handler, threshold int, metrics *telemetry.Metrics, tracer telemetry.Tracer, onBroadcast Callback, remove RemoveFunc) *Broadcaster {
	if tracer == nil {
		tracer = telemetry.Noop
	}
	return &Broadcaster{
		replay:      replayHandler,
		threshold:   threshold,
		metrics:     metrics,
		tracer:      tracer,
		onBroadcast: onBroadcast,
		remove:      remove,
	}
}

// Broadcast sequences msg and delivers it to every consumer. Callers
// serialize broadcasts per session; that serialization is what makes
// sequence order equal delivery order.
func (b *Broadcaster) Broadcast(sessionID string, consumers []Consumer, msg message.Consumer) message.Sequenced {
	return b.fanOut(sessionID, consumers, msg, false)
}

// BroadcastToParticipants sequences msg and delivers it to participant
// consumers only. Observers never see these messages.
func (b *Broadcaster) BroadcastToParticipants(sessionID string, consumers []Consumer, msg message.Consumer) message.Sequenced {
	return b.fanOut(sessionID, consumers, msg, true)
}

func (b *Broadcaster) fanOut(sessionID string, consumers []Consumer, msg message.Consumer, participantsOnly bool) message.Sequenced {
	seqMsg := b.replay.Record(sessionID, msg)

	data, err := json.Marshal(msg)
	if err != nil {
		// A consumer message that cannot encode is a programming error;
		// the sequence slot is already burned, which is harmless.
		logger.Errorw("consumer message failed to encode",
			"session_id", sessionID, "type", msg.Type, "error", err)
		return seqMsg
	}

	for _, c := range consumers {
		if participantsOnly && c.Role() == message.RoleObserver {
			continue
		}
		b.deliver(sessionID, c, data, msg)
	}

	b.tracer.Send("message:outbound", map[string]any{
		"session_id": sessionID,
		"type":       string(msg.Type),
		"seq":        seqMsg.Seq,
	})
	b.metrics.RecordBroadcast(context.Background(), string(msg.Type))

	if b.onBroadcast != nil {
		b.onBroadcast(sessionID, msg)
	}
	return seqMsg
}

// deliver writes one encoded message to one consumer, applying backpressure
// and failure isolation.
func (b *Broadcaster) deliver(sessionID string, c Consumer, data []byte, msg message.Consumer) {
	// Drop, never queue, when the consumer's outbound buffer is past the
	// threshold. Equality is still within budget.
	if c.BufferedAmount() > b.threshold {
		logger.Debugw("dropping message for slow consumer",
			"session_id", sessionID, "consumer_id", c.ID(),
			"buffered", c.BufferedAmount(), "threshold", b.threshold,
			"type", msg.Type)
		b.metrics.RecordBackpressureDrop(context.Background())
		return
	}

	if err := c.Send(data); err != nil {
		logger.Warnw("consumer send failed, removing from session",
			"session_id", sessionID, "consumer_id", c.ID(), "error", err)
		if b.remove != nil {
			b.remove(sessionID, c.ID())
		}
	}
}

// SendTo writes one consumer message to a single consumer without
// sequencing it. Used for targeted frames: errors, replay envelopes, and
// connection markers.
func (b *Broadcaster) SendTo(c Consumer, msg message.Consumer) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// SendSequenced writes an already-sequenced envelope to a single consumer.
// Replay delivery uses the full envelope so reconnecting consumers can
// advance their cursor.
func (b *Broadcaster) SendSequenced(c Consumer, msg message.Sequenced) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Convenience wrappers. Each builds the consumer message and fans out.

// BroadcastPresence announces the current consumer set to everyone.
func (b *Broadcaster) BroadcastPresence(sessionID string, consumers []Consumer) {
	entries := make([]message.PresenceEntry, 0, len(consumers))
	for _, c := range consumers {
		entries = append(entries, message.PresenceEntry{ConsumerID: c.ID(), Role: c.Role()})
	}
	b.Broadcast(sessionID, consumers, message.NewPresenceUpdate(entries))
}

// BroadcastNameUpdate announces a session rename.
func (b *Broadcaster) BroadcastNameUpdate(sessionID string, consumers []Consumer, name string) {
	b.Broadcast(sessionID, consumers, message.NewNameUpdate(name))
}

// BroadcastResumeFailed announces that a resume attempt failed and the
// session restarted fresh.
func (b *Broadcaster) BroadcastResumeFailed(sessionID string, consumers []Consumer, reason string) {
	b.Broadcast(sessionID, consumers, message.NewResumeFailed(reason))
}

// BroadcastProcessOutput delivers raw backend output to participants only.
func (b *Broadcaster) BroadcastProcessOutput(sessionID string, consumers []Consumer, stream, data string) {
	b.BroadcastToParticipants(sessionID, consumers, message.NewProcessOutput(stream, data))
}

// BroadcastWatchdogState surfaces reconnect watchdog activity.
func (b *Broadcaster) BroadcastWatchdogState(sessionID string, consumers []Consumer, state string) {
	b.Broadcast(sessionID, consumers, message.Consumer{
		Type:  message.ConsumerSessionLifecycle,
		Extra: map[string]any{"watchdog": state},
	})
}

// BroadcastCircuitBreakerState surfaces restart breaker transitions.
func (b *Broadcaster) BroadcastCircuitBreakerState(sessionID string, consumers []Consumer, state string) {
	b.Broadcast(sessionID, consumers, message.Consumer{
		Type:  message.ConsumerSessionLifecycle,
		Extra: map[string]any{"circuit_breaker": state},
	})
}

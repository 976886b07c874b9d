// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"

	"github.com/agentmux/agentmux/pkg/broadcast"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/session"
)

// HandleInbound dispatches one consumer wire frame. The returned frame, when
// non-nil, is a direct reply for the sending consumer only; everything with
// session-wide relevance is broadcast internally instead. Failures never
// propagate as errors: they come back as structured error frames.
func (b *Bridge) HandleInbound(ctx context.Context, sess *session.Session, consumerID string, frame message.Inbound) *message.Consumer {
	b.tracer.Recv("consumer:inbound", map[string]any{
		"session_id":  sess.ID(),
		"consumer_id": consumerID,
		"type":        string(frame.Type),
	})

	switch frame.Type {
	case message.InboundUserMessage:
		return b.errFrame(b.SendUserMessage(ctx, sess.ID(), frame.Content, SendOptions{
			Images:            frame.Images,
			SessionIDOverride: frame.SessionID,
		}))

	case message.InboundPermissionResponse:
		return b.errFrame(b.SendPermissionResponse(ctx, sess.ID(), frame.RequestID, frame.Behavior, PermissionResponseOptions{
			UpdatedInput:       frame.UpdatedInput,
			UpdatedPermissions: frame.UpdatedPermissions,
			Message:            frame.Message,
		}))

	case message.InboundInterrupt:
		return b.errFrame(b.SendInterrupt(ctx, sess.ID()))

	case message.InboundSetModel:
		return b.errFrame(b.SendSetModel(ctx, sess.ID(), frame.Model))

	case message.InboundSetPermissionMode:
		return b.errFrame(b.SendSetPermissionMode(ctx, sess.ID(), frame.Mode))

	case message.InboundPresenceQuery:
		b.bcast.BroadcastPresence(sess.ID(), consumersOf(sess))
		return nil

	case message.InboundSlashCommand:
		b.handleSlashCommand(ctx, sess, frame)
		return nil

	case message.InboundQueueMessage:
		return b.handleQueueMessage(sess, frame)

	case message.InboundUpdateQueuedMessage:
		return b.handleUpdateQueuedMessage(sess, frame)

	case message.InboundCancelQueuedMessage:
		sess.Serialize(func() { sess.ClearQueuedMessage() })
		return nil

	case message.InboundSetAdapter:
		// The adapter is fixed at creation. Honoring a swap mid-session would
		// orphan backend state, so the frame is refused outright.
		return b.errFrame(errors.NewValidationError("adapter cannot be changed on an active session", nil))

	default:
		return b.errFrame(errors.NewValidationError("unknown inbound type: "+string(frame.Type), nil))
	}
}

// handleSlashCommand executes one slash command. Results and errors are
// broadcast so every attached UI sees the outcome; forwarded commands
// surface through the backend's own message stream instead.
func (b *Bridge) handleSlashCommand(ctx context.Context, sess *session.Session, frame message.Inbound) {
	if b.slash == nil {
		b.bcast.Broadcast(sess.ID(), consumersOf(sess),
			message.NewSlashCommandError(frame.RequestID, errors.ErrValidation, "slash commands are not enabled"))
		return
	}
	result, forwarded := b.slash.Execute(ctx, sess, frame.Command, frame.RequestID)
	if forwarded {
		return
	}
	b.bcast.Broadcast(sess.ID(), consumersOf(sess), result)
}

// handleQueueMessage holds one user message for the next idle transition.
// With the backend not running there is no transition to wait for, so the
// message takes the immediate send path instead of stranding in the slot.
func (b *Bridge) handleQueueMessage(sess *session.Session, frame message.Inbound) *message.Consumer {
	target, err := b.resolve(sess.ID(), frame.SessionID)
	if err != nil {
		return b.errFrame(err)
	}
	if frame.Content == "" && len(frame.Images) == 0 {
		return b.errFrame(errors.NewValidationError("queued message is empty", nil))
	}

	msg := message.NewUserMessage(frame.Content, imageBlocks(frame.Images)...)
	switch target.LastStatus() {
	case session.StatusRunning, session.StatusCompacting:
		target.Serialize(func() { target.SetQueuedMessage(msg) })
	default:
		b.router.SendUserMessage(target, msg)
	}
	return nil
}

// handleUpdateQueuedMessage edits the held message in place. When nothing is
// held the edit lost a race with the flush; it is dropped with a warn rather
// than resurrected, since the original text already went out.
func (b *Bridge) handleUpdateQueuedMessage(sess *session.Session, frame message.Inbound) *message.Consumer {
	if frame.Content == "" {
		return b.errFrame(errors.NewValidationError("updated message is empty", nil))
	}
	sess.Serialize(func() {
		if !sess.ClearQueuedMessage() {
			logger.Warnw("no queued message to update", "session_id", sess.ID())
			return
		}
		sess.SetQueuedMessage(message.NewUserMessage(frame.Content, imageBlocks(frame.Images)...))
	})
	return nil
}

// errFrame converts a facade error into a structured error frame, or nil
// when the operation succeeded.
func (b *Bridge) errFrame(err error) *message.Consumer {
	if err == nil {
		return nil
	}
	frame := message.NewErrorMessage(errors.TypeOf(err), err.Error())
	return &frame
}

func consumersOf(sess *session.Session) []broadcast.Consumer {
	conns := sess.Consumers()
	out := make([]broadcast.Consumer, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out
}

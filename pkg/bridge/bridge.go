// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the operations facade in front of the session core.
// Transports and the HTTP API call it instead of touching sessions, the
// router or the lifecycle manager directly. It also hosts the inbound
// normalizer that turns consumer wire frames into facade calls.
package bridge

import (
	"context"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/broadcast"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/lifecycle"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/policy"
	"github.com/agentmux/agentmux/pkg/router"
	"github.com/agentmux/agentmux/pkg/session"
	"github.com/agentmux/agentmux/pkg/slashcmd"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// SessionHost is the bridge's window onto the session registry. The
// coordinator implements it; the bridge never creates sessions itself.
type SessionHost interface {
	Get(id string) (*session.Session, bool)
	All() []*session.Session
	// Remove drops the session from memory and the durable store.
	Remove(ctx context.Context, id string)
}

// Options wires a Bridge.
type Options struct {
	Host        SessionHost
	Router      *router.Router
	Broadcaster *broadcast.Broadcaster
	Lifecycle   *lifecycle.Manager
	Gatekeeper  *policy.Gatekeeper
	Slash       *slashcmd.Service
	Bus         *events.Bus
	Tracer      telemetry.Tracer
}

// Bridge exposes the public session operations.
type Bridge struct {
	host       SessionHost
	router     *router.Router
	bcast      *broadcast.Broadcaster
	lifecycle  *lifecycle.Manager
	gatekeeper *policy.Gatekeeper
	slash      *slashcmd.Service
	bus        *events.Bus
	tracer     telemetry.Tracer
}

// New builds a Bridge.
func New(opts Options) *Bridge {
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Noop
	}
	return &Bridge{
		host:       opts.Host,
		router:     opts.Router,
		bcast:      opts.Broadcaster,
		lifecycle:  opts.Lifecycle,
		gatekeeper: opts.Gatekeeper,
		slash:      opts.Slash,
		bus:        opts.Bus,
		tracer:     opts.Tracer,
	}
}

// SendOptions augment a user message send.
type SendOptions struct {
	// Images are attached after the text block.
	Images []message.InboundImage
	// SessionIDOverride targets a different session than the caller's own,
	// for consumers driving several sessions over one connection.
	SessionIDOverride string
}

// SendUserMessage records a user message in history, shows it to every
// consumer and delivers it to the backend, queueing when none is connected.
func (b *Bridge) SendUserMessage(_ context.Context, sessionID, text string, opts SendOptions) error {
	sess, err := b.resolve(sessionID, opts.SessionIDOverride)
	if err != nil {
		return err
	}
	if text == "" && len(opts.Images) == 0 {
		return errors.NewValidationError("user message is empty", nil)
	}
	b.router.SendUserMessage(sess, message.NewUserMessage(text, imageBlocks(opts.Images)...))
	return nil
}

// PermissionResponseOptions carry the optional permission reply fields.
type PermissionResponseOptions struct {
	UpdatedInput       map[string]any
	UpdatedPermissions []any
	Message            string
}

// SendPermissionResponse answers a pending permission request. The first
// reply per request id wins; replies to unknown ids are dropped with a warn
// and report no error, so racing consumers never see failures.
func (b *Bridge) SendPermissionResponse(_ context.Context, sessionID, requestID, behavior string, opts PermissionResponseOptions) error {
	sess, ok := b.host.Get(sessionID)
	if !ok {
		return errors.NewSessionNotFoundError(sessionID)
	}
	if !message.ValidBehavior(behavior) {
		return errors.NewValidationError("permission behavior must be allow or deny", nil)
	}

	if _, resolved := b.gatekeeper.Resolve(sess, requestID, message.PermissionBehavior(behavior)); !resolved {
		return nil
	}

	msg := message.NewPermissionResponse(requestID, behavior, opts.UpdatedInput, opts.Message)
	if len(opts.UpdatedPermissions) > 0 {
		msg.Metadata["updated_permissions"] = opts.UpdatedPermissions
	}
	b.sendOrDrop(sess, msg, "permission response")
	return nil
}

// SendInterrupt asks the backend to stop the current turn.
func (b *Bridge) SendInterrupt(_ context.Context, sessionID string) error {
	sess, ok := b.host.Get(sessionID)
	if !ok {
		return errors.NewSessionNotFoundError(sessionID)
	}
	b.sendOrDrop(sess, message.NewInterrupt(), "interrupt")
	return nil
}

// SendSetModel switches the backend model. State updates arrive back through
// the backend's configuration_change echo, never optimistically.
func (b *Bridge) SendSetModel(_ context.Context, sessionID, model string) error {
	if model == "" {
		return errors.NewValidationError("model is empty", nil)
	}
	sess, ok := b.host.Get(sessionID)
	if !ok {
		return errors.NewSessionNotFoundError(sessionID)
	}
	b.sendOrDrop(sess, message.NewConfigurationChange("model", model), "set_model")
	return nil
}

// SendSetPermissionMode switches the backend permission mode.
func (b *Bridge) SendSetPermissionMode(_ context.Context, sessionID, mode string) error {
	if mode == "" {
		return errors.NewValidationError("permission mode is empty", nil)
	}
	sess, ok := b.host.Get(sessionID)
	if !ok {
		return errors.NewSessionNotFoundError(sessionID)
	}
	b.sendOrDrop(sess, message.NewConfigurationChange("permission_mode", mode), "set_permission_mode")
	return nil
}

// ConnectBackend establishes the session's backend connection.
func (b *Bridge) ConnectBackend(ctx context.Context, sessionID string, opts adapter.ConnectOptions) error {
	sess, ok := b.host.Get(sessionID)
	if !ok {
		return errors.NewSessionNotFoundError(sessionID)
	}
	return b.lifecycle.Connect(ctx, sess, opts)
}

// DisconnectBackend closes the session's backend connection and waits for
// its message pump to settle.
func (b *Bridge) DisconnectBackend(ctx context.Context, sessionID string) error {
	sess, ok := b.host.Get(sessionID)
	if !ok {
		return errors.NewSessionNotFoundError(sessionID)
	}
	return b.lifecycle.Disconnect(ctx, sess)
}

// CloseSession tears one session down: backend closed and awaited, consumer
// sockets closed, record removed from memory and store.
func (b *Bridge) CloseSession(ctx context.Context, sessionID string) error {
	sess, ok := b.host.Get(sessionID)
	if !ok {
		return errors.NewSessionNotFoundError(sessionID)
	}
	b.closeSession(ctx, sess)
	return nil
}

func (b *Bridge) closeSession(ctx context.Context, sess *session.Session) {
	sess.SetLifecycle(session.LifecycleClosed)
	sess.CancelPendingInitialize()
	sess.CancelPendingPassthroughs()

	if err := b.lifecycle.Disconnect(ctx, sess); err != nil {
		logger.Warnw("backend disconnect during close", "session_id", sess.ID(), "error", err)
	}

	for _, c := range sess.Consumers() {
		if err := c.Close("session closed"); err != nil {
			logger.Debugw("consumer close", "session_id", sess.ID(), "consumer_id", c.ID(), "error", err)
		}
		sess.DetachConsumer(c)
	}

	b.bus.Emit(events.KindSessionClosed, sess.ID(), nil)
	b.host.Remove(ctx, sess.ID())
	logger.Infow("session closed", "session_id", sess.ID())
}

// Close tears down every session. Used on daemon shutdown; individual
// failures are logged, teardown always proceeds.
func (b *Bridge) Close(ctx context.Context) error {
	for _, sess := range b.host.All() {
		b.closeSession(ctx, sess)
	}
	return nil
}

// resolve picks the override session when one is named, enforcing that it
// exists before anything is mutated.
func (b *Bridge) resolve(sessionID, override string) (*session.Session, error) {
	target := sessionID
	if override != "" {
		target = override
	}
	sess, ok := b.host.Get(target)
	if !ok {
		return nil, errors.NewSessionNotFoundError(target)
	}
	return sess, nil
}

// sendOrDrop delivers a control message to the backend. Unlike user
// messages these are meaningless once stale, so without a backend they are
// dropped with a warn instead of queued.
func (b *Bridge) sendOrDrop(sess *session.Session, msg message.Unified, what string) {
	sess.Serialize(func() {
		if !sess.TrySendToBackend(msg) {
			logger.Warnw("no backend, dropping "+what, "session_id", sess.ID())
		}
	})
}

func imageBlocks(images []message.InboundImage) []message.ContentBlock {
	if len(images) == 0 {
		return nil
	}
	out := make([]message.ContentBlock, 0, len(images))
	for _, img := range images {
		out = append(out, message.ImageBlock(img.Data, img.MediaType))
	}
	return out
}

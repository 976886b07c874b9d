// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package router is the central axis of the broker: every unified message,
// whatever its origin, passes through Route exactly once. Routing reduces
// session state, maintains history, projects consumer frames and emits
// domain events. Errors never escape: a failed handler logs and the
// session keeps running.
package router

import (
	"context"

	"github.com/agentmux/agentmux/pkg/broadcast"
	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/policy"
	"github.com/agentmux/agentmux/pkg/session"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// PersistFunc saves a durable snapshot of the session. Called whenever a
// handler changes something worth keeping across restarts.
type PersistFunc func(sess *session.Session)

// GitRefreshFunc re-reads git info for the session's working directory.
// Implementations may complete asynchronously; the router never waits.
type GitRefreshFunc func(sess *session.Session)

// SenderFactory returns the adapter-native initialize sender for a session,
// or nil when the session's adapter has no control-request protocol.
type SenderFactory func(sess *session.Session) policy.InitializeSender

// Options wires a router.
type Options struct {
	Broadcaster *broadcast.Broadcaster
	Bus         *events.Bus
	Gatekeeper  *policy.Gatekeeper
	Negotiator  *policy.Negotiator
	Tracer      telemetry.Tracer
	Metrics     *telemetry.Metrics
	Persist     PersistFunc
	RefreshGit  GitRefreshFunc
	InitSender  SenderFactory
}

// Router applies state reduction, history maintenance, consumer projection
// and event emission for every unified message.
type Router struct {
	broadcaster *broadcast.Broadcaster
	bus         *events.Bus
	gatekeeper  *policy.Gatekeeper
	negotiator  *policy.Negotiator
	tracer      telemetry.Tracer
	metrics     *telemetry.Metrics
	persist     PersistFunc
	refreshGit  GitRefreshFunc
	initSender  SenderFactory
}

// New builds a router. Broadcaster and Bus are required; everything else
// degrades to a no-op when absent.
func New(opts Options) *Router {
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Noop
	}
	if opts.Persist == nil {
		opts.Persist = func(*session.Session) {}
	}
	if opts.RefreshGit == nil {
		opts.RefreshGit = func(*session.Session) {}
	}
	if opts.InitSender == nil {
		opts.InitSender = func(*session.Session) policy.InitializeSender { return nil }
	}
	return &Router{
		broadcaster: opts.Broadcaster,
		bus:         opts.Bus,
		gatekeeper:  opts.Gatekeeper,
		negotiator:  opts.Negotiator,
		tracer:      opts.Tracer,
		metrics:     opts.Metrics,
		persist:     opts.Persist,
		refreshGit:  opts.RefreshGit,
		initSender:  opts.InitSender,
	}
}

// Route processes one inbound unified message under the session's operation
// lock. Handlers for the same session never interleave; a panicking handler
// is contained here.
func (r *Router) Route(ctx context.Context, sess *session.Session, msg message.Unified) {
	sess.Serialize(func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorw("message handler panicked",
					"session_id", sess.ID(), "type", msg.Type, "panic", rec)
			}
		}()
		r.routeLocked(ctx, sess, msg)
	})
}

func (r *Router) routeLocked(ctx context.Context, sess *session.Session, msg message.Unified) {
	r.tracer.Recv("message:routed", map[string]any{
		"session_id": sess.ID(),
		"type":       string(msg.Type),
	})
	r.metrics.RecordRouted(ctx, string(msg.Type))

	prevTeam := sess.State().Team
	next := session.Reduce(sess.State(), msg, sess.TeamCorrelation())
	sess.SetState(next)
	sess.Touch()

	if teamEvents := session.DiffTeam(prevTeam, next.Team); len(teamEvents) > 0 {
		r.broadcaster.Broadcast(sess.ID(), consumersOf(sess), message.Consumer{
			Type:      message.ConsumerSessionUpdate,
			SessionID: sess.ID(),
			State:     sess.State(),
		})
		r.bus.Emit(events.KindTeamUpdated, sess.ID(), teamEvents)
	}

	switch msg.Type {
	case message.TypeSessionInit:
		r.handleSessionInit(ctx, sess, msg)
	case message.TypeStatusChange:
		r.handleStatusChange(sess, msg)
	case message.TypeAssistant:
		r.handleAssistant(sess, msg)
	case message.TypeResult:
		r.handleResult(sess, msg)
	case message.TypeStreamEvent:
		r.handleStreamEvent(sess, msg)
	case message.TypePermissionRequest:
		r.handlePermissionRequest(sess, msg)
	case message.TypeControlResponse:
		r.handleControlResponse(sess, msg)
	case message.TypeToolProgress:
		r.broadcastProjected(sess, msg)
	case message.TypeToolUseSummary:
		r.handleToolUseSummary(sess, msg)
	case message.TypeAuthStatus:
		r.broadcastProjected(sess, msg)
	case message.TypeConfigurationChange:
		r.handleConfigurationChange(sess, msg)
	case message.TypeSessionLifecycle:
		r.broadcastProjected(sess, msg)
	case message.TypeUserMessage:
		r.handleUserMessage(sess, msg)
	default:
		r.tracer.Recv("unhandled:"+string(msg.Type), map[string]any{"session_id": sess.ID()})
	}
}

// SendUserMessage runs the full user-message path under the session's
// operation lock: record in history, broadcast, then deliver to the backend
// or queue for the next connection. The bridge calls this for programmatic
// and transport-originated sends.
func (r *Router) SendUserMessage(sess *session.Session, msg message.Unified) {
	sess.Serialize(func() {
		r.deliverUserMessage(sess, msg)
	})
}

// deliverUserMessage implements the send path. Callers hold the session's
// operation lock.
func (r *Router) deliverUserMessage(sess *session.Session, msg message.Unified) {
	sess.AppendHistory(msg)
	r.broadcaster.Broadcast(sess.ID(), consumersOf(sess), message.Consumer{
		Type:    message.ConsumerUserMessage,
		Message: &msg,
	})
	if sess.TrySendToBackend(msg) {
		return
	}
	sess.EnqueuePendingMessage(msg)
	logger.Debugw("backend unavailable, message queued",
		"session_id", sess.ID(), "pending", len(sess.PendingMessages()))
}

// FlushPending delivers queued messages after a backend connects. FIFO
// order; messages that still cannot be sent are re-queued in order.
func (r *Router) FlushPending(sess *session.Session) {
	sess.Serialize(func() {
		pending := sess.FlushPendingMessages()
		for i, msg := range pending {
			if !sess.TrySendToBackend(msg) {
				for _, rest := range pending[i:] {
					sess.EnqueuePendingMessage(rest)
				}
				return
			}
		}
		if len(pending) > 0 {
			logger.Infow("flushed pending messages", "session_id", sess.ID(), "count", len(pending))
		}
	})
}

func (r *Router) handleSessionInit(ctx context.Context, sess *session.Session, msg message.Unified) {
	if backendID, ok := msg.BackendSessionID(); ok && backendID != "" {
		sess.SetBackendSessionID(backendID)
	}

	sess.ClearDynamicSlashRegistry()
	if commands, ok := msg.MetaStrings("slash_commands"); ok {
		infos := make([]message.SlashCommandInfo, 0, len(commands))
		for _, name := range commands {
			infos = append(infos, message.SlashCommandInfo{Name: name})
		}
		sess.RegisterCLICommands(infos)
	}
	if skills, ok := msg.MetaStrings("skills"); ok {
		sess.RegisterSkillCommands(skills)
	}

	r.refreshGit(sess)
	r.broadcastProjected(sess, msg)

	if r.negotiator != nil {
		if inline, ok := msg.MetaMap("capabilities"); ok {
			r.negotiator.Supply(sess, message.CapabilitySetFromMap(inline))
		} else if sender := r.initSender(sess); sender != nil {
			r.negotiator.Begin(ctx, sess, sender)
		}
	}

	r.persist(sess)
}

func (r *Router) handleStatusChange(sess *session.Session, msg message.Unified) {
	status, _ := msg.MetaString("status")
	prev := sess.SetLastStatus(session.Status(status))
	r.broadcastProjected(sess, msg)

	if session.Status(status) == session.StatusIdle && prev != session.StatusIdle {
		r.flushQueuedMessage(sess)
	}
}

func (r *Router) handleAssistant(sess *session.Session, msg message.Unified) {
	r.recordAssistant(sess, msg)
	r.broadcastProjected(sess, msg)
}

// recordAssistant appends an assistant message, replacing an earlier chunk
// of the same backend message id when the new one carries at least as much
// content. Streaming backends re-emit a message as it grows; history keeps
// one entry per message id.
func (r *Router) recordAssistant(sess *session.Session, msg message.Unified) {
	id, ok := msg.MessageID()
	if !ok || id == "" {
		sess.AppendHistory(msg)
		return
	}
	history := sess.HistorySnapshot()
	for i := len(history) - 1; i >= 0; i-- {
		prev := history[i]
		if prev.Type != message.TypeAssistant {
			continue
		}
		prevID, _ := prev.MessageID()
		if prevID != id {
			continue
		}
		if len(msg.Content) >= len(prev.Content) {
			sess.ReplaceHistoryAt(i, msg)
		}
		return
	}
	sess.AppendHistory(msg)
}

func (r *Router) handleResult(sess *session.Session, msg message.Unified) {
	sess.AppendHistory(msg)
	r.broadcastProjected(sess, msg)

	// Results always end a turn, whether or not the backend said so.
	sess.SetLastStatus(session.StatusIdle)
	r.broadcaster.Broadcast(sess.ID(), consumersOf(sess), message.NewStatusChange(string(session.StatusIdle)))

	r.flushQueuedMessage(sess)
	r.refreshGit(sess)

	if turns, ok := msg.ResultNumTurns(); ok && turns == 1 && !msg.ResultIsError() {
		r.bus.Emit(events.KindFirstTurnCompleted, sess.ID(), events.FirstTurnPayload{
			FirstUserMessage: firstUserText(sess),
		})
	}

	r.persist(sess)
}

func (r *Router) handleStreamEvent(sess *session.Session, msg message.Unified) {
	if eventType, ok := msg.StreamEventType(); ok && eventType == "message_start" && !msg.InsideSubagent() {
		if sess.LastStatus() != session.StatusRunning {
			sess.SetLastStatus(session.StatusRunning)
			r.broadcaster.Broadcast(sess.ID(), consumersOf(sess), message.NewStatusChange(string(session.StatusRunning)))
		}
	}
	r.broadcastProjected(sess, msg)
}

func (r *Router) handlePermissionRequest(sess *session.Session, msg message.Unified) {
	req := permissionFromUnified(msg)
	if r.gatekeeper == nil || !r.gatekeeper.Admit(sess, req) {
		return
	}
	r.broadcaster.BroadcastToParticipants(sess.ID(), consumersOf(sess), message.Consumer{
		Type:    message.ConsumerPermissionRequest,
		Request: req,
	})
	r.persist(sess)
}

func (r *Router) handleControlResponse(sess *session.Session, msg message.Unified) {
	requestID, ok := msg.ControlRequestID()
	if !ok || requestID == "" {
		r.tracer.Recv("unhandled:control_response", map[string]any{"session_id": sess.ID()})
		return
	}

	if response, hasBody := msg.MetaMap("response"); hasBody {
		caps := message.CapabilitySetFromMap(response)
		if sess.ResolvePendingInitialize(requestID, caps) {
			if caps != nil && len(caps.Commands) > 0 {
				sess.RegisterCLICommands(caps.Commands)
			}
			return
		}
	}

	if sess.ResolvePendingPassthrough(requestID, msg) {
		return
	}
	r.tracer.Recv("unhandled:control_response", map[string]any{
		"session_id": sess.ID(),
		"request_id": requestID,
	})
}

func (r *Router) handleToolUseSummary(sess *session.Session, msg message.Unified) {
	if toolUseID, ok := msg.ToolUseID(); ok && toolUseID != "" {
		history := sess.HistorySnapshot()
		for i := len(history) - 1; i >= 0; i-- {
			prev := history[i]
			if prev.Type != message.TypeToolUseSummary {
				continue
			}
			if prevID, _ := prev.ToolUseID(); prevID == toolUseID {
				sess.ReplaceHistoryAt(i, msg)
				r.broadcastProjected(sess, msg)
				return
			}
		}
	}
	sess.AppendHistory(msg)
	r.broadcastProjected(sess, msg)
}

func (r *Router) handleConfigurationChange(sess *session.Session, msg message.Unified) {
	r.broadcastProjected(sess, msg)
	// Follow with a state patch so consumer-side state stays in sync
	// without re-deriving the change client-side.
	r.broadcaster.Broadcast(sess.ID(), consumersOf(sess), message.Consumer{
		Type:      message.ConsumerSessionUpdate,
		SessionID: sess.ID(),
		State:     sess.State(),
	})
	r.persist(sess)
}

func (r *Router) handleUserMessage(sess *session.Session, msg message.Unified) {
	sess.AppendHistory(msg)
	r.broadcastProjected(sess, msg)
}

// flushQueuedMessage sends the held user message, if any, now that the
// backend reported idle. The message takes the normal send path so it lands
// in history and reaches consumers.
func (r *Router) flushQueuedMessage(sess *session.Session) {
	queued, ok := sess.TakeQueuedMessage()
	if !ok {
		return
	}
	logger.Debugw("flushing queued message", "session_id", sess.ID())
	r.deliverUserMessage(sess, queued)
}

// broadcastProjected projects the message to its consumer shape and
// broadcasts the result, if any.
func (r *Router) broadcastProjected(sess *session.Session, msg message.Unified) {
	projected := Project(sess, msg)
	if projected == nil {
		return
	}
	r.broadcaster.Broadcast(sess.ID(), consumersOf(sess), *projected)
}

// consumersOf adapts the session's consumer set to the broadcaster's view.
func consumersOf(sess *session.Session) []broadcast.Consumer {
	conns := sess.Consumers()
	out := make([]broadcast.Consumer, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out
}

// firstUserText finds the first user message in history, for auto-naming.
func firstUserText(sess *session.Session) string {
	for _, msg := range sess.HistorySnapshot() {
		if msg.Type == message.TypeUserMessage && msg.Role == message.RoleUser {
			if text := msg.JoinedText(); text != "" {
				return text
			}
		}
	}
	return ""
}

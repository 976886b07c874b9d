// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package consumer is the WebSocket transport for UI consumers. It owns the
// handshake (authentication, session resolution, stable consumer identity,
// role), replay delivery for reconnecting consumers, and the read loop that
// feeds inbound frames through the bridge. Everything session-semantic lives
// behind the bridge; this package only moves frames.
package consumer

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentmux/agentmux/pkg/bridge"
	"github.com/agentmux/agentmux/pkg/broadcast"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/replay"
	"github.com/agentmux/agentmux/pkg/session"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// SessionSource resolves session ids to live sessions.
type SessionSource interface {
	Get(id string) (*session.Session, bool)
}

// Options configures the consumer endpoint.
type Options struct {
	Sessions    SessionSource
	Bridge      *bridge.Bridge
	Broadcaster *broadcast.Broadcaster
	Replay      *replay.Handler
	Bus         *events.Bus
	Auth        Authenticator
	Tracer      telemetry.Tracer
	Metrics     *telemetry.Metrics

	// AllowedOrigins restricts browser connections; empty admits all.
	AllowedOrigins []string

	// MaxMessageSize caps one inbound frame in bytes. A frame of exactly
	// this size is accepted; one byte more closes the connection.
	MaxMessageSize int

	// InitialReplayCount is how many trailing messages a consumer that does
	// not supply last_seen_seq receives at attach.
	InitialReplayCount int
}

// Handler upgrades and serves consumer WebSocket connections.
type Handler struct {
	sessions SessionSource
	bridge   *bridge.Bridge
	bcast    *broadcast.Broadcaster
	replay   *replay.Handler
	bus      *events.Bus
	auth     Authenticator
	tracer   telemetry.Tracer
	metrics  *telemetry.Metrics

	upgrader       websocket.Upgrader
	maxMessageSize int
	initialReplay  int
}

// New builds the consumer endpoint handler.
func New(opts Options) (*Handler, error) {
	if opts.Sessions == nil || opts.Bridge == nil || opts.Broadcaster == nil ||
		opts.Replay == nil || opts.Bus == nil {
		return nil, errors.NewValidationError(
			"consumer handler requires sessions, bridge, broadcaster, replay and bus", nil)
	}
	auth := opts.Auth
	if auth == nil {
		auth = allowAll{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop
	}
	maxSize := opts.MaxMessageSize
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	initialReplay := opts.InitialReplayCount
	if initialReplay < 0 {
		initialReplay = 0
	}
	return &Handler{
		sessions:       opts.Sessions,
		bridge:         opts.Bridge,
		bcast:          opts.Broadcaster,
		replay:         opts.Replay,
		bus:            opts.Bus,
		auth:           auth,
		tracer:         tracer,
		metrics:        opts.Metrics,
		upgrader:       makeUpgrader(opts.AllowedOrigins),
		maxMessageSize: maxSize,
		initialReplay:  initialReplay,
	}, nil
}

// makeUpgrader builds the upgrader with the origin policy. Requests without
// an Origin header are non-browser clients and always pass.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	admitAll := len(allowedOrigins) == 0 ||
		(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if admitAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return originSet[origin]
		},
	}
}

// ServeHTTP upgrades the connection and runs the handshake and read loop.
// Failures after the upgrade come back as structured error frames followed
// by a close, so UI clients have a single error surface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.Debugw("websocket upgrade refused", "remote", r.RemoteAddr, "error", err)
		return
	}

	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		closeWithError(ws, errors.NewValidationError("session_id query parameter is required", nil))
		return
	}

	if err := h.auth.Authenticate(r); err != nil {
		logger.Warnw("consumer authentication failed",
			"session_id", sessionID, "remote", r.RemoteAddr, "error", err)
		h.bus.Emit(events.KindAuthFailed, sessionID,
			events.AuthPayload{Remote: r.RemoteAddr, Reason: err.Error()})
		closeWithError(ws, err)
		return
	}

	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		closeWithError(ws, errors.NewSessionNotFoundError(sessionID))
		return
	}

	consumerID := q.Get("consumer_id")
	if consumerID == "" || !h.replay.IsKnownConsumer(sessionID, consumerID) {
		consumerID = uuid.NewString()
	}

	role := message.RoleParticipant
	if q.Get("role") == message.RoleObserver {
		role = message.RoleObserver
	}

	var lastSeen uint64
	var hasLastSeen bool
	if v := q.Get("last_seen_seq"); v != "" {
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			closeWithError(ws, errors.NewValidationError("last_seen_seq must be an unsigned integer", perr))
			return
		}
		lastSeen, hasLastSeen = n, true
	}

	h.replay.RegisterConsumer(sessionID, consumerID)

	// The snapshot, backlog enqueue and attach run under the session op lock
	// so a concurrent broadcast cannot slip between the replay cut and the
	// socket becoming visible to fan-out. Everything inside is queue work.
	var cn *conn
	var displaced session.ConsumerConn
	sess.Serialize(func() {
		var backlog []message.Sequenced
		if hasLastSeen {
			backlog = h.replay.ReplayAfter(sessionID, lastSeen)
		} else if h.initialReplay > 0 {
			backlog = h.replay.Tail(sessionID, h.initialReplay)
		}
		if role == message.RoleObserver {
			kept := make([]message.Sequenced, 0, len(backlog))
			for _, env := range backlog {
				if !message.ParticipantOnly(env.Payload.Type) {
					kept = append(kept, env)
				}
			}
			backlog = kept
		}
		cn = newConn(consumerID, role, ws, len(backlog))
		for _, env := range backlog {
			if err := h.bcast.SendSequenced(cn, env); err != nil {
				logger.Warnw("replay delivery failed",
					"session_id", sessionID, "consumer_id", consumerID, "error", err)
				break
			}
		}
		_ = h.bcast.SendTo(cn, message.Consumer{
			Type:             message.ConsumerCLIConnected,
			BackendConnected: sess.BackendConnected(),
		})
		displaced = sess.AttachConsumer(cn)
	})
	if displaced != nil {
		_ = displaced.Close("replaced by new connection")
	}

	h.tracer.Recv("consumer:connected", map[string]any{
		"session_id":  sessionID,
		"consumer_id": consumerID,
		"role":        role,
	})
	h.metrics.RecordConsumerEvent(r.Context(), "connected")
	h.bus.Emit(events.KindConsumerConnected, sessionID,
		events.ConsumerPayload{ConsumerID: consumerID, Role: role})

	h.readLoop(r.Context(), sess, cn)
	h.detach(sess, cn)
}

// readLoop pumps inbound frames until the socket dies. Malformed and
// rate-limited frames are answered with targeted error frames and dropped;
// everything else dispatches through the bridge.
func (h *Handler) readLoop(ctx context.Context, sess *session.Session, cn *conn) {
	cn.ws.SetReadLimit(int64(h.maxMessageSize))
	limiter := sess.RateLimiterFor(cn.id)

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugw("consumer read ended",
					"session_id", sess.ID(), "consumer_id", cn.id, "error", err)
			}
			return
		}

		var frame message.Inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = h.bcast.SendTo(cn, message.NewErrorMessage(errors.ErrValidation, "malformed frame: invalid JSON"))
			continue
		}

		if !limiter.Allow() {
			h.metrics.RecordRateLimitReject(ctx)
			h.tracer.Recv("consumer:rate_limited", map[string]any{
				"session_id": sess.ID(), "consumer_id": cn.id,
			})
			_ = h.bcast.SendTo(cn, message.NewErrorMessage(errors.ErrRateLimit, "message rate limit exceeded"))
			continue
		}

		if reply := h.bridge.HandleInbound(ctx, sess, cn.id, frame); reply != nil {
			_ = h.bcast.SendTo(cn, *reply)
		}
	}
}

// detach runs once per connection after the read loop ends: the replay
// cursor is recorded, the socket deregistered and policy notified. The
// broadcaster's failure path may have detached the consumer already, so the
// disconnect event is tied to winning the detach.
func (h *Handler) detach(sess *session.Session, cn *conn) {
	_ = cn.Close("connection closed")
	h.replay.SetLastSeen(sess.ID(), cn.id, h.replay.CurrentSeq(sess.ID()))
	if sess.DetachConsumer(cn) {
		h.metrics.RecordConsumerEvent(context.Background(), "disconnected")
		h.bus.Emit(events.KindConsumerDisconnected, sess.ID(),
			events.ConsumerPayload{ConsumerID: cn.id, Role: cn.role})
	}
}

// closeWithError delivers one structured error frame and closes the socket.
// Used for handshake rejections, before a conn exists.
func closeWithError(ws *websocket.Conn, err error) {
	frame := message.NewErrorMessage(errors.TypeOf(err), err.Error())
	if data, merr := json.Marshal(frame); merr == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.TextMessage, data)
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errors.TypeOf(err)),
		time.Now().Add(writeWait))
	_ = ws.Close()
}

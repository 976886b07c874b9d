// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package invertedws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/adapter/streamjson"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

const (
	// messageBuffer is the inbound channel depth before the pump blocks.
	messageBuffer = 64
	// writeTimeout bounds a single frame write to a stalled backend.
	writeTimeout = 10 * time.Second
	// maxFrameSize bounds one protocol frame (10 MB, matching the stdio
	// line limit).
	maxFrameSize = 10 * 1024 * 1024
)

// Session is a callback-connected backend. The daemon creates one when a
// tool dials /backend/ws and binds it to the broker session it names.
type Session struct {
	sessionID string
	conn      *websocket.Conn
	tracer    telemetry.Tracer

	enc      streamjson.Encoder
	writeMu  sync.Mutex
	messages chan message.Unified

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSession wraps an upgraded callback socket. The read pump starts
// immediately; the caller wires Messages() into the router before the first
// frame can arrive because the channel is buffered.
func NewSession(sessionID string, conn *websocket.Conn, tracer telemetry.Tracer) *Session {
	if tracer == nil {
		tracer = telemetry.Noop
	}
	conn.SetReadLimit(maxFrameSize)
	s := &Session{
		sessionID: sessionID,
		conn:      conn,
		tracer:    tracer,
		messages:  make(chan message.Unified, messageBuffer),
	}
	go s.readPump()
	return s
}

// SessionID implements adapter.BackendSession.
func (s *Session) SessionID() string { return s.sessionID }

// Messages implements adapter.BackendSession.
func (s *Session) Messages() <-chan message.Unified { return s.messages }

// Send encodes and writes one unified message as a single text frame.
func (s *Session) Send(ctx context.Context, msg message.Unified) error {
	frame, err := s.enc.Encode(msg)
	if err != nil {
		s.tracer.Send("encode_failed:"+string(msg.Type), map[string]any{
			"session_id": s.sessionID, "error": err.Error(),
		})
		return err
	}
	s.tracer.Send("backend:"+string(msg.Type), map[string]any{"session_id": s.sessionID})
	return s.writeFrame(ctx, frame)
}

// SendRaw writes pre-encoded wire bytes as a single text frame.
func (s *Session) SendRaw(ctx context.Context, raw []byte) error {
	s.tracer.Send("backend:raw", map[string]any{"session_id": s.sessionID})
	return s.writeFrame(ctx, raw)
}

func (s *Session) writeFrame(ctx context.Context, frame []byte) error {
	if s.closed.Load() {
		return errors.NewSessionClosedError(s.sessionID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.NewBackendUnavailableError("backend socket write failed: " + err.Error())
	}
	return nil
}

// Close sends a close frame and tears the socket down. Idempotent; the read
// pump closes the message channel once the socket dies.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// readPump translates inbound frames until the socket dies. Frames that
// fail to parse are traced and skipped.
func (s *Session) readPump() {
	defer close(s.messages)

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugw("backend socket read ended",
					"session_id", s.sessionID, "error", err.Error())
			}
			return
		}
		if len(frame) == 0 {
			continue
		}

		msg, mapped, err := streamjson.DecodeLine(frame)
		if err != nil {
			s.tracer.Recv("raw_unparsed_line", map[string]any{
				"session_id": s.sessionID, "bytes": len(frame),
			})
			continue
		}
		if !mapped {
			s.tracer.Recv("unmapped_type:"+streamjson.Describe(frame), map[string]any{
				"session_id": s.sessionID,
			})
			continue
		}

		s.tracer.Recv("backend:"+string(msg.Type), map[string]any{"session_id": s.sessionID})
		s.messages <- msg
	}
}

var _ adapter.BackendSession = (*Session)(nil)

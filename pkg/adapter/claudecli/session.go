// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package claudecli

import (
	"bufio"
	"context"
	"sync"
	"sync/atomic"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/adapter/streamjson"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

const (
	// initialScanBuffer is the starting JSONL scanner buffer (64 KB).
	initialScanBuffer = 64 * 1024
	// maxScanBuffer bounds a single protocol line (10 MB).
	maxScanBuffer = 10 * 1024 * 1024
	// messageBuffer is the inbound channel depth before the pump blocks.
	messageBuffer = 64
)

// backendSession is one live CLI process bound to one broker session.
type backendSession struct {
	sessionID string
	proc      *launcher.Process
	tracer    telemetry.Tracer
	onOutput  adapter.OutputFunc

	enc      streamjson.Encoder
	writeMu  sync.Mutex
	messages chan message.Unified

	closed    atomic.Bool
	closeOnce sync.Once
}

func newBackendSession(sessionID string, proc *launcher.Process, tracer telemetry.Tracer, onOutput adapter.OutputFunc) *backendSession {
	s := &backendSession{
		sessionID: sessionID,
		proc:      proc,
		tracer:    tracer,
		onOutput:  onOutput,
		messages:  make(chan message.Unified, messageBuffer),
	}
	go s.pumpStdout()
	go s.pumpStderr()
	return s
}

// SessionID implements adapter.BackendSession.
func (s *backendSession) SessionID() string { return s.sessionID }

// Messages implements adapter.BackendSession.
func (s *backendSession) Messages() <-chan message.Unified { return s.messages }

// Send encodes and writes one unified message as a single stdin line.
func (s *backendSession) Send(ctx context.Context, msg message.Unified) error {
	line, err := s.enc.Encode(msg)
	if err != nil {
		s.tracer.Send("encode_failed:"+string(msg.Type), map[string]any{
			"session_id": s.sessionID, "error": err.Error(),
		})
		return err
	}
	s.tracer.Send("backend:"+string(msg.Type), map[string]any{"session_id": s.sessionID})
	return s.writeLine(ctx, line)
}

// SendRaw writes pre-encoded wire bytes as a single stdin line.
func (s *backendSession) SendRaw(ctx context.Context, raw []byte) error {
	s.tracer.Send("backend:raw", map[string]any{"session_id": s.sessionID})
	return s.writeLine(ctx, raw)
}

func (s *backendSession) writeLine(ctx context.Context, line []byte) error {
	if s.closed.Load() {
		return errors.NewSessionClosedError(s.sessionID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.proc.Stdin.Write(append(line, '\n')); err != nil {
		return errors.NewBackendUnavailableError("backend stdin write failed: " + err.Error())
	}
	return nil
}

// Close stops the process and releases the pumps. Idempotent; the stdout
// pump closes the message channel when the process exits.
func (s *backendSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.proc.Stop()
	})
	return err
}

// pumpStdout translates protocol lines into the message channel until EOF.
// Lines that fail to parse are traced and skipped; the protocol stream
// stays alive across garbage.
func (s *backendSession) pumpStdout() {
	defer close(s.messages)

	scanner := bufio.NewScanner(s.proc.Stdout)
	scanner.Buffer(make([]byte, initialScanBuffer), maxScanBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, mapped, err := streamjson.DecodeLine(line)
		if err != nil {
			s.tracer.Recv("raw_unparsed_line", map[string]any{
				"session_id": s.sessionID, "bytes": len(line),
			})
			s.emitOutput("stdout", string(line))
			continue
		}
		if !mapped {
			s.tracer.Recv("unmapped_type:"+streamjson.Describe(line), map[string]any{
				"session_id": s.sessionID,
			})
			continue
		}

		s.tracer.Recv("backend:"+string(msg.Type), map[string]any{"session_id": s.sessionID})
		s.messages <- msg
	}

	if err := scanner.Err(); err != nil {
		logger.Warnw("backend stdout scanner stopped",
			"session_id", s.sessionID, "error", err.Error())
	}
}

// pumpStderr forwards diagnostic output line by line.
func (s *backendSession) pumpStderr() {
	scanner := bufio.NewScanner(s.proc.Stderr)
	scanner.Buffer(make([]byte, initialScanBuffer), maxScanBuffer)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			s.emitOutput("stderr", line)
		}
	}
}

func (s *backendSession) emitOutput(stream, data string) {
	if s.onOutput != nil {
		s.onOutput(s.sessionID, stream, data)
	}
}

var _ adapter.BackendSession = (*backendSession)(nil)

// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package slashcmd parses and dispatches slash commands. Resolution order:
// broker built-ins run locally; commands the backend announced during init
// pass through as user messages; commands only the local runner knows are
// executed as subprocesses. Anything else is an error frame back to the
// caller.
package slashcmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/session"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// Builtin is a locally executed command. The returned string becomes the
// slash_command_result output.
type Builtin func(ctx context.Context, sess *session.Session, args string) (string, error)

// Runner executes commands outside the backend, typically by spawning the
// agent binary and scraping its output. Optional; a nil Runner disables the
// local-execution tier.
type Runner interface {
	// CanRun reports whether the runner knows how to execute name.
	CanRun(name string) bool
	// Run executes the command in cwd and returns the scraped output.
	Run(ctx context.Context, name, args, cwd string) (string, error)
}

type builtinEntry struct {
	fn          Builtin
	description string
}

// Service resolves and executes slash commands for sessions.
type Service struct {
	runner Runner
	tracer telemetry.Tracer

	mu       sync.RWMutex
	builtins map[string]builtinEntry
}

// New builds a Service with the standard built-ins registered. runner may
// be nil.
func New(runner Runner, tracer telemetry.Tracer) *Service {
	if tracer == nil {
		tracer = telemetry.Noop
	}
	s := &Service{
		runner:   runner,
		tracer:   tracer,
		builtins: make(map[string]builtinEntry),
	}
	s.registerDefaults()
	return s
}

// RegisterBuiltin adds a locally executed command. Re-registering a name
// replaces it.
func (s *Service) RegisterBuiltin(name, description string, fn Builtin) error {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" || fn == nil {
		return errors.NewValidationError("builtin requires a name and a function", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builtins[name] = builtinEntry{fn: fn, description: description}
	return nil
}

// Parse splits a "/name args" command line. The leading slash is required;
// args keep their internal spacing.
func Parse(command string) (name, args string, err error) {
	command = strings.TrimSpace(command)
	if !strings.HasPrefix(command, "/") {
		return "", "", errors.NewValidationError("slash command must start with /", nil)
	}
	rest := strings.TrimPrefix(command, "/")
	if rest == "" {
		return "", "", errors.NewValidationError("slash command has no name", nil)
	}
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		return rest[:i], strings.TrimSpace(rest[i+1:]), nil
	}
	return rest, "", nil
}

// Execute resolves one slash command. It returns the consumer frame to
// broadcast and forwarded=false, or forwarded=true when the command was
// passed through to the backend and the backend's own stream carries the
// outcome.
func (s *Service) Execute(ctx context.Context, sess *session.Session, command, requestID string) (message.Consumer, bool) {
	name, args, err := Parse(command)
	if err != nil {
		return message.NewSlashCommandError(requestID, errors.TypeOf(err), err.Error()), false
	}

	s.tracer.Recv("slash_command", map[string]any{
		"session_id": sess.ID(),
		"command":    name,
		"request_id": requestID,
	})

	if entry, ok := s.builtin(name); ok {
		out, err := entry.fn(ctx, sess, args)
		if err != nil {
			return message.NewSlashCommandError(requestID, errors.TypeOf(err), err.Error()), false
		}
		return message.NewSlashCommandResult(requestID, out), false
	}

	if _, ok := sess.Registry().Lookup(name); ok {
		return s.passthrough(sess, command, requestID)
	}

	if s.runner != nil && s.runner.CanRun(name) {
		out, err := s.runner.Run(ctx, name, args, sess.State().CWD)
		if err != nil {
			return message.NewSlashCommandError(requestID, errors.TypeOf(err), err.Error()), false
		}
		return message.NewSlashCommandResult(requestID, out), false
	}

	return message.NewSlashCommandError(requestID, errors.ErrValidation,
		fmt.Sprintf("unknown command /%s", name)), false
}

// passthrough forwards a backend-registered command as a user message. The
// backend interprets slash text in user messages natively; with no backend
// connected the command queues like any other user message.
func (s *Service) passthrough(sess *session.Session, command, requestID string) (message.Consumer, bool) {
	msg := message.NewUserMessage(command)
	if !sess.TrySendToBackend(msg) {
		sess.EnqueuePendingMessage(msg)
		logger.Debugw("slash passthrough queued, no backend",
			"session_id", sess.ID(), "command", command)
	}
	s.tracer.Send("slash_command:passthrough", map[string]any{
		"session_id": sess.ID(),
		"request_id": requestID,
	})
	return message.Consumer{}, true
}

func (s *Service) builtin(name string) (builtinEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.builtins[name]
	return e, ok
}

func (s *Service) registerDefaults() {
	s.builtins["help"] = builtinEntry{
		description: "list available commands",
		fn:          s.helpBuiltin,
	}
	s.builtins["status"] = builtinEntry{
		description: "show session status",
		fn:          statusBuiltin,
	}
}

func (s *Service) helpBuiltin(_ context.Context, sess *session.Session, _ string) (string, error) {
	var lines []string

	s.mu.RLock()
	for name, entry := range s.builtins {
		lines = append(lines, fmt.Sprintf("/%s - %s", name, entry.description))
	}
	s.mu.RUnlock()

	for _, cmd := range sess.Registry().All() {
		desc := cmd.Info.Description
		if desc == "" {
			desc = string(cmd.Source)
		}
		lines = append(lines, fmt.Sprintf("/%s - %s", cmd.Info.Name, desc))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

func statusBuiltin(_ context.Context, sess *session.Session, _ string) (string, error) {
	st := sess.State()
	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\n", sess.ID())
	fmt.Fprintf(&b, "lifecycle: %s\n", sess.Lifecycle())
	if st.Model != "" {
		fmt.Fprintf(&b, "model: %s\n", st.Model)
	}
	if st.CWD != "" {
		fmt.Fprintf(&b, "cwd: %s\n", st.CWD)
	}
	fmt.Fprintf(&b, "turns: %d\n", st.NumTurns)
	if st.TotalCostUSD > 0 {
		fmt.Fprintf(&b, "cost_usd: %.4f\n", st.TotalCostUSD)
	}
	fmt.Fprintf(&b, "backend: %v\n", sess.BackendConnected())
	return strings.TrimRight(b.String(), "\n"), nil
}

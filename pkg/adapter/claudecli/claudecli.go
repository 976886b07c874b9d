// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package claudecli adapts the Claude Code CLI as an outbound-spawn backend.
// The CLI is spawned with stream-json on both sides; each stdout line is one
// JSON message decoded into the unified envelope, and each unified message
// sent downstream is encoded into one stdin line.
package claudecli

import (
	"context"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// AdapterName is the resolver key for this adapter.
const AdapterName = "claude-cli"

// Adapter spawns Claude Code CLI processes and speaks stream-json to them.
type Adapter struct {
	launcher *launcher.Launcher
	binary   string
	tracer   telemetry.Tracer
	onOutput adapter.OutputFunc

	// Seam for tests.
	args func(adapter.ConnectOptions) []string
}

// New creates the adapter. binary is the CLI executable name or absolute
// path; onOutput may be nil when process output should be discarded.
func New(l *launcher.Launcher, binary string, tracer telemetry.Tracer, onOutput adapter.OutputFunc) *Adapter {
	if tracer == nil {
		tracer = telemetry.Noop
	}
	return &Adapter{
		launcher: l,
		binary:   binary,
		tracer:   tracer,
		onOutput: onOutput,
		args:     buildArgs,
	}
}

// Name implements adapter.Adapter.
func (*Adapter) Name() string { return AdapterName }

// Capabilities implements adapter.Adapter. Availability reflects whether the
// configured binary resolves right now.
func (a *Adapter) Capabilities() adapter.Capabilities {
	availability := adapter.AvailabilityAvailable
	if _, err := a.launcher.ResolveBinary(a.binary); err != nil {
		availability = adapter.AvailabilityUnavailable
	}
	return adapter.Capabilities{
		Streaming:     true,
		Permissions:   true,
		SlashCommands: true,
		Teams:         true,
		Availability:  availability,
	}
}

// Connect spawns the CLI for one session and returns the live backend
// session. A non-empty ResumeSessionID is passed through as --resume; the
// CLI decides whether it can actually resume.
func (a *Adapter) Connect(ctx context.Context, sessionID string, opts adapter.ConnectOptions) (adapter.BackendSession, error) {
	spec := launcher.Spec{
		Binary: a.binary,
		Args:   a.args(opts),
		Dir:    opts.CWD,
		Env:    opts.ExtraEnv,
	}
	proc, err := a.launcher.Spawn(ctx, spec)
	if err != nil {
		return nil, err
	}
	return newBackendSession(sessionID, proc, a.tracer, a.onOutput), nil
}

// buildArgs assembles the CLI argument list for one connection.
func buildArgs(opts adapter.ConnectOptions) []string {
	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
	}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	return append(args, opts.ExtraArgs...)
}

var _ adapter.Adapter = (*Adapter)(nil)

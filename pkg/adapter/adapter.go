// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter defines the contract between the broker core and a
// concrete coding-agent backend. Adapters own both translation boundaries
// on the backend side: they encode unified messages into the tool's wire
// format and decode the tool's output back into unified messages. The rest
// of the broker never sees backend wire bytes.
package adapter

import (
	"context"

	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/message"
)

// Availability values reported by Capabilities.
const (
	// AvailabilityAvailable means the adapter can serve new sessions.
	AvailabilityAvailable = "available"
	// AvailabilityUnavailable means the adapter is registered but cannot
	// currently connect, for example because its binary is missing.
	AvailabilityUnavailable = "unavailable"
)

// Capabilities describes what a backend can do. The negotiator merges this
// static view with whatever the live backend reports during initialize.
type Capabilities struct {
	Streaming     bool   `json:"streaming"`
	Permissions   bool   `json:"permissions"`
	SlashCommands bool   `json:"slash_commands"`
	Teams         bool   `json:"teams"`
	Availability  string `json:"availability"`
}

// ConnectOptions carries per-connection parameters. Zero values mean
// "adapter default".
type ConnectOptions struct {
	// CWD is the working directory the backend should operate in.
	CWD string
	// ResumeSessionID asks the backend to resume a previous backend-side
	// session. Adapters without native resume ignore it and start fresh.
	ResumeSessionID string
	// Model selects the backend model when the adapter supports it.
	Model string
	// PermissionMode seeds the backend's permission behavior.
	PermissionMode string
	// ExtraArgs are appended to the adapter's launch arguments verbatim.
	ExtraArgs []string
	// ExtraEnv entries (KEY=VALUE) are added on top of the deny-filtered
	// inherited environment.
	ExtraEnv []string
}

// OutputFunc receives raw process output lines that are not part of the
// backend protocol, keyed by stream ("stdout" or "stderr"). Implementations
// surface them to participants as process_output.
type OutputFunc func(sessionID, stream, data string)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=adapter.go Adapter,BackendSession

// Adapter is one backend integration. Implementations must be safe for
// concurrent use; Connect may be called for many sessions at once.
type Adapter interface {
	// Name returns the registry key, e.g. "claude-cli".
	Name() string

	// Capabilities returns the static capability view of this adapter.
	Capabilities() Capabilities

	// Connect establishes a live backend session. Outbound-spawn adapters
	// block until the backend process or dial is up; inverted adapters do
	// not implement a blocking Connect and return an error directing the
	// caller to LaunchSpec instead.
	Connect(ctx context.Context, sessionID string, opts ConnectOptions) (BackendSession, error)
}

// BackendSession is one live backend attached to one broker session.
type BackendSession interface {
	// SessionID returns the broker session id this backend serves.
	SessionID() string

	// Send encodes a unified message through the adapter's outbound
	// translation and delivers it. Returns a session-closed error after
	// Close.
	Send(ctx context.Context, msg message.Unified) error

	// SendRaw delivers pre-encoded backend wire bytes, bypassing the
	// outbound translation. Used for adapter-native control requests.
	SendRaw(ctx context.Context, raw []byte) error

	// Messages returns the inbound unified stream. The channel closes when
	// the backend disconnects or Close is called.
	Messages() <-chan message.Unified

	// Close tears the backend down. Idempotent.
	Close() error
}

// InvertedConnector marks adapters whose backend dials back into the broker
// instead of being connected outbound. The lifecycle manager launches the
// returned spec and waits for the callback on /backend/ws.
type InvertedConnector interface {
	// LaunchSpec builds the process spec that, once running, will call
	// back into the broker for the given session.
	LaunchSpec(sessionID string, opts ConnectOptions) (launcher.Spec, error)
}

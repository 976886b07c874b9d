// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package invertedws adapts backends that dial back into the broker instead
// of being connected outbound. The lifecycle manager launches the tool from
// the spec this package builds; the tool then opens a WebSocket to
// /backend/ws and speaks the stream-json protocol over text frames.
package invertedws

import (
	"context"
	"strconv"
	"strings"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// AdapterName is the resolver key for this adapter.
const AdapterName = "inverted-ws"

// Environment variables handed to the launched tool so it can find its way
// back to the broker.
const (
	envCallbackURL = "AMUX_CALLBACK_URL"
	envSessionID   = "AMUX_SESSION_ID"
)

// Adapter launches callback-style backends.
type Adapter struct {
	binary      string
	urlTemplate string
	host        string
	port        int
	tracer      telemetry.Tracer
}

// New creates the adapter. urlTemplate carries {host}, {port} and
// {session_id} placeholders, e.g.
// "ws://{host}:{port}/backend/ws?session_id={session_id}".
func New(binary, urlTemplate, host string, port int, tracer telemetry.Tracer) *Adapter {
	if tracer == nil {
		tracer = telemetry.Noop
	}
	return &Adapter{
		binary:      binary,
		urlTemplate: urlTemplate,
		host:        host,
		port:        port,
		tracer:      tracer,
	}
}

// Name implements adapter.Adapter.
func (*Adapter) Name() string { return AdapterName }

// Capabilities implements adapter.Adapter.
func (*Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Streaming:     true,
		Permissions:   true,
		SlashCommands: true,
		Teams:         true,
		Availability:  adapter.AvailabilityAvailable,
	}
}

// Connect always fails: the backend connects to us. Callers must detect the
// InvertedConnector and go through LaunchSpec plus the callback endpoint.
func (*Adapter) Connect(context.Context, string, adapter.ConnectOptions) (adapter.BackendSession, error) {
	return nil, errors.NewBackendUnavailableError(
		"inverted adapter has no outbound connect; launch the tool and wait for its callback")
}

// LaunchSpec implements adapter.InvertedConnector. The callback URL and
// session id travel in the environment so the tool needs no argument
// conventions.
func (a *Adapter) LaunchSpec(sessionID string, opts adapter.ConnectOptions) (launcher.Spec, error) {
	if sessionID == "" {
		return launcher.Spec{}, errors.NewValidationError("session id required for launch", nil)
	}
	url := a.CallbackURL(sessionID)
	if url == "" {
		return launcher.Spec{}, errors.NewValidationError("cli websocket url template is empty", nil)
	}

	env := append([]string{
		envCallbackURL + "=" + url,
		envSessionID + "=" + sessionID,
	}, opts.ExtraEnv...)

	return launcher.Spec{
		Binary: a.binary,
		Args:   opts.ExtraArgs,
		Dir:    opts.CWD,
		Env:    env,
	}, nil
}

// CallbackURL expands the configured template for one session.
func (a *Adapter) CallbackURL(sessionID string) string {
	r := strings.NewReplacer(
		"{host}", a.host,
		"{port}", strconv.Itoa(a.port),
		"{session_id}", sessionID,
	)
	return r.Replace(a.urlTemplate)
}

var (
	_ adapter.Adapter           = (*Adapter)(nil)
	_ adapter.InvertedConnector = (*Adapter)(nil)
)

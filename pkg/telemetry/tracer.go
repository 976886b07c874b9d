// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
)

// Tracer records message flow at the translation boundaries. Scopes follow a
// "direction:detail" convention, e.g. "recv:assistant", "unhandled:foo",
// "raw_unparsed_line". Payloads are canonicalized before rendering so traces
// of the same message are byte-stable regardless of which adapter built it.
type Tracer interface {
	Recv(scope string, payload any)
	Send(scope string, payload any)
}

// Noop is the shared no-op tracer. Safe for concurrent use from any number of
// components.
var Noop Tracer = noopTracer{}

type noopTracer struct{}

func (noopTracer) Recv(string, any) {}
func (noopTracer) Send(string, any) {}

// LogTracer renders traces at debug level through the process logger.
type LogTracer struct{}

// Recv logs one received payload.
func (LogTracer) Recv(scope string, payload any) {
	logTrace("recv", scope, payload)
}

// Send logs one sent payload.
func (LogTracer) Send(scope string, payload any) {
	logTrace("send", scope, payload)
}

func logTrace(dir, scope string, payload any) {
	b, err := message.CanonicalJSON(payload)
	if err != nil {
		logger.Debugw("trace", "dir", dir, "scope", scope, "payload_err", err.Error())
		return
	}
	logger.Debugw("trace", "dir", dir, "scope", scope, "payload", string(b))
}

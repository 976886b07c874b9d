// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"github.com/google/uuid"

	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
)

// PermissionHost is the slice of the session runtime the gatekeeper needs.
// Pending requests live in the session record behind the mutation guard.
type PermissionHost interface {
	ID() string
	// StorePendingPermission records the request, evicting and returning
	// the oldest pending entry when the capped store is full.
	StorePendingPermission(req *message.PermissionRequest) (*message.PermissionRequest, error)
	// ClearPendingPermission removes and returns the pending request, or
	// false when the id is unknown or already resolved.
	ClearPendingPermission(requestID string) (*message.PermissionRequest, bool)
}

// Gatekeeper correlates backend permission requests with participant
// replies. Every request is guaranteed a request id before it is surfaced;
// the first reply for an id wins and later replies are silent no-ops.
type Gatekeeper struct {
	bus *events.Bus
}

// NewGatekeeper creates a permission gatekeeper.
func NewGatekeeper(bus *events.Bus) *Gatekeeper {
	return &Gatekeeper{bus: bus}
}

// Admit registers an incoming permission request, assigning a request id if
// the backend omitted one. A full pending store evicts its oldest entry
// with a warning; the new request is always surfaced.
func (g *Gatekeeper) Admit(host PermissionHost, req *message.PermissionRequest) bool {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	evicted, err := host.StorePendingPermission(req)
	if err != nil {
		logger.Warnw("dropping malformed permission request",
			"session_id", host.ID(), "request_id", req.RequestID,
			"tool", req.ToolName, "error", err)
		return false
	}
	if evicted != nil {
		logger.Warnw("pending permissions full, dropping oldest request",
			"session_id", host.ID(), "dropped_request_id", evicted.RequestID,
			"dropped_tool", evicted.ToolName, "request_id", req.RequestID)
	}

	g.bus.Emit(events.KindPermissionRequested, host.ID(), events.PermissionPayload{
		RequestID: req.RequestID,
		ToolName:  req.ToolName,
	})
	return true
}

// Resolve applies a participant reply. The first reply for a request id
// removes it from pending and is returned for downstream delivery; an
// unknown or already-resolved id logs a warning and reports false.
func (g *Gatekeeper) Resolve(host PermissionHost, requestID string, behavior message.PermissionBehavior) (*message.PermissionRequest, bool) {
	req, ok := host.ClearPendingPermission(requestID)
	if !ok {
		logger.Warnw("permission reply for unknown request id",
			"session_id", host.ID(), "request_id", requestID)
		return nil, false
	}

	g.bus.Emit(events.KindPermissionResolved, host.ID(), events.PermissionPayload{
		RequestID: requestID,
		ToolName:  req.ToolName,
		Behavior:  string(behavior),
	})
	return req, true
}

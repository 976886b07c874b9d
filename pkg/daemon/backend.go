// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/agentmux/agentmux/pkg/adapter/invertedws"
	"github.com/agentmux/agentmux/pkg/logger"
)

// backendUpgrader upgrades callback sockets. The dialer is a local tool, not
// a browser, so the origin check is a pass-through.
var backendUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleBackendCallback accepts an inverted backend dialing in on
// /backend/ws?session_id=<id> and binds it to its session. Exactly one live
// backend per session: a second callback while one is bound is refused and
// its socket closed.
func (d *Daemon) handleBackendCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id query parameter is required", http.StatusBadRequest)
		return
	}
	sess, ok := d.coord.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := backendUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.Debugw("backend callback upgrade refused",
			"session_id", sessionID, "remote", r.RemoteAddr, "error", err.Error())
		return
	}

	bs := invertedws.NewSession(sessionID, ws, d.tracer)
	if err := d.coord.Lifecycle().Adopt(sess, bs, true, ""); err != nil {
		// Adopt closed the backend session on refusal.
		logger.Warnw("backend callback rejected",
			"session_id", sessionID, "remote", r.RemoteAddr, "error", err.Error())
		return
	}
	logger.Infow("backend connected via callback",
		"session_id", sessionID, "remote", r.RemoteAddr)
}

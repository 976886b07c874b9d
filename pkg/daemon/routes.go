// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/adapter/invertedws"
	"github.com/agentmux/agentmux/pkg/coordinator"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/session"
)

// apiTimeout bounds one control API request. The WebSocket endpoints are
// mounted outside this middleware; a timeout would kill long-lived sockets.
const apiTimeout = 30 * time.Second

// routes assembles the full HTTP surface.
func (d *Daemon) routes(ws http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Handle("/ws", ws)
	r.HandleFunc("/backend/ws", d.handleBackendCallback)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout), jsonContentType)
		r.Mount("/sessions", sessionRouter(d.coord))
	})
	if h := d.provider.Handler(); h != nil {
		r.Handle("/metrics", h)
	}
	return r
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// sessionSummary is one row in list responses.
type sessionSummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	Adapter          string    `json:"adapter"`
	Lifecycle        string    `json:"lifecycle"`
	Status           string    `json:"status,omitempty"`
	CWD              string    `json:"cwd,omitempty"`
	PID              int       `json:"pid,omitempty"`
	BackendConnected bool      `json:"backend_connected"`
	Consumers        int       `json:"consumers"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
}

type sessionListResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

// sessionDetail adds the live state snapshot to the summary.
type sessionDetail struct {
	sessionSummary
	State           session.State `json:"state"`
	HistoryLength   int           `json:"history_length"`
	PendingMessages int           `json:"pending_messages"`
}

type createSessionRequest struct {
	ID             string `json:"id,omitempty"`
	Adapter        string `json:"adapter,omitempty"`
	CWD            string `json:"cwd,omitempty"`
	Model          string `json:"model,omitempty"`
	PermissionMode string `json:"permission_mode,omitempty"`
	Name           string `json:"name,omitempty"`

	// Connect launches or dials the backend right away. For the inverted
	// adapter this spawns the tool, which then calls back on /backend/ws.
	Connect bool `json:"connect,omitempty"`
}

type createSessionResponse struct {
	sessionSummary
	// ConnectError reports a failed immediate connect. The session itself
	// exists either way; a backend can still attach later.
	ConnectError string `json:"connect_error,omitempty"`
}

// sessionRoutes serves the session control API.
type sessionRoutes struct {
	coord *coordinator.Coordinator
}

func sessionRouter(coord *coordinator.Coordinator) http.Handler {
	routes := sessionRoutes{coord: coord}

	r := chi.NewRouter()
	r.Get("/", routes.list)
	r.Post("/", routes.create)
	r.Get("/{id}", routes.get)
	r.Delete("/{id}", routes.delete)
	return r
}

func (s *sessionRoutes) list(w http.ResponseWriter, _ *http.Request) {
	sessions := s.coord.All()
	summaries := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, summarize(sess))
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: summaries})
}

func (s *sessionRoutes) get(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.coord.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, errors.NewSessionNotFoundError(chi.URLParam(r, "id")))
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{
		sessionSummary:  summarize(sess),
		State:           sess.State(),
		HistoryLength:   sess.HistoryLen(),
		PendingMessages: len(sess.PendingMessages()),
	})
}

func (s *sessionRoutes) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewValidationError("malformed request body", err))
		return
	}
	if req.Adapter == "" {
		req.Adapter = invertedws.AdapterName
	}

	sess, err := s.coord.CreateSession(r.Context(), coordinator.CreateOptions{
		ID:             req.ID,
		AdapterName:    req.Adapter,
		CWD:            req.CWD,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
		Name:           req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := createSessionResponse{sessionSummary: summarize(sess)}
	if req.Connect {
		cerr := s.coord.Bridge().ConnectBackend(r.Context(), sess.ID(), adapter.ConnectOptions{
			CWD:            req.CWD,
			Model:          req.Model,
			PermissionMode: req.PermissionMode,
		})
		if cerr != nil {
			logger.Warnw("backend connect on create failed",
				"session_id", sess.ID(), "adapter", req.Adapter, "error", cerr.Error())
			resp.ConnectError = cerr.Error()
		}
		resp.sessionSummary = summarize(sess)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *sessionRoutes) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coord.Bridge().CloseSession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func summarize(sess *session.Session) sessionSummary {
	st := sess.State()
	return sessionSummary{
		ID:               sess.ID(),
		Name:             sess.Name(),
		Adapter:          sess.AdapterName(),
		Lifecycle:        string(sess.Lifecycle()),
		Status:           string(sess.LastStatus()),
		CWD:              st.CWD,
		PID:              sess.PID(),
		BackendConnected: sess.BackendConnected(),
		Consumers:        sess.ConsumerCount(),
		CreatedAt:        sess.CreatedAt(),
		LastActivity:     sess.LastActivity(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("failed to encode response", "error", err.Error())
	}
}

// writeError maps the error taxonomy onto HTTP statuses and renders the
// same structured shape consumers see on the socket.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsSessionNotFound(err):
		status = http.StatusNotFound
	case errors.IsAlreadyExists(err):
		status = http.StatusConflict
	case errors.IsAuth(err):
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, map[string]string{
		"code":  errors.TypeOf(err),
		"error": err.Error(),
	})
}

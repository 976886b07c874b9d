// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the per-conversation record: capability snapshot,
// message history, pending work, attached consumers and the backend binding.
// Every field is private and mutated only through the methods here; other
// packages read through snapshot accessors and write through named mutators.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentmux/agentmux/pkg/message"
)

// timeNow is swapped in tests that need deterministic clocks.
var timeNow = time.Now

// Lifecycle is the coarse phase of a session.
type Lifecycle string

const (
	LifecycleAwaitingBackend Lifecycle = "awaiting_backend"
	LifecycleActive          Lifecycle = "active"
	LifecycleIdle            Lifecycle = "idle"
	LifecycleDegraded        Lifecycle = "degraded"
	LifecycleClosed          Lifecycle = "closed"
)

// Status is the backend-reported (or inferred) turn status. The empty value
// means no signal has been seen yet.
type Status string

const (
	StatusRunning    Status = "running"
	StatusIdle       Status = "idle"
	StatusCompacting Status = "compacting"
	StatusUnknown    Status = ""
)

//go:generate mockgen -destination=mocks/mock_session.go -package=mocks -source=session.go ConsumerConn,Backend

// ConsumerConn is the session's view of one attached consumer socket.
// The transport implements it; the session only needs identity, role,
// outbound buffer depth and a way to push bytes.
type ConsumerConn interface {
	ID() string
	Role() string
	BufferedAmount() int
	Send(data []byte) error
	Close(reason string) error
}

// Backend is the session's view of a live backend connection. Adapters
// return concrete types that satisfy it.
type Backend interface {
	Send(msg message.Unified) error
	SendRaw(data []byte) error
	Close() error
}

// Options configures a new session record.
type Options struct {
	ID                    string
	AdapterName           string
	MaxHistory            int
	MaxPendingPermissions int
	LimiterTokensPerSec   float64
	LimiterBurst          int
}

type pendingInitialize struct {
	requestID string
	ch        chan *message.CapabilitySet
}

// Session is the runtime record for one conversation. Two locks protect it:
// opMu serializes whole operations via Serialize so concurrent handlers for
// the same session never interleave, and mu guards individual fields so
// read accessors stay safe without holding up an operation in flight.
type Session struct {
	id          string
	adapterName string
	createdAt   time.Time

	opMu sync.Mutex
	mu   sync.RWMutex

	state      State
	lifecycle  Lifecycle
	lastStatus Status
	name       string
	pid        int

	backendSessionID string
	backend          Backend
	backendInverted  bool
	backendAbort     context.CancelFunc

	consumers    map[string]ConsumerConn
	limiters     map[string]*rate.Limiter
	limiterRate  rate.Limit
	limiterBurst int

	history    []message.Unified
	maxHistory int

	pendingMessages []message.Unified
	queuedMessage   *message.Unified

	pendingPermissions    map[string]*message.PermissionRequest
	pendingPermissionIDs  []string
	maxPendingPermissions int
	pendingInit           *pendingInitialize
	pendingPassthroughs   map[string]chan message.Unified

	capabilities *message.CapabilitySet
	registry     *CommandRegistry
	teamCorr     *TeamCorrelation

	lastActivity time.Time
}

// New builds a session record in the awaiting_backend phase. The state's
// session id is pinned to the record id and never changes afterwards.
func New(opts Options) *Session {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 2000
	}
	if opts.MaxPendingPermissions <= 0 {
		opts.MaxPendingPermissions = 100
	}
	if opts.LimiterTokensPerSec <= 0 {
		opts.LimiterTokensPerSec = 30
	}
	if opts.LimiterBurst <= 0 {
		opts.LimiterBurst = 50
	}
	now := time.Now()
	return &Session{
		id:                    opts.ID,
		adapterName:           opts.AdapterName,
		createdAt:             now,
		state:                 State{SessionID: opts.ID},
		lifecycle:             LifecycleAwaitingBackend,
		consumers:             make(map[string]ConsumerConn),
		limiters:              make(map[string]*rate.Limiter),
		limiterRate:           rate.Limit(opts.LimiterTokensPerSec),
		limiterBurst:          opts.LimiterBurst,
		maxHistory:            opts.MaxHistory,
		pendingPermissions:    make(map[string]*message.PermissionRequest),
		maxPendingPermissions: opts.MaxPendingPermissions,
		pendingPassthroughs:   make(map[string]chan message.Unified),
		registry:              NewCommandRegistry(),
		teamCorr:              NewTeamCorrelation(),
		lastActivity:          now,
	}
}

// Serialize runs fn while holding the session's operation lock. Router
// dispatch and bridge operations wrap themselves in this so handlers for
// one session never overlap.
func (s *Session) Serialize(fn func()) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	fn()
}

// ID returns the immutable session id.
func (s *Session) ID() string { return s.id }

// AdapterName returns the adapter that owns this session's backend.
func (s *Session) AdapterName() string { return s.adapterName }

// CreatedAt returns the record creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// BackendSessionID returns the backend-assigned id, or "" before init.
func (s *Session) BackendSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backendSessionID
}

// State returns a deep copy of the current derived state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Lifecycle returns the current phase.
func (s *Session) Lifecycle() Lifecycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifecycle
}

// LastStatus returns the most recent turn status.
func (s *Session) LastStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}

// Name returns the human-readable session name, if one was assigned.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// PID returns the backend child process id, or 0 when the backend is not a
// process we own.
func (s *Session) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// LastActivity returns the time of the most recent inbound or outbound
// traffic for this session.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Touch records activity now.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// BackendConnected reports whether a backend connection is bound.
func (s *Session) BackendConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend != nil
}

// BackendInverted reports whether the bound backend arrived over an
// inverted (backend-initiated) connection.
func (s *Session) BackendInverted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backendInverted
}

// Capabilities returns the negotiated capability set, or nil before
// negotiation completes.
func (s *Session) Capabilities() *message.CapabilitySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

// Registry returns the per-session slash command registry.
func (s *Session) Registry() *CommandRegistry { return s.registry }

// TeamCorrelation returns the tool-use correlation buffer used by the
// state reducer.
func (s *Session) TeamCorrelation() *TeamCorrelation { return s.teamCorr }

// ConsumerCount returns the number of attached consumers.
func (s *Session) ConsumerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consumers)
}

// Consumers returns a snapshot slice of attached consumer connections.
func (s *Session) Consumers() []ConsumerConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConsumerConn, 0, len(s.consumers))
	for _, c := range s.consumers {
		out = append(out, c)
	}
	return out
}

// Consumer looks up one attached consumer by id.
func (s *Session) Consumer(id string) (ConsumerConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consumers[id]
	return c, ok
}

// HistorySnapshot returns a copy of the bounded message history.
func (s *Session) HistorySnapshot() []message.Unified {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]message.Unified, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the current history length.
func (s *Session) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// PendingMessages returns a copy of the queue of messages awaiting a
// backend connection.
func (s *Session) PendingMessages() []message.Unified {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]message.Unified, len(s.pendingMessages))
	copy(out, s.pendingMessages)
	return out
}

// PendingPermissions returns a copy of the unanswered permission requests
// keyed by request id.
func (s *Session) PendingPermissions() map[string]*message.PermissionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*message.PermissionRequest, len(s.pendingPermissions))
	for id, req := range s.pendingPermissions {
		out[id] = req
	}
	return out
}

// HasPendingPermission reports whether a permission request with the given
// id is still unanswered.
func (s *Session) HasPendingPermission(requestID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pendingPermissions[requestID]
	return ok
}

// RateLimiterFor returns the per-consumer token bucket, creating it on
// first use. Buckets persist across reconnects of the same consumer id.
func (s *Session) RateLimiterFor(consumerID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lim, ok := s.limiters[consumerID]; ok {
		return lim
	}
	lim := rate.NewLimiter(s.limiterRate, s.limiterBurst)
	s.limiters[consumerID] = lim
	return lim
}

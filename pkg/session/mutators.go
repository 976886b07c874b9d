// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sort"

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
)

// SetState replaces the derived state wholesale. The session id inside the
// state is re-pinned to the record id so a reducer bug can never detach
// state from its session.
func (s *Session) SetState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next.SessionID = s.id
	s.state = next
}

// SetGit patches git info into the state. Git discovery does I/O, so it
// runs outside the reducer and lands here.
func (s *Session) SetGit(gi *GitInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Git = gi
}

// SetBackendSessionID assigns the backend-reported id. The first assignment
// wins for the life of the record; a later different id is refused.
func (s *Session) SetBackendSessionID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backendSessionID != "" && s.backendSessionID != id {
		logger.Warnw("refusing backend session id overwrite",
			"session_id", s.id,
			"existing", s.backendSessionID,
			"proposed", id)
		return false
	}
	s.backendSessionID = id
	return true
}

// ClearBackendSessionID drops the stored backend id. Only the resume-failure
// path uses this: the next connect then starts a fresh backend conversation
// instead of retrying a dead resume target.
func (s *Session) ClearBackendSessionID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backendSessionID = ""
}

// SetLastStatus records the turn status and returns the previous value so
// callers can act on transitions.
func (s *Session) SetLastStatus(st Status) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.lastStatus
	s.lastStatus = st
	return prev
}

// SetLifecycle moves the session to a new phase.
func (s *Session) SetLifecycle(lc Lifecycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifecycle = lc
}

// SetName assigns the human-readable session name.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// SetPID records the backend child process id. Zero clears it.
func (s *Session) SetPID(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = pid
}

// AppendHistory appends one message to the bounded history and returns the
// index it landed at. When the cap is reached the oldest entry is dropped
// first.
func (s *Session) AppendHistory(msg message.Unified) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) >= s.maxHistory {
		drop := len(s.history) - s.maxHistory + 1
		s.history = append(s.history[:0], s.history[drop:]...)
	}
	s.history = append(s.history, msg)
	return len(s.history) - 1
}

// ReplaceHistoryAt overwrites the history entry at index i.
func (s *Session) ReplaceHistoryAt(i int, msg message.Unified) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.history) {
		return false
	}
	s.history[i] = msg
	return true
}

// SetHistory replaces the whole history, trimming from the front if the
// input exceeds the cap. Used when restoring a persisted session.
func (s *Session) SetHistory(msgs []message.Unified) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(msgs) > s.maxHistory {
		msgs = msgs[len(msgs)-s.maxHistory:]
	}
	s.history = make([]message.Unified, len(msgs))
	copy(s.history, msgs)
}

// StorePendingPermission records an unanswered permission request. Requests
// keep insertion order; at capacity the oldest entry is evicted and
// returned so the caller can report the drop. Re-storing a known id updates
// it in place without touching its position or the cap.
func (s *Session) StorePendingPermission(req *message.PermissionRequest) (*message.PermissionRequest, error) {
	if req == nil || req.RequestID == "" {
		return nil, errors.NewValidationError("permission request needs a request id", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pendingPermissions[req.RequestID]; ok {
		s.pendingPermissions[req.RequestID] = req
		return nil, nil
	}

	var evicted *message.PermissionRequest
	if len(s.pendingPermissionIDs) >= s.maxPendingPermissions {
		oldest := s.pendingPermissionIDs[0]
		s.pendingPermissionIDs = s.pendingPermissionIDs[1:]
		evicted = s.pendingPermissions[oldest]
		delete(s.pendingPermissions, oldest)
	}
	s.pendingPermissions[req.RequestID] = req
	s.pendingPermissionIDs = append(s.pendingPermissionIDs, req.RequestID)
	return evicted, nil
}

// ClearPendingPermission removes and returns the pending request for the
// given id. The first caller wins; later calls see a miss.
func (s *Session) ClearPendingPermission(requestID string) (*message.PermissionRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pendingPermissions[requestID]
	if !ok {
		return nil, false
	}
	delete(s.pendingPermissions, requestID)
	for i, id := range s.pendingPermissionIDs {
		if id == requestID {
			s.pendingPermissionIDs = append(s.pendingPermissionIDs[:i], s.pendingPermissionIDs[i+1:]...)
			break
		}
	}
	return req, true
}

// RestorePendingPermissions replaces the pending map from persisted state.
// The persisted form is sorted by request id, so the rebuilt eviction order
// follows id order.
func (s *Session) RestorePendingPermissions(reqs map[string]*message.PermissionRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPermissions = make(map[string]*message.PermissionRequest, len(reqs))
	s.pendingPermissionIDs = s.pendingPermissionIDs[:0]
	for id, req := range reqs {
		if id == "" || req == nil {
			continue
		}
		s.pendingPermissions[id] = req
		s.pendingPermissionIDs = append(s.pendingPermissionIDs, id)
	}
	sort.Strings(s.pendingPermissionIDs)
}

// SetCapabilities records a capability set that arrived without a
// negotiation round trip, e.g. inline on session_init.
func (s *Session) SetCapabilities(caps *message.CapabilitySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities = caps
}

// StorePendingInitialize opens the single capability negotiation slot and
// returns the channel the answer will arrive on. A second call while one
// negotiation is in flight returns false.
func (s *Session) StorePendingInitialize(requestID string) (<-chan *message.CapabilitySet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingInit != nil {
		return nil, false
	}
	s.pendingInit = &pendingInitialize{
		requestID: requestID,
		ch:        make(chan *message.CapabilitySet, 1),
	}
	return s.pendingInit.ch, true
}

// ResolvePendingInitialize completes negotiation for the matching request
// id, records the capability set and wakes the waiter.
func (s *Session) ResolvePendingInitialize(requestID string, caps *message.CapabilitySet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingInit == nil || s.pendingInit.requestID != requestID {
		return false
	}
	s.capabilities = caps
	s.pendingInit.ch <- caps
	s.pendingInit = nil
	return true
}

// CancelPendingInitialize abandons an in-flight negotiation. The waiter
// sees a closed channel.
func (s *Session) CancelPendingInitialize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingInit == nil {
		return
	}
	close(s.pendingInit.ch)
	s.pendingInit = nil
}

// StorePendingPassthrough opens a reply slot for a control request the
// broker forwarded to the backend on a consumer's behalf.
func (s *Session) StorePendingPassthrough(requestID string) (<-chan message.Unified, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pendingPassthroughs[requestID]; ok {
		return nil, false
	}
	ch := make(chan message.Unified, 1)
	s.pendingPassthroughs[requestID] = ch
	return ch, true
}

// ResolvePendingPassthrough delivers the backend's reply to a forwarded
// control request.
func (s *Session) ResolvePendingPassthrough(requestID string, msg message.Unified) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pendingPassthroughs[requestID]
	if !ok {
		return false
	}
	ch <- msg
	delete(s.pendingPassthroughs, requestID)
	return true
}

// CancelPendingPassthroughs closes every open passthrough slot. Called on
// backend disconnect and session close.
func (s *Session) CancelPendingPassthroughs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pendingPassthroughs {
		close(ch)
		delete(s.pendingPassthroughs, id)
	}
}

// RegisterCLICommands stores backend-announced slash commands in the
// per-session registry.
func (s *Session) RegisterCLICommands(cmds []message.SlashCommandInfo) {
	s.registry.RegisterCLI(cmds)
}

// RegisterSkillCommands exposes backend-announced skills as slash commands.
func (s *Session) RegisterSkillCommands(skills []string) {
	s.registry.RegisterSkills(skills)
}

// ClearDynamicSlashRegistry drops all backend-announced commands, keeping
// only built-ins. Called before re-populating from a fresh init.
func (s *Session) ClearDynamicSlashRegistry() {
	s.registry.ClearDynamic()
}

// AttachConsumer adds a consumer connection, replacing any previous
// connection with the same id. The replaced connection is returned so the
// transport can close it.
func (s *Session) AttachConsumer(c ConsumerConn) ConsumerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.consumers[c.ID()]
	s.consumers[c.ID()] = c
	s.lastActivity = timeNow()
	return prev
}

// DetachConsumer removes a consumer connection by id. It only removes the
// exact connection passed in, so a stale close racing a reconnect cannot
// evict the fresh socket.
func (s *Session) DetachConsumer(c ConsumerConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.consumers[c.ID()]
	if !ok || cur != c {
		return false
	}
	delete(s.consumers, c.ID())
	s.lastActivity = timeNow()
	return true
}

// BindBackend attaches a live backend connection. Only one backend may be
// bound at a time; a second bind is refused until UnbindBackend runs.
func (s *Session) BindBackend(b Backend, inverted bool, abort context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		return false
	}
	s.backend = b
	s.backendInverted = inverted
	s.backendAbort = abort
	s.lastActivity = timeNow()
	return true
}

// UnbindBackend detaches the current backend connection and returns it
// together with its abort function so the caller can tear both down.
func (s *Session) UnbindBackend() (Backend, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, abort := s.backend, s.backendAbort
	s.backend = nil
	s.backendAbort = nil
	s.backendInverted = false
	s.lastActivity = timeNow()
	return b, abort
}

// TrySendToBackend delivers a unified message if a backend is bound.
// Returns false, without error, when no backend is connected.
func (s *Session) TrySendToBackend(msg message.Unified) bool {
	s.mu.RLock()
	b := s.backend
	s.mu.RUnlock()
	if b == nil {
		return false
	}
	if err := b.Send(msg); err != nil {
		logger.Warnw("backend send failed", "session_id", s.id, "type", msg.Type, "error", err)
		return false
	}
	s.Touch()
	return true
}

// TrySendRawToBackend delivers pre-encoded bytes if a backend is bound.
func (s *Session) TrySendRawToBackend(data []byte) bool {
	s.mu.RLock()
	b := s.backend
	s.mu.RUnlock()
	if b == nil {
		return false
	}
	if err := b.SendRaw(data); err != nil {
		logger.Warnw("backend raw send failed", "session_id", s.id, "error", err)
		return false
	}
	s.Touch()
	return true
}

// SetQueuedMessage holds one user message to deliver when the backend next
// goes idle. A newer message replaces the held one.
func (s *Session) SetQueuedMessage(msg message.Unified) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queuedMessage = &msg
}

// TakeQueuedMessage removes and returns the held message, if any.
func (s *Session) TakeQueuedMessage() (message.Unified, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queuedMessage == nil {
		return message.Unified{}, false
	}
	msg := *s.queuedMessage
	s.queuedMessage = nil
	return msg, true
}

// ClearQueuedMessage drops the held message without delivering it.
func (s *Session) ClearQueuedMessage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.queuedMessage != nil
	s.queuedMessage = nil
	return had
}

// EnqueuePendingMessage queues a message for delivery once a backend
// connection becomes available.
func (s *Session) EnqueuePendingMessage(msg message.Unified) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMessages = append(s.pendingMessages, msg)
}

// FlushPendingMessages drains the pending queue in FIFO order.
func (s *Session) FlushPendingMessages() []message.Unified {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pendingMessages
	s.pendingMessages = nil
	return out
}

// SetPendingMessages replaces the pending queue from persisted state.
func (s *Session) SetPendingMessages(msgs []message.Unified) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMessages = make([]message.Unified, len(msgs))
	copy(s.pendingMessages, msgs)
}

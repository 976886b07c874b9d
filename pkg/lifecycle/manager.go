// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle mediates backend connections for sessions. It owns the
// connect/adopt/disconnect choreography for both adapter styles: outbound
// adapters are dialed (with bounded retry), inverted adapters are launched
// and later adopted when their callback arrives. One pump goroutine per
// live backend feeds Messages() into the router.
package lifecycle

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/broadcast"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/policy"
	"github.com/agentmux/agentmux/pkg/router"
	"github.com/agentmux/agentmux/pkg/session"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

const (
	// defaultConnectAttempts bounds outbound connect retries, initial
	// attempt included.
	defaultConnectAttempts = 3
	// defaultConnectRetryWait seeds the exponential backoff.
	defaultConnectRetryWait = 250 * time.Millisecond
)

var timeNow = time.Now

// SessionSource resolves live sessions. The coordinator's registry
// implements it; relaunch handling needs nothing more.
type SessionSource interface {
	Get(id string) (*session.Session, bool)
}

// Options wires a Manager.
type Options struct {
	Resolver    *adapter.Resolver
	Launcher    *launcher.Launcher
	Router      *router.Router
	Bus         *events.Bus
	Broadcaster *broadcast.Broadcaster
	Breaker     *policy.Breaker
	Sessions    SessionSource
	Tracer      telemetry.Tracer

	// ConnectAttempts caps outbound dial attempts per Connect call.
	ConnectAttempts uint
	// ConnectRetryWait is the initial backoff interval between attempts.
	ConnectRetryWait time.Duration
	// ResumeFailureThreshold: a backend that dies this soon after a
	// resume attempt is treated as a failed resume.
	ResumeFailureThreshold time.Duration
}

// Manager owns backend connection lifecycles.
type Manager struct {
	resolver *adapter.Resolver
	launcher *launcher.Launcher
	router   *router.Router
	bus      *events.Bus
	bcast    *broadcast.Broadcaster
	breaker  *policy.Breaker
	sessions SessionSource
	tracer   telemetry.Tracer

	connectAttempts  uint
	connectRetryWait time.Duration
	resumeThreshold  time.Duration

	mu     sync.Mutex
	pumps  map[string]*pumpHandle
	runCtx context.Context
	stop   context.CancelFunc
	unsub  func()

	wg sync.WaitGroup
}

// pumpHandle tracks one live backend pump so Disconnect can await it.
type pumpHandle struct {
	done chan struct{}
}

// New builds a Manager. Resolver, Router, Bus and Broadcaster are required;
// Launcher is needed only when inverted adapters are registered.
func New(opts Options) *Manager {
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Noop
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = defaultConnectAttempts
	}
	if opts.ConnectRetryWait <= 0 {
		opts.ConnectRetryWait = defaultConnectRetryWait
	}
	return &Manager{
		resolver:         opts.Resolver,
		launcher:         opts.Launcher,
		router:           opts.Router,
		bus:              opts.Bus,
		bcast:            opts.Broadcaster,
		breaker:          opts.Breaker,
		sessions:         opts.Sessions,
		tracer:           opts.Tracer,
		connectAttempts:  opts.ConnectAttempts,
		connectRetryWait: opts.ConnectRetryWait,
		resumeThreshold:  opts.ResumeFailureThreshold,
		pumps:            make(map[string]*pumpHandle),
	}
}

// Start begins relaunch-request handling. Safe to skip in tests that drive
// Connect and Adopt directly.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.runCtx, m.stop = context.WithCancel(ctx)
	m.mu.Unlock()

	ch, unsub := m.bus.Subscribe()
	m.unsub = unsub
	m.wg.Add(1)
	go m.watch(ch)
}

// Stop ends relaunch handling and waits for manager goroutines. Live
// backends are not torn down here; session teardown owns that.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	if m.unsub != nil {
		m.unsub()
	}
	m.wg.Wait()
}

func (m *Manager) base() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

func (m *Manager) watch(ch <-chan events.Event) {
	defer m.wg.Done()
	for {
		select {
		case <-m.base().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == events.KindRelaunchNeeded {
				m.relaunch(ev)
			}
		}
	}
}

// Connect establishes a backend for the session. Outbound adapters return
// with a live pump running; inverted adapters return once their process is
// launched, with the session left awaiting the callback.
func (m *Manager) Connect(ctx context.Context, sess *session.Session, opts adapter.ConnectOptions) error {
	ad, err := m.resolver.Get(sess.AdapterName())
	if err != nil {
		return err
	}
	if inv, ok := ad.(adapter.InvertedConnector); ok {
		return m.launchInverted(ctx, sess, inv, opts)
	}
	return m.connectOutbound(ctx, sess, ad, opts)
}

func (m *Manager) connectOutbound(ctx context.Context, sess *session.Session, ad adapter.Adapter, opts adapter.ConnectOptions) error {
	if m.breaker != nil && !m.breaker.CanExecute() {
		return errors.NewBackendUnavailableError("backend connects suspended by circuit breaker")
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = m.connectRetryWait
	expBackoff.Reset()

	bs, err := backoff.Retry(ctx, func() (adapter.BackendSession, error) {
		return ad.Connect(ctx, sess.ID(), opts)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(m.connectAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debugw("backend connect retry",
				"session_id", sess.ID(), "adapter", ad.Name(),
				"wait", wait.String(), "error", err.Error())
		}),
	)
	if err != nil {
		if m.breaker != nil {
			m.breaker.RecordFailure()
		}
		sess.SetLifecycle(session.LifecycleDegraded)
		return errors.NewSpawnError("backend connect failed", err)
	}
	if m.breaker != nil {
		m.breaker.RecordSuccess()
	}
	return m.Adopt(sess, bs, false, opts.ResumeSessionID)
}

func (m *Manager) launchInverted(ctx context.Context, sess *session.Session, inv adapter.InvertedConnector, opts adapter.ConnectOptions) error {
	if m.launcher == nil {
		return errors.NewSpawnError("no launcher configured for inverted adapter", nil)
	}
	if m.breaker != nil && !m.breaker.CanExecute() {
		return errors.NewBackendUnavailableError("backend launches suspended by circuit breaker")
	}

	spec, err := inv.LaunchSpec(sess.ID(), opts)
	if err != nil {
		return err
	}
	proc, err := m.launcher.Spawn(ctx, spec)
	if err != nil {
		if m.breaker != nil {
			m.breaker.RecordFailure()
		}
		sess.SetLifecycle(session.LifecycleDegraded)
		return err
	}
	if m.breaker != nil {
		m.breaker.RecordSuccess()
	}

	sess.SetPID(proc.PID())
	sess.SetLifecycle(session.LifecycleAwaitingBackend)
	m.tracer.Send("backend:launched", map[string]any{
		"session_id": sess.ID(),
		"pid":        proc.PID(),
		"binary":     spec.Binary,
	})
	m.trackProcess(sess, proc, opts.ResumeSessionID)
	return nil
}

// trackProcess forwards an inverted backend's output streams to consumers
// and watches for an exit that lands inside the resume-failure window. The
// wire protocol of inverted backends runs over the callback socket, so both
// pipes here are plain process output.
func (m *Manager) trackProcess(sess *session.Session, proc *launcher.Process, resumedFrom string) {
	start := timeNow()
	go m.pumpProcessOutput(sess, "stdout", proc.Stdout)
	go m.pumpProcessOutput(sess, "stderr", proc.Stderr)
	go func() {
		<-proc.Done()
		logger.Infow("backend process exited",
			"session_id", sess.ID(), "pid", proc.PID(), "error", errString(proc.WaitErr()))
		sess.SetPID(0)
		if resumedFrom != "" && timeNow().Sub(start) < m.resumeThreshold {
			m.failResume(sess, "backend exited while resuming")
		}
	}()
}

func (m *Manager) pumpProcessOutput(sess *session.Session, stream string, r io.ReadCloser) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.emitOutput(sess, stream, scanner.Text())
	}
}

func (m *Manager) emitOutput(sess *session.Session, stream, data string) {
	if data == "" || m.bcast == nil {
		return
	}
	m.bcast.BroadcastProcessOutput(sess.ID(), consumersOf(sess), stream, data)
}

// Adopt binds a live backend session and starts its pump. The callback
// endpoint calls this directly when an inverted backend dials in; a second
// adoption while one backend is live is refused.
func (m *Manager) Adopt(sess *session.Session, bs adapter.BackendSession, inverted bool, resumedFrom string) error {
	pumpCtx, cancel := context.WithCancel(m.base())
	bound := boundBackend{ctx: pumpCtx, bs: bs}
	if !sess.BindBackend(bound, inverted, cancel) {
		cancel()
		_ = bs.Close()
		return errors.NewAlreadyExistsError(sess.ID())
	}
	sess.SetLifecycle(session.LifecycleActive)

	h := &pumpHandle{done: make(chan struct{})}
	m.mu.Lock()
	m.pumps[sess.ID()] = h
	m.mu.Unlock()

	m.tracer.Recv("backend:adopted", map[string]any{
		"session_id": sess.ID(),
		"adapter":    sess.AdapterName(),
		"inverted":   inverted,
	})
	m.bus.Emit(events.KindBackendConnected, sess.ID(), events.BackendPayload{
		AdapterName: sess.AdapterName(),
		Inverted:    inverted,
	})
	m.router.FlushPending(sess)

	m.wg.Add(1)
	go m.pump(pumpCtx, sess, bs, h, inverted, resumedFrom)
	return nil
}

// pump feeds backend messages into the router until the stream closes, then
// settles the disconnect: unbind, lifecycle, resume-failure check, event.
func (m *Manager) pump(ctx context.Context, sess *session.Session, bs adapter.BackendSession, h *pumpHandle, inverted bool, resumedFrom string) {
	defer m.wg.Done()
	defer close(h.done)
	start := timeNow()

	for msg := range bs.Messages() {
		m.router.Route(ctx, sess, msg)
	}

	m.mu.Lock()
	if m.pumps[sess.ID()] == h {
		delete(m.pumps, sess.ID())
	}
	m.mu.Unlock()

	if _, abort := sess.UnbindBackend(); abort != nil {
		abort()
	}
	_ = bs.Close()
	sess.CancelPendingInitialize()
	if sess.Lifecycle() != session.LifecycleClosed {
		sess.SetLifecycle(session.LifecycleDegraded)
	}

	if resumedFrom != "" && timeNow().Sub(start) < m.resumeThreshold {
		m.failResume(sess, "backend exited while resuming")
	}

	m.tracer.Recv("backend:closed", map[string]any{
		"session_id": sess.ID(),
		"adapter":    sess.AdapterName(),
	})
	m.bus.Emit(events.KindBackendDisconnected, sess.ID(), events.BackendPayload{
		AdapterName: sess.AdapterName(),
		Inverted:    inverted,
	})
}

func (m *Manager) failResume(sess *session.Session, reason string) {
	logger.Warnw("backend resume failed", "session_id", sess.ID(), "reason", reason)
	sess.ClearBackendSessionID()
	if m.bcast != nil {
		m.bcast.BroadcastResumeFailed(sess.ID(), consumersOf(sess), reason)
	}
}

// Disconnect tears down the session's backend, if any, and waits for its
// pump to finish. Pending initialize waiters are cancelled first so nothing
// blocks on a reply that can no longer arrive.
func (m *Manager) Disconnect(ctx context.Context, sess *session.Session) error {
	sess.CancelPendingInitialize()

	m.mu.Lock()
	h := m.pumps[sess.ID()]
	m.mu.Unlock()

	b, abort := sess.UnbindBackend()
	if b == nil && h == nil {
		return nil
	}
	if abort != nil {
		abort()
	}
	if b != nil {
		_ = b.Close()
	}
	if h != nil {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Connected reports whether a pump is live for the session.
func (m *Manager) Connected(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pumps[sessionID]
	return ok
}

// relaunch services one watchdog relaunch request: skip when the session is
// gone, already reconnected or closed; otherwise reconnect with resume,
// breaker willing.
func (m *Manager) relaunch(ev events.Event) {
	if m.sessions == nil {
		return
	}
	sess, ok := m.sessions.Get(ev.SessionID)
	if !ok {
		logger.Debugw("relaunch requested for unknown session", "session_id", ev.SessionID)
		return
	}
	if sess.BackendConnected() || sess.Lifecycle() == session.LifecycleClosed {
		return
	}
	if m.breaker != nil && !m.breaker.CanExecute() {
		logger.Warnw("relaunch suppressed by circuit breaker", "session_id", sess.ID())
		m.tracer.Send("relaunch:suppressed", map[string]any{"session_id": sess.ID()})
		return
	}

	st := sess.State()
	opts := adapter.ConnectOptions{
		CWD:             st.CWD,
		Model:           st.Model,
		PermissionMode:  st.PermissionMode,
		ResumeSessionID: sess.BackendSessionID(),
	}
	logger.Infow("relaunching backend",
		"session_id", sess.ID(), "adapter", sess.AdapterName(),
		"resume", opts.ResumeSessionID != "")
	if err := m.Connect(m.base(), sess, opts); err != nil {
		logger.Warnw("backend relaunch failed", "session_id", sess.ID(), "error", err.Error())
	}
}

// boundBackend narrows an adapter.BackendSession to the session's
// context-free Backend interface, pinning the pump context for writes.
type boundBackend struct {
	ctx context.Context
	bs  adapter.BackendSession
}

func (b boundBackend) Send(msg message.Unified) error { return b.bs.Send(b.ctx, msg) }
func (b boundBackend) SendRaw(data []byte) error      { return b.bs.SendRaw(b.ctx, data) }
func (b boundBackend) Close() error                   { return b.bs.Close() }

func consumersOf(sess *session.Session) []broadcast.Consumer {
	conns := sess.Consumers()
	out := make([]broadcast.Consumer, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator assembles the broker and owns the session registry.
// It is the composition root: the bus, broadcaster, router, lifecycle
// manager, policy services and bridge are all built and wired here, and the
// registry methods in this package are the only way sessions enter or leave
// the daemon.
package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/adapter/streamjson"
	"github.com/agentmux/agentmux/pkg/bridge"
	"github.com/agentmux/agentmux/pkg/broadcast"
	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/lifecycle"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/policy"
	"github.com/agentmux/agentmux/pkg/replay"
	"github.com/agentmux/agentmux/pkg/router"
	"github.com/agentmux/agentmux/pkg/session"
	"github.com/agentmux/agentmux/pkg/slashcmd"
	"github.com/agentmux/agentmux/pkg/state"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

// Options configures a Coordinator. Config, Store and Resolver are required;
// a nil Launcher is built from the config, a nil Tracer is a no-op.
type Options struct {
	Config   *config.Config
	Store    state.Store
	Resolver *adapter.Resolver
	Launcher *launcher.Launcher
	Tracer   telemetry.Tracer
	Metrics  *telemetry.Metrics

	// SlashCommands maps runner-executable command names to their process
	// specs. Empty is fine; the slash service still serves built-ins and
	// backend passthrough.
	SlashCommands map[string]slashcmd.Command
}

// Coordinator owns the session registry and every long-lived broker
// component. One Coordinator serves one daemon.
type Coordinator struct {
	cfg      *config.Config
	store    state.Store
	resolver *adapter.Resolver
	launcher *launcher.Launcher
	tracer   telemetry.Tracer
	metrics  *telemetry.Metrics

	bus        *events.Bus
	replay     *replay.Handler
	bcast      *broadcast.Broadcaster
	gatekeeper *policy.Gatekeeper
	negotiator *policy.Negotiator
	breaker    *policy.Breaker
	router     *router.Router
	manager    *lifecycle.Manager
	reaper     *policy.Reaper
	watchdog   *policy.Watchdog
	slash      *slashcmd.Service
	bridge     *bridge.Bridge

	mu       sync.RWMutex
	sessions map[string]*session.Session

	gitMu      sync.Mutex
	gitPending map[string]struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup
}

// New builds a fully wired Coordinator. Nothing starts running until Start.
func New(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, errors.NewValidationError("coordinator requires a config", nil)
	}
	if opts.Store == nil {
		return nil, errors.NewValidationError("coordinator requires a state store", nil)
	}
	if opts.Resolver == nil {
		return nil, errors.NewValidationError("coordinator requires an adapter resolver", nil)
	}
	cfg := opts.Config
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop
	}
	l := opts.Launcher
	if l == nil {
		l = launcher.New(cfg.EnvDenyList, cfg.KillGracePeriod(), nil,
			launcher.WithMaxProcesses(cfg.MaxConcurrentSessions))
	}

	c := &Coordinator{
		cfg:        cfg,
		store:      opts.Store,
		resolver:   opts.Resolver,
		launcher:   l,
		tracer:     tracer,
		metrics:    opts.Metrics,
		sessions:   make(map[string]*session.Session),
		gitPending: make(map[string]struct{}),
	}

	c.bus = events.NewBus(0)
	c.replay = replay.NewHandler(cfg.ReplayRingSize)
	c.bcast = broadcast.New(c.replay, cfg.BackpressureThresholdBytes, opts.Metrics, tracer, nil, c.dropConsumer)
	c.gatekeeper = policy.NewGatekeeper(c.bus)
	c.negotiator = policy.NewNegotiator(c.bus, cfg.InitializeTimeout(), c.capabilitiesReady)

	c.router = router.New(router.Options{
		Broadcaster: c.bcast,
		Bus:         c.bus,
		Gatekeeper:  c.gatekeeper,
		Negotiator:  c.negotiator,
		Tracer:      tracer,
		Metrics:     opts.Metrics,
		Persist:     c.persistSession,
		RefreshGit:  c.refreshGit,
		InitSender:  initializeSender,
	})

	bc := cfg.CLIRestartCircuitBreaker
	c.breaker = policy.NewBreaker("backend", policy.BreakerConfig{
		FailureThreshold: bc.FailureThreshold,
		Window:           bc.BreakerWindow(),
		RecoveryTime:     bc.RecoveryTime(),
		SuccessThreshold: bc.SuccessThreshold,
	}, c.breakerTransitioned)

	c.manager = lifecycle.New(lifecycle.Options{
		Resolver:               opts.Resolver,
		Launcher:               l,
		Router:                 c.router,
		Bus:                    c.bus,
		Broadcaster:            c.bcast,
		Breaker:                c.breaker,
		Sessions:               c,
		Tracer:                 tracer,
		ResumeFailureThreshold: cfg.ResumeFailureThreshold(),
	})

	runner := slashcmd.NewProcessRunner(l, cfg.SlashCommand, opts.SlashCommands)
	c.slash = slashcmd.New(runner, tracer)

	c.bridge = bridge.New(bridge.Options{
		Host:        c,
		Router:      c.router,
		Broadcaster: c.bcast,
		Lifecycle:   c.manager,
		Gatekeeper:  c.gatekeeper,
		Slash:       c.slash,
		Bus:         c.bus,
		Tracer:      tracer,
	})

	c.reaper = policy.NewReaper(c, c.bus, cfg.IdleSessionTimeout(), 0, func(string) {
		c.metrics.RecordSessionReaped(context.Background())
	})
	c.watchdog = policy.NewWatchdog(c.bus, cfg.ReconnectGracePeriod(), cfg.RelaunchDedup(), c.watchdogStateChanged)

	return c, nil
}

// Bridge returns the operations facade transports call into.
func (c *Coordinator) Bridge() *bridge.Bridge { return c.bridge }

// Bus returns the domain event bus.
func (c *Coordinator) Bus() *events.Bus { return c.bus }

// Broadcaster returns the consumer fan-out.
func (c *Coordinator) Broadcaster() *broadcast.Broadcaster { return c.bcast }

// Replay returns the sequence-and-replay handler.
func (c *Coordinator) Replay() *replay.Handler { return c.replay }

// Lifecycle returns the backend connection manager. The backend callback
// endpoint adopts inbound backends through it.
func (c *Coordinator) Lifecycle() *lifecycle.Manager { return c.manager }

// Start begins background policy work: relaunch handling, idle sweeps,
// reconnect watchdog, and the registry's domain event watcher.
func (c *Coordinator) Start(ctx context.Context) {
	c.runMu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.runMu.Unlock()

	c.manager.Start(runCtx)
	c.reaper.Start(runCtx)
	c.watchdog.Start(runCtx)

	ch, unsub := c.bus.Subscribe()
	c.unsub = unsub
	c.wg.Add(1)
	go c.watch(runCtx, ch)
}

// Shutdown stops policy work, tears down every session, and closes the
// store. Safe to call once after Start.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.runMu.Lock()
	cancel := c.cancel
	c.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if c.unsub != nil {
		c.unsub()
	}
	c.wg.Wait()

	c.reaper.Stop()
	c.watchdog.Stop()
	c.manager.Stop()

	if err := c.bridge.Close(ctx); err != nil {
		logger.Warnw("session teardown incomplete", "error", err)
	}
	c.bus.Close()
	if err := c.store.Close(); err != nil {
		return errors.NewStorageError("closing state store", err)
	}
	return nil
}

// watch applies domain events the registry cares about: first-turn
// auto-naming and launcher-state persistence on backend connectivity
// changes.
func (c *Coordinator) watch(ctx context.Context, ch <-chan events.Event) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case events.KindFirstTurnCompleted:
				payload, _ := ev.Payload.(events.FirstTurnPayload)
				c.autoName(ev.SessionID, payload.FirstUserMessage)
			case events.KindBackendConnected, events.KindBackendDisconnected:
				c.persistLauncherState(ctx)
			}
		}
	}
}

// CreateOptions parameterizes a new session.
type CreateOptions struct {
	// ID is the session id; empty generates a UUID.
	ID string
	// AdapterName selects the backend adapter. Required.
	AdapterName string
	// CWD is the working directory backends and runner commands use.
	CWD string
	// Model and PermissionMode seed the session state before the backend's
	// own session_init overwrites it.
	Model          string
	PermissionMode string
	// Name is the optional human-readable label. Unnamed sessions are
	// auto-named after their first completed turn.
	Name string
}

// CreateSession registers a new session record. The backend is not
// connected here; callers follow up with Bridge().ConnectBackend or wait
// for an inverted callback.
func (c *Coordinator) CreateSession(ctx context.Context, opts CreateOptions) (*session.Session, error) {
	if opts.AdapterName == "" {
		return nil, errors.NewValidationError("adapter name is required", nil)
	}
	if _, err := c.resolver.Get(opts.AdapterName); err != nil {
		return nil, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	sess := session.New(session.Options{
		ID:                    id,
		AdapterName:           opts.AdapterName,
		MaxHistory:            c.cfg.MaxMessageHistoryLength,
		MaxPendingPermissions: c.cfg.MaxPendingPermissions,
		LimiterTokensPerSec:   c.cfg.ConsumerMessageRateLimit.TokensPerSecond,
		LimiterBurst:          c.cfg.ConsumerMessageRateLimit.BurstSize,
	})
	st := sess.State()
	st.CWD = opts.CWD
	st.Model = opts.Model
	st.PermissionMode = opts.PermissionMode
	sess.SetState(st)
	if opts.Name != "" {
		sess.SetName(opts.Name)
	}

	if err := c.Register(sess); err != nil {
		return nil, err
	}
	c.persistSession(sess)
	logger.Infow("session created",
		"session_id", id, "adapter", opts.AdapterName, "cwd", opts.CWD)
	return sess, nil
}

// Register adds a session to the registry, enforcing the concurrent session
// cap. Restored sessions bypass the cap: they already existed.
func (c *Coordinator) Register(sess *session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[sess.ID()]; ok {
		return errors.NewAlreadyExistsError(sess.ID())
	}
	if len(c.sessions) >= c.cfg.MaxConcurrentSessions {
		return errors.NewValidationError("max concurrent sessions reached", nil)
	}
	c.sessions[sess.ID()] = sess
	return nil
}

// MarkConnected stamps the backend process id once a backend is live and
// flips the session active. The backend callback path calls this on adopt.
func (c *Coordinator) MarkConnected(sessionID string, pid int) {
	sess, ok := c.Get(sessionID)
	if !ok {
		return
	}
	if pid > 0 {
		sess.SetPID(pid)
	}
	sess.SetLifecycle(session.LifecycleActive)
	c.persistLauncherState(context.Background())
}

// SetBackendSessionID records the backend-native session id for resume.
// Write-once; a differing second write is refused by the session record.
func (c *Coordinator) SetBackendSessionID(sessionID, backendSessionID string) {
	sess, ok := c.Get(sessionID)
	if !ok {
		return
	}
	if !sess.SetBackendSessionID(backendSessionID) {
		logger.Warnw("backend session id already set, keeping original",
			"session_id", sessionID, "rejected", backendSessionID)
		return
	}
	c.persistLauncherState(context.Background())
}

// SetSessionName renames a session and tells every attached consumer.
func (c *Coordinator) SetSessionName(sessionID, name string) {
	sess, ok := c.Get(sessionID)
	if !ok {
		return
	}
	sess.SetName(name)
	c.bcast.BroadcastNameUpdate(sessionID, consumersOf(sess), name)
	c.persistSession(sess)
}

// RemoveSession drops a session from the registry and the store. The bridge
// calls this at the end of session teardown.
func (c *Coordinator) RemoveSession(ctx context.Context, sessionID string) {
	c.mu.Lock()
	_, present := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	if !present {
		return
	}
	if err := c.store.Remove(ctx, sessionID); err != nil {
		logger.Warnw("could not remove session snapshot",
			"session_id", sessionID, "error", err)
	}
	c.persistLauncherState(ctx)
}

// Get implements bridge.SessionHost and lifecycle.SessionSource.
func (c *Coordinator) Get(id string) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sess, ok := c.sessions[id]
	return sess, ok
}

// All returns every registered session, ordered by creation time.
func (c *Coordinator) All() []*session.Session {
	c.mu.RLock()
	out := make([]*session.Session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		out = append(out, sess)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Remove implements bridge.SessionHost.
func (c *Coordinator) Remove(ctx context.Context, id string) {
	c.RemoveSession(ctx, id)
}

// IdleViews implements policy.SweepSource.
func (c *Coordinator) IdleViews() []policy.IdleView {
	sessions := c.All()
	views := make([]policy.IdleView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, policy.IdleView{
			SessionID:        sess.ID(),
			BackendConnected: sess.BackendConnected(),
			Consumers:        sess.ConsumerCount(),
			LastActivity:     sess.LastActivity(),
		})
	}
	return views
}

// ReapIdleSession implements policy.SweepSource. The reap is recorded as a
// policy command in the trace before the session goes away; idle sessions
// have no backend, so there is nothing to deliver the command to.
func (c *Coordinator) ReapIdleSession(ctx context.Context, sessionID string) error {
	c.tracer.Send("policy:command", map[string]any{
		"type":       "idle_reap",
		"session_id": sessionID,
	})
	return c.bridge.CloseSession(ctx, sessionID)
}

// Restore rehydrates persisted sessions after a daemon restart. Idempotent:
// sessions already in memory are left alone, archived snapshots stay in the
// store, and corrupt snapshots were already skipped by the store's loader.
// Restored sessions bypass the concurrency cap.
func (c *Coordinator) Restore(ctx context.Context) error {
	infos, err := c.store.LoadLauncherState(ctx)
	if err != nil {
		logger.Warnw("could not load launcher state", "error", err)
	}
	infoByID := make(map[string]state.SessionInfo, len(infos))
	for _, info := range infos {
		infoByID[info.ID] = info
	}

	snapshots, err := c.store.LoadAll(ctx)
	if err != nil {
		return errors.NewStorageError("loading persisted sessions", err)
	}

	restored := 0
	for _, ps := range snapshots {
		if ps.Archived {
			continue
		}
		if _, ok := c.Get(ps.ID); ok {
			continue
		}
		info := infoByID[ps.ID]
		if info.AdapterName == "" {
			// A snapshot without a launcher-state row still needs an adapter
			// the resolver knows, or the session can never reconnect.
			info.AdapterName = c.cfg.DefaultAdapter
		}
		sess := c.rehydrate(ps, info)
		c.mu.Lock()
		c.sessions[sess.ID()] = sess
		c.mu.Unlock()
		restored++
	}

	if restored > 0 {
		logger.Infow("sessions restored", "count", restored)
		c.persistLauncherState(ctx)
	}
	return nil
}

// rehydrate rebuilds one runtime record from its persisted parts.
func (c *Coordinator) rehydrate(ps state.PersistedSession, info state.SessionInfo) *session.Session {
	sess := session.New(session.Options{
		ID:                    ps.ID,
		AdapterName:           info.AdapterName,
		MaxHistory:            c.cfg.MaxMessageHistoryLength,
		MaxPendingPermissions: c.cfg.MaxPendingPermissions,
		LimiterTokensPerSec:   c.cfg.ConsumerMessageRateLimit.TokensPerSecond,
		LimiterBurst:          c.cfg.ConsumerMessageRateLimit.BurstSize,
	})
	sess.SetState(ps.State)
	sess.SetHistory(ps.MessageHistory)
	sess.SetPendingMessages(ps.PendingMessages)
	sess.RestorePendingPermissions(state.EntriesToPermissions(ps.PendingPermissions))
	if info.BackendSessionID != "" {
		sess.SetBackendSessionID(info.BackendSessionID)
	}
	if info.Name != "" {
		sess.SetName(info.Name)
	}

	// A backend process that survived the restart will re-dial the
	// callback endpoint; everything else needs operator attention.
	if info.PID > 0 && launcher.PIDAlive(info.PID) {
		sess.SetPID(info.PID)
		sess.SetLifecycle(session.LifecycleAwaitingBackend)
		logger.Infow("restored session with live backend process",
			"session_id", ps.ID, "pid", info.PID)
	} else {
		sess.SetLifecycle(session.LifecycleDegraded)
	}
	return sess
}

// persistSession is the router's persist hook: best effort, warn and move
// on. It snapshots under the session's field locks, not the operation lock,
// so it is safe to call from inside Serialize blocks.
func (c *Coordinator) persistSession(sess *session.Session) {
	ps := state.PersistedSession{
		SchemaVersion:      state.SnapshotSchemaVersion,
		ID:                 sess.ID(),
		State:              sess.State(),
		MessageHistory:     sess.HistorySnapshot(),
		PendingMessages:    sess.PendingMessages(),
		PendingPermissions: state.PermissionsToEntries(sess.PendingPermissions()),
		CreatedAt:          sess.CreatedAt(),
		UpdatedAt:          time.Now(),
	}
	if err := c.store.Save(context.Background(), ps); err != nil {
		logger.Warnw("could not persist session snapshot",
			"session_id", sess.ID(), "error", err)
	}
	c.persistLauncherState(context.Background())
}

// persistLauncherState rewrites the launcher bookkeeping from the live
// registry.
func (c *Coordinator) persistLauncherState(ctx context.Context) {
	sessions := c.All()
	infos := make([]state.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, state.SessionInfo{
			ID:               sess.ID(),
			AdapterName:      sess.AdapterName(),
			CWD:              sess.State().CWD,
			Name:             sess.Name(),
			PID:              sess.PID(),
			BackendSessionID: sess.BackendSessionID(),
			CreatedAt:        sess.CreatedAt(),
		})
	}
	if err := c.store.SaveLauncherState(ctx, infos); err != nil {
		logger.Warnw("could not persist launcher state", "error", err)
	}
}

// autoName labels a still-unnamed session from its first user message.
func (c *Coordinator) autoName(sessionID, firstUserMessage string) {
	sess, ok := c.Get(sessionID)
	if !ok || sess.Name() != "" {
		return
	}
	name := deriveSessionName(firstUserMessage)
	if name == "" {
		return
	}
	c.SetSessionName(sessionID, name)
}

// maxDerivedNameLen bounds auto-derived session names.
const maxDerivedNameLen = 48

// deriveSessionName squeezes a first user message into a short label: first
// line only, whitespace collapsed, truncated on a word boundary where one
// is close enough.
func deriveSessionName(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	name := strings.Join(strings.Fields(line), " ")
	if name == "" {
		return ""
	}
	runes := []rune(name)
	if len(runes) <= maxDerivedNameLen {
		return name
	}
	cut := string(runes[:maxDerivedNameLen])
	if i := strings.LastIndexByte(cut, ' '); i > maxDerivedNameLen/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

// capabilitiesReady is the negotiator's outcome hook. It applies the
// minimum-version gate (warn only, never stalls a session) and broadcasts
// capabilities_ready; a timed-out negotiation broadcasts whatever the
// session already knows, marked partial.
func (c *Coordinator) capabilitiesReady(sessionID string, caps *message.CapabilitySet, timedOut bool) {
	sess, ok := c.Get(sessionID)
	if !ok {
		return
	}
	if caps == nil {
		caps = sess.Capabilities()
	}
	if caps != nil {
		c.checkBackendVersion(sessionID, caps.AgentVersion)
	}
	c.bcast.Broadcast(sessionID, consumersOf(sess), message.Consumer{
		Type:         message.ConsumerCapabilitiesReady,
		Capabilities: caps,
		Partial:      timedOut,
	})
}

// checkBackendVersion warns when the backend reports a version below the
// configured minimum. Advisory only: an old backend still serves, it just
// may lack newer control verbs.
func (c *Coordinator) checkBackendVersion(sessionID, agentVersion string) {
	minVersion := c.cfg.MinBackendVersion
	if minVersion == "" || agentVersion == "" {
		return
	}
	have := canonicalVersion(agentVersion)
	want := canonicalVersion(minVersion)
	if !semver.IsValid(have) || !semver.IsValid(want) {
		logger.Debugw("unparseable backend version, skipping minimum check",
			"session_id", sessionID, "agent_version", agentVersion, "min_version", minVersion)
		return
	}
	if semver.Compare(have, want) < 0 {
		logger.Warnw("backend older than minimum supported version",
			"session_id", sessionID, "agent_version", agentVersion, "min_version", minVersion)
	}
}

func canonicalVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// watchdogStateChanged surfaces reconnect watchdog activity to consumers.
func (c *Coordinator) watchdogStateChanged(sessionID, wdState string) {
	sess, ok := c.Get(sessionID)
	if !ok {
		return
	}
	c.bcast.BroadcastWatchdogState(sessionID, consumersOf(sess), wdState)
}

// breakerTransitioned runs inside the breaker lock; the fan-out happens on
// its own goroutine.
func (c *Coordinator) breakerTransitioned(from, to policy.BreakerState) {
	logger.Infow("circuit breaker transition", "from", string(from), "to", string(to))
	c.metrics.RecordBreakerTransition(context.Background(), string(to))
	go c.broadcastBreakerState(string(to))
}

func (c *Coordinator) broadcastBreakerState(breakerState string) {
	for _, sess := range c.All() {
		c.bcast.BroadcastCircuitBreakerState(sess.ID(), consumersOf(sess), breakerState)
	}
}

// dropConsumer detaches a consumer whose socket failed mid-broadcast.
func (c *Coordinator) dropConsumer(sessionID, consumerID string) {
	sess, ok := c.Get(sessionID)
	if !ok {
		return
	}
	conn, ok := sess.Consumer(consumerID)
	if !ok {
		return
	}
	sess.DetachConsumer(conn)
	logger.Debugw("detached failed consumer",
		"session_id", sessionID, "consumer_id", consumerID)
	c.bus.Emit(events.KindConsumerDisconnected, sessionID, events.ConsumerPayload{
		ConsumerID: consumerID,
		Role:       conn.Role(),
	})
}

// initializeSender builds the negotiator's transmit hook for one session.
// The initialize request rides the adapter's raw control channel.
func initializeSender(sess *session.Session) policy.InitializeSender {
	return func(requestID string) error {
		if !sess.TrySendRawToBackend(streamjson.InitializeRequest(requestID)) {
			return errors.NewBackendUnavailableError("no live backend for initialize request")
		}
		return nil
	}
}

func consumersOf(sess *session.Session) []broadcast.Consumer {
	conns := sess.Consumers()
	out := make([]broadcast.Consumer, len(conns))
	for i, conn := range conns {
		out[i] = conn
	}
	return out
}

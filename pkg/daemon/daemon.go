// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon assembles and runs the broker: state store, coordinator,
// WebSocket transports and the HTTP control API under one supervised server.
package daemon

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/agentmux/agentmux/pkg/adapter"
	"github.com/agentmux/agentmux/pkg/adapter/claudecli"
	"github.com/agentmux/agentmux/pkg/adapter/invertedws"
	"github.com/agentmux/agentmux/pkg/broadcast"
	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/consumer"
	"github.com/agentmux/agentmux/pkg/coordinator"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/launcher"
	"github.com/agentmux/agentmux/pkg/logger"
	"github.com/agentmux/agentmux/pkg/state"
	"github.com/agentmux/agentmux/pkg/telemetry"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second

	// lockFileName guards the state directory against a second daemon.
	lockFileName = "daemon.lock"
)

// Options configures a Daemon. Config is required; the rest default to the
// production wiring and exist so tests can inject fakes.
type Options struct {
	Config *config.Config

	// Store overrides the configured state backend.
	Store state.Store

	// Resolver overrides the default adapter set (claude-cli, inverted-ws).
	Resolver *adapter.Resolver

	// Tracer taps message flow on every boundary.
	Tracer telemetry.Tracer
}

// Daemon is one assembled broker instance.
type Daemon struct {
	cfg      *config.Config
	coord    *coordinator.Coordinator
	provider *telemetry.Provider
	tracer   telemetry.Tracer
	handler  http.Handler
	lock     *flock.Flock
}

// New wires a Daemon from config. Nothing listens until Run.
func New(ctx context.Context, opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.NewValidationError("daemon requires a config", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop
	}

	provider, err := telemetry.NewProvider(telemetry.Config{
		Enabled:     cfg.Metrics.Enabled,
		ServiceName: "agentmux",
	})
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(provider.Meter("agentmux"))
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store, err = state.NewStore(ctx, cfg.State)
		if err != nil {
			return nil, err
		}
	}

	d := &Daemon{cfg: cfg, provider: provider, tracer: tracer}

	l := launcher.New(cfg.EnvDenyList, cfg.KillGracePeriod(), nil,
		launcher.WithMaxProcesses(cfg.MaxConcurrentSessions))

	resolver := opts.Resolver
	if resolver == nil {
		resolver = adapter.NewResolver()
		if err := resolver.Register(claudecli.New(l, cfg.DefaultBackendBinary, tracer, d.emitProcessOutput)); err != nil {
			return nil, err
		}
		if err := resolver.Register(invertedws.New(cfg.DefaultBackendBinary, cfg.CLIWebSocketURLTemplate, cfg.Host, cfg.Port, tracer)); err != nil {
			return nil, err
		}
	}

	coord, err := coordinator.New(coordinator.Options{
		Config:   cfg,
		Store:    store,
		Resolver: resolver,
		Launcher: l,
		Tracer:   tracer,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}
	d.coord = coord

	auth, err := consumer.NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}
	ws, err := consumer.New(consumer.Options{
		Sessions:           coord,
		Bridge:             coord.Bridge(),
		Broadcaster:        coord.Broadcaster(),
		Replay:             coord.Replay(),
		Bus:                coord.Bus(),
		Auth:               auth,
		Tracer:             tracer,
		Metrics:            metrics,
		AllowedOrigins:     cfg.AllowedOrigins,
		MaxMessageSize:     cfg.MaxConsumerMessageSize,
		InitialReplayCount: cfg.InitialReplayCount,
	})
	if err != nil {
		return nil, err
	}

	d.handler = d.routes(ws)
	return d, nil
}

// Handler exposes the assembled router for tests and embedding.
func (d *Daemon) Handler() http.Handler { return d.handler }

// Coordinator exposes the session registry for tests and embedding.
func (d *Daemon) Coordinator() *coordinator.Coordinator { return d.coord }

// Run binds the configured address and serves until ctx is cancelled, then
// shuts everything down in order.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acquireLock(); err != nil {
		return err
	}
	defer d.releaseLock()

	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return d.serve(ctx, ln)
}

// serve restores persisted sessions, starts policy work and serves HTTP on
// an already-bound listener. It owns the listener which srv.Serve closes.
func (d *Daemon) serve(ctx context.Context, ln net.Listener) error {
	if err := d.coord.Restore(ctx); err != nil {
		logger.Warnw("state restore incomplete", "error", err.Error())
	}
	d.coord.Start(ctx)

	srv := &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("daemon listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("http shutdown incomplete, closing", "error", err.Error())
			_ = srv.Close()
		}
		// Coordinator shutdown tears down sessions and closes the store.
		if err := d.coord.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("coordinator shutdown incomplete", "error", err.Error())
		}
		if err := d.provider.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("telemetry shutdown incomplete", "error", err.Error())
		}
		return nil
	})
	err := g.Wait()
	logger.Infow("daemon stopped")
	return err
}

// acquireLock takes the state-directory lock so two daemons never share one
// state directory. The memory backend has nothing on disk to guard.
func (d *Daemon) acquireLock() error {
	if d.cfg.State.Backend == state.BackendMemory {
		return nil
	}
	dir := d.cfg.State.Dir
	if dir == "" {
		dir = state.DefaultDir()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewStorageError("create state directory", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return errors.NewStorageError("acquire daemon lock", err)
	}
	if !locked {
		return errors.NewStorageError("state directory locked by another daemon: "+lock.Path(), nil)
	}
	d.lock = lock
	return nil
}

func (d *Daemon) releaseLock() {
	if d.lock == nil {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		logger.Warnw("failed to release daemon lock", "error", err.Error())
	}
}

// emitProcessOutput forwards raw backend process output to the session's
// participants. The coordinator field is bound before any adapter can
// connect, so the nil check only covers construction itself.
func (d *Daemon) emitProcessOutput(sessionID, stream, data string) {
	coord := d.coord
	if coord == nil {
		return
	}
	sess, ok := coord.Get(sessionID)
	if !ok {
		return
	}
	conns := sess.Consumers()
	consumers := make([]broadcast.Consumer, 0, len(conns))
	for _, c := range conns {
		consumers = append(consumers, c)
	}
	coord.Broadcaster().BroadcastProcessOutput(sessionID, consumers, stream, data)
}

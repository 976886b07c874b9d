// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"time"

	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/logger"
)

// IdleView is the reaper's read-only view of one session.
type IdleView struct {
	SessionID        string
	BackendConnected bool
	Consumers        int
	LastActivity     time.Time
}

// SweepSource provides the sessions to examine and the reap operation. The
// coordinator implements it; reaping issues the idle policy command and
// closes the session.
type SweepSource interface {
	IdleViews() []IdleView
	ReapIdleSession(ctx context.Context, sessionID string) error
}

// Reaper closes sessions that have no backend, no consumers, and no recent
// activity. Sweeps run on a periodic tick and after connectivity changes;
// they are serialized so two sweeps never overlap.
type Reaper struct {
	src         SweepSource
	bus         *events.Bus
	idleTimeout time.Duration
	interval    time.Duration

	// onReaped, when set, observes successful reaps. Used for metrics.
	onReaped func(sessionID string)

	trigger chan struct{}
	cancel  func()
	done    chan struct{}
}

// NewReaper creates an idle reaper sweeping every interval. A non-positive
// interval derives one from the idle timeout.
func NewReaper(src SweepSource, bus *events.Bus, idleTimeout, interval time.Duration, onReaped func(sessionID string)) *Reaper {
	if interval <= 0 {
		interval = idleTimeout / 4
		if interval < time.Second {
			interval = time.Second
		}
	}
	return &Reaper{
		src:         src,
		bus:         bus,
		idleTimeout: idleTimeout,
		interval:    interval,
		onReaped:    onReaped,
		trigger:     make(chan struct{}, 1),
	}
}

// Start begins periodic sweeping. Connectivity events on the domain bus also
// schedule a sweep. Runs until Stop or context cancellation.
func (r *Reaper) Start(ctx context.Context) {
	ch, cancel := r.bus.Subscribe()
	r.cancel = cancel
	r.done = make(chan struct{})

	// Event watcher coalesces sweep requests into the trigger channel.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				switch ev.Kind {
				case events.KindConsumerDisconnected,
					events.KindBackendDisconnected,
					events.KindBackendConnected:
					r.schedule()
				}
			}
		}
	}()

	// Single worker drains triggers and ticks, so sweeps are serialized.
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			case _, ok := <-r.trigger:
				if !ok {
					return
				}
				r.sweep(ctx)
			}
		}
	}()
}

// Stop halts sweeping. In-flight sweeps finish first.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	close(r.trigger)
	if r.done != nil {
		<-r.done
	}
}

// schedule requests a sweep. Requests arriving while one is pending coalesce.
func (r *Reaper) schedule() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// sweep examines every session and reaps the idle ones.
func (r *Reaper) sweep(ctx context.Context) {
	now := time.Now()
	for _, v := range r.src.IdleViews() {
		if v.BackendConnected || v.Consumers > 0 {
			continue
		}
		if now.Sub(v.LastActivity) < r.idleTimeout {
			continue
		}
		logger.Infow("reaping idle session",
			"session_id", v.SessionID,
			"idle_for", now.Sub(v.LastActivity).Round(time.Second))
		if err := r.src.ReapIdleSession(ctx, v.SessionID); err != nil {
			logger.Warnw("idle reap failed", "session_id", v.SessionID, "error", err)
			continue
		}
		if r.onReaped != nil {
			r.onReaped(v.SessionID)
		}
	}
}

// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"sync"
	"time"

	"github.com/agentmux/agentmux/pkg/events"
	"github.com/agentmux/agentmux/pkg/logger"
)

// Watchdog requests a backend relaunch when an inverted-connection backend
// disconnects and fails to reconnect within the grace period. Relaunch
// requests for the same session are deduplicated inside a configurable
// window so a flapping backend cannot trigger a launch storm.
type Watchdog struct {
	bus   *events.Bus
	grace time.Duration
	dedup time.Duration

	// onState, when set, reports watchdog activity for consumer-visible
	// status broadcasts.
	onState func(sessionID, state string)

	mu           sync.Mutex
	timers       map[string]*time.Timer
	lastRelaunch map[string]time.Time

	cancel func()
	done   chan struct{}
}

// Watchdog states reported through onState.
const (
	WatchdogArmed              = "armed"
	WatchdogDisarmed           = "disarmed"
	WatchdogRelaunchRequested  = "relaunch_requested"
	WatchdogRelaunchSuppressed = "relaunch_suppressed"
)

// NewWatchdog creates a reconnect watchdog. onState may be nil.
func NewWatchdog(bus *events.Bus, grace, dedup time.Duration, onState func(sessionID, state string)) *Watchdog {
	return &Watchdog{
		bus:          bus,
		grace:        grace,
		dedup:        dedup,
		onState:      onState,
		timers:       make(map[string]*time.Timer),
		lastRelaunch: make(map[string]time.Time),
	}
}

// Start subscribes to the domain bus and begins watching. It returns
// immediately; event handling runs until Stop or context cancellation.
func (w *Watchdog) Start(ctx context.Context) {
	ch, cancel := w.bus.Subscribe()
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				w.handle(ev)
			}
		}
	}()
}

// Stop cancels the bus subscription and stops all pending grace timers.
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *Watchdog) handle(ev events.Event) {
	switch ev.Kind {
	case events.KindBackendDisconnected:
		payload, ok := ev.Payload.(events.BackendPayload)
		if !ok || !payload.Inverted {
			// Spawned backends are supervised by their launcher; the
			// watchdog only covers callback-style connections.
			return
		}
		w.arm(ev.SessionID)
	case events.KindBackendConnected:
		w.disarm(ev.SessionID)
	case events.KindSessionClosed:
		w.forget(ev.SessionID)
	}
}

// arm starts (or restarts) the grace timer for a session.
func (w *Watchdog) arm(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[sessionID]; ok {
		t.Stop()
	}
	w.timers[sessionID] = time.AfterFunc(w.grace, func() {
		w.fire(sessionID)
	})

	logger.Debugw("reconnect watchdog armed", "session_id", sessionID, "grace", w.grace)
	w.notify(sessionID, WatchdogArmed)
}

// disarm cancels the grace timer when the backend reconnects in time.
func (w *Watchdog) disarm(sessionID string) {
	w.mu.Lock()
	t, ok := w.timers[sessionID]
	if ok {
		t.Stop()
		delete(w.timers, sessionID)
	}
	w.mu.Unlock()

	if ok {
		logger.Debugw("reconnect watchdog disarmed", "session_id", sessionID)
		w.notify(sessionID, WatchdogDisarmed)
	}
}

// forget drops all watchdog state for a closed session.
func (w *Watchdog) forget(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[sessionID]; ok {
		t.Stop()
		delete(w.timers, sessionID)
	}
	delete(w.lastRelaunch, sessionID)
}

// fire runs when the grace period elapses without a reconnect.
func (w *Watchdog) fire(sessionID string) {
	w.mu.Lock()
	delete(w.timers, sessionID)

	if last, ok := w.lastRelaunch[sessionID]; ok && time.Since(last) < w.dedup {
		w.mu.Unlock()
		logger.Warnw("relaunch suppressed, another relaunch started recently",
			"session_id", sessionID, "dedup_window", w.dedup)
		w.notify(sessionID, WatchdogRelaunchSuppressed)
		return
	}
	w.lastRelaunch[sessionID] = time.Now()
	w.mu.Unlock()

	logger.Infow("backend did not reconnect within grace period, requesting relaunch",
		"session_id", sessionID, "grace", w.grace)
	w.notify(sessionID, WatchdogRelaunchRequested)
	w.bus.Emit(events.KindRelaunchNeeded, sessionID, events.RelaunchPayload{
		Reason: "reconnect_grace_elapsed",
	})
}

func (w *Watchdog) notify(sessionID, state string) {
	if w.onState != nil {
		w.onState(sessionID, state)
	}
}

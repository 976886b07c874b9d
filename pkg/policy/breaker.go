// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy holds the broker's independent policy services: the restart
// circuit breaker, the reconnect watchdog, the idle reaper, the capability
// negotiator, and the permission gatekeeper. Each is owned by exactly one
// consumer and carries its own synchronization.
package policy

import (
	"sync"
	"time"

	"github.com/agentmux/agentmux/pkg/logger"
)

// BreakerState is the state of a restart circuit breaker.
type BreakerState string

const (
	// BreakerClosed indicates normal operation. Launches pass through.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen indicates a crash loop. Launches fail immediately.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen indicates recovery probing after the cooldown.
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of failures inside Window that trips
	// the breaker open.
	FailureThreshold int
	// Window is the sliding interval over which failures are counted.
	Window time.Duration
	// RecoveryTime is how long the breaker stays open before probing.
	RecoveryTime time.Duration
	// SuccessThreshold is the number of consecutive half-open successes
	// required to close again.
	SuccessThreshold int
}

// Breaker protects a backend from rapid restart loops. Failures are counted
// over a sliding window; once tripped, launches are blocked until the
// recovery cooldown passes, then probed until enough consecutive successes
// close the breaker again.
//
// The launch supervisor that owns a Breaker serializes its launch attempts,
// but state may be read from other goroutines, so all access is locked.
type Breaker struct {
	mu sync.Mutex

	// name identifies the session in logs.
	name string
	cfg  BreakerConfig

	state             BreakerState
	failureTimes      []time.Time
	halfOpenSuccesses int
	lastStateChange   time.Time

	now func() time.Time

	// onTransition, when set, fires outside state mutation ordering
	// guarantees but inside the lock, so keep it cheap.
	onTransition func(from, to BreakerState)
}

// NewBreaker creates a circuit breaker for the named session.
func NewBreaker(name string, cfg BreakerConfig, onTransition func(from, to BreakerState)) *Breaker {
	b := &Breaker{
		name:         name,
		cfg:          cfg,
		state:        BreakerClosed,
		now:          time.Now,
		onTransition: onTransition,
	}
	b.lastStateChange = b.now()
	return b
}

// CanExecute reports whether a launch attempt may proceed. In the open state
// it transitions to half-open once the recovery cooldown has elapsed.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastStateChange) >= b.cfg.RecoveryTime {
			b.transition(BreakerHalfOpen)
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful launch. Enough consecutive half-open
// successes close the breaker and clear the failure window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.failureTimes = nil
			b.transition(BreakerClosed)
			logger.Infof("Restart breaker for session %s closed (recovery successful)", b.name)
		}
	case BreakerClosed:
		// Success in steady state ages out the window naturally; nothing
		// to reset.
	case BreakerOpen:
		// Success cannot be observed while open; launches are blocked.
	}
}

// RecordFailure records a failed launch. At the failure threshold within the
// sliding window the breaker opens; any half-open failure reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failureTimes = append(b.failureTimes, now)
	b.prune(now)

	switch b.state {
	case BreakerClosed:
		if len(b.failureTimes) >= b.cfg.FailureThreshold {
			b.transition(BreakerOpen)
			logger.Warnf("Restart breaker for session %s opened (%d failures in %s)",
				b.name, len(b.failureTimes), b.cfg.Window)
		}
	case BreakerHalfOpen:
		b.transition(BreakerOpen)
		logger.Warnf("Restart breaker for session %s reopened (probe failed)", b.name)
	case BreakerOpen:
	}
}

// GetState returns the current breaker state.
func (b *Breaker) GetState() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetFailureCount returns the number of failures still inside the window.
func (b *Breaker) GetFailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.now())
	return len(b.failureTimes)
}

// ForceReset returns the breaker to closed and clears all failure history.
// Used by operators to override a tripped breaker.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureTimes = nil
	b.halfOpenSuccesses = 0
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
		logger.Infof("Restart breaker for session %s force-reset", b.name)
	}
}

// Snapshot is an immutable view of breaker state for status reporting.
type Snapshot struct {
	State           BreakerState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// GetSnapshot returns a read-only snapshot. It never triggers transitions.
func (b *Breaker) GetSnapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.now())
	return Snapshot{
		State:           b.state,
		FailureCount:    len(b.failureTimes),
		LastStateChange: b.lastStateChange,
	}
}

// prune drops failures older than the sliding window. Callers hold b.mu.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.failureTimes) && !b.failureTimes[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.failureTimes = append(b.failureTimes[:0], b.failureTimes[i:]...)
	}
}

// transition moves to the new state and notifies. Callers hold b.mu.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.lastStateChange = b.now()
	if to != BreakerHalfOpen {
		b.halfOpenSuccesses = 0
	}
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}

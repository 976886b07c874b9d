// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the broker's domain instruments. All record methods are
// nil-receiver safe so components constructed without telemetry can skip
// wiring entirely.
type Metrics struct {
	messagesRouted     metric.Int64Counter
	broadcasts         metric.Int64Counter
	backpressureDrops  metric.Int64Counter
	rateLimitRejects   metric.Int64Counter
	breakerTransitions metric.Int64Counter
	sessionsReaped     metric.Int64Counter
	consumerEvents     metric.Int64Counter
}

// NewMetrics creates the instrument set on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.messagesRouted, err = meter.Int64Counter("agentmux_messages_routed_total",
		metric.WithDescription("Unified messages processed by the router, by type")); err != nil {
		return nil, fmt.Errorf("failed to create messages_routed counter: %w", err)
	}
	if m.broadcasts, err = meter.Int64Counter("agentmux_broadcasts_total",
		metric.WithDescription("Consumer broadcasts attempted, by type")); err != nil {
		return nil, fmt.Errorf("failed to create broadcasts counter: %w", err)
	}
	if m.backpressureDrops, err = meter.Int64Counter("agentmux_backpressure_drops_total",
		metric.WithDescription("Messages dropped because a consumer buffer exceeded the backpressure threshold")); err != nil {
		return nil, fmt.Errorf("failed to create backpressure_drops counter: %w", err)
	}
	if m.rateLimitRejects, err = meter.Int64Counter("agentmux_rate_limit_rejections_total",
		metric.WithDescription("Inbound consumer frames rejected by the per-consumer rate limiter")); err != nil {
		return nil, fmt.Errorf("failed to create rate_limit_rejections counter: %w", err)
	}
	if m.breakerTransitions, err = meter.Int64Counter("agentmux_circuit_breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions, by target state")); err != nil {
		return nil, fmt.Errorf("failed to create breaker_transitions counter: %w", err)
	}
	if m.sessionsReaped, err = meter.Int64Counter("agentmux_sessions_reaped_total",
		metric.WithDescription("Sessions closed by the idle policy")); err != nil {
		return nil, fmt.Errorf("failed to create sessions_reaped counter: %w", err)
	}
	if m.consumerEvents, err = meter.Int64Counter("agentmux_consumer_events_total",
		metric.WithDescription("Consumer attach and detach events")); err != nil {
		return nil, fmt.Errorf("failed to create consumer_events counter: %w", err)
	}
	return m, nil
}

// RecordRouted counts one routed unified message.
func (m *Metrics) RecordRouted(ctx context.Context, msgType string) {
	if m == nil {
		return
	}
	m.messagesRouted.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
}

// RecordBroadcast counts one broadcast attempt.
func (m *Metrics) RecordBroadcast(ctx context.Context, msgType string) {
	if m == nil {
		return
	}
	m.broadcasts.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
}

// RecordBackpressureDrop counts a message dropped for a slow consumer.
func (m *Metrics) RecordBackpressureDrop(ctx context.Context) {
	if m == nil {
		return
	}
	m.backpressureDrops.Add(ctx, 1)
}

// RecordRateLimitReject counts one rejected inbound frame.
func (m *Metrics) RecordRateLimitReject(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimitRejects.Add(ctx, 1)
}

// RecordBreakerTransition counts one circuit breaker transition.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

// RecordSessionReaped counts one idle-reaped session.
func (m *Metrics) RecordSessionReaped(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsReaped.Add(ctx, 1)
}

// RecordConsumerEvent counts a consumer attach ("connect") or detach
// ("disconnect").
func (m *Metrics) RecordConsumerEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.consumerEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", kind)))
}

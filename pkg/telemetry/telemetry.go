// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires the broker's metrics through an OpenTelemetry meter
// backed by a Prometheus registry, and defines the message tracer seam.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	mnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config controls provider construction.
type Config struct {
	// Enabled turns real metric collection on. When false the provider is a
	// no-op and Handler() returns nil.
	Enabled bool

	// ServiceName labels exported metrics.
	ServiceName string
}

// Provider owns the meter provider and the scrape handler.
type Provider struct {
	meterProvider metric.MeterProvider
	shutdown      func(context.Context) error
	handler       http.Handler
}

// NewProvider builds a Provider per config. Disabled providers hand out a
// no-op meter so instrument call sites need no conditionals.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			meterProvider: mnoop.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
		}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentmux"
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	return &Provider{
		meterProvider: mp,
		shutdown:      mp.Shutdown,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Meter returns a meter for the given instrumentation scope.
func (p *Provider) Meter(scope string) metric.Meter {
	return p.meterProvider.Meter(scope)
}

// Handler returns the Prometheus scrape handler, or nil when disabled.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

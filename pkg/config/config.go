// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the broker configuration, its defaults, and the
// load path: YAML file under the XDG config directory, zero fields filled
// from defaults, selected environment overrides on top.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/agentmux/agentmux/pkg/env"
)

// RateLimit configures the per-consumer inbound token bucket.
type RateLimit struct {
	TokensPerSecond float64 `yaml:"tokens_per_second" json:"tokens_per_second"`
	BurstSize       int     `yaml:"burst_size" json:"burst_size"`
}

// Breaker configures the backend restart circuit breaker.
type Breaker struct {
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	WindowMs         int `yaml:"window_ms" json:"window_ms"`
	RecoveryTimeMs   int `yaml:"recovery_time_ms" json:"recovery_time_ms"`
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold"`
}

// SlashCommand configures local slash-command execution.
type SlashCommand struct {
	PTYEnabled            bool `yaml:"pty_enabled" json:"pty_enabled"`
	PTYTimeoutMs          int  `yaml:"pty_timeout_ms" json:"pty_timeout_ms"`
	PTYSilenceThresholdMs int  `yaml:"pty_silence_threshold_ms" json:"pty_silence_threshold_ms"`
}

// Encryption configures the at-rest snapshot cipher.
type Encryption struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Key is the base64-encoded 32-byte symmetric key.
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	KeyID string `yaml:"key_id,omitempty" json:"key_id,omitempty"`
}

// State configures session persistence.
type State struct {
	// Backend selects the store: local, sqlite, or memory.
	Backend    string     `yaml:"backend" json:"backend"`
	Dir        string     `yaml:"dir,omitempty" json:"dir,omitempty"`
	Encryption Encryption `yaml:"encryption,omitempty" json:"encryption,omitempty"`
}

// Auth configures the consumer connection authenticator.
type Auth struct {
	// Mode is none, token, or jwt.
	Mode      string `yaml:"mode" json:"mode"`
	Token     string `yaml:"token,omitempty" json:"token,omitempty"`
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"jwt_secret,omitempty"`
}

// Metrics configures the telemetry provider.
type Metrics struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Config is the broker configuration.
type Config struct {
	Host  string `yaml:"host" json:"host"`
	Port  int    `yaml:"port" json:"port"`
	Debug bool   `yaml:"debug,omitempty" json:"debug,omitempty"`

	// AllowedOrigins restricts browser WebSocket connections by Origin
	// header. Empty (the default) and a bare "*" admit every origin;
	// requests without an Origin header always pass.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`

	MaxMessageHistoryLength    int `yaml:"max_message_history_length" json:"max_message_history_length"`
	MaxConcurrentSessions      int `yaml:"max_concurrent_sessions" json:"max_concurrent_sessions"`
	MaxConsumerMessageSize     int `yaml:"max_consumer_message_size" json:"max_consumer_message_size"`
	BackpressureThresholdBytes int `yaml:"backpressure_threshold_bytes" json:"backpressure_threshold_bytes"`
	ReplayRingSize             int `yaml:"replay_ring_size" json:"replay_ring_size"`
	InitialReplayCount         int `yaml:"initial_replay_count" json:"initial_replay_count"`
	MaxPendingPermissions      int `yaml:"max_pending_permissions" json:"max_pending_permissions"`

	IdleSessionTimeoutMs     int `yaml:"idle_session_timeout_ms" json:"idle_session_timeout_ms"`
	ReconnectGracePeriodMs   int `yaml:"reconnect_grace_period_ms" json:"reconnect_grace_period_ms"`
	RelaunchDedupMs          int `yaml:"relaunch_dedup_ms" json:"relaunch_dedup_ms"`
	InitializeTimeoutMs      int `yaml:"initialize_timeout_ms" json:"initialize_timeout_ms"`
	KillGracePeriodMs        int `yaml:"kill_grace_period_ms" json:"kill_grace_period_ms"`
	RelaunchGracePeriodMs    int `yaml:"relaunch_grace_period_ms" json:"relaunch_grace_period_ms"`
	ResumeFailureThresholdMs int `yaml:"resume_failure_threshold_ms" json:"resume_failure_threshold_ms"`

	EnvDenyList             []string `yaml:"env_deny_list,omitempty" json:"env_deny_list,omitempty"`
	CLIWebSocketURLTemplate string   `yaml:"cli_websocket_url_template" json:"cli_websocket_url_template"`
	DefaultBackendBinary    string   `yaml:"default_backend_binary" json:"default_backend_binary"`
	DefaultAdapter          string   `yaml:"default_adapter" json:"default_adapter"`
	MinBackendVersion       string   `yaml:"min_backend_version,omitempty" json:"min_backend_version,omitempty"`

	ConsumerMessageRateLimit RateLimit    `yaml:"consumer_message_rate_limit" json:"consumer_message_rate_limit"`
	CLIRestartCircuitBreaker Breaker      `yaml:"cli_restart_circuit_breaker" json:"cli_restart_circuit_breaker"`
	SlashCommand             SlashCommand `yaml:"slash_command" json:"slash_command"`
	State                    State        `yaml:"state" json:"state"`
	Auth                     Auth         `yaml:"auth" json:"auth"`
	Metrics                  Metrics      `yaml:"metrics" json:"metrics"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		Host:                       "127.0.0.1",
		Port:                       7433,
		MaxMessageHistoryLength:    2000,
		MaxConcurrentSessions:      25,
		MaxConsumerMessageSize:     1 << 20,
		BackpressureThresholdBytes: 1 << 20,
		ReplayRingSize:             1000,
		InitialReplayCount:         20,
		MaxPendingPermissions:      100,
		IdleSessionTimeoutMs:       int((30 * time.Minute).Milliseconds()),
		ReconnectGracePeriodMs:     10_000,
		RelaunchDedupMs:            5_000,
		InitializeTimeoutMs:        10_000,
		KillGracePeriodMs:          5_000,
		RelaunchGracePeriodMs:      2_000,
		ResumeFailureThresholdMs:   5_000,
		CLIWebSocketURLTemplate:    "ws://{host}:{port}/backend/ws?session_id={session_id}",
		DefaultBackendBinary:       "claude",
		DefaultAdapter:             "inverted-ws",
		ConsumerMessageRateLimit:   RateLimit{TokensPerSecond: 30, BurstSize: 50},
		CLIRestartCircuitBreaker: Breaker{
			FailureThreshold: 5,
			WindowMs:         60_000,
			RecoveryTimeMs:   30_000,
			SuccessThreshold: 2,
		},
		SlashCommand: SlashCommand{
			PTYEnabled:            false,
			PTYTimeoutMs:          30_000,
			PTYSilenceThresholdMs: 1_500,
		},
		State:   State{Backend: "local"},
		Auth:    Auth{Mode: "none"},
		Metrics: Metrics{Enabled: true},
	}
}

// defaultPathGenerator generates the default config path using xdg.
var defaultPathGenerator = func() (string, error) {
	return xdg.ConfigFile("amux/config.yaml")
}

// LoadOrCreate fetches the configuration from the default path, creating the
// file with defaults when missing.
func LoadOrCreate() (*Config, error) {
	path, err := defaultPathGenerator()
	if err != nil {
		return nil, fmt.Errorf("unable to resolve config path: %w", err)
	}
	return LoadOrCreateWithPath(path, &env.OSReader{})
}

// LoadOrCreateWithPath fetches the configuration from configPath using the
// given environment reader for overrides. A missing file is created with
// defaults; fields absent from an existing file are filled from defaults.
func LoadOrCreateWithPath(configPath string, envReader env.Reader) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		cfg = Config{}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
		}
		defaults := Default()
		if err := mergo.Merge(&cfg, defaults); err != nil {
			return nil, fmt.Errorf("error merging config defaults: %w", err)
		}
	case os.IsNotExist(err):
		if err := cfg.saveToPath(configPath); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}

	applyEnvOverrides(&cfg, envReader)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers environment values over the loaded file. Only
// deployment-sensitive settings are overridable this way; everything else is
// file or flag driven.
func applyEnvOverrides(cfg *Config, envReader env.Reader) {
	if v := envReader.Getenv("AMUX_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envReader.Getenv("AMUX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := envReader.Getenv("AMUX_STATE_DIR"); v != "" {
		cfg.State.Dir = v
	}
	if v := envReader.Getenv("AMUX_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
		if cfg.Auth.Mode == "none" {
			cfg.Auth.Mode = "token"
		}
	}
	if v := envReader.Getenv("AMUX_ENCRYPTION_KEY"); v != "" {
		cfg.State.Encryption.Key = v
		cfg.State.Encryption.Enabled = true
	}
}

// saveToPath serializes the config and writes it to configPath.
func (c *Config) saveToPath(configPath string) error {
	configBytes, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error serializing config file: %w", err)
	}
	if err := os.WriteFile(configPath, configBytes, 0600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the broker cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxMessageHistoryLength < 1 {
		return fmt.Errorf("max_message_history_length must be positive, got %d", c.MaxMessageHistoryLength)
	}
	if c.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be positive, got %d", c.MaxConcurrentSessions)
	}
	if c.MaxConsumerMessageSize < 1 || c.BackpressureThresholdBytes < 1 {
		return fmt.Errorf("message size limits must be positive")
	}
	if c.ReplayRingSize < 1 || c.InitialReplayCount < 0 {
		return fmt.Errorf("replay settings out of range")
	}
	if c.ConsumerMessageRateLimit.TokensPerSecond <= 0 || c.ConsumerMessageRateLimit.BurstSize < 1 {
		return fmt.Errorf("consumer_message_rate_limit must allow at least one message")
	}
	b := c.CLIRestartCircuitBreaker
	if b.FailureThreshold < 1 || b.WindowMs < 1 || b.RecoveryTimeMs < 1 || b.SuccessThreshold < 1 {
		return fmt.Errorf("cli_restart_circuit_breaker thresholds must be positive")
	}
	switch c.State.Backend {
	case "local", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown state backend %q (valid: local, sqlite, memory)", c.State.Backend)
	}
	switch c.Auth.Mode {
	case "none", "token", "jwt":
	default:
		return fmt.Errorf("unknown auth mode %q (valid: none, token, jwt)", c.Auth.Mode)
	}
	if c.Auth.Mode == "token" && c.Auth.Token == "" {
		return fmt.Errorf("auth mode token requires auth.token")
	}
	if c.Auth.Mode == "jwt" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth mode jwt requires auth.jwt_secret")
	}
	if c.State.Encryption.Enabled {
		key, err := base64.StdEncoding.DecodeString(c.State.Encryption.Key)
		if err != nil {
			return fmt.Errorf("state encryption key is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("state encryption key must decode to 32 bytes, got %d", len(key))
		}
	}
	return nil
}

// Duration accessors. Millisecond integers are the wire format; callers work
// in time.Duration.

// IdleSessionTimeout returns the idle reap threshold.
func (c *Config) IdleSessionTimeout() time.Duration {
	return time.Duration(c.IdleSessionTimeoutMs) * time.Millisecond
}

// ReconnectGracePeriod returns the backend reconnect grace window.
func (c *Config) ReconnectGracePeriod() time.Duration {
	return time.Duration(c.ReconnectGracePeriodMs) * time.Millisecond
}

// RelaunchDedup returns the relaunch deduplication window.
func (c *Config) RelaunchDedup() time.Duration {
	return time.Duration(c.RelaunchDedupMs) * time.Millisecond
}

// InitializeTimeout returns the capability negotiation deadline.
func (c *Config) InitializeTimeout() time.Duration {
	return time.Duration(c.InitializeTimeoutMs) * time.Millisecond
}

// KillGracePeriod returns the TERM-to-KILL escalation delay.
func (c *Config) KillGracePeriod() time.Duration {
	return time.Duration(c.KillGracePeriodMs) * time.Millisecond
}

// RelaunchGracePeriod returns the wait before a relaunched backend is
// expected to connect.
func (c *Config) RelaunchGracePeriod() time.Duration {
	return time.Duration(c.RelaunchGracePeriodMs) * time.Millisecond
}

// ResumeFailureThreshold returns the window in which a post-resume exit is
// classified as a resume failure.
func (c *Config) ResumeFailureThreshold() time.Duration {
	return time.Duration(c.ResumeFailureThresholdMs) * time.Millisecond
}

// BreakerWindow returns the breaker's sliding failure window.
func (b Breaker) BreakerWindow() time.Duration {
	return time.Duration(b.WindowMs) * time.Millisecond
}

// RecoveryTime returns the open-state cooldown.
func (b Breaker) RecoveryTime() time.Duration {
	return time.Duration(b.RecoveryTimeMs) * time.Millisecond
}

// EncryptionKey decodes the configured base64 key.
func (e Encryption) EncryptionKey() ([]byte, error) {
	if !e.Enabled {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(e.Key)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	return key, nil
}

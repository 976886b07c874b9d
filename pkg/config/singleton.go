// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"sync"

	"github.com/agentmux/agentmux/pkg/logger"
)

var (
	singletonMu     sync.RWMutex
	singletonConfig *Config
)

// Get returns the process-wide configuration, loading it on first use. Load
// failures fall back to defaults so the broker can still start.
func Get() *Config {
	singletonMu.RLock()
	if singletonConfig != nil {
		defer singletonMu.RUnlock()
		return singletonConfig
	}
	singletonMu.RUnlock()

	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singletonConfig != nil {
		return singletonConfig
	}

	cfg, err := LoadOrCreate()
	if err != nil {
		logger.Warnf("error loading configuration, using defaults: %v", err)
		def := Default()
		cfg = &def
	}
	singletonConfig = cfg
	return singletonConfig
}

// Set installs cfg as the process-wide configuration. Intended for the CLI
// entrypoint after flag parsing and for tests.
func Set(cfg *Config) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singletonConfig = cfg
}

// Reset clears the singleton so the next Get reloads. Test helper.
func Reset() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singletonConfig = nil
}

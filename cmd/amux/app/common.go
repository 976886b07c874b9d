// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/viper"

	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/env"
)

// loadConfig reads the configuration from the path given by --config,
// falling back to the default XDG location.
func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.LoadOrCreateWithPath(path, &env.OSReader{})
	}
	return config.LoadOrCreate()
}

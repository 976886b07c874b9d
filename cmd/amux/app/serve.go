// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/daemon"
	"github.com/agentmux/agentmux/pkg/logger"
)

var (
	serveHost     string
	servePort     int
	serveStateDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentmux broker daemon",
	Long: `Starts the agentmux broker daemon: the consumer and backend WebSocket
endpoints, the HTTP control API, and the metrics listener.`,
	RunE: serveCmdFunc,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host address to bind the broker to (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to bind the broker to (overrides config)")
	serveCmd.Flags().StringVar(&serveStateDir, "state-dir", "", "Directory for persisted session state (overrides config)")
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// A developer .env file supplies AMUX_* overrides when present.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("state-dir") {
		cfg.State.Dir = serveStateDir
	}
	if viper.GetBool("debug") {
		cfg.Debug = true
	}
	config.Set(cfg)

	d, err := daemon.New(ctx, daemon.Options{Config: cfg})
	if err != nil {
		return err
	}

	logger.Infow("starting agentmux daemon", "host", cfg.Host, "port", cfg.Port)
	return d.Run(ctx)
}

// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the amux command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmux/agentmux/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "amux",
	DisableAutoGenTag: true,
	Short:             "agentmux (amux) is a session broker for coding-agent backends",
	Long: `agentmux (amux) is a session broker that multiplexes many UI clients onto
long-running coding-agent backends. The daemon keeps per-session message
history, replays missed output to reconnecting clients, and supervises the
agent processes it launches.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Re-initialize after flag parsing so --debug takes effect.
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the amux CLI.
func NewRootCmd() *cobra.Command {
	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the amux configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSchemaCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Doorward CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doorward",
		Short: "Doorward - session-based authentication service",
		Long: `Doorward is a standalone authentication service: it registers users,
verifies credentials, maintains server-side sessions with a TTL, and
exposes the caller's identity over an HTTP JSON API.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/doorward/config.yaml)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

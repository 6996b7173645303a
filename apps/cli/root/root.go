package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the hotspot admin CLI. Subcommands (bootstrap, reconcile, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "hotspot",
	Short:         "Hotspot billing admin CLI",
	Long:          "Administrative utilities for hotspot billing (schema bootstrap, tenant/router registry, access reconciliation).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}

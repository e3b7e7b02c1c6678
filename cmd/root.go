// Package cmd implements the relay command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - tool-augmented chat service",
	Long: `Relay is a web chat service that dispatches user turns to a hosted
language model, optionally augmented by MCP tool servers.

Run "relay serve" to start the HTTP API, or "relay mcp <tool>" to run one
of the bundled tool servers on stdio.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

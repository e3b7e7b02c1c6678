package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/relaychat/relay/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp <weather|ecommerce>",
	Short: "Run a bundled MCP tool server on stdio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(args[0])
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// runMCP starts the named tool server on stdio transport. Logs go to
// stderr; stdout belongs to the protocol.
func runMCP(id string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server, err := mcpserver.New(id, slog.Default())
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	slog.Info("MCP server ready", "name", server.Name(), "version", mcpserver.Version, "transport", "stdio")

	if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	slog.Info("MCP server shut down gracefully")
	return nil
}

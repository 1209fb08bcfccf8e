package cmd

import (
	"context"
	"fmt"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/inkbase/inkbase/internal/app"
	"github.com/inkbase/inkbase/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine over the Model Context Protocol on stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		server, err := mcp.NewServer(mcp.Config{
			Name:    "inkbase",
			Version: AppVersion,
		}, a.Engine, a.Summarizer, a.Fetcher)
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}

		a.Logger.Info("MCP server ready", "transport", "stdio", "version", AppVersion)

		if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	})
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/parley/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes contacts, messaging, expectations and context as MCP tools.
The polling loop runs alongside so menus waiting for a reply can complete.

Supported modes:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mode, _ := cmd.Flags().GetString("mode")
		port, _ := cmd.Flags().GetInt("port")
		noPoll, _ := cmd.Flags().GetBool("no-poll")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if !noPoll {
			go func() {
				if err := rt.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Poll loop stopped", "err", err)
				}
			}()
		}

		srv := mcp.NewServer(rt.Engine, mcp.WithLogger(logger))
		switch mode {
		case "stdio":
			// Logs go to stderr; stdout carries JSON-RPC.
			logger.Info("Starting Parley MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			addr := fmt.Sprintf(":%d", port)
			return srv.ServeSSE(ctx, addr, fmt.Sprintf("http://localhost:%d", port))
		}
		return fmt.Errorf("unknown mode %q (stdio, sse)", mode)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("mode", "stdio", "Transport mode: stdio or sse")
	mcpCmd.Flags().IntP("port", "p", 8081, "Port for the sse mode")
	mcpCmd.Flags().Bool("no-poll", false, "Do not poll the provider")
}

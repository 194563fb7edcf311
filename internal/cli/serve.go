package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/mcp"
	"github.com/khanglvm/tool-optimizer-mcp/internal/version"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the 'serve' command for running the MCP server.
func NewServeCmd() *cobra.Command {
	var noUpdateCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the tool-optimizer MCP server using stdio transport.

The server exposes 7 tools to AI clients:
  • optimize_tools      - Select and route the tools for an agent task
  • route_tool          - Pick the server for one tool call
  • record_execution    - Report the outcome of a tool call
  • get_tool_metrics    - Success rate and latency of a tool
  • optimization_report - Merged report of every component
  • update_pattern      - Replace the integration pattern of an agent type
  • search_tools        - Rank catalog tools for a free-text query

Execution history is persisted to SQLite and replayed on the next start.`,
		Example: `  # Run directly
  tool-optimizer serve

  # Add to Claude Code
  claude mcp add tool-optimizer -- tool-optimizer serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, !noUpdateCheck)
		},
	}

	cmd.Flags().BoolVar(&noUpdateCheck, "no-update-check", false, "Skip the background release check")

	return cmd
}

// runServe starts the MCP server and shuts down on SIGINT/SIGTERM/SIGQUIT
// or when stdin is closed.
func runServe(cmd *cobra.Command, checkUpdates bool) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan)

	if checkUpdates && !version.IsDev() {
		go checkForUpdates(ctx)
	}

	server := mcp.NewServer(m)
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}()

	select {
	case sig := <-sigChan:
		logger.KV(xlog.INFO, "status", "shutting_down", "signal", sig.String())
		cancel()
		if err := m.Close(); err != nil {
			return errors.Wrap(err, "shutdown failed")
		}
		return nil

	case err := <-errChan:
		// stdin closed or read error
		if closeErr := m.Close(); closeErr != nil {
			logger.KV(xlog.ERROR, "reason", "close", "err", closeErr.Error())
		}
		if err != nil {
			return errors.Wrap(err, "server error")
		}
		return nil
	}
}

// checkForUpdates logs when a newer release exists.
func checkForUpdates(parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, 10*time.Second)
	defer cancel()

	latest, err := version.NewChecker().CheckUpdate(ctx, version.Version)
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "update_check", "err", err.Error())
		return
	}
	if latest != "" {
		logger.KV(xlog.WARNING, "status", "update_available", "latest", latest, "current", version.Version)
	}
}

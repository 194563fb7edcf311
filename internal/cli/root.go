/*
Package cli implements the tool-optimizer command line.

Every command reads ~/.tool-optimizer.json (or --config) and builds its own
optimizer. History recorded by 'serve' is replayed on start, so one-shot
commands see the same metrics as the running server.
*/
package cli

import (
	"os"

	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/version"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "cli")

const (
	configFlag = "config"
	debugFlag  = "debug"
)

// NewRootCmd creates the tool-optimizer command tree.
func NewRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "tool-optimizer",
		Short: "Pick, route and monitor the tools an AI agent needs",
		Long: `tool-optimizer selects the smallest effective set of MCP tools for an
agent task, routes each tool call to the healthiest server and learns from
reported outcomes.

Run it as an MCP server with 'tool-optimizer serve', or use the one-shot
commands below to inspect decisions from the terminal.`,
		Version:      version.GetVersion(),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// stdout carries MCP traffic
			xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
			if debug {
				xlog.SetGlobalLogLevel(xlog.DEBUG)
			} else {
				xlog.SetGlobalLogLevel(xlog.WARNING)
			}
		},
	}

	root.PersistentFlags().String(configFlag, "", "Config file (default ~/.tool-optimizer.json)")
	root.PersistentFlags().BoolVar(&debug, debugFlag, false, "Enable debug logging")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewOptimizeCmd())
	root.AddCommand(NewRouteCmd())
	root.AddCommand(NewReportCmd())
	root.AddCommand(NewPatternsCmd())
	root.AddCommand(NewSearchCmd())
	root.AddCommand(NewBenchmarkCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewInitCmd())
	root.AddCommand(NewVerifyCmd())
	root.AddCommand(NewVersionCmd())

	return root
}

/*
Package main is the entry point for the tool-optimizer CLI.

tool-optimizer selects, routes and monitors the MCP tools an AI agent
needs for a task, so clients load a handful of tool definitions instead of
the whole catalog.

Usage:
  tool-optimizer [command]

Available Commands:
  serve       Run the MCP server (stdio transport)
  optimize    Select and route the tools for an agent task
  route       Pick the server that should run a tool
  report      Show the merged optimization report
  patterns    List agent integration patterns
  search      Search catalog tools using natural language
  benchmark   Compare token consumption: full catalog vs optimized selection
  history     Manage the execution history database
  init        Write a default configuration file
  verify      Verify configuration, catalog and rules
  version     Show version information

Examples:
  # Run as MCP server
  tool-optimizer serve

  # Preview a selection
  tool-optimizer optimize frontend-engineer build responsive UI component
*/
package main

import (
	"fmt"
	"os"

	"github.com/khanglvm/tool-optimizer-mcp/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

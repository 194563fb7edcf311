package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/benchmark"
	"github.com/spf13/cobra"
)

// NewBenchmarkCmd creates the 'benchmark' command for token efficiency
// testing.
func NewBenchmarkCmd() *cobra.Command {
	var (
		flags      taskFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "benchmark <agent-type> <task description...>",
		Short: "Compare token consumption: full catalog vs optimized selection",
		Long: `Run a token efficiency benchmark comparing:

FULL CATALOG:
  Every tool definition is exposed to the AI client.

AGENT PATTERN:
  Only the universal and domain tools of the agent's pattern.

OPTIMIZED SELECTION:
  The tools optimize_tools picks for the given task.

Token counts are measured on the JSON tool definitions.`,
		Example: `  tool-optimizer benchmark frontend-engineer build responsive UI component
  tool-optimizer benchmark devops-engineer roll out the preview --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer closeManager(m)

			result, err := m.Benchmark(cmd.Context(), args[0], flags.context(args[0], args[1:]))
			if err != nil {
				return errors.Wrap(err, "benchmark failed")
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprint(cmd.OutOrStdout(), benchmark.FormatResult(result))
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

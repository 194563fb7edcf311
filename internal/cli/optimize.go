package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/spf13/cobra"
)

// NewOptimizeCmd creates the 'optimize' command.
func NewOptimizeCmd() *cobra.Command {
	var (
		flags      taskFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "optimize <agent-type> <task description...>",
		Short: "Select and route the tools for an agent task",
		Long: `Select the smallest effective tool set for an agent task, ordered by
workflow phase, and route every selected tool to a server.`,
		Example: `  tool-optimizer optimize frontend-engineer build responsive UI component
  tool-optimizer optimize research-analyst compare pricing pages --local
  tool-optimizer optimize backend-engineer fix flaky migration -p critical --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer closeManager(m)

			res, err := m.Optimize(cmd.Context(), args[0], flags.context(args[0], args[1:]))
			if err != nil {
				return errors.Wrap(err, "optimize failed")
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printOptimization(cmd.OutOrStdout(), res)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printOptimization(w io.Writer, res *model.OptimizationResult) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d tools for %s", len(res.SelectedTools), res.AgentType)))
	fmt.Fprintf(w, "%s %s   %s %s   %s %.1f\n",
		labelStyle.Render("priority"), res.Priority,
		labelStyle.Render("level"), res.OptimizationLevel,
		labelStyle.Render("score"), res.OptimizationScore)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %-5s %-28s %-16s %-14s %s\n", "PHASE", "TOOL", "SERVER", "CATEGORY", "SCORE")
	for _, st := range res.SelectedTools {
		fmt.Fprintf(w, "  %-5d %-28s %-16s %-14s %.2f\n", st.Phase, st.Name, st.Server, st.Category, st.Score)
	}
	fmt.Fprintln(w)

	p := res.PerformancePrediction
	budget := okStyle.Render("within budget")
	if !p.WithinResourceBudget {
		budget = warnStyle.Render("over budget")
	}
	fmt.Fprintln(w, panelStyle.Render(strings.Join([]string{
		fmt.Sprintf("Estimated time:  %.0f ms", p.EstimatedExecutionTimeMs),
		fmt.Sprintf("Success chance:  %s", percent(p.SuccessProbability)),
		fmt.Sprintf("Resources:       cpu %.0f%%  mem %.0f%%  net %.0f%%  disk %.0f%% (%s)",
			p.ResourceUtilization.CPU, p.ResourceUtilization.Memory,
			p.ResourceUtilization.Network, p.ResourceUtilization.Disk, budget),
	}, "\n")))

	if res.SelectionRationale != "" {
		fmt.Fprintln(w, labelStyle.Render(res.SelectionRationale))
	}
}

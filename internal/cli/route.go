package cli

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/spf13/cobra"
)

// NewRouteCmd creates the 'route' command.
func NewRouteCmd() *cobra.Command {
	var (
		flags      taskFlags
		agentType  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "route <tool> [task description...]",
		Short: "Pick the server that should run a tool",
		Example: `  tool-optimizer route browser_navigate
  tool-optimizer route query_database --agent backend-engineer -p high`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer closeManager(m)

			d, err := m.RouteRequest(cmd.Context(), args[0], flags.context(agentType, args[1:]))
			if err != nil {
				return errors.Wrap(err, "route failed")
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			printRoute(cmd.OutOrStdout(), d)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVarP(&agentType, "agent", "a", "", "Agent type issuing the call")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printRoute(w io.Writer, d model.RoutingDecision) {
	fmt.Fprintf(w, "%s → %s\n", d.Tool, titleStyle.Render(d.SelectedServer))
	fmt.Fprintf(w, "%s %s   %s %.0f ms\n",
		labelStyle.Render("confidence"), percent(d.Confidence),
		labelStyle.Render("latency"), d.EstimatedLatencyMs)
	if d.Rationale != "" {
		fmt.Fprintln(w, labelStyle.Render(d.Rationale))
	}
	if len(d.Alternatives) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %-16s %-8s %-10s %s\n", "SERVER", "SCORE", "LATENCY", "CONFIDENCE")
		for _, alt := range d.Alternatives {
			fmt.Fprintf(w, "  %-16s %-8.2f %-10.0f %s\n", alt.Server, alt.Score, alt.EstimatedLatencyMs, percent(alt.Confidence))
		}
	}
}

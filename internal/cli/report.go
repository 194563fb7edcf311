package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/khanglvm/tool-optimizer-mcp/internal/optimizer"
	"github.com/spf13/cobra"
)

// NewReportCmd creates the 'report' command.
func NewReportCmd() *cobra.Command {
	var (
		jsonOutput bool
		cycle      bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the merged optimization report",
		Long: `Show selection statistics, routing and cache health, monitored
metrics, recent alerts and recommendations. Metrics come from the
execution history recorded by 'serve'.`,
		Example: `  tool-optimizer report
  tool-optimizer report --cycle --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer closeManager(m)

			if cycle {
				m.RunCycle(cmd.Context())
			}
			rep := m.GetOptimizationReport()
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&cycle, "cycle", false, "Run a monitoring cycle before reporting")

	return cmd
}

func printReport(w io.Writer, rep optimizer.SystemReport) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Optimization score %.1f / 100", rep.OverallOptimizationScore)))
	in := rep.Integration
	fmt.Fprintf(w, "%s %s  %s %s  %s %s  %s %s\n",
		labelStyle.Render("selection"), percent(in.ToolSelectionAccuracy),
		labelStyle.Render("routing"), percent(in.RoutingEfficiency),
		labelStyle.Render("performance"), percent(in.PerformanceImprovement),
		labelStyle.Render("resources"), percent(in.ResourceOptimization))
	fmt.Fprintln(w)

	fmt.Fprintln(w, titleStyle.Render("Monitor"))
	fmt.Fprintf(w, "  calls %d  tools %d  ignored %d\n",
		rep.Monitor.TotalCalls, len(rep.Monitor.Metrics), rep.Monitor.IgnoredUpdates)
	for _, a := range rep.Monitor.RecentAlerts {
		fmt.Fprintf(w, "  %s %s\n", severityStyle(a.Severity).Render(string(a.Severity)), a.Message)
	}
	fmt.Fprintln(w)

	r := rep.Router
	fmt.Fprintln(w, titleStyle.Render("Router"))
	fmt.Fprintf(w, "  decisions %d  cache hits %d  confidence %s\n",
		r.Decisions, r.CacheHits, percent(r.AverageConfidence))
	fmt.Fprintln(w)

	if len(rep.SelectorRecommendations) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Recommendations"))
		for _, rec := range rep.SelectorRecommendations {
			fmt.Fprintf(w, "  • %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	if rep.Metrics != nil && len(rep.Metrics.Counters) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Metrics"))
		names := make([]string, 0, len(rep.Metrics.Counters))
		for name := range rep.Metrics.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-32s %.0f\n", name, rep.Metrics.Counters[name])
		}
		fmt.Fprintln(w)
	}

	h := rep.History
	if h.Enabled {
		fmt.Fprintf(w, "%s %s (%d recorded, %d dropped)\n", labelStyle.Render("history"), h.Path, h.Recorded, h.Dropped)
	} else {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("history"), warnStyle.Render("disabled"))
	}
}

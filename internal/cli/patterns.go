package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/khanglvm/tool-optimizer-mcp/internal/patterns"
	"github.com/spf13/cobra"
)

// NewPatternsCmd creates the 'patterns' command for listing integration
// patterns.
func NewPatternsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "patterns [agent-type]",
		Aliases: []string{"ls"},
		Short:   "List agent integration patterns",
		Long: `Display the integration pattern of every known agent type: the
universal and domain tools it draws from, its strategy and its tool limit.`,
		Example: `  tool-optimizer patterns
  tool-optimizer patterns frontend-engineer --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer closeManager(m)

			var list []patterns.IntegrationPattern
			if len(args) == 1 {
				p, err := m.Pattern(args[0])
				if err != nil {
					return err
				}
				list = append(list, p)
			} else {
				list = m.Patterns()
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printPatterns(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printPatterns(w io.Writer, list []patterns.IntegrationPattern) {
	fmt.Fprintf(w, "Integration patterns (%d):\n\n", len(list))
	for _, p := range list {
		fmt.Fprintf(w, "  %s\n", titleStyle.Render(p.AgentType))
		fmt.Fprintf(w, "    Strategy:  %s (%s, max %d tools)\n", p.SelectionStrategy, p.OptimizationLevel, p.MaxTools)
		if p.WorkflowPattern != "" {
			fmt.Fprintf(w, "    Workflow:  %s\n", p.WorkflowPattern)
		}
		fmt.Fprintf(w, "    Universal: %s\n", strings.Join(p.UniversalTools, ", "))
		fmt.Fprintf(w, "    Domain:    %s\n", strings.Join(p.DomainTools, ", "))
		fmt.Fprintln(w)
	}
}

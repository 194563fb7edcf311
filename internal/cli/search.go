package cli

import (
	"fmt"
	"strings"

	"github.com/khanglvm/tool-optimizer-mcp/internal/search"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the 'search' command.
func NewSearchCmd() *cobra.Command {
	var (
		limit      int
		server     string
		category   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search catalog tools using natural language",
		Long: `Search catalog tools using natural language.

Results are ranked by keyword relevance and observed success rate. With
--server or --category the search is scoped and ranked by relevance only.
Without a query every catalog tool is listed.`,
		Example: `  tool-optimizer search take screenshot
  tool-optimizer search query database --limit 3
  tool-optimizer search registry --server shadcn
  tool-optimizer search --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer closeManager(m)

			query := strings.Join(args, " ")
			var results []search.SearchResult
			if query != "" && server == "" && category == "" {
				results, err = m.SearchTools(cmd.Context(), query, limit)
			} else {
				results, err = m.FilterTools(query, server, category, limit)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(w, "No matching tools.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(w, "%2d. %s %s\n", i+1, titleStyle.Render(r.ToolName), labelStyle.Render(fmt.Sprintf("(%s, %.2f)", r.ServerName, r.Score)))
				fmt.Fprintf(w, "    %s\n", r.Description)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&server, "server", "", "Only tools of this server")
	cmd.Flags().StringVar(&category, "category", "", "Only tools of this category")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

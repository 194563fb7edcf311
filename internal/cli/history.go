package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/config"
	"github.com/khanglvm/tool-optimizer-mcp/internal/storage"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command group.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the execution history database",
		Long: `Execution outcomes, monitoring snapshots, reports and searches are
stored locally in ~/.tool-optimizer/history.db (or storage.path from the
config). Contexts are stored as hashes only.

Commands:
  status  Show history statistics
  export  Export execution events as JSON
  clear   Delete all history`,
	}

	cmd.AddCommand(newHistoryStatusCmd())
	cmd.AddCommand(newHistoryExportCmd())
	cmd.AddCommand(newHistoryClearCmd())

	return cmd
}

// openHistory opens the configured database. Callers must Close it.
func openHistory(cmd *cobra.Command) (*storage.SQLiteStorage, *config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath(cmd))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Disabled {
		return nil, nil, errors.New("history is disabled in the configuration")
	}
	store := storage.NewStorage(cfg.Storage.Path)
	if err := store.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize storage")
	}
	return store, cfg, nil
}

func newHistoryStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show history statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			window := cfg.Storage.ReplayWindow()
			events, err := store.GetExecutionHistory(ctx, time.Now().Add(-window), 0)
			if err != nil {
				return err
			}
			snapshots, err := store.SnapshotCount(ctx)
			if err != nil {
				return err
			}
			searches, err := store.SearchCount(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render("Execution history"))
			fmt.Fprintf(w, "Database:        %s\n", store.Path())
			fmt.Fprintf(w, "Enabled:         %v\n", store.Enabled())
			fmt.Fprintf(w, "Replay window:   %s (%d events)\n", window, len(events))
			fmt.Fprintf(w, "Retention:       %d days\n", cfg.Storage.RetentionDays)
			fmt.Fprintf(w, "Snapshots:       %d\n", snapshots)
			fmt.Fprintf(w, "Searches:        %d\n", searches)
			return nil
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	var (
		outputFile string
		days       int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export execution events as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			events, err := store.GetExecutionHistory(cmd.Context(), since, limit)
			if err != nil {
				return err
			}

			if outputFile == "" {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return errors.Wrap(err, "failed to create output file")
			}
			defer f.Close()
			if err := writeJSON(f, events); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", len(events), outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().IntVar(&days, "days", 30, "Export events from the last N days")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Keep only the most recent N events")
	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath(cmd))
			if err != nil {
				return err
			}
			dbPath := cfg.Storage.Path
			if dbPath == "" {
				if dbPath, err = storage.DefaultPath(); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if !yes {
				fmt.Fprint(w, "This will delete all execution history. Continue? (y/N): ")
				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.TrimSpace(response)
				if response != "y" && response != "Y" {
					fmt.Fprintln(w, "Cancelled")
					return nil
				}
			}

			if err := os.Remove(dbPath); err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(w, "No history found")
					return nil
				}
				return errors.Wrap(err, "failed to delete database")
			}
			// sqlite sidecar files
			_ = os.Remove(dbPath + "-wal")
			_ = os.Remove(dbPath + "-shm")

			fmt.Fprintln(w, okStyle.Render("History cleared"))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/khanglvm/tool-optimizer-mcp/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the 'version' command
func NewVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the current version, commit hash, and build date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check GitHub for a newer release")

	return cmd
}

func runVersion(cmd *cobra.Command, check bool) error {
	w := cmd.OutOrStdout()
	v, c, d := version.GetVersionComponents()
	fmt.Fprintf(w, "Version:  %s\n", v)
	fmt.Fprintf(w, "Commit:   %s\n", c)
	fmt.Fprintf(w, "Built:    %s\n", d)

	if !check {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	checker := version.NewChecker()
	checker.Force = true
	latest, err := checker.CheckUpdate(ctx, v)
	if err != nil {
		return err
	}
	if latest == "" {
		fmt.Fprintln(w, okStyle.Render("Up to date"))
		return nil
	}
	fmt.Fprintf(w, "%s %s\n", warnStyle.Render("Update available:"), latest)
	return nil
}

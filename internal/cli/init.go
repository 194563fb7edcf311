package cli

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the 'init' command that writes a default config.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write ~/.tool-optimizer.json (or --config) with every default value
spelled out. An existing file is kept unless --force is given, in which
case it is backed up to .bak first.`,
		Example: `  tool-optimizer init
  tool-optimizer init --force --config ./tool-optimizer.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if path == "" {
				p, err := config.GetDefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}

			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf("config already exists at %s (use --force to overwrite)", path)
			}

			if err := config.Save(config.NewConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", okStyle.Render("✓"), path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")

	return cmd
}

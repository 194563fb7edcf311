package cli

import (
	"fmt"
	"io"

	"github.com/khanglvm/tool-optimizer-mcp/internal/config"
	"github.com/khanglvm/tool-optimizer-mcp/internal/optimizer"
	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the 'verify' command for verifying configuration.
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify configuration, catalog and rules",
		Long: `Verify that the configuration is valid and that the tool catalog and
scoring rules it points to load. Every agent pattern must only name
catalog tools.`,
		Example: `  tool-optimizer verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd)
		},
	}

	return cmd
}

// runVerify validates the configuration.
func runVerify(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	path := configPath(cmd)
	if path == "" {
		p, err := config.GetDefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fail(w, "Config file: %s", path)
		return err
	}
	pass(w, "Config file: %s", path)

	m, err := optimizer.New(cfg)
	if err != nil {
		fail(w, "Catalog and rules")
		return err
	}
	defer closeManager(m)

	reg := m.Registry()
	pass(w, "Catalog: %d tools, %d servers, %d agents", len(reg.Tools()), len(reg.ServerNames()), len(reg.Agents()))

	broken := 0
	for _, p := range m.Patterns() {
		for _, tool := range p.Candidates() {
			if !reg.Has(tool) {
				fail(w, "%s: unknown tool %s", p.AgentType, tool)
				broken++
			}
		}
	}
	if broken == 0 {
		pass(w, "Patterns: %d", len(m.Patterns()))
	}

	if h := m.GetOptimizationReport().History; h.Enabled {
		pass(w, "History: %s", h.Path)
	} else {
		fmt.Fprintf(w, "%s History: disabled\n", warnStyle.Render("!"))
	}

	if cfg.Router.RedisAddr != "" {
		pass(w, "Decision cache: redis %s", cfg.Router.RedisAddr)
	}
	return nil
}

func pass(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", okStyle.Render("✓"), fmt.Sprintf(format, args...))
}

func fail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", errStyle.Render("✗"), fmt.Sprintf(format, args...))
}

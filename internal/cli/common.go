package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/config"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/optimizer"
	"github.com/spf13/cobra"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	okStyle = lipgloss.NewStyle().
		Foreground(successColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	errStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
)

// serviceName tags every emitted metric.
const serviceName = "tool-optimizer"

// configPath returns --config, inherited from the root command.
func configPath(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup(configFlag); f != nil {
		return f.Value.String()
	}
	return ""
}

// openManager loads the config, builds the optimizer and replays history.
// Callers must Close it.
func openManager(cmd *cobra.Command) (*optimizer.Manager, error) {
	cfg, err := config.LoadOrDefault(configPath(cmd))
	if err != nil {
		return nil, err
	}
	m, err := optimizer.New(cfg, optimizer.WithMetrics(metricskey.Install(serviceName)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create optimizer")
	}
	m.Start(cmd.Context())
	return m, nil
}

func closeManager(m *optimizer.Manager) {
	if err := m.Close(); err != nil {
		logger.KV(xlog.WARNING, "reason", "close", "err", err.Error())
	}
}

// taskFlags are the task context options shared by optimize, route and
// benchmark.
type taskFlags struct {
	priority string
	realtime bool
	local    bool
}

func (f *taskFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "medium", "Task priority: low, medium, high or critical")
	cmd.Flags().BoolVar(&f.realtime, "realtime", false, "Exclude tools that serve cached data")
	cmd.Flags().BoolVar(&f.local, "local", false, "Exclude externally-facing tools")
}

func (f *taskFlags) context(agentType string, words []string) *model.AgentTaskContext {
	return &model.AgentTaskContext{
		AgentType:            agentType,
		TaskDescription:      strings.Join(words, " "),
		Priority:             model.Priority(f.priority),
		RequiresRealTimeData: f.realtime,
		LocalEnvironmentOnly: f.local,
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// percent renders a [0,1] ratio.
func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return errStyle
	case model.SeverityMedium:
		return warnStyle
	default:
		return labelStyle
	}
}

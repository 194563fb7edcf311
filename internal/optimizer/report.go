package optimizer

import (
	"context"
	"time"

	"github.com/khanglvm/tool-optimizer-mcp/internal/benchmark"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/monitor"
	"github.com/khanglvm/tool-optimizer-mcp/internal/patterns"
	"github.com/khanglvm/tool-optimizer-mcp/internal/router"
	"github.com/khanglvm/tool-optimizer-mcp/internal/selector"
)

// SystemReport merges the views of every component.
type SystemReport struct {
	GeneratedAt              time.Time                     `json:"generatedAt"`
	OverallOptimizationScore float64                       `json:"overallOptimizationScore"`
	Integration              model.IntegrationMetrics      `json:"integration"`
	SelectorRecommendations  []string                      `json:"selectorRecommendations"`
	SelectorStats            []selector.ToolStats          `json:"selectorStats"`
	Router                   router.Report                 `json:"router"`
	Monitor                  monitor.PerformanceReport     `json:"monitor"`
	Patterns                 []patterns.IntegrationPattern `json:"patterns"`
	History                  HistoryStatus                 `json:"history"`
	Index                    IndexStatus                   `json:"index"`
	// Metrics is nil unless a metrics sink is attached
	Metrics *metricskey.Snapshot `json:"metrics,omitempty"`
}

// HistoryStatus describes execution persistence.
type HistoryStatus struct {
	Enabled  bool   `json:"enabled"`
	Path     string `json:"path,omitempty"`
	Recorded int64  `json:"recorded"`
	Dropped  int64  `json:"dropped"`
	Failed   int64  `json:"failed"`
	Pending  int    `json:"pending"`
}

// IndexStatus describes the tool search index.
type IndexStatus struct {
	// Path is empty for an in-memory index
	Path  string `json:"path,omitempty"`
	Tools uint64 `json:"tools"`
}

// GetOptimizationReport returns the merged system report. The overall
// score weighs the four integration metrics equally and lies in [0,100].
func (m *Manager) GetOptimizationReport() SystemReport {
	mon := m.monitor.GetPerformanceReport()
	rep := SystemReport{
		GeneratedAt:              m.clock.Now(),
		OverallOptimizationScore: model.Clamp(mon.Integration.OverallScore(), 0, 100),
		Integration:              mon.Integration,
		SelectorRecommendations:  m.selector.Recommendations(),
		SelectorStats:            m.selector.Stats(),
		Router:                   m.router.PerformanceReport(),
		Monitor:                  mon,
		Patterns:                 m.catalog.List(),
	}
	rep.Index.Path = m.index.Path()
	if n, err := m.index.Count(); err == nil {
		rep.Index.Tools = n
	}
	if m.metrics != nil {
		snap := m.metrics.Snapshot()
		rep.Metrics = &snap
	}
	if m.storage != nil {
		rep.History.Enabled = true
		rep.History.Path = m.storage.Path()
	}
	if m.tracker != nil {
		rep.History.Recorded, rep.History.Dropped, rep.History.Failed = m.tracker.Stats()
		rep.History.Pending = m.tracker.QueueSize()
	}
	return rep
}

// RecentReports returns stored cycle reports, newest first. Without
// history it returns the in-memory reports.
func (m *Manager) RecentReports(ctx context.Context, limit int) ([]model.OptimizationReport, error) {
	if m.storage != nil {
		return m.storage.RecentReports(ctx, limit)
	}
	reports := m.monitor.Reports()
	out := make([]model.OptimizationReport, 0, len(reports))
	for i := len(reports) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, reports[i])
	}
	return out, nil
}

// Benchmark optimizes a task and estimates the context tokens the
// selection saves.
func (m *Manager) Benchmark(ctx context.Context, agentType string, tc *model.AgentTaskContext) (*benchmark.Result, error) {
	res, err := m.Optimize(ctx, agentType, tc)
	if err != nil {
		return nil, err
	}
	p, err := m.catalog.Get(agentType)
	if err != nil {
		return nil, err
	}
	return benchmark.Run(m.reg, agentType, p.Candidates(), res.ToolNames()), nil
}

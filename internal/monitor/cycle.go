package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
)

const (
	trendWindow        = 10
	initialIntegration = 0.75
	integrationStep    = 0.02
	resourceBlend      = 0.1
	resourcePressure   = 90.0
)

// Trend metric names.
const (
	MetricResponseTime = "response_time"
	MetricSuccessRate  = "success_rate"
	MetricErrorRate    = "error_rate"
)

// PerformanceReport is the monitor's view of system health.
type PerformanceReport struct {
	TotalCalls     int64                         `json:"totalCalls"`
	Metrics        []model.ToolMetrics           `json:"metrics"`
	Servers        map[string]model.ServerRollup `json:"servers"`
	Integration    model.IntegrationMetrics      `json:"integration"`
	OverallScore   float64                       `json:"overallScore"`
	RecentAlerts   []model.Alert                 `json:"recentAlerts"`
	LatestSnapshot *model.PerformanceSnapshot    `json:"latestSnapshot,omitempty"`
	LatestReport   *model.OptimizationReport     `json:"latestReport,omitempty"`
	IgnoredUpdates int64                         `json:"ignoredUpdates"`
	HalfLifeEvents float64                       `json:"halfLifeEvents"`
}

// GetPerformanceReport returns a copy of the current metrics, alerts and
// the latest cycle results.
func (m *Monitor) GetPerformanceReport() PerformanceReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rep := PerformanceReport{
		Metrics:        sortedMetrics(m.metrics),
		Servers:        rollups(m.metrics),
		Integration:    m.integration,
		OverallScore:   m.integration.OverallScore(),
		IgnoredUpdates: m.ignored,
		HalfLifeEvents: HalfLife(m.cfg.SuccessRateAlpha),
	}
	for _, tm := range rep.Metrics {
		rep.TotalCalls += tm.TotalCalls
	}
	from := len(m.alerts) - recentAlertsInReport
	if from < 0 {
		from = 0
	}
	rep.RecentAlerts = append([]model.Alert(nil), m.alerts[from:]...)
	if n := len(m.snapshots); n > 0 {
		s := m.snapshots[n-1]
		rep.LatestSnapshot = &s
	}
	if n := len(m.reports); n > 0 {
		r := m.reports[n-1]
		rep.LatestReport = &r
	}
	return rep
}

// RunCycle runs one monitoring cycle synchronously and returns its report.
func (m *Monitor) RunCycle(ctx context.Context) model.OptimizationReport {
	return m.runCycle(ctx, "manual")
}

func (m *Monitor) runCycle(ctx context.Context, trigger string) model.OptimizationReport {
	started := time.Now()
	defer metricskey.PerfMonitorCycle.MeasureSince(started, trigger)

	now := m.clock.Now()

	m.mu.Lock()
	snap := buildSnapshot(m.metrics, now)
	elapsed := now.Sub(m.lastCycle)
	calls := m.cycleCalls
	m.cycleCalls = 0
	m.lastCycle = now
	m.mu.Unlock()

	activity := Activity{AverageResponseTimeMs: snap.AverageResponseTimeMs}
	if elapsed > 0 {
		activity.CallsPerMinute = float64(calls) / elapsed.Minutes()
	}
	res, err := m.probe.Sample(ctx, activity)
	if err != nil {
		logger.KV(xlog.WARNING, "reason", "probe", "err", err.Error())
		res, _ = SyntheticProbe{}.Sample(ctx, activity)
	}
	snap.Resources = res

	var raised []model.Alert

	m.mu.Lock()
	m.snapshots = append(m.snapshots, snap)
	if len(m.snapshots) > maxSnapshots {
		m.snapshots = append([]model.PerformanceSnapshot(nil), m.snapshots[len(m.snapshots)-keepSnapshots:]...)
	}

	improvements := DetectTrends(m.snapshots)
	m.nudgeIntegration(improvements, res)

	for _, a := range m.systemAlerts(improvements, now) {
		raised = append(raised, m.raise(a))
	}

	report := model.OptimizationReport{
		ID:                    uuid.NewString(),
		Timestamp:             now,
		OptimizationsDetected: len(improvements),
		OverallScore:          m.integration.OverallScore(),
		Improvements:          improvements,
		Recommendations:       m.recommendations(improvements),
	}
	m.reports = append(m.reports, report)
	if len(m.reports) > maxReports {
		m.reports = append([]model.OptimizationReport(nil), m.reports[len(m.reports)-keepReports:]...)
	}
	m.mu.Unlock()

	m.dispatch(raised)
	m.persist(ctx, snap, report)

	logger.KV(xlog.DEBUG,
		"status", "cycle",
		"trigger", trigger,
		"calls", calls,
		"trends", len(improvements),
		"alerts", len(raised),
		"score", report.OverallScore)
	return report
}

func (m *Monitor) persist(ctx context.Context, snap model.PerformanceSnapshot, report model.OptimizationReport) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		logger.KV(xlog.WARNING, "reason", "save_snapshot", "err", err.Error())
	}
	if err := m.store.SaveReport(ctx, report); err != nil {
		logger.KV(xlog.WARNING, "reason", "save_report", "err", err.Error())
	}
}

func buildSnapshot(metrics map[pairKey]*model.ToolMetrics, now time.Time) model.PerformanceSnapshot {
	snap := model.PerformanceSnapshot{
		Timestamp: now,
		ToolUsage: make(map[string]int64),
		Servers:   rollups(metrics),
	}
	var sr, rt float64
	for k, tm := range metrics {
		w := float64(tm.TotalCalls)
		sr += tm.SuccessRate * w
		rt += tm.AverageResponseTimeMs * w
		snap.TotalCalls += tm.TotalCalls
		snap.ToolUsage[k.tool] += tm.TotalCalls
	}
	if snap.TotalCalls == 0 {
		snap.SuccessRate = 1
		return snap
	}
	snap.SuccessRate = sr / float64(snap.TotalCalls)
	snap.ErrorRate = 1 - snap.SuccessRate
	snap.AverageResponseTimeMs = rt / float64(snap.TotalCalls)
	return snap
}

// DetectTrends compares the last ten active snapshots with the ten before
// them. Snapshots taken before any call was recorded are skipped.
func DetectTrends(snaps []model.PerformanceSnapshot) []model.PerformanceImprovement {
	active := make([]model.PerformanceSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.TotalCalls > 0 {
			active = append(active, s)
		}
	}
	if len(active) < 2*trendWindow {
		return nil
	}
	recent := active[len(active)-trendWindow:]
	previous := active[len(active)-2*trendWindow : len(active)-trendWindow]

	type metric struct {
		name       string
		value      func(model.PerformanceSnapshot) float64
		higherGood bool
		classify   func(float64) model.Severity
	}
	metrics := []metric{
		{MetricResponseTime, func(s model.PerformanceSnapshot) float64 { return s.AverageResponseTimeMs }, false, ResponseTimeSeverity},
		{MetricSuccessRate, func(s model.PerformanceSnapshot) float64 { return s.SuccessRate }, true, RateSeverity},
		{MetricErrorRate, func(s model.PerformanceSnapshot) float64 { return s.ErrorRate }, false, RateSeverity},
	}

	var out []model.PerformanceImprovement
	for _, mt := range metrics {
		before := mean(previous, mt.value)
		after := mean(recent, mt.value)
		if before <= 0 {
			continue
		}
		change := (after - before) / before * 100
		sev := mt.classify(math.Abs(change))
		if sev == model.SeverityNone {
			continue
		}
		dir := model.DirectionDegrading
		if (change > 0) == mt.higherGood {
			dir = model.DirectionImproving
		}
		out = append(out, model.PerformanceImprovement{
			Metric:        mt.name,
			Direction:     dir,
			ChangePercent: change,
			Severity:      sev,
			Before:        before,
			After:         after,
		})
	}
	return out
}

func mean(snaps []model.PerformanceSnapshot, value func(model.PerformanceSnapshot) float64) float64 {
	if len(snaps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range snaps {
		sum += value(s)
	}
	return sum / float64(len(snaps))
}

// ResponseTimeSeverity grades an absolute response time change in percent.
func ResponseTimeSeverity(change float64) model.Severity {
	switch {
	case change >= 100:
		return model.SeverityCritical
	case change >= 50:
		return model.SeverityHigh
	case change >= 25:
		return model.SeverityMedium
	case change >= 10:
		return model.SeverityLow
	}
	return model.SeverityNone
}

// RateSeverity grades an absolute success or error rate change in percent.
func RateSeverity(change float64) model.Severity {
	switch {
	case change >= 25:
		return model.SeverityHigh
	case change >= 15:
		return model.SeverityMedium
	case change >= 5:
		return model.SeverityLow
	}
	return model.SeverityNone
}

// nudgeIntegration moves the integration metrics toward the observed
// trend direction. Callers hold mu.
func (m *Monitor) nudgeIntegration(improvements []model.PerformanceImprovement, res model.ResourceUtilization) {
	in := &m.integration
	for _, imp := range improvements {
		step := integrationStep
		if imp.Direction == model.DirectionDegrading {
			step = -step
		}
		in.PerformanceImprovement += step
		switch imp.Metric {
		case MetricResponseTime:
			in.RoutingEfficiency += step
		case MetricSuccessRate, MetricErrorRate:
			in.ToolSelectionAccuracy += step
		}
	}
	headroom := 1 - model.Clamp(res.Average(), 0, 100)/100
	in.ResourceOptimization = in.ResourceOptimization*(1-resourceBlend) + headroom*resourceBlend

	in.ToolSelectionAccuracy = model.Clamp(in.ToolSelectionAccuracy, 0, 1)
	in.RoutingEfficiency = model.Clamp(in.RoutingEfficiency, 0, 1)
	in.PerformanceImprovement = model.Clamp(in.PerformanceImprovement, 0, 1)
	in.ResourceOptimization = model.Clamp(in.ResourceOptimization, 0, 1)
}

// systemAlerts checks rolling averages of the recent snapshots. Callers
// hold mu.
func (m *Monitor) systemAlerts(improvements []model.PerformanceImprovement, now time.Time) []model.Alert {
	var recent []model.PerformanceSnapshot
	for i := len(m.snapshots) - 1; i >= 0 && len(recent) < trendWindow; i-- {
		if m.snapshots[i].TotalCalls > 0 {
			recent = append(recent, m.snapshots[i])
		}
	}

	var out []model.Alert
	if len(recent) > 0 {
		rt := mean(recent, func(s model.PerformanceSnapshot) float64 { return s.AverageResponseTimeMs })
		if rt > m.cfg.ResponseTimeThresholdMs {
			out = append(out, model.Alert{
				Type:      AlertSystemSlowResponse,
				Severity:  model.SeverityHigh,
				Message:   "average response time across tools exceeded threshold",
				Timestamp: now,
				Value:     rt,
				Threshold: m.cfg.ResponseTimeThresholdMs,
			})
		}
		sr := mean(recent, func(s model.PerformanceSnapshot) float64 { return s.SuccessRate })
		if sr < m.cfg.SuccessRateThreshold {
			out = append(out, model.Alert{
				Type:      AlertSystemLowSuccessRate,
				Severity:  model.SeverityHigh,
				Message:   "average success rate across tools fell below threshold",
				Timestamp: now,
				Value:     sr,
				Threshold: m.cfg.SuccessRateThreshold,
			})
		}
	}

	if n := len(m.snapshots); n > 0 {
		res := m.snapshots[n-1].Resources
		peak := math.Max(math.Max(res.CPU, res.Memory), math.Max(res.Network, res.Disk))
		if peak > resourcePressure {
			out = append(out, model.Alert{
				Type:      AlertResourcePressure,
				Severity:  model.SeverityMedium,
				Message:   "resource utilization is above 90%",
				Timestamp: now,
				Value:     peak,
				Threshold: resourcePressure,
			})
		}
	}

	for _, imp := range improvements {
		if imp.Direction != model.DirectionDegrading {
			continue
		}
		if imp.Severity != model.SeverityHigh && imp.Severity != model.SeverityCritical {
			continue
		}
		out = append(out, model.Alert{
			Type:      AlertPerformanceDegradation,
			Severity:  imp.Severity,
			Message:   fmt.Sprintf("%s degraded by %.1f%%", imp.Metric, math.Abs(imp.ChangePercent)),
			Timestamp: now,
			Value:     imp.After,
			Threshold: imp.Before,
		})
	}
	return out
}

// recommendations turns trends and per-pair metrics into advice. Callers
// hold mu.
func (m *Monitor) recommendations(improvements []model.PerformanceImprovement) []string {
	var out []string
	for _, imp := range improvements {
		if imp.Direction != model.DirectionDegrading {
			continue
		}
		out = append(out, fmt.Sprintf("%s degraded by %.1f%% over the last %d snapshots; review recent server changes",
			imp.Metric, math.Abs(imp.ChangePercent), trendWindow))
	}
	for _, tm := range sortedMetrics(m.metrics) {
		if tm.AverageResponseTimeMs > m.cfg.ResponseTimeThresholdMs {
			out = append(out, fmt.Sprintf("%s on %s averages %.0fms; route it to an alternate server",
				tm.Tool, tm.Server, tm.AverageResponseTimeMs))
		}
		if tm.SuccessRate < m.cfg.SuccessRateThreshold {
			out = append(out, fmt.Sprintf("%s on %s succeeds %.0f%% of the time; investigate its failures",
				tm.Tool, tm.Server, tm.SuccessRate*100))
		}
	}
	if len(out) == 0 {
		out = append(out, "all tools are within response time and success rate thresholds")
	}
	return out
}

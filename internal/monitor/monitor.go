/*
Package monitor records tool execution outcomes and turns them into
rolling metrics, alerts, snapshots, trends and optimization reports.

Metrics use an exponential moving average with one smoothing factor per
metric type. With the default alpha of 0.1 an observation loses half its
weight after about 6.6 newer events (ln 0.5 / ln 0.9).

A periodic cycle runs on its own ticker: it snapshots all metrics,
compares the last ten snapshots against the ten before them, raises
system alerts and stores a report. Request paths only take a short lock.
*/
package monitor

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "monitor")

const (
	// PriorSuccessRate seeds the success rate of a new (tool, server) pair.
	PriorSuccessRate = 0.85

	// DefaultAlpha is the default EMA smoothing factor.
	DefaultAlpha = 0.1

	maxSnapshots  = 1000
	keepSnapshots = 500
	maxAlerts     = 1000
	keepAlerts    = 500
	maxReports    = 100
	keepReports   = 50

	recentAlertsInReport = 20
)

// Alert types.
const (
	AlertSlowResponse           = "slow_response"
	AlertExecutionFailure       = "execution_failure"
	AlertSystemSlowResponse     = "system_slow_response"
	AlertSystemLowSuccessRate   = "system_low_success_rate"
	AlertResourcePressure       = "resource_pressure"
	AlertPerformanceDegradation = "performance_degradation"
)

// Config tunes the monitor.
type Config struct {
	SuccessRateAlpha        float64
	ResponseTimeAlpha       float64
	ResponseTimeThresholdMs float64
	SuccessRateThreshold    float64
	MonitoringInterval      time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		SuccessRateAlpha:        DefaultAlpha,
		ResponseTimeAlpha:       DefaultAlpha,
		ResponseTimeThresholdMs: 3000,
		SuccessRateThreshold:    0.8,
		MonitoringInterval:      30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SuccessRateAlpha <= 0 || c.SuccessRateAlpha > 1 {
		c.SuccessRateAlpha = def.SuccessRateAlpha
	}
	if c.ResponseTimeAlpha <= 0 || c.ResponseTimeAlpha > 1 {
		c.ResponseTimeAlpha = def.ResponseTimeAlpha
	}
	if c.ResponseTimeThresholdMs <= 0 {
		c.ResponseTimeThresholdMs = def.ResponseTimeThresholdMs
	}
	if c.SuccessRateThreshold <= 0 {
		c.SuccessRateThreshold = def.SuccessRateThreshold
	}
	if c.MonitoringInterval <= 0 {
		c.MonitoringInterval = def.MonitoringInterval
	}
	return c
}

// HalfLife returns the number of events after which an observation's
// weight halves for a smoothing factor.
func HalfLife(alpha float64) float64 {
	if alpha <= 0 || alpha >= 1 {
		return 0
	}
	return math.Log(0.5) / math.Log(1-alpha)
}

// EventSink receives every applied execution event, for persistence.
type EventSink interface {
	Track(ev model.ExecutionEvent)
}

// HistoryStore persists snapshots and reports.
type HistoryStore interface {
	SaveSnapshot(ctx context.Context, s model.PerformanceSnapshot) error
	SaveReport(ctx context.Context, r model.OptimizationReport) error
}

// AlertHandler is called for every raised alert, outside of monitor locks.
type AlertHandler func(model.Alert)

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock.
func WithClock(c clock.Clock) Option { return func(m *Monitor) { m.clock = c } }

// WithProbe sets the resource probe.
func WithProbe(p ResourceProbe) Option { return func(m *Monitor) { m.probe = p } }

// WithSink forwards applied events to s.
func WithSink(s EventSink) Option { return func(m *Monitor) { m.sink = s } }

// WithStore persists snapshots and reports to s.
func WithStore(s HistoryStore) Option { return func(m *Monitor) { m.store = s } }

// WithAlertHandler registers h for raised alerts.
func WithAlertHandler(h AlertHandler) Option { return func(m *Monitor) { m.onAlert = h } }

type pairKey struct {
	tool, server string
}

// Monitor tracks execution outcomes. It is safe for concurrent use.
type Monitor struct {
	cfg     Config
	clock   clock.Clock
	probe   ResourceProbe
	sink    EventSink
	store   HistoryStore
	onAlert AlertHandler

	mu          sync.RWMutex
	metrics     map[pairKey]*model.ToolMetrics
	alerts      []model.Alert
	snapshots   []model.PerformanceSnapshot
	reports     []model.OptimizationReport
	integration model.IntegrationMetrics
	ignored     int64
	cycleCalls  int64
	lastCycle   time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// New creates a monitor.
func New(cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     cfg.withDefaults(),
		metrics: make(map[pairKey]*model.ToolMetrics),
		integration: model.IntegrationMetrics{
			ToolSelectionAccuracy:  initialIntegration,
			RoutingEfficiency:      initialIntegration,
			PerformanceImprovement: initialIntegration,
			ResourceOptimization:   initialIntegration,
		},
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.probe == nil {
		m.probe = SyntheticProbe{}
	}
	m.lastCycle = m.clock.Now()
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// ignoreReason classifies a malformed event, or returns "" for a valid one.
func ignoreReason(ev model.ExecutionEvent) string {
	switch {
	case ev.Tool == "":
		return "empty_tool"
	case ev.Server == "":
		return "empty_server"
	case math.IsNaN(ev.ResponseTimeMs) || math.IsInf(ev.ResponseTimeMs, 0):
		return "non_finite_response_time"
	case ev.ResponseTimeMs < 0:
		return "negative_response_time"
	}
	return ""
}

// ValidateEvent returns an error marked ErrMetricUpdateIgnored when ev
// would be dropped by RecordExecution.
func ValidateEvent(ev model.ExecutionEvent) error {
	if reason := ignoreReason(ev); reason != "" {
		return errors.Wrapf(model.ErrMetricUpdateIgnored, "tool %q on %q: %s", ev.Tool, ev.Server, reason)
	}
	return nil
}

// RecordExecution applies one execution outcome. It never fails:
// malformed events are dropped and counted.
func (m *Monitor) RecordExecution(ev model.ExecutionEvent) {
	if reason := ignoreReason(ev); reason != "" {
		m.mu.Lock()
		m.ignored++
		m.mu.Unlock()
		metricskey.StatsExecutionsIgnored.IncrCounter(1, reason)
		logger.KV(xlog.DEBUG, "status", "ignored", "tool", ev.Tool, "server", ev.Server, "reason", reason)
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.clock.Now()
	}

	var raised []model.Alert
	m.mu.Lock()
	m.apply(ev)
	m.cycleCalls++
	if ev.ResponseTimeMs > m.cfg.ResponseTimeThresholdMs {
		raised = append(raised, m.raise(model.Alert{
			Type:       AlertSlowResponse,
			Severity:   model.SeverityHigh,
			Message:    "response time exceeded threshold",
			ToolName:   ev.Tool,
			ServerName: ev.Server,
			Timestamp:  ev.Timestamp,
			Value:      ev.ResponseTimeMs,
			Threshold:  m.cfg.ResponseTimeThresholdMs,
		}))
	}
	if !ev.Success {
		raised = append(raised, m.raise(model.Alert{
			Type:       AlertExecutionFailure,
			Severity:   model.SeverityMedium,
			Message:    "tool execution failed",
			ToolName:   ev.Tool,
			ServerName: ev.Server,
			Timestamp:  ev.Timestamp,
			Value:      0,
			Threshold:  1,
		}))
	}
	m.mu.Unlock()

	metricskey.StatsExecutionsRecorded.IncrCounter(1, ev.Tool, ev.Server)
	if m.sink != nil {
		m.sink.Track(ev)
	}
	m.dispatch(raised)
}

// Replay warms metrics from stored history. No alerts are raised and
// events are not forwarded to the sink. It returns the number applied.
func (m *Monitor) Replay(events []model.ExecutionEvent) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, ev := range events {
		if ignoreReason(ev) != "" {
			m.ignored++
			continue
		}
		m.apply(ev)
		n++
	}
	return n
}

// apply updates the EMA metrics of the event's pair. Callers hold mu.
func (m *Monitor) apply(ev model.ExecutionEvent) {
	k := pairKey{ev.Tool, ev.Server}
	sample := 0.0
	if ev.Success {
		sample = 1
	}

	tm, ok := m.metrics[k]
	if !ok {
		tm = &model.ToolMetrics{
			Tool:                  ev.Tool,
			Server:                ev.Server,
			SuccessRate:           PriorSuccessRate,
			AverageResponseTimeMs: ev.ResponseTimeMs,
		}
		m.metrics[k] = tm
	} else {
		a := m.cfg.ResponseTimeAlpha
		tm.AverageResponseTimeMs = tm.AverageResponseTimeMs*(1-a) + ev.ResponseTimeMs*a
	}
	a := m.cfg.SuccessRateAlpha
	tm.SuccessRate = model.Clamp(tm.SuccessRate*(1-a)+sample*a, 0, 1)
	tm.ErrorRate = 1 - tm.SuccessRate
	tm.TotalCalls++
	if ev.Timestamp.After(tm.LastUsed) {
		tm.LastUsed = ev.Timestamp
	}
}

// raise appends an alert with bounded history. Callers hold mu.
func (m *Monitor) raise(a model.Alert) model.Alert {
	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = m.clock.Now()
	}
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > maxAlerts {
		m.alerts = append([]model.Alert(nil), m.alerts[len(m.alerts)-keepAlerts:]...)
	}
	return a
}

func (m *Monitor) dispatch(alerts []model.Alert) {
	for _, a := range alerts {
		metricskey.StatsAlertsRaised.IncrCounter(1, a.Type, string(a.Severity))
		logger.KV(xlog.DEBUG,
			"status", "alert",
			"type", a.Type,
			"severity", a.Severity,
			"tool", a.ToolName,
			"server", a.ServerName,
			"value", a.Value)
		if m.onAlert != nil {
			m.onAlert(a)
		}
	}
}

// GetToolMetrics returns the metrics of a (tool, server) pair.
func (m *Monitor) GetToolMetrics(tool, server string) (model.ToolMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tm, ok := m.metrics[pairKey{tool, server}]
	if !ok {
		return model.ToolMetrics{}, false
	}
	return *tm, true
}

// ToolSummary aggregates a tool's metrics across servers, weighted by
// call count.
func (m *Monitor) ToolSummary(tool string) (model.ToolMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := model.ToolMetrics{Tool: tool}
	var servers []string
	for k, tm := range m.metrics {
		if k.tool != tool || tm.TotalCalls == 0 {
			continue
		}
		w := float64(tm.TotalCalls)
		out.SuccessRate += tm.SuccessRate * w
		out.AverageResponseTimeMs += tm.AverageResponseTimeMs * w
		out.TotalCalls += tm.TotalCalls
		if tm.LastUsed.After(out.LastUsed) {
			out.LastUsed = tm.LastUsed
		}
		servers = append(servers, k.server)
	}
	if out.TotalCalls == 0 {
		return model.ToolMetrics{}, false
	}
	total := float64(out.TotalCalls)
	out.SuccessRate /= total
	out.AverageResponseTimeMs /= total
	out.ErrorRate = 1 - out.SuccessRate
	if len(servers) == 1 {
		out.Server = servers[0]
	}
	return out, true
}

// ServerSummary aggregates all tools of a server, weighted by call count.
func (m *Monitor) ServerSummary(server string) (model.ServerRollup, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roll := rollups(m.metrics)[server]
	if roll.TotalCalls == 0 {
		return model.ServerRollup{}, false
	}
	return roll, true
}

func rollups(metrics map[pairKey]*model.ToolMetrics) map[string]model.ServerRollup {
	out := make(map[string]model.ServerRollup)
	for k, tm := range metrics {
		r := out[k.server]
		r.Server = k.server
		r.Tools++
		w := float64(tm.TotalCalls)
		r.SuccessRate += tm.SuccessRate * w
		r.AverageResponseTimeMs += tm.AverageResponseTimeMs * w
		r.TotalCalls += tm.TotalCalls
		out[k.server] = r
	}
	for s, r := range out {
		if r.TotalCalls > 0 {
			r.SuccessRate /= float64(r.TotalCalls)
			r.AverageResponseTimeMs /= float64(r.TotalCalls)
		}
		out[s] = r
	}
	return out
}

// AllMetrics returns copies of every tracked pair, sorted by tool then
// server.
func (m *Monitor) AllMetrics() []model.ToolMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedMetrics(m.metrics)
}

func sortedMetrics(metrics map[pairKey]*model.ToolMetrics) []model.ToolMetrics {
	out := make([]model.ToolMetrics, 0, len(metrics))
	for _, tm := range metrics {
		out = append(out, *tm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tool != out[j].Tool {
			return out[i].Tool < out[j].Tool
		}
		return out[i].Server < out[j].Server
	})
	return out
}

// IgnoredUpdates returns how many malformed events were dropped.
func (m *Monitor) IgnoredUpdates() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ignored
}

// Alerts returns a copy of the alert history, oldest first.
func (m *Monitor) Alerts() []model.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Alert(nil), m.alerts...)
}

// Snapshots returns a copy of the snapshot history, oldest first.
func (m *Monitor) Snapshots() []model.PerformanceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.PerformanceSnapshot(nil), m.snapshots...)
}

// Reports returns a copy of the report history, oldest first.
func (m *Monitor) Reports() []model.OptimizationReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.OptimizationReport(nil), m.reports...)
}

// Integration returns the derived integration metrics.
func (m *Monitor) Integration() model.IntegrationMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.integration
}

// Start runs the monitoring cycle every MonitoringInterval until Stop is
// called or ctx is done. Calling Start more than once has no effect.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.loop(ctx)
		logger.KV(xlog.INFO, "status", "started", "interval", m.cfg.MonitoringInterval.String())
	})
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runCycle(ctx, "ticker")
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		}
	}
}

// Stop ends the monitoring loop and waits for a running cycle.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()
	})
}

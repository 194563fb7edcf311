package monitor

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMonitor(opts ...Option) (*Monitor, *clock.Fake) {
	clk := clock.NewFake(epoch)
	return New(DefaultConfig(), append([]Option{WithClock(clk)}, opts...)...), clk
}

func event(tool, server string, ok bool, ms float64) model.ExecutionEvent {
	return model.ExecutionEvent{Tool: tool, Server: server, Success: ok, ResponseTimeMs: ms}
}

type memorySink struct {
	mu     sync.Mutex
	events []model.ExecutionEvent
}

func (s *memorySink) Track(ev model.ExecutionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

type memoryStore struct {
	snapshots []model.PerformanceSnapshot
	reports   []model.OptimizationReport
	fail      bool
}

func (s *memoryStore) SaveSnapshot(_ context.Context, snap model.PerformanceSnapshot) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *memoryStore) SaveReport(_ context.Context, r model.OptimizationReport) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.reports = append(s.reports, r)
	return nil
}

func TestHalfLife(t *testing.T) {
	assert.InDelta(t, 6.58, HalfLife(0.1), 0.01)
	assert.Zero(t, HalfLife(0))
	assert.Zero(t, HalfLife(1))
}

func TestSuccessRateRisesMonotonically(t *testing.T) {
	m, _ := newTestMonitor()

	prev := PriorSuccessRate
	for i := 0; i < 10; i++ {
		m.RecordExecution(event("read_memory", "memory", true, 100))
		tm, ok := m.GetToolMetrics("read_memory", "memory")
		require.True(t, ok)
		assert.Greater(t, tm.SuccessRate, prev)
		assert.LessOrEqual(t, tm.SuccessRate, 1.0)
		assert.InDelta(t, 1.0, tm.SuccessRate+tm.ErrorRate, 1e-12)
		prev = tm.SuccessRate
	}
}

func TestFirstEventSeedsResponseTime(t *testing.T) {
	m, _ := newTestMonitor()

	m.RecordExecution(event("web_fetch", "fetch", false, 1200))
	tm, ok := m.GetToolMetrics("web_fetch", "fetch")
	require.True(t, ok)
	assert.Equal(t, 1200.0, tm.AverageResponseTimeMs)
	assert.InDelta(t, PriorSuccessRate*0.9, tm.SuccessRate, 1e-12)
	assert.Equal(t, int64(1), tm.TotalCalls)
	assert.Equal(t, epoch, tm.LastUsed)

	m.RecordExecution(event("web_fetch", "fetch", true, 200))
	tm, _ = m.GetToolMetrics("web_fetch", "fetch")
	assert.InDelta(t, 1100.0, tm.AverageResponseTimeMs, 1e-9)
}

func TestAlternatingOutcomesConverge(t *testing.T) {
	m, _ := newTestMonitor()

	for i := 0; i < 1000; i++ {
		m.RecordExecution(event("run_tests", "test-runner", i%2 == 0, 500))
	}
	tm, ok := m.GetToolMetrics("run_tests", "test-runner")
	require.True(t, ok)
	assert.InDelta(t, 0.5, tm.SuccessRate, 0.05)
	assert.Equal(t, int64(1000), tm.TotalCalls)
}

func TestMalformedEventsAreIgnored(t *testing.T) {
	sink := &memorySink{}
	m, _ := newTestMonitor(WithSink(sink))

	bad := []model.ExecutionEvent{
		event("", "memory", true, 10),
		event("read_memory", "", true, 10),
		event("read_memory", "memory", true, -1),
		event("read_memory", "memory", true, math.NaN()),
		event("read_memory", "memory", true, math.Inf(1)),
	}
	for _, ev := range bad {
		m.RecordExecution(ev)
		assert.True(t, errors.Is(ValidateEvent(ev), model.ErrMetricUpdateIgnored))
	}

	assert.Equal(t, int64(len(bad)), m.IgnoredUpdates())
	assert.Empty(t, m.AllMetrics())
	assert.Empty(t, m.Alerts())
	assert.Empty(t, sink.events)
	assert.NoError(t, ValidateEvent(event("read_memory", "memory", true, 0)))
}

func TestSynchronousAlerts(t *testing.T) {
	var handled []model.Alert
	sink := &memorySink{}
	m, _ := newTestMonitor(WithSink(sink), WithAlertHandler(func(a model.Alert) {
		handled = append(handled, a)
	}))

	m.RecordExecution(event("docker_build", "docker", true, 4500))
	m.RecordExecution(event("docker_build", "docker", false, 200))
	m.RecordExecution(event("docker_build", "docker", true, 200))

	alerts := m.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertSlowResponse, alerts[0].Type)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, 4500.0, alerts[0].Value)
	assert.Equal(t, 3000.0, alerts[0].Threshold)
	assert.Equal(t, AlertExecutionFailure, alerts[1].Type)
	assert.Equal(t, model.SeverityMedium, alerts[1].Severity)
	assert.Equal(t, "docker", alerts[1].ServerName)
	assert.NotEmpty(t, alerts[0].ID)
	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)

	assert.Equal(t, alerts, handled)
	assert.Len(t, sink.events, 3)
}

func TestSummaries(t *testing.T) {
	m, _ := newTestMonitor()

	for i := 0; i < 3; i++ {
		m.RecordExecution(event("web_fetch", "fetch", true, 1000))
	}
	m.RecordExecution(event("web_fetch", "tavily", true, 3000))
	m.RecordExecution(event("tavily_search", "tavily", true, 1000))

	fetch, _ := m.GetToolMetrics("web_fetch", "fetch")
	tav, _ := m.GetToolMetrics("web_fetch", "tavily")

	sum, ok := m.ToolSummary("web_fetch")
	require.True(t, ok)
	assert.Equal(t, int64(4), sum.TotalCalls)
	assert.Empty(t, sum.Server)
	assert.InDelta(t, (3*fetch.SuccessRate+tav.SuccessRate)/4, sum.SuccessRate, 1e-12)
	assert.InDelta(t, 1500.0, sum.AverageResponseTimeMs, 1e-9)

	one, ok := m.ToolSummary("tavily_search")
	require.True(t, ok)
	assert.Equal(t, "tavily", one.Server)

	roll, ok := m.ServerSummary("tavily")
	require.True(t, ok)
	assert.Equal(t, 2, roll.Tools)
	assert.Equal(t, int64(2), roll.TotalCalls)
	assert.InDelta(t, 2000.0, roll.AverageResponseTimeMs, 1e-9)

	_, ok = m.ToolSummary("unknown")
	assert.False(t, ok)
	_, ok = m.ServerSummary("unknown")
	assert.False(t, ok)
}

func TestReplayRaisesNoAlerts(t *testing.T) {
	sink := &memorySink{}
	m, _ := newTestMonitor(WithSink(sink))

	n := m.Replay([]model.ExecutionEvent{
		event("run_tests", "test-runner", false, 9000),
		event("run_tests", "test-runner", true, 100),
		event("", "test-runner", true, 100),
	})
	assert.Equal(t, 2, n)
	assert.Empty(t, m.Alerts())
	assert.Empty(t, sink.events)
	assert.Equal(t, int64(1), m.IgnoredUpdates())

	tm, ok := m.GetToolMetrics("run_tests", "test-runner")
	require.True(t, ok)
	assert.Equal(t, int64(2), tm.TotalCalls)
}

func TestSeverityTiers(t *testing.T) {
	rt := []struct {
		change float64
		exp    model.Severity
	}{
		{0, model.SeverityNone},
		{9.9, model.SeverityNone},
		{10, model.SeverityLow},
		{24.9, model.SeverityLow},
		{25, model.SeverityMedium},
		{50, model.SeverityHigh},
		{99, model.SeverityHigh},
		{100, model.SeverityCritical},
		{250, model.SeverityCritical},
	}
	for _, tc := range rt {
		assert.Equal(t, tc.exp, ResponseTimeSeverity(tc.change), "response time %v", tc.change)
	}

	rates := []struct {
		change float64
		exp    model.Severity
	}{
		{4.9, model.SeverityNone},
		{5, model.SeverityLow},
		{15, model.SeverityMedium},
		{25, model.SeverityHigh},
		{80, model.SeverityHigh},
	}
	for _, tc := range rates {
		assert.Equal(t, tc.exp, RateSeverity(tc.change), "rate %v", tc.change)
	}
}

func snapshots(n int, rt, sr float64) []model.PerformanceSnapshot {
	out := make([]model.PerformanceSnapshot, n)
	for i := range out {
		out[i] = model.PerformanceSnapshot{
			TotalCalls:            int64(10 + i),
			AverageResponseTimeMs: rt,
			SuccessRate:           sr,
			ErrorRate:             1 - sr,
		}
	}
	return out
}

func TestDetectTrends(t *testing.T) {
	assert.Empty(t, DetectTrends(snapshots(19, 1000, 0.9)))

	// idle snapshots do not count toward the window
	idle := []model.PerformanceSnapshot{{SuccessRate: 1}, {SuccessRate: 1}}
	history := append(idle, snapshots(10, 1000, 0.9)...)
	history = append(history, snapshots(10, 1600, 0.6)...)

	got := DetectTrends(history)
	require.Len(t, got, 3)

	assert.Equal(t, MetricResponseTime, got[0].Metric)
	assert.Equal(t, model.DirectionDegrading, got[0].Direction)
	assert.InDelta(t, 60.0, got[0].ChangePercent, 1e-9)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)

	assert.Equal(t, MetricSuccessRate, got[1].Metric)
	assert.Equal(t, model.DirectionDegrading, got[1].Direction)
	assert.Equal(t, model.SeverityHigh, got[1].Severity)

	assert.Equal(t, MetricErrorRate, got[2].Metric)
	assert.Equal(t, model.DirectionDegrading, got[2].Direction)
	assert.Equal(t, model.SeverityHigh, got[2].Severity)

	better := append(snapshots(10, 1000, 0.8), snapshots(10, 850, 0.8)...)
	got = DetectTrends(better)
	require.Len(t, got, 1)
	assert.Equal(t, model.DirectionImproving, got[0].Direction)
	assert.Equal(t, model.SeverityLow, got[0].Severity)
}

func TestRunCycle(t *testing.T) {
	store := &memoryStore{}
	m, clk := newTestMonitor(WithStore(store))

	empty := m.RunCycle(context.Background())
	assert.Zero(t, empty.OptimizationsDetected)
	assert.Equal(t, []string{"all tools are within response time and success rate thresholds"}, empty.Recommendations)

	for i := 0; i < 5; i++ {
		m.RecordExecution(event("web_fetch", "fetch", false, 5000))
	}
	clk.Advance(30 * time.Second)
	rep := m.RunCycle(context.Background())

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, clk.Now(), rep.Timestamp)
	assert.GreaterOrEqual(t, rep.OverallScore, 0.0)
	assert.LessOrEqual(t, rep.OverallScore, 100.0)
	assert.Contains(t, rep.Recommendations, "web_fetch on fetch averages 5000ms; route it to an alternate server")

	snaps := m.Snapshots()
	require.Len(t, snaps, 2)
	last := snaps[1]
	assert.Equal(t, int64(5), last.TotalCalls)
	assert.Equal(t, int64(5), last.ToolUsage["web_fetch"])
	assert.Equal(t, 1, last.Servers["fetch"].Tools)
	// 5 calls over 30s
	assert.Equal(t, mustSample(t, SyntheticProbe{}, Activity{CallsPerMinute: 10, AverageResponseTimeMs: 5000}), last.Resources)

	var types []string
	for _, a := range m.Alerts() {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, AlertSystemSlowResponse)
	assert.Contains(t, types, AlertSystemLowSuccessRate)

	assert.Len(t, store.snapshots, 2)
	assert.Len(t, store.reports, 2)
	assert.Len(t, m.Reports(), 2)

	perf := m.GetPerformanceReport()
	assert.Equal(t, int64(5), perf.TotalCalls)
	require.NotNil(t, perf.LatestReport)
	assert.Equal(t, rep.ID, perf.LatestReport.ID)
	require.NotNil(t, perf.LatestSnapshot)
	assert.LessOrEqual(t, len(perf.RecentAlerts), recentAlertsInReport)
	assert.InDelta(t, 6.58, perf.HalfLifeEvents, 0.01)
}

func mustSample(t *testing.T, p ResourceProbe, a Activity) model.ResourceUtilization {
	t.Helper()
	r, err := p.Sample(context.Background(), a)
	require.NoError(t, err)
	return r
}

func TestStoreFailuresDoNotBreakCycle(t *testing.T) {
	m, _ := newTestMonitor(WithStore(&memoryStore{fail: true}))
	m.RecordExecution(event("read_memory", "memory", true, 10))
	m.RunCycle(context.Background())
	assert.Len(t, m.Reports(), 1)
}

type failingProbe struct{}

func (failingProbe) Sample(context.Context, Activity) (model.ResourceUtilization, error) {
	return model.ResourceUtilization{}, errors.New("no host access")
}

func TestProbeFailureFallsBack(t *testing.T) {
	m, _ := newTestMonitor(WithProbe(failingProbe{}))
	m.RunCycle(context.Background())
	snaps := m.Snapshots()
	require.Len(t, snaps, 1)
	assert.Greater(t, snaps[0].Resources.Memory, 0.0)
}

func TestIntegrationMetricsStayBounded(t *testing.T) {
	m, clk := newTestMonitor()
	assert.Equal(t, 75.0, m.Integration().OverallScore())

	// steadily slower responses produce degrading trends every cycle
	for i := 0; i < 120; i++ {
		m.RecordExecution(event("run_tests", "test-runner", i%3 != 0, float64(100*(i+1)*(i+1))))
		clk.Advance(time.Second)
		m.RunCycle(context.Background())
	}
	in := m.Integration()
	for _, v := range []float64{in.ToolSelectionAccuracy, in.RoutingEfficiency, in.PerformanceImprovement, in.ResourceOptimization} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Less(t, in.RoutingEfficiency, initialIntegration)
}

func TestHistoriesAreBounded(t *testing.T) {
	m, _ := newTestMonitor()
	ctx := context.Background()

	for i := 0; i < maxAlerts+200; i++ {
		m.RecordExecution(event("kubectl_apply", "kubernetes", false, 10))
		assert.LessOrEqual(t, len(m.Alerts()), maxAlerts)
	}
	for i := 0; i < maxSnapshots+1; i++ {
		m.RunCycle(ctx)
	}
	assert.LessOrEqual(t, len(m.Snapshots()), maxSnapshots)
	assert.GreaterOrEqual(t, len(m.Snapshots()), keepSnapshots)
	assert.LessOrEqual(t, len(m.Reports()), maxReports)
	assert.GreaterOrEqual(t, len(m.Reports()), keepReports)
}

func TestStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitoringInterval = 5 * time.Millisecond
	m := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	m.Start(ctx)
	assert.Eventually(t, func() bool { return len(m.Snapshots()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	n := len(m.Snapshots())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(m.Snapshots()))
}

func TestConfigDefaults(t *testing.T) {
	m := New(Config{SuccessRateAlpha: 2, ResponseTimeAlpha: 0.3})
	cfg := m.Config()
	assert.Equal(t, DefaultAlpha, cfg.SuccessRateAlpha)
	assert.Equal(t, 0.3, cfg.ResponseTimeAlpha)
	assert.Equal(t, 3000.0, cfg.ResponseTimeThresholdMs)
	assert.Equal(t, 0.8, cfg.SuccessRateThreshold)
	assert.Equal(t, 30*time.Second, cfg.MonitoringInterval)
}

func TestSyntheticProbe(t *testing.T) {
	p := SyntheticProbe{}
	a := Activity{CallsPerMinute: 40, AverageResponseTimeMs: 2500}
	first := mustSample(t, p, a)
	assert.Equal(t, first, mustSample(t, p, a))

	huge := mustSample(t, p, Activity{CallsPerMinute: 1e9, AverageResponseTimeMs: 1e9})
	for _, v := range []float64{huge.CPU, huge.Memory, huge.Network, huge.Disk} {
		assert.LessOrEqual(t, v, 100.0)
	}
	idle := mustSample(t, p, Activity{CallsPerMinute: -5})
	assert.GreaterOrEqual(t, idle.Network, 0.0)
}

func TestHostProbeNetworkPercent(t *testing.T) {
	p := &HostProbe{NetworkCapacity: 1000}
	assert.Zero(t, p.networkPercent(5000, epoch))
	assert.InDelta(t, 50.0, p.networkPercent(6000, epoch.Add(2*time.Second)), 1e-9)
	// counter reset
	assert.Zero(t, p.networkPercent(10, epoch.Add(3*time.Second)))
	assert.Equal(t, 100.0, p.networkPercent(1e9, epoch.Add(4*time.Second)))
}

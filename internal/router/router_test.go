package router

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
	"github.com/khanglvm/tool-optimizer-mcp/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeMetrics struct {
	tools   map[string]model.ToolMetrics
	servers map[string]model.ServerRollup
}

func (f *fakeMetrics) GetToolMetrics(tool, server string) (model.ToolMetrics, bool) {
	m, ok := f.tools[tool+"@"+server]
	return m, ok
}

func (f *fakeMetrics) ServerSummary(server string) (model.ServerRollup, bool) {
	s, ok := f.servers[server]
	return s, ok
}

func newTestRouter(t *testing.T, metrics MetricsSource) (*Router, *clock.Fake) {
	t.Helper()
	reg, err := registry.LoadDefault()
	require.NoError(t, err)
	rules, err := scoring.LoadDefault()
	require.NoError(t, err)

	clk := clock.NewFake(epoch)
	return New(reg, rules, metrics, WithClock(clk)), clk
}

func TestRouteUnknownTool(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	_, err := r.Route(context.Background(), "no_such_tool", nil)
	assert.True(t, errors.Is(err, model.ErrNoRouteAvailable))
}

func TestRoutePrefersPrimaryWithoutHistory(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	d, err := r.Route(context.Background(), "read_memory", nil)
	require.NoError(t, err)

	assert.Equal(t, "memory", d.SelectedServer)
	assert.Equal(t, 150.0, d.EstimatedLatencyMs)
	assert.InDelta(t, 0.6*UnseenSuccessRate+0.4*UnseenRecency, d.Confidence, 1e-9)
	assert.Contains(t, d.Rationale, "primary specialized server memory")
	require.Len(t, d.Alternatives, 1)
	assert.Equal(t, "filesystem", d.Alternatives[0].Server)
	assert.Equal(t, 330.0, d.Alternatives[0].EstimatedLatencyMs)
	assert.Greater(t, d.Score, d.Alternatives[0].Score)
	assert.False(t, d.Cached)
}

func TestRouteFallsBackWhenPrimaryDegrades(t *testing.T) {
	metrics := &fakeMetrics{
		tools: map[string]model.ToolMetrics{
			"web_fetch@fetch": {
				Tool: "web_fetch", Server: "fetch", TotalCalls: 20,
				SuccessRate: 0.5, ErrorRate: 0.5, AverageResponseTimeMs: 5000, LastUsed: epoch,
			},
		},
		servers: map[string]model.ServerRollup{
			"fetch": {Server: "fetch", Tools: 1, TotalCalls: 20, SuccessRate: 0.5, AverageResponseTimeMs: 5000},
		},
	}
	r, _ := newTestRouter(t, metrics)

	d, err := r.Route(context.Background(), "web_fetch", nil)
	require.NoError(t, err)
	assert.Equal(t, "tavily", d.SelectedServer)
	assert.Equal(t, 2100.0, d.EstimatedLatencyMs)
	require.Len(t, d.Alternatives, 1)
	assert.True(t, d.Alternatives[0].Primary)
}

func TestRecencyDecay(t *testing.T) {
	metrics := &fakeMetrics{
		tools: map[string]model.ToolMetrics{
			"find_symbol@serena": {
				Tool: "find_symbol", Server: "serena", TotalCalls: 5,
				SuccessRate: 1, AverageResponseTimeMs: 400, LastUsed: epoch.Add(-15 * 24 * time.Hour),
			},
		},
	}
	r, clk := newTestRouter(t, metrics)
	desc, ok := r.reg.Tool("find_symbol")
	require.True(t, ok)

	c := r.Analyze(desc)
	require.NotEmpty(t, c)
	assert.Equal(t, "serena", c[0].Server)
	assert.InDelta(t, 0.6+0.4*0.5, c[0].Confidence, 1e-9)

	// recency floors at 0.5 after the window
	clk.Advance(60 * 24 * time.Hour)
	c = r.Analyze(desc)
	assert.InDelta(t, 0.6+0.4*RecencyFloor, c[0].Confidence, 1e-9)
}

func TestRouteCachesWithinTTL(t *testing.T) {
	r, clk := newTestRouter(t, nil)
	ctx := context.Background()
	tc := &model.AgentTaskContext{AgentType: "qa-engineer", TaskDescription: "run suite", Priority: model.PriorityHigh}

	first, err := r.Route(ctx, "run_tests", tc)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	clk.Advance(time.Minute)
	second, err := r.Route(ctx, "run_tests", tc)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.SelectedServer, second.SelectedServer)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.DecidedAt, second.DecidedAt)

	// another fingerprint is a separate entry
	_, err = r.Route(ctx, "run_tests", &model.AgentTaskContext{TaskDescription: "x", LocalEnvironmentOnly: true})
	require.NoError(t, err)

	clk.Advance(DefaultCacheTTL)
	third, err := r.Route(ctx, "run_tests", tc)
	require.NoError(t, err)
	assert.False(t, third.Cached)

	rep := r.PerformanceReport()
	assert.Equal(t, int64(4), rep.Decisions)
	assert.Equal(t, int64(1), rep.CacheHits)
	assert.Equal(t, int64(4), rep.ServerSelections["test-runner"])
	assert.Equal(t, "memory", rep.Cache.Backend)
	assert.Equal(t, 2, rep.Cache.Size)
	assert.Equal(t, 1, rep.Pool.Connections)
	assert.Equal(t, int64(4), rep.Pool.TotalRequests)
	assert.Greater(t, rep.AverageConfidence, 0.0)
}

func TestInvalidateTool(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	ctx := context.Background()

	_, err := r.Route(ctx, "docker_build", nil)
	require.NoError(t, err)
	_, err = r.Route(ctx, "kubectl_apply", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, r.InvalidateTool(ctx, "docker_build"))
	assert.Equal(t, 0, r.InvalidateTool(ctx, "docker_build"))

	d, err := r.Route(ctx, "docker_build", nil)
	require.NoError(t, err)
	assert.False(t, d.Cached)

	d, err = r.Route(ctx, "kubectl_apply", nil)
	require.NoError(t, err)
	assert.True(t, d.Cached)
}

func TestConfidenceAlwaysClamped(t *testing.T) {
	metrics := &fakeMetrics{tools: map[string]model.ToolMetrics{}}
	r, _ := newTestRouter(t, metrics)

	for i, tool := range r.reg.Tools() {
		metrics.tools[tool.Name+"@"+tool.Server] = model.ToolMetrics{
			TotalCalls: int64(i + 1), SuccessRate: float64(i%3) / 2, AverageResponseTimeMs: float64(i * 300),
			LastUsed: epoch.Add(time.Duration(i) * time.Hour),
		}
		for _, c := range r.Analyze(tool) {
			assert.GreaterOrEqual(t, c.Confidence, 0.0, tool.Name)
			assert.LessOrEqual(t, c.Confidence, 1.0, tool.Name)
		}
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("run_tests", "qa|high|false|false")
	assert.Equal(t, a, CacheKey("run_tests", "qa|high|false|false"))
	assert.NotEqual(t, a, CacheKey("run_tests", "qa|low|false|false"))
	assert.NotEqual(t, a, CacheKey("coverage_report", "qa|high|false|false"))
	assert.Equal(t, "run_tests", toolOfKey(a))
}

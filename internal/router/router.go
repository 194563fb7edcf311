/*
Package router decides which server handles a tool call.

For each tool the primary owning server and every declared alternate
route are analysed: latency estimate, confidence from success history and
recency, and a rationale whose quality keywords feed the score. The best
candidate wins and the decision is cached per tool and context
fingerprint. A bookkeeping connection pool tracks per-server health.
*/
package router

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
	"github.com/khanglvm/tool-optimizer-mcp/internal/scoring"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "router")

// Scoring constants.
const (
	DefaultLatencyMs     = 2000.0
	UnseenSuccessRate    = 0.85
	UnseenRecency        = 0.5
	RecencyFloor         = 0.5
	RecencyWindowDays    = 30.0
	FastLatencyMs        = 1000.0
	ReliableSuccessRate  = 0.9
	ProvenCalls          = 10
	latencyScoreDivisor  = 50.0
	hoursPerDay          = 24.0
	defaultPoolMaxServer = 64
)

// MetricsSource provides measured metrics for candidates.
type MetricsSource interface {
	GetToolMetrics(tool, server string) (model.ToolMetrics, bool)
	ServerSummary(server string) (model.ServerRollup, bool)
}

// Router selects servers for tool calls. It is safe for concurrent use.
type Router struct {
	reg     *registry.Registry
	rules   *scoring.Rules
	metrics MetricsSource
	cache   DecisionCache
	pool    *Pool
	clock   clock.Clock

	mu               sync.Mutex
	decisions        int64
	cacheHits        int64
	confidenceSum    float64
	serverSelections map[string]int64
}

// Option configures a Router.
type Option func(*Router)

// WithCache replaces the default in-memory decision cache.
func WithCache(c DecisionCache) Option {
	return func(r *Router) { r.cache = c }
}

// WithPool replaces the default connection pool.
func WithPool(p *Pool) Option {
	return func(r *Router) { r.pool = p }
}

// WithClock sets the clock used for recency and cache expiry.
func WithClock(c clock.Clock) Option {
	return func(r *Router) { r.clock = c }
}

// New creates a router.
func New(reg *registry.Registry, rules *scoring.Rules, metrics MetricsSource, opts ...Option) *Router {
	r := &Router{
		reg:              reg,
		rules:            rules,
		metrics:          metrics,
		serverSelections: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.cache == nil {
		r.cache = NewMemoryCache(DefaultCacheTTL, DefaultCacheMaxEntries, r.clock)
	}
	if r.pool == nil {
		r.pool = NewPool(defaultPoolMaxServer, r.clock)
	}
	return r
}

// Route returns the routing decision for tool under the task context. A
// cached decision within its TTL is returned unchanged apart from the
// Cached flag.
func (r *Router) Route(ctx context.Context, tool string, tc *model.AgentTaskContext) (model.RoutingDecision, error) {
	defer metricskey.PerfRoute.MeasureSince(time.Now(), tool)

	desc, ok := r.reg.Tool(tool)
	if !ok || desc.Server == "" {
		return model.RoutingDecision{}, errors.Wrapf(model.ErrNoRouteAvailable, "tool %q", tool)
	}

	key := CacheKey(tool, tc.Fingerprint())
	if d, ok := r.cache.Get(ctx, key); ok {
		metricskey.StatsRouteCacheHits.IncrCounter(1, tool)
		r.pool.Acquire(d.SelectedServer)
		r.noteDecision(d, true)
		d.Cached = true
		return d, nil
	}
	metricskey.StatsRouteCacheMisses.IncrCounter(1, tool)

	candidates := r.Analyze(desc)
	if len(candidates) == 0 {
		return model.RoutingDecision{}, errors.Wrapf(model.ErrNoRouteAvailable, "tool %q has no candidate servers", tool)
	}
	best := candidates[0]

	d := model.RoutingDecision{
		Tool:               tool,
		SelectedServer:     best.Server,
		Rationale:          best.Rationale,
		EstimatedLatencyMs: best.EstimatedLatencyMs,
		Confidence:         best.Confidence,
		Score:              best.Score,
		Alternatives:       candidates[1:],
		DecidedAt:          r.clock.Now(),
	}
	r.cache.Set(ctx, key, d)
	r.pool.Acquire(d.SelectedServer)
	r.noteDecision(d, false)

	logger.KV(xlog.DEBUG,
		"status", "routed",
		"tool", tool,
		"server", d.SelectedServer,
		"confidence", d.Confidence,
		"score", d.Score,
		"candidates", len(candidates))
	return d, nil
}

// Analyze scores the primary server and every alternate route of a tool,
// best first. Ties keep declaration order, so the primary wins a tie.
func (r *Router) Analyze(desc registry.ToolDescriptor) []model.RouteCandidate {
	var out []model.RouteCandidate
	if desc.Server != "" {
		out = append(out, r.candidate(desc.Name, desc.Server, true, 0, 1))
	}
	for _, alt := range desc.Alternates {
		if alt.Server == "" {
			continue
		}
		rel := alt.Reliability
		if rel <= 0 || rel > 1 {
			rel = 1
		}
		out = append(out, r.candidate(desc.Name, alt.Server, false, alt.LatencyOverheadMs, rel))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (r *Router) candidate(tool, server string, primary bool, overheadMs, reliability float64) model.RouteCandidate {
	now := r.clock.Now()

	latency := DefaultLatencyMs
	if s, ok := r.reg.Server(server); ok && s.BaseLatencyMs > 0 {
		latency = s.BaseLatencyMs
	}

	var (
		m    model.ToolMetrics
		seen bool
	)
	if r.metrics != nil {
		m, seen = r.metrics.GetToolMetrics(tool, server)
		seen = seen && m.TotalCalls > 0
	}

	sr, recency := UnseenSuccessRate, UnseenRecency
	var days float64
	if seen {
		latency = m.AverageResponseTimeMs
		sr = m.SuccessRate
		days = math.Max(0, now.Sub(m.LastUsed).Hours()/hoursPerDay)
		recency = math.Max(RecencyFloor, 1-days/RecencyWindowDays)
	}
	latency += overheadMs
	sr *= reliability
	confidence := model.Clamp(0.6*sr+0.4*recency, 0, 1)

	serverSR := UnseenSuccessRate
	if r.metrics != nil {
		if roll, ok := r.metrics.ServerSummary(server); ok && roll.TotalCalls > 0 {
			serverSR = roll.SuccessRate
		}
	}

	var parts []string
	if primary {
		parts = append(parts, fmt.Sprintf("primary specialized server %s on the direct native path", server))
	} else {
		parts = append(parts, fmt.Sprintf("fallback via %s (+%.0fms overhead, reliability %.2f)", server, overheadMs, reliability))
	}
	if latency < FastLatencyMs {
		parts = append(parts, fmt.Sprintf("fast at %.0fms", latency))
	} else {
		parts = append(parts, fmt.Sprintf("estimated %.0fms", latency))
	}
	if seen {
		if m.SuccessRate >= ReliableSuccessRate {
			parts = append(parts, fmt.Sprintf("reliable at %.0f%% success", m.SuccessRate*100))
		} else {
			parts = append(parts, fmt.Sprintf("%.0f%% success", m.SuccessRate*100))
		}
		if m.TotalCalls >= ProvenCalls {
			parts = append(parts, fmt.Sprintf("proven over %d calls", m.TotalCalls))
		}
		if days < 1 {
			parts = append(parts, "recent use")
		}
	} else {
		parts = append(parts, "no history")
	}
	if r.pool.Healthy(server) {
		parts = append(parts, "healthy connection")
	}
	rationale := strings.Join(parts, "; ")

	var quality float64
	if r.rules != nil {
		quality = r.rules.QualityScore(rationale)
	}
	latencyScore := math.Max(0, 100-latency/latencyScoreDivisor)
	score := 0.4*latencyScore + 0.3*confidence*100 + 0.2*quality + 0.1*serverSR*100

	return model.RouteCandidate{
		Server:             server,
		Primary:            primary,
		EstimatedLatencyMs: latency,
		Confidence:         confidence,
		Score:              score,
		Rationale:          rationale,
	}
}

func (r *Router) noteDecision(d model.RoutingDecision, cached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions++
	if cached {
		r.cacheHits++
	}
	r.confidenceSum += d.Confidence
	r.serverSelections[d.SelectedServer]++
}

// InvalidateTool drops cached decisions for tool so the next call is
// analysed afresh.
func (r *Router) InvalidateTool(ctx context.Context, tool string) int {
	n := r.cache.DeleteTool(ctx, tool)
	if n > 0 {
		logger.KV(xlog.DEBUG, "status", "invalidated", "tool", tool, "entries", n)
	}
	return n
}

// Report summarises routing activity.
type Report struct {
	Decisions         int64            `json:"decisions"`
	CacheHits         int64            `json:"cacheHits"`
	AverageConfidence float64          `json:"averageConfidence"`
	ServerSelections  map[string]int64 `json:"serverSelections"`
	Cache             CacheStats       `json:"cache"`
	Pool              PoolStats        `json:"pool"`
	Connections       []Connection     `json:"connections"`
}

// PerformanceReport returns routing, cache and pool statistics.
func (r *Router) PerformanceReport() Report {
	r.mu.Lock()
	rep := Report{
		Decisions:        r.decisions,
		CacheHits:        r.cacheHits,
		ServerSelections: make(map[string]int64, len(r.serverSelections)),
	}
	if r.decisions > 0 {
		rep.AverageConfidence = r.confidenceSum / float64(r.decisions)
	}
	for k, v := range r.serverSelections {
		rep.ServerSelections[k] = v
	}
	r.mu.Unlock()

	rep.Cache = r.cache.Stats()
	rep.Pool = r.pool.Stats()
	rep.Connections = r.pool.Connections()
	return rep
}

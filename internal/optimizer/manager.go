/*
Package optimizer composes the registry, pattern catalog, selector, router
and monitor into one Manager.

A Manager is built explicitly from configuration; there is no package-level
instance. Callers own its lifecycle:

	m, err := optimizer.New(cfg)
	if err != nil { ... }
	m.Start(ctx)
	defer m.Close()

	res, err := m.Optimize(ctx, "frontend-engineer", &model.AgentTaskContext{...})
	// run res.SelectedTools externally, then
	m.RecordExecution(tool, server, ok, elapsedMs, nil)
*/
package optimizer

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
	"github.com/khanglvm/tool-optimizer-mcp/internal/config"
	"github.com/khanglvm/tool-optimizer-mcp/internal/learning"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/monitor"
	"github.com/khanglvm/tool-optimizer-mcp/internal/patterns"
	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
	"github.com/khanglvm/tool-optimizer-mcp/internal/router"
	"github.com/khanglvm/tool-optimizer-mcp/internal/scoring"
	"github.com/khanglvm/tool-optimizer-mcp/internal/search"
	"github.com/khanglvm/tool-optimizer-mcp/internal/selector"
	"github.com/khanglvm/tool-optimizer-mcp/internal/storage"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "optimizer")

// Every optimize call is recorded as an execution of this reserved pair.
const (
	AuditTool   = "optimize"
	AuditServer = "tool-optimizer"
)

const redisConnectTimeout = 3 * time.Second

// Option configures a Manager.
type Option func(*options)

type options struct {
	clock    clock.Clock
	registry *registry.Registry
	rules    *scoring.Rules
	storage  *storage.SQLiteStorage
	probe    monitor.ResourceProbe
	cache    router.DecisionCache
	metrics  *metricskey.Totals
}

// WithClock sets the clock shared by all components.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithRegistry replaces the configured tool registry.
func WithRegistry(r *registry.Registry) Option { return func(o *options) { o.registry = r } }

// WithRules replaces the configured scoring rules.
func WithRules(r *scoring.Rules) Option { return func(o *options) { o.rules = r } }

// WithStorage replaces the configured history database.
func WithStorage(s *storage.SQLiteStorage) Option { return func(o *options) { o.storage = s } }

// WithProbe replaces the configured resource probe.
func WithProbe(p monitor.ResourceProbe) Option { return func(o *options) { o.probe = p } }

// WithCache replaces the configured routing decision cache.
func WithCache(c router.DecisionCache) Option { return func(o *options) { o.cache = c } }

// WithMetrics exposes the totals of an installed metrics sink in the
// system report. See metricskey.Install.
func WithMetrics(t *metricskey.Totals) Option { return func(o *options) { o.metrics = t } }

// Manager orchestrates optimization requests. It is safe for concurrent use.
type Manager struct {
	cfg   *config.Config
	clock clock.Clock

	reg      *registry.Registry
	rules    *scoring.Rules
	catalog  *patterns.Catalog
	selector *selector.Selector
	router   *router.Router
	monitor  *monitor.Monitor
	index    *search.Indexer
	cache    router.DecisionCache
	metrics  *metricskey.Totals

	// storage is nil when history is disabled
	storage *storage.SQLiteStorage
	tracker *learning.Tracker

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New builds a Manager from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}

	reg, err := loadRegistry(cfg, o.registry)
	if err != nil {
		return nil, err
	}
	rules, err := loadRules(cfg, o.rules)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:     cfg,
		clock:   o.clock,
		reg:     reg,
		rules:   rules,
		catalog: patterns.NewCatalog(reg, rules),
		metrics: o.metrics,
	}

	m.storage = o.storage
	if m.storage == nil && !cfg.Storage.Disabled {
		m.storage = storage.NewStorage(cfg.Storage.Path)
	}
	if m.storage != nil {
		// Init failures leave the storage as a no-op
		_ = m.storage.Init()
		if !m.storage.Enabled() {
			m.storage = nil
		}
	}

	monOpts := []monitor.Option{
		monitor.WithClock(m.clock),
		monitor.WithProbe(selectProbe(cfg, o.probe)),
		monitor.WithAlertHandler(m.handleAlert),
	}
	if m.storage != nil {
		m.tracker = learning.NewTracker(m.storage)
		monOpts = append(monOpts, monitor.WithSink(m.tracker), monitor.WithStore(m.storage))
	}
	m.monitor = monitor.New(monitor.Config{
		SuccessRateAlpha:        cfg.Monitor.SuccessRateAlpha,
		ResponseTimeAlpha:       cfg.Monitor.ResponseTimeAlpha,
		ResponseTimeThresholdMs: cfg.Monitor.ResponseTimeThresholdMs,
		SuccessRateThreshold:    cfg.Monitor.SuccessRateThreshold,
		MonitoringInterval:      cfg.Monitor.MonitoringInterval(),
	}, monOpts...)

	m.selector = selector.New(selector.Config{
		MaxToolsPerTask:         cfg.Selector.MaxToolsPerTask,
		SuccessRateThreshold:    cfg.Selector.SuccessRateThreshold,
		ResponseTimeThresholdMs: cfg.Monitor.ResponseTimeThresholdMs,
	}, reg, rules, m.monitor, m.clock)

	m.cache = o.cache
	if m.cache == nil {
		m.cache = m.newCache()
	}
	poolSize := cfg.Router.PoolSize
	if poolSize <= 0 {
		poolSize = len(reg.ServerNames())
	}
	m.router = router.New(reg, rules, m.monitor,
		router.WithCache(m.cache),
		router.WithPool(router.NewPool(poolSize, m.clock)),
		router.WithClock(m.clock),
	)

	m.index, err = openIndex(cfg.Storage.IndexPath)
	if err != nil {
		m.release()
		return nil, errors.Wrap(err, "failed to create tool index")
	}
	removed, err := m.index.Sync(reg)
	if err != nil {
		_ = m.index.Close()
		m.release()
		return nil, errors.Wrap(err, "failed to index tools")
	}
	if removed > 0 {
		logger.KV(xlog.DEBUG, "status", "index_synced", "path", m.index.Path(), "removed", removed)
	}

	logger.KV(xlog.INFO,
		"status", "created",
		"tools", len(reg.Tools()),
		"agents", len(reg.Agents()),
		"storage", m.storage != nil,
		"probe", cfg.Monitor.ResourceProbe)
	return m, nil
}

func openIndex(path string) (*search.Indexer, error) {
	if path == "" {
		return search.NewIndexer()
	}
	return search.NewIndexerWithPath(path)
}

// release frees what New acquired before the index, on a failed New.
func (m *Manager) release() {
	if m.tracker != nil {
		m.tracker.Stop()
	}
	if c, ok := m.cache.(io.Closer); ok {
		_ = c.Close()
	}
	if m.storage != nil {
		_ = m.storage.Close()
	}
}

func loadRegistry(cfg *config.Config, reg *registry.Registry) (*registry.Registry, error) {
	if reg != nil {
		return reg, nil
	}
	if cfg.RegistryFile != "" {
		return registry.LoadFile(cfg.RegistryFile)
	}
	return registry.LoadDefault()
}

func loadRules(cfg *config.Config, rules *scoring.Rules) (*scoring.Rules, error) {
	if rules != nil {
		return rules, nil
	}
	if cfg.RulesFile != "" {
		return scoring.LoadFile(cfg.RulesFile)
	}
	return scoring.LoadDefault()
}

func selectProbe(cfg *config.Config, probe monitor.ResourceProbe) monitor.ResourceProbe {
	if probe != nil {
		return probe
	}
	if cfg.Monitor.ResourceProbe == config.ProbeHost {
		return monitor.NewHostProbe()
	}
	return monitor.SyntheticProbe{}
}

// newCache returns the shared redis cache when configured and reachable,
// and the in-process cache otherwise.
func (m *Manager) newCache() router.DecisionCache {
	rc := m.cfg.Router
	if rc.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
		defer cancel()
		c, err := router.NewRedisCache(ctx, rc.RedisAddr, rc.RedisPrefix, rc.CacheTTL(), rc.CacheMaxEntries)
		if err == nil {
			return c
		}
		logger.KV(xlog.WARNING, "reason", "redis_unavailable", "addr", rc.RedisAddr, "err", err.Error())
	}
	return router.NewMemoryCache(rc.CacheTTL(), rc.CacheMaxEntries, m.clock)
}

// handleAlert drops cached routes of a tool that just failed or ran slow,
// so the next request sees its updated metrics.
func (m *Manager) handleAlert(a model.Alert) {
	switch a.Type {
	case monitor.AlertExecutionFailure, monitor.AlertSlowResponse:
		if a.ToolName != "" {
			m.router.InvalidateTool(context.Background(), a.ToolName)
		}
	}
}

// Optimize selects and routes the tools for a task of agentType.
func (m *Manager) Optimize(ctx context.Context, agentType string, tc *model.AgentTaskContext) (*model.OptimizationResult, error) {
	started := time.Now()
	defer metricskey.PerfOptimize.MeasureSince(started, agentType)

	res, err := m.optimize(ctx, agentType, tc)
	if err != nil {
		metricskey.StatsOptimizeFailed.IncrCounter(1, agentType)
		logger.KV(xlog.DEBUG, "status", "optimize_failed", "agent", agentType, "err", err.Error())
		return nil, err
	}
	metricskey.StatsOptimizeSucceeded.IncrCounter(1, agentType)

	m.monitor.RecordExecution(model.ExecutionEvent{
		Tool:           AuditTool,
		Server:         AuditServer,
		Success:        true,
		ResponseTimeMs: float64(time.Since(started).Microseconds()) / 1000,
		Context: map[string]any{
			"agentType":         agentType,
			"priority":          string(res.Priority),
			"selectedTools":     len(res.SelectedTools),
			"optimizationScore": res.OptimizationScore,
		},
		Timestamp: m.clock.Now(),
	})
	return res, nil
}

func (m *Manager) optimize(ctx context.Context, agentType string, tc *model.AgentTaskContext) (*model.OptimizationResult, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	task := *tc
	if task.AgentType == "" {
		task.AgentType = agentType
	}

	p, err := m.catalog.Get(agentType)
	if err != nil {
		return nil, err
	}
	p = m.catalog.ApplyContextFlow(p, &task)
	p = m.catalog.ApplyMemoryIntegration(p, &task)

	res, err := m.selector.Select(p, &task)
	if err != nil {
		return nil, err
	}

	for i, t := range res.SelectedTools {
		d, err := m.router.Route(ctx, t.Name, &task)
		if err != nil {
			// the selection stays usable without a route for this tool
			logger.KV(xlog.WARNING, "reason", "route", "tool", t.Name, "err", err.Error())
			continue
		}
		res.SelectedTools[i].Server = d.SelectedServer
		res.Routing = append(res.Routing, d)
	}
	return res, nil
}

// RouteRequest returns the routing decision for one tool. tc may be nil.
func (m *Manager) RouteRequest(ctx context.Context, tool string, tc *model.AgentTaskContext) (model.RoutingDecision, error) {
	return m.router.Route(ctx, tool, tc)
}

// RecordExecution reports the outcome of one tool call. Malformed input is
// dropped and counted; it never fails.
func (m *Manager) RecordExecution(tool, server string, success bool, responseTimeMs float64, execCtx map[string]any) {
	m.monitor.RecordExecution(model.ExecutionEvent{
		Tool:           tool,
		Server:         server,
		Success:        success,
		ResponseTimeMs: responseTimeMs,
		Context:        execCtx,
		Timestamp:      m.clock.Now(),
	})
}

// GetToolMetrics returns the metrics of a (tool, server) pair.
func (m *Manager) GetToolMetrics(tool, server string) (model.ToolMetrics, bool) {
	return m.monitor.GetToolMetrics(tool, server)
}

// AllMetrics returns the metrics of every tracked pair.
func (m *Manager) AllMetrics() []model.ToolMetrics {
	return m.monitor.AllMetrics()
}

// UpdatePattern replaces the integration pattern of agentType.
func (m *Manager) UpdatePattern(agentType string, p patterns.IntegrationPattern) error {
	return m.catalog.Update(agentType, p)
}

// Pattern returns the integration pattern of agentType.
func (m *Manager) Pattern(agentType string) (patterns.IntegrationPattern, error) {
	return m.catalog.Get(agentType)
}

// Patterns returns every integration pattern.
func (m *Manager) Patterns() []patterns.IntegrationPattern {
	return m.catalog.List()
}

// Registry returns the tool registry.
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}

// SearchTools ranks registry tools for a free-text query, favouring tools
// that succeed.
func (m *Manager) SearchTools(ctx context.Context, query string, limit int) ([]search.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}
	results, err := m.index.SearchRanked(query, limit, m.monitor, search.DefaultFusionConfig)
	if err != nil {
		return nil, err
	}
	if m.storage != nil {
		rec := storage.NewSearchRecord(query, len(results), m.clock.Now())
		if err := m.storage.RecordSearch(ctx, rec); err != nil {
			logger.KV(xlog.WARNING, "reason", "record_search", "err", err.Error())
		}
	}
	return results, nil
}

// FilterTools runs a keyword search scoped to one server or category. With
// neither set it lists the indexed catalog. Results are not ranked by
// performance and are not recorded.
func (m *Manager) FilterTools(query, server, category string, limit int) ([]search.SearchResult, error) {
	if server == "" && category == "" {
		return m.index.GetAllTools(limit)
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}
	if server != "" {
		return m.index.SearchByServer(query, server, limit)
	}
	return m.index.SearchByCategory(query, category, limit)
}

// RunCycle runs one monitoring cycle immediately.
func (m *Manager) RunCycle(ctx context.Context) model.OptimizationReport {
	return m.monitor.RunCycle(ctx)
}

// Start warms the metrics from stored history, prunes expired history and
// starts the monitoring loop. Calling Start more than once has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		if m.storage != nil {
			m.replay(ctx)
			if retention := m.cfg.Storage.Retention(); retention > 0 {
				if err := m.storage.Cleanup(ctx, retention); err != nil {
					logger.KV(xlog.WARNING, "reason", "cleanup", "err", err.Error())
				}
			}
		}
		m.monitor.Start(ctx)
	})
}

func (m *Manager) replay(ctx context.Context) {
	window := m.cfg.Storage.ReplayWindow()
	if window <= 0 {
		return
	}
	events, err := m.storage.GetExecutionHistory(ctx, m.clock.Now().Add(-window), -1)
	if err != nil {
		logger.KV(xlog.WARNING, "reason", "replay", "err", err.Error())
		return
	}
	n := m.monitor.Replay(events)
	logger.KV(xlog.INFO, "status", "replayed", "events", n, "window", window.String())
}

// Close stops the monitoring loop, flushes pending history and releases
// the index, cache and database.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.monitor.Stop()
		if m.tracker != nil {
			m.tracker.Stop()
		}
		var errs error
		if err := m.index.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close tool index"))
		}
		if c, ok := m.cache.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close routing cache"))
			}
		}
		if m.storage != nil {
			if err := m.storage.Close(); err != nil {
				errs = errors.CombineErrors(errs, err)
			}
		}
		m.closeErr = errs
	})
	return m.closeErr
}

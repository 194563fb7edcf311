/*
Package selector scores the candidate tools of an integration pattern
against a task, filters and caps them, and orders the survivors into
execution phases with a rationale and a performance prediction.
*/
package selector

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/patterns"
	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
	"github.com/khanglvm/tool-optimizer-mcp/internal/scoring"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "selector")

// Scoring constants.
const (
	KeywordBonus       = 3.0
	SuccessWeight      = 5.0
	FastBonus          = 3.0
	FastThresholdMs    = 1000.0
	DomainAffinity     = 5.0
	UnknownSuccessRate = 0.85
	MinSelected        = 3

	// keywordBonusCap bounds the keyword contribution used to normalize
	// relevance.
	keywordBonusCap = 9.0

	defaultPredictedMs      = 2000.0
	defaultPredictedSuccess = 0.8
	idealToolCount          = 5.0
	diversityCategories     = 5.0
)

// phaseOrder is the fixed execution sequence. Categories not listed run
// after infrastructure in alphabetical order; general runs last.
var phaseOrder = []string{
	registry.CategoryContext,
	registry.CategoryAnalysis,
	registry.CategoryResearch,
	registry.CategoryDevelopment,
	registry.CategoryTesting,
	registry.CategoryInfrastructure,
}

// MetricsSource provides per-tool aggregated metrics.
type MetricsSource interface {
	ToolSummary(tool string) (model.ToolMetrics, bool)
}

// Config tunes the selector.
type Config struct {
	// MaxToolsPerTask limits the cap of non-critical requests.
	MaxToolsPerTask int
	// SuccessRateThreshold excludes tools at or below this success rate.
	SuccessRateThreshold float64
	// ResponseTimeThresholdMs marks tools as slow in recommendations.
	ResponseTimeThresholdMs float64
}

// DefaultConfig returns the default selector configuration.
func DefaultConfig() Config {
	return Config{
		MaxToolsPerTask:         7,
		SuccessRateThreshold:    0.7,
		ResponseTimeThresholdMs: 3000,
	}
}

// Selector picks tools for a task. It is safe for concurrent use.
type Selector struct {
	cfg     Config
	reg     *registry.Registry
	rules   *scoring.Rules
	metrics MetricsSource
	clock   clock.Clock

	mu    sync.Mutex
	stats map[string]*ToolStats
}

// New creates a selector.
func New(cfg Config, reg *registry.Registry, rules *scoring.Rules, metrics MetricsSource, clk clock.Clock) *Selector {
	def := DefaultConfig()
	if cfg.MaxToolsPerTask <= 0 {
		cfg.MaxToolsPerTask = def.MaxToolsPerTask
	}
	if cfg.SuccessRateThreshold <= 0 {
		cfg.SuccessRateThreshold = def.SuccessRateThreshold
	}
	if cfg.ResponseTimeThresholdMs <= 0 {
		cfg.ResponseTimeThresholdMs = def.ResponseTimeThresholdMs
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Selector{
		cfg:     cfg,
		reg:     reg,
		rules:   rules,
		metrics: metrics,
		clock:   clk,
		stats:   make(map[string]*ToolStats),
	}
}

type candidate struct {
	name       string
	server     string
	category   string
	score      float64
	weight     float64
	keywords   int
	successSR  float64
	metrics    *model.ToolMetrics
	domain     bool
	guaranteed bool
}

// Cap returns the tool limit for a pattern at a priority.
func (s *Selector) Cap(p patterns.IntegrationPattern, priority model.Priority) int {
	base := p.MaxTools
	if base <= 0 {
		base = s.reg.AgentMaxTools(p.AgentType)
	}
	limit := int(math.Floor(float64(base) * priority.Multiplier()))
	if priority.Normalize() != model.PriorityCritical && limit > s.cfg.MaxToolsPerTask {
		limit = s.cfg.MaxToolsPerTask
	}
	return limit
}

// Select scores, filters, caps and orders the candidate tools of p.
func (s *Selector) Select(p patterns.IntegrationPattern, tc *model.AgentTaskContext) (*model.OptimizationResult, error) {
	defer metricskey.PerfSelect.MeasureSince(time.Now(), p.AgentType)

	var priority model.Priority
	var text string
	if tc != nil {
		priority = tc.Priority.Normalize()
		text = tc.TaskDescription
	} else {
		priority = model.PriorityMedium
	}

	keywords := s.rules.ExpandKeywords(scoring.ExtractKeywords(text))
	guaranteed := s.guaranteedTools()

	names := p.Candidates()
	var kept []*candidate
	var excluded []string
	for _, name := range names {
		c := s.score(p, name, keywords)
		c.guaranteed = guaranteed[name]

		if c.successSR <= s.cfg.SuccessRateThreshold {
			excluded = append(excluded, fmt.Sprintf("%s (success rate %.0f%%)", name, c.successSR*100))
			s.noteExcluded(name, exclusionLowSuccess)
			continue
		}
		if reason := patterns.Excluded(s.reg, name, tc); reason != "" {
			excluded = append(excluded, fmt.Sprintf("%s (%s)", name, reason))
			s.noteExcluded(name, exclusionContext)
			continue
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return kept[i].name < kept[j].name
	})

	limit := s.Cap(p, priority)
	n := limit
	if len(kept) < n {
		n = len(kept)
	}
	if n < MinSelected {
		n = MinSelected
	}

	chosen := truncate(kept, n)
	if len(chosen) < MinSelected {
		chosen = s.backfill(p, chosen, tc, keywords)
	}

	orderPhases(chosen)
	result := s.buildResult(p, tc, priority, chosen, len(names), excluded)

	s.noteSelected(names, chosen)
	logger.KV(xlog.DEBUG,
		"status", "selected",
		"agent", p.AgentType,
		"priority", priority,
		"candidates", len(names),
		"selected", len(chosen),
		"cap", limit,
		"score", result.OptimizationScore)
	return result, nil
}

// truncate keeps the top n candidates. Guaranteed tools keep their slot
// and push the lowest-scoring optional tools out.
func truncate(kept []*candidate, n int) []*candidate {
	if len(kept) <= n {
		return append([]*candidate(nil), kept...)
	}
	var required, optional []*candidate
	for _, c := range kept {
		if c.guaranteed {
			required = append(required, c)
		} else {
			optional = append(optional, c)
		}
	}
	if len(required) > n {
		required = required[:n]
	}
	out := append([]*candidate(nil), required...)
	for _, c := range optional {
		if len(out) >= n {
			break
		}
		out = append(out, c)
	}
	return out
}

// backfill tops a short selection up to MinSelected with essential tools
// that pass the success and context filters.
func (s *Selector) backfill(p patterns.IntegrationPattern, chosen []*candidate, tc *model.AgentTaskContext, keywords []string) []*candidate {
	have := make(map[string]bool, len(chosen))
	for _, c := range chosen {
		have[c.name] = true
	}
	for _, name := range s.reg.ToolsWithTag(registry.TagEssential) {
		if len(chosen) >= MinSelected {
			break
		}
		if have[name] {
			continue
		}
		c := s.score(p, name, keywords)
		if c.successSR <= s.cfg.SuccessRateThreshold || patterns.Excluded(s.reg, name, tc) != "" {
			continue
		}
		chosen = append(chosen, c)
		have[name] = true
		logger.KV(xlog.DEBUG, "status", "backfilled", "agent", p.AgentType, "tool", name)
	}
	return chosen
}

func (s *Selector) score(p patterns.IntegrationPattern, name string, keywords []string) *candidate {
	tool, _ := s.reg.Tool(name)
	c := &candidate{
		name:      name,
		server:    tool.Server,
		category:  s.reg.Category(name),
		weight:    s.rules.Weight(p.SelectionStrategy, name),
		successSR: UnknownSuccessRate,
		domain:    p.IsDomainTool(name),
	}

	lower := strings.ToLower(name)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			c.keywords++
		}
	}

	if s.metrics != nil {
		if m, ok := s.metrics.ToolSummary(name); ok && m.TotalCalls > 0 {
			c.metrics = &m
			c.successSR = m.SuccessRate
		}
	}

	c.score = c.weight + KeywordBonus*float64(c.keywords) + c.successSR*SuccessWeight
	if c.metrics != nil && c.metrics.AverageResponseTimeMs < FastThresholdMs {
		c.score += FastBonus
	}
	if c.domain {
		c.score += DomainAffinity
	}
	return c
}

func (s *Selector) guaranteedTools() map[string]bool {
	out := make(map[string]bool)
	for _, tag := range []string{registry.TagMemoryRead, registry.TagCodebaseSearch} {
		for _, t := range s.reg.ToolsWithTag(tag) {
			out[t] = true
		}
	}
	return out
}

// phaseOf returns the execution phase of a category, starting at 1.
func phaseOf(category string) int {
	for i, c := range phaseOrder {
		if c == category {
			return i + 1
		}
	}
	if category == registry.CategoryGeneral {
		return len(phaseOrder) + 2
	}
	return len(phaseOrder) + 1
}

func orderPhases(chosen []*candidate) {
	sort.SliceStable(chosen, func(i, j int) bool {
		pi, pj := phaseOf(chosen[i].category), phaseOf(chosen[j].category)
		if pi != pj {
			return pi < pj
		}
		if chosen[i].category != chosen[j].category {
			return chosen[i].category < chosen[j].category
		}
		if chosen[i].score != chosen[j].score {
			return chosen[i].score > chosen[j].score
		}
		return chosen[i].name < chosen[j].name
	})
}

func (s *Selector) buildResult(
	p patterns.IntegrationPattern,
	tc *model.AgentTaskContext,
	priority model.Priority,
	chosen []*candidate,
	candidates int,
	excluded []string,
) *model.OptimizationResult {
	result := &model.OptimizationResult{
		ID:                  uuid.NewString(),
		AgentType:           p.AgentType,
		Priority:            priority,
		OptimizationLevel:   p.OptimizationLevel,
		WorkflowPattern:     p.WorkflowPattern,
		RationaleByCategory: orderedmap.New[string, []string](),
		CreatedAt:           s.clock.Now(),
	}

	var (
		totalMs, totalSR, totalScore float64
		resources                    model.ResourceUtilization
		categories                   = make(map[string]struct{})
	)
	for _, c := range chosen {
		result.SelectedTools = append(result.SelectedTools, model.SelectedTool{
			Name:     c.name,
			Server:   c.server,
			Category: c.category,
			Phase:    phaseOf(c.category),
			Score:    c.score,
			Metrics:  c.metrics,
		})
		categories[c.category] = struct{}{}
		totalScore += c.score

		ms, sr := defaultPredictedMs, defaultPredictedSuccess
		if c.metrics != nil {
			ms, sr = c.metrics.AverageResponseTimeMs, c.metrics.SuccessRate
		}
		totalMs += ms
		totalSR += sr
		if tool, ok := s.reg.Tool(c.name); ok {
			resources = resources.Add(tool.Resources)
		}

		lines, _ := result.RationaleByCategory.Get(c.category)
		result.RationaleByCategory.Set(c.category, append(lines, rationale(c)))
	}

	n := float64(len(chosen))
	pred := model.PerformancePrediction{
		EstimatedExecutionTimeMs: totalMs,
		SuccessProbability:       defaultPredictedSuccess,
		ResourceUtilization:      resources,
		WithinResourceBudget:     true,
	}
	if n > 0 {
		pred.SuccessProbability = totalSR / n
	}
	if tc != nil && tc.ResourceConstraints != nil {
		pred.WithinResourceBudget = !resources.Exceeds(*tc.ResourceConstraints)
	}
	result.PerformancePrediction = pred

	var relevance float64
	if n > 0 {
		maxScore := s.rules.MaxWeight(p.SelectionStrategy) + keywordBonusCap + SuccessWeight + FastBonus + DomainAffinity
		relevance = model.Clamp(totalScore/n/maxScore*100, 0, 100)
	}
	diversity := math.Min(float64(len(categories))/diversityCategories, 1) * 100
	count := (1 - math.Abs(n-idealToolCount)/idealToolCount) * 100
	result.OptimizationScore = model.Clamp(
		0.4*relevance+0.2*diversity+0.3*pred.SuccessProbability*100+0.1*count, 0, 100)

	result.SelectionRationale = summary(p, priority, len(chosen), candidates, excluded)
	return result
}

func rationale(c *candidate) string {
	parts := []string{fmt.Sprintf("score %.1f", c.score)}
	if c.weight > 0 {
		parts = append(parts, fmt.Sprintf("strategy weight %.0f", c.weight))
	}
	if c.keywords > 0 {
		parts = append(parts, fmt.Sprintf("%d keyword match(es)", c.keywords))
	}
	if c.metrics != nil {
		parts = append(parts, fmt.Sprintf("success %.0f%% over %d calls, %.0fms avg",
			c.metrics.SuccessRate*100, c.metrics.TotalCalls, c.metrics.AverageResponseTimeMs))
	} else {
		parts = append(parts, "no history")
	}
	if c.domain {
		parts = append(parts, "domain tool")
	}
	if c.guaranteed {
		parts = append(parts, "memory guarantee")
	}
	return fmt.Sprintf("%s: %s", c.name, strings.Join(parts, ", "))
}

func summary(p patterns.IntegrationPattern, priority model.Priority, selected, candidates int, excluded []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Selected %d of %d candidate tools for %s (%s strategy, %s priority, %s optimization)",
		selected, candidates, p.AgentType, p.SelectionStrategy, priority, p.OptimizationLevel)
	if len(excluded) > 0 {
		fmt.Fprintf(&b, "; excluded %s", strings.Join(excluded, ", "))
	}
	return b.String()
}

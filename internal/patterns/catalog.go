/*
Package patterns keeps the per-agent baseline integration patterns and the
two transform passes applied to a copy of a pattern before selection:

  - context flow: drops tools that conflict with the task context flags
    and escalates the optimization level for critical work
  - memory integration: guarantees a memory-read and a codebase-search
    tool, and appends tools triggered by terms in the task text
*/
package patterns

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
	"github.com/khanglvm/tool-optimizer-mcp/internal/scoring"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "patterns")

// Optimization levels, lowest first.
const (
	LevelLow     = "low"
	LevelMedium  = "medium"
	LevelHigh    = "high"
	LevelMaximum = "maximum"
)

var levels = []string{LevelLow, LevelMedium, LevelHigh, LevelMaximum}

// IntegrationPattern is the baseline tool set and workflow metadata of an
// agent type.
type IntegrationPattern struct {
	AgentType         string   `json:"agentType"`
	UniversalTools    []string `json:"universalTools"`
	DomainTools       []string `json:"domainTools"`
	SelectionStrategy string   `json:"selectionStrategy"`
	OptimizationLevel string   `json:"optimizationLevel"`
	WorkflowPattern   string   `json:"workflowPattern"`
	MaxTools          int      `json:"maxTools"`
}

// Clone returns a deep copy.
func (p IntegrationPattern) Clone() IntegrationPattern {
	c := p
	c.UniversalTools = append([]string(nil), p.UniversalTools...)
	c.DomainTools = append([]string(nil), p.DomainTools...)
	return c
}

// Candidates returns universal tools followed by domain tools, without
// duplicates.
func (p IntegrationPattern) Candidates() []string {
	seen := make(map[string]struct{}, len(p.UniversalTools)+len(p.DomainTools))
	var out []string
	for _, list := range [][]string{p.UniversalTools, p.DomainTools} {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// IsDomainTool reports whether tool is part of the agent's domain set.
func (p IntegrationPattern) IsDomainTool(tool string) bool {
	return contains(p.DomainTools, tool)
}

// Contains reports whether the pattern lists tool in either set.
func (p IntegrationPattern) Contains(tool string) bool {
	return contains(p.UniversalTools, tool) || contains(p.DomainTools, tool)
}

// Catalog holds one pattern per agent type. Patterns are never deleted.
type Catalog struct {
	mu       sync.RWMutex
	patterns map[string]IntegrationPattern
	reg      *registry.Registry
	rules    *scoring.Rules
}

// NewCatalog builds the catalog from the registry's agent profiles.
func NewCatalog(reg *registry.Registry, rules *scoring.Rules) *Catalog {
	c := &Catalog{
		patterns: make(map[string]IntegrationPattern),
		reg:      reg,
		rules:    rules,
	}
	universal := reg.UniversalTools()
	for _, a := range reg.Agents() {
		level := a.OptimizationLevel
		if level == "" {
			level = LevelMedium
		}
		c.patterns[a.Name] = IntegrationPattern{
			AgentType:         a.Name,
			UniversalTools:    append([]string(nil), universal...),
			DomainTools:       a.DomainTools,
			SelectionStrategy: a.SelectionStrategy,
			OptimizationLevel: level,
			WorkflowPattern:   a.WorkflowPattern,
			MaxTools:          a.MaxTools,
		}
	}
	logger.KV(xlog.DEBUG, "status", "catalog_built", "patterns", len(c.patterns))
	return c
}

// Get returns a copy of the pattern of agentType.
func (c *Catalog) Get(agentType string) (IntegrationPattern, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.patterns[agentType]
	if !ok {
		return IntegrationPattern{}, errors.Wrapf(model.ErrAgentTypeNotFound, "agent type %q", agentType)
	}
	return p.Clone(), nil
}

// Update replaces the pattern of agentType. Applying the same pattern
// twice leaves the catalog unchanged.
func (c *Catalog) Update(agentType string, p IntegrationPattern) error {
	if agentType == "" {
		return errors.Wrap(model.ErrInvalidPattern, "agent type cannot be empty")
	}
	if p.OptimizationLevel == "" {
		p.OptimizationLevel = LevelMedium
	}
	if levelIndex(p.OptimizationLevel) < 0 {
		return errors.Wrapf(model.ErrInvalidPattern, "unknown optimization level %q", p.OptimizationLevel)
	}
	if len(p.UniversalTools)+len(p.DomainTools) == 0 {
		return errors.Wrap(model.ErrInvalidPattern, "pattern has no tools")
	}
	for _, t := range p.Candidates() {
		if !c.reg.Has(t) {
			return errors.Wrapf(model.ErrInvalidPattern, "unknown tool %q", t)
		}
	}
	if p.MaxTools <= 0 {
		p.MaxTools = c.reg.AgentMaxTools(agentType)
	}
	p.AgentType = agentType

	c.mu.Lock()
	c.patterns[agentType] = p.Clone()
	c.mu.Unlock()

	logger.KV(xlog.INFO, "status", "pattern_updated", "agent", agentType, "tools", len(p.Candidates()))
	return nil
}

// List returns copies of all patterns sorted by agent type.
func (c *Catalog) List() []IntegrationPattern {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]IntegrationPattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentType < out[j].AgentType })
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func levelIndex(level string) int {
	for i, l := range levels {
		if l == level {
			return i
		}
	}
	return -1
}

package patterns

import (
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
)

// Excluded reports why a tool conflicts with the task context, or "" when
// it does not. Tools tagged essential are never excluded for real-time
// requirements.
func Excluded(reg *registry.Registry, tool string, tc *model.AgentTaskContext) string {
	if tc == nil {
		return ""
	}
	if tc.LocalEnvironmentOnly && reg.HasTag(tool, registry.TagNetwork) {
		return "network access disabled"
	}
	if tc.RequiresRealTimeData && reg.HasTag(tool, registry.TagCached) && !reg.HasTag(tool, registry.TagEssential) {
		return "serves cached data"
	}
	return ""
}

// ApplyContextFlow returns a copy of p with context-conflicting tools
// removed. Critical priority raises the optimization level by one tier.
func (c *Catalog) ApplyContextFlow(p IntegrationPattern, tc *model.AgentTaskContext) IntegrationPattern {
	out := p.Clone()
	if tc == nil {
		return out
	}

	keep := func(tools []string) []string {
		kept := tools[:0]
		for _, t := range tools {
			if reason := Excluded(c.reg, t, tc); reason != "" {
				logger.KV(xlog.DEBUG, "status", "context_filtered", "agent", p.AgentType, "tool", t, "reason", reason)
				continue
			}
			kept = append(kept, t)
		}
		return kept
	}
	out.UniversalTools = keep(out.UniversalTools)
	out.DomainTools = keep(out.DomainTools)

	if tc.Priority.Normalize() == model.PriorityCritical {
		if i := levelIndex(out.OptimizationLevel); i >= 0 && i < len(levels)-1 {
			out.OptimizationLevel = levels[i+1]
		}
	}
	return out
}

// ApplyMemoryIntegration returns a copy of p that contains a memory-read
// and a codebase-search tool, plus any tools triggered by the task text
// that do not conflict with the task context.
func (c *Catalog) ApplyMemoryIntegration(p IntegrationPattern, tc *model.AgentTaskContext) IntegrationPattern {
	out := p.Clone()

	for _, tag := range []string{registry.TagMemoryRead, registry.TagCodebaseSearch} {
		tools := c.reg.ToolsWithTag(tag)
		if len(tools) == 0 || hasAny(out, tools) {
			continue
		}
		out.UniversalTools = append(out.UniversalTools, tools[0])
	}

	if tc == nil || c.rules == nil {
		return out
	}
	for _, t := range c.rules.TriggeredTools(tc.TaskDescription) {
		if out.Contains(t) || !c.reg.Has(t) || Excluded(c.reg, t, tc) != "" {
			continue
		}
		out.UniversalTools = append(out.UniversalTools, t)
		logger.KV(xlog.DEBUG, "status", "trigger_added", "agent", p.AgentType, "tool", t)
	}
	return out
}

func hasAny(p IntegrationPattern, tools []string) bool {
	for _, t := range tools {
		if p.Contains(t) {
			return true
		}
	}
	return false
}

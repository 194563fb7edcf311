/*
Package benchmark estimates the context tokens an agent saves by loading
only the optimized tool selection.

It compares the definition tokens of three tool sets:
 1. Catalog: every tool known to the registry
 2. Pattern: the agent's full integration pattern
 3. Selected: the tools returned by optimization

Token estimation uses a tiktoken-compatible approximation: ~3 characters
per token for JSON.
*/
package benchmark

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
)

// AverageTokensPerTool is the estimated tokens per tool definition when the
// definition is unknown.
// A typical tool definition includes:
// - name: ~5 tokens
// - description: ~50 tokens
// - inputSchema: ~100 tokens (properties, types, descriptions)
// Total: ~150 tokens per tool
const AverageTokensPerTool = 150

// schemaTokens approximates the input schema of a registry tool, which
// the catalog does not carry.
const schemaTokens = 100

// TokenEstimate represents token consumption of one tool set.
type TokenEstimate struct {
	ServerCount      int    `json:"serverCount"`
	ToolCount        int    `json:"toolCount"`
	DefinitionTokens int    `json:"definitionTokens"`
	Description      string `json:"description"`
}

// Result contains comparison results.
type Result struct {
	AgentType      string        `json:"agentType"`
	Catalog        TokenEstimate `json:"catalog"`
	Pattern        TokenEstimate `json:"pattern"`
	Selected       TokenEstimate `json:"selected"`
	TokenSavings   int           `json:"tokenSavings"`
	SavingsPercent float64       `json:"savingsPercent"`
}

// ToolDefinition renders the MCP tool definition an agent would load.
func ToolDefinition(t registry.ToolDescriptor) map[string]any {
	return map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"inputSchema": map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// EstimateTools sums the definition tokens of the named tools.
func EstimateTools(reg *registry.Registry, names []string, description string) TokenEstimate {
	servers := make(map[string]bool)
	tokens := 0
	for _, name := range names {
		desc, ok := reg.Tool(name)
		if !ok {
			tokens += AverageTokensPerTool
			continue
		}
		servers[desc.Server] = true
		tokens += CountTokens(ToolDefinition(desc)) + schemaTokens
	}
	return TokenEstimate{
		ServerCount:      len(servers),
		ToolCount:        len(names),
		DefinitionTokens: tokens,
		Description:      description,
	}
}

// Run compares the full catalog, the agent's pattern and the selection.
func Run(reg *registry.Registry, agentType string, pattern, selected []string) *Result {
	all := make([]string, 0, len(reg.Tools()))
	for _, t := range reg.Tools() {
		all = append(all, t.Name)
	}

	catalog := EstimateTools(reg, all, fmt.Sprintf("all %d catalog tools", len(all)))
	pat := EstimateTools(reg, pattern, fmt.Sprintf("%s pattern with %d tools", agentType, len(pattern)))
	sel := EstimateTools(reg, selected, fmt.Sprintf("%d optimized tools", len(selected)))

	savings := catalog.DefinitionTokens - sel.DefinitionTokens
	var percent float64
	if catalog.DefinitionTokens > 0 {
		percent = float64(savings) / float64(catalog.DefinitionTokens) * 100
	}

	return &Result{
		AgentType:      agentType,
		Catalog:        catalog,
		Pattern:        pat,
		Selected:       sel,
		TokenSavings:   savings,
		SavingsPercent: percent,
	}
}

// CountTokens estimates token count for a JSON structure.
// Uses approximation: ~3 characters per token for JSON/code.
func CountTokens(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data) / 3
}

// FormatResult formats the benchmark result for display.
func FormatResult(result *Result) string {
	var sb strings.Builder

	row := func(format string, args ...any) {
		fmt.Fprintf(&sb, "  "+format+"\n", args...)
	}

	fmt.Fprintf(&sb, "TOKEN EFFICIENCY: %s\n\n", result.AgentType)
	for _, e := range []struct {
		title string
		est   TokenEstimate
	}{
		{"FULL CATALOG", result.Catalog},
		{"AGENT PATTERN", result.Pattern},
		{"OPTIMIZED SELECTION", result.Selected},
	} {
		row("%s", e.title)
		row("  Servers: %d", e.est.ServerCount)
		row("  Tools:   %d", e.est.ToolCount)
		row("  Tokens:  ~%d", e.est.DefinitionTokens)
		sb.WriteString("\n")
	}
	row("SAVINGS")
	row("  Tokens saved: ~%d", result.TokenSavings)
	row("  Reduction:    %.1f%%", result.SavingsPercent)

	return sb.String()
}

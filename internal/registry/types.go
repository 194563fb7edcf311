/*
Package registry is the single source of static tool knowledge: which
server owns a tool, which category it belongs to, its alternate routes,
its resource profile, and the base tool sets of every agent type.

The catalog is described in YAML. A default catalog is embedded in the
binary and can be replaced with a file through configuration.
*/
package registry

import "github.com/khanglvm/tool-optimizer-mcp/internal/model"

// Tool categories.
const (
	CategoryContext        = "context"
	CategoryAnalysis       = "analysis"
	CategoryResearch       = "research"
	CategoryDevelopment    = "development"
	CategoryTesting        = "testing"
	CategoryInfrastructure = "infrastructure"
	CategoryUI             = "ui"
	CategoryGeneral        = "general"
)

// Tool tags used by the context-flow filters and the memory pass.
const (
	// TagNetwork marks externally-facing tools.
	TagNetwork = "network"
	// TagCached marks memory/lookup tools that serve stored data.
	TagCached = "cached"
	// TagEssential marks tools that must survive context filtering.
	TagEssential = "essential"
	// TagMemoryRead marks the default memory-read capability.
	TagMemoryRead = "memory-read"
	// TagCodebaseSearch marks the default codebase-search capability.
	TagCodebaseSearch = "codebase-search"
	// TagPattern marks pattern-recommendation tools.
	TagPattern = "pattern"
)

// AlternateRoute is a fallback server for a tool.
type AlternateRoute struct {
	Server            string  `yaml:"server" json:"server"`
	LatencyOverheadMs float64 `yaml:"latencyOverheadMs" json:"latencyOverheadMs"`
	Reliability       float64 `yaml:"reliability" json:"reliability"`
}

// ToolDescriptor is the static description of a tool.
type ToolDescriptor struct {
	Name        string                    `yaml:"name" json:"name"`
	Server      string                    `yaml:"server" json:"server"`
	Category    string                    `yaml:"category" json:"category"`
	Description string                    `yaml:"description" json:"description"`
	Tags        []string                  `yaml:"tags,omitempty" json:"tags,omitempty"`
	Resources   model.ResourceUtilization `yaml:"resources" json:"resources"`
	Alternates  []AlternateRoute          `yaml:"alternates,omitempty" json:"alternates,omitempty"`
}

// HasTag reports whether the tool carries tag.
func (t ToolDescriptor) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// ServerProfile describes a backing server.
type ServerProfile struct {
	Name          string  `yaml:"name" json:"name"`
	Description   string  `yaml:"description" json:"description"`
	BaseLatencyMs float64 `yaml:"baseLatencyMs" json:"baseLatencyMs"`
}

// AgentProfile is the baseline integration definition of an agent type.
type AgentProfile struct {
	Name              string   `yaml:"name" json:"name"`
	MaxTools          int      `yaml:"maxTools" json:"maxTools"`
	SelectionStrategy string   `yaml:"selectionStrategy" json:"selectionStrategy"`
	OptimizationLevel string   `yaml:"optimizationLevel" json:"optimizationLevel"`
	WorkflowPattern   string   `yaml:"workflowPattern" json:"workflowPattern"`
	DomainTools       []string `yaml:"domainTools" json:"domainTools"`
}

// Catalog is the on-disk form of the registry.
type Catalog struct {
	UniversalTools []string         `yaml:"universalTools"`
	Servers        []ServerProfile  `yaml:"servers"`
	Tools          []ToolDescriptor `yaml:"tools"`
	Agents         []AgentProfile   `yaml:"agents"`
}

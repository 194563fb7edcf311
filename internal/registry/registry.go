package registry

import (
	_ "embed"
	"os"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "registry")

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultAgentMaxTools is the base tool limit for agents without an override.
const DefaultAgentMaxTools = 5

// Registry holds tool, server and agent knowledge. It is safe for
// concurrent use; lookups return copies.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*ToolDescriptor
	order     []string
	servers   map[string]ServerProfile
	agents    map[string]AgentProfile
	universal []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools:   make(map[string]*ToolDescriptor),
		servers: make(map[string]ServerProfile),
		agents:  make(map[string]AgentProfile),
	}
}

// LoadDefault builds a registry from the embedded catalog.
func LoadDefault() (*Registry, error) {
	return Load(defaultCatalog)
}

// LoadFile builds a registry from a YAML catalog on disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog %s", path)
	}
	return Load(data)
}

// Load builds a registry from YAML catalog data.
func Load(data []byte) (*Registry, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}

	r := New()
	for _, s := range cat.Servers {
		r.RegisterServer(s)
	}
	for _, t := range cat.Tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	for _, a := range cat.Agents {
		if err := r.RegisterAgent(a); err != nil {
			return nil, err
		}
	}
	for _, name := range cat.UniversalTools {
		if _, ok := r.tools[name]; !ok {
			return nil, errors.Newf("universal tool %q is not in the catalog", name)
		}
	}
	r.universal = append([]string(nil), cat.UniversalTools...)

	logger.KV(xlog.DEBUG,
		"status", "catalog_loaded",
		"tools", len(r.tools),
		"servers", len(r.servers),
		"agents", len(r.agents))
	return r, nil
}

func cloneTool(t *ToolDescriptor) ToolDescriptor {
	c := *t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Alternates != nil {
		c.Alternates = append([]AlternateRoute(nil), t.Alternates...)
	}
	return c
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool ToolDescriptor) error {
	if tool.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if tool.Server == "" {
		return errors.Newf("tool %q has no owning server", tool.Name)
	}
	if tool.Category == "" {
		tool.Category = CategoryGeneral
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	c := cloneTool(&tool)
	r.tools[tool.Name] = &c
	return nil
}

// RegisterServer adds or replaces a server profile.
func (r *Registry) RegisterServer(s ServerProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[s.Name] = s
}

// RegisterAgent adds or replaces an agent profile. Domain tools must be
// registered first.
func (r *Registry) RegisterAgent(a AgentProfile) error {
	if a.Name == "" {
		return errors.New("agent name cannot be empty")
	}
	if a.MaxTools <= 0 {
		a.MaxTools = DefaultAgentMaxTools
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range a.DomainTools {
		if _, ok := r.tools[name]; !ok {
			return errors.Newf("agent %q references unknown tool %q", a.Name, name)
		}
	}
	a.DomainTools = append([]string(nil), a.DomainTools...)
	r.agents[a.Name] = a
	return nil
}

// Tool returns the descriptor of a tool.
func (r *Registry) Tool(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return cloneTool(t), true
}

// Has reports whether the tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Category returns the tool's category, or general for unknown tools.
func (r *Registry) Category(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t.Category
	}
	return CategoryGeneral
}

// ServerOf returns the owning server of a tool.
func (r *Registry) ServerOf(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t.Server, true
	}
	return "", false
}

// HasTag reports whether a registered tool carries tag.
func (r *Registry) HasTag(name, tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t.HasTag(tag)
	}
	return false
}

// ToolsWithTag lists tools carrying tag, in catalog order.
func (r *Registry) ToolsWithTag(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range r.order {
		if r.tools[name].HasTag(tag) {
			names = append(names, name)
		}
	}
	return names
}

// Tools returns all tools in catalog order.
func (r *Registry) Tools() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, cloneTool(r.tools[name]))
	}
	return tools
}

// Server returns a server profile.
func (r *Registry) Server(name string) (ServerProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[name]
	return s, ok
}

// ServerNames returns all known servers, sorted.
func (r *Registry) ServerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Agent returns an agent profile.
func (r *Registry) Agent(name string) (AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return AgentProfile{}, false
	}
	a.DomainTools = append([]string(nil), a.DomainTools...)
	return a, true
}

// Agents returns all agent profiles sorted by name.
func (r *Registry) Agents() []AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]AgentProfile, 0, len(r.agents))
	for _, a := range r.agents {
		a.DomainTools = append([]string(nil), a.DomainTools...)
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].Name < agents[j].Name
	})
	return agents
}

// AgentMaxTools returns the base tool limit of an agent type.
func (r *Registry) AgentMaxTools(agentType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[agentType]; ok && a.MaxTools > 0 {
		return a.MaxTools
	}
	return DefaultAgentMaxTools
}

// UniversalTools returns the tools every agent starts with.
func (r *Registry) UniversalTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.universal...)
}

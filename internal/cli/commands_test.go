package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/tool-optimizer-mcp/internal/benchmark"
	"github.com/khanglvm/tool-optimizer-mcp/internal/config"
	"github.com/khanglvm/tool-optimizer-mcp/internal/metricskey"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/optimizer"
	"github.com/khanglvm/tool-optimizer-mcp/internal/patterns"
	"github.com/khanglvm/tool-optimizer-mcp/internal/search"
)

// writeConfig writes a config into a temp dir. With history the database
// lives next to it, otherwise storage is disabled.
func writeConfig(t *testing.T, history bool) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	if history {
		cfg.Storage.Path = filepath.Join(dir, "history.db")
	} else {
		cfg.Storage.Disabled = true
	}
	path := filepath.Join(dir, "config.json")
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append(args, "--config", cfgPath))
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"serve", "optimize", "route", "report", "patterns", "search", "benchmark", "history", "init", "verify", "version"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Command %q not registered", name)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("Persistent flag 'config' not registered")
	}
}

func TestOptimizeCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, cfgPath, "optimize", "frontend-engineer", "build", "responsive", "UI", "component", "-p", "high")
	if err != nil {
		t.Fatalf("optimize failed: %v", err)
	}
	for _, expected := range []string{"frontend-engineer", "read_memory", "PHASE", "Estimated time"} {
		if !strings.Contains(out, expected) {
			t.Errorf("Output missing %q:\n%s", expected, out)
		}
	}

	out, err = execute(t, cfgPath, "optimize", "backend-engineer", "add", "an", "index", "--json")
	if err != nil {
		t.Fatalf("optimize --json failed: %v", err)
	}
	var res model.OptimizationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if len(res.SelectedTools) < 3 {
		t.Errorf("Expected at least 3 tools, got %d", len(res.SelectedTools))
	}
	if len(res.Routing) != len(res.SelectedTools) {
		t.Errorf("Expected a route per tool, got %d for %d", len(res.Routing), len(res.SelectedTools))
	}
}

func TestOptimizeCommandErrors(t *testing.T) {
	cfgPath := writeConfig(t, false)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing task", []string{"optimize", "frontend-engineer"}, "requires at least 2 arg(s)"},
		{"unknown agent", []string{"optimize", "nonexistent-agent", "do", "things"}, "agent type not found"},
		{"bad priority", []string{"optimize", "frontend-engineer", "x", "-p", "urgent"}, "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, cfgPath, tt.args...)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRouteCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, cfgPath, "route", "browser_navigate", "--json")
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	var d model.RoutingDecision
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if d.SelectedServer != "playwright" {
		t.Errorf("Expected playwright, got %q", d.SelectedServer)
	}

	out, err = execute(t, cfgPath, "route", "browser_navigate")
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if !strings.Contains(out, "puppeteer") {
		t.Errorf("Expected alternative server in output:\n%s", out)
	}

	if _, err := execute(t, cfgPath, "route", "no_such_tool"); err == nil {
		t.Error("Expected error for unknown tool")
	}
}

func TestPatternsCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, cfgPath, "ls")
	if err != nil {
		t.Fatalf("patterns failed: %v", err)
	}
	for _, agent := range []string{"frontend-engineer", "backend-engineer", "research-analyst"} {
		if !strings.Contains(out, agent) {
			t.Errorf("Output missing %q", agent)
		}
	}

	out, err = execute(t, cfgPath, "patterns", "qa-engineer", "--json")
	if err != nil {
		t.Fatalf("patterns --json failed: %v", err)
	}
	var list []patterns.IntegrationPattern
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if len(list) != 1 || list[0].AgentType != "qa-engineer" {
		t.Errorf("Expected qa-engineer only, got %+v", list)
	}

	if _, err := execute(t, cfgPath, "patterns", "nonexistent-agent"); err == nil {
		t.Error("Expected error for unknown agent")
	}
}

func TestSearchCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, cfgPath, "search", "take", "screenshot", "-n", "2", "--json")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	var results []search.SearchResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if len(results) == 0 || len(results) > 2 {
		t.Fatalf("Expected 1-2 results, got %d", len(results))
	}
	if results[0].ToolName != "browser_take_screenshot" {
		t.Errorf("Expected browser_take_screenshot first, got %q", results[0].ToolName)
	}

	out, err = execute(t, cfgPath, "search", "registry", "--server", "shadcn", "--json")
	if err != nil {
		t.Fatalf("scoped search failed: %v", err)
	}
	results = nil
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Expected shadcn results")
	}
	for _, r := range results {
		if r.ServerName != "shadcn" {
			t.Errorf("Expected only shadcn tools, got %s on %s", r.ToolName, r.ServerName)
		}
	}

	out, err = execute(t, cfgPath, "search", "-n", "3", "--json")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	results = nil
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 listed tools, got %d", len(results))
	}

	if _, err := execute(t, cfgPath, "search", "--category", "ui"); err == nil {
		t.Error("Expected an error for a scoped search without a query")
	}
}

func TestBenchmarkCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, cfgPath, "benchmark", "fullstack-engineer", "ship", "the", "checkout", "page")
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}
	for _, expected := range []string{"FULL CATALOG", "OPTIMIZED SELECTION", "Tokens saved"} {
		if !strings.Contains(out, expected) {
			t.Errorf("Output missing %q", expected)
		}
	}

	out, err = execute(t, cfgPath, "benchmark", "fullstack-engineer", "ship", "it", "--json")
	if err != nil {
		t.Fatalf("benchmark --json failed: %v", err)
	}
	var res benchmark.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if res.TokenSavings <= 0 {
		t.Errorf("Expected positive savings, got %d", res.TokenSavings)
	}
}

func TestReportCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, cfgPath, "report", "--cycle")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	for _, expected := range []string{"Optimization score", "Monitor", "Router", "disabled"} {
		if !strings.Contains(out, expected) {
			t.Errorf("Output missing %q:\n%s", expected, out)
		}
	}

	out, err = execute(t, cfgPath, "report", "--json")
	if err != nil {
		t.Fatalf("report --json failed: %v", err)
	}
	var rep map[string]any
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	for _, key := range []string{"overallOptimizationScore", "router", "monitor", "patterns", "history", "metrics"} {
		if _, ok := rep[key]; !ok {
			t.Errorf("Report missing %q", key)
		}
	}

	// counters are process-wide and visible in the next report
	if _, err := execute(t, cfgPath, "optimize", "backend-engineer", "fix", "the", "build"); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}
	out, err = execute(t, cfgPath, "report", "--json")
	if err != nil {
		t.Fatalf("report --json failed: %v", err)
	}
	var withMetrics optimizer.SystemReport
	if err := json.Unmarshal([]byte(out), &withMetrics); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if withMetrics.Metrics == nil || withMetrics.Metrics.Counter(&metricskey.StatsOptimizeSucceeded) < 1 {
		t.Errorf("Expected the optimize counter in the report, got %+v", withMetrics.Metrics)
	}

	out, err = execute(t, cfgPath, "report")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(out, "stats_optimize_succeeded") {
		t.Errorf("Output missing the metrics section:\n%s", out)
	}
}

func TestHistoryCommands(t *testing.T) {
	cfgPath := writeConfig(t, true)

	if _, err := execute(t, cfgPath, "optimize", "devops-engineer", "roll", "out", "the", "preview"); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	out, err := execute(t, cfgPath, "history", "export")
	if err != nil {
		t.Fatalf("history export failed: %v", err)
	}
	var events []model.ExecutionEvent
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("Invalid JSON output: %v\n%s", err, out)
	}
	if len(events) != 1 || events[0].Tool != "optimize" {
		t.Errorf("Expected the optimize audit event, got %+v", events)
	}

	out, err = execute(t, cfgPath, "history", "status")
	if err != nil {
		t.Fatalf("history status failed: %v", err)
	}
	if !strings.Contains(out, "history.db") || !strings.Contains(out, "(1 events)") {
		t.Errorf("Unexpected status output:\n%s", out)
	}

	// no confirmation on empty stdin
	out, err = execute(t, cfgPath, "history", "clear")
	if err != nil {
		t.Fatalf("history clear failed: %v", err)
	}
	if !strings.Contains(out, "Cancelled") {
		t.Errorf("Expected cancellation, got:\n%s", out)
	}

	if _, err := execute(t, cfgPath, "history", "clear", "--yes"); err != nil {
		t.Fatalf("history clear --yes failed: %v", err)
	}
	dbPath := filepath.Join(filepath.Dir(cfgPath), "history.db")
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("Expected %s to be removed", dbPath)
	}
}

func TestHistoryDisabled(t *testing.T) {
	cfgPath := writeConfig(t, false)

	_, err := execute(t, cfgPath, "history", "status")
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("Expected disabled error, got %v", err)
	}
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	out, err := execute(t, path, "init")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("Output missing path:\n%s", out)
	}
	if _, err := config.LoadFrom(path); err != nil {
		t.Fatalf("Written config does not load: %v", err)
	}

	if _, err := execute(t, path, "init"); err == nil {
		t.Error("Expected error when config exists")
	}

	if _, err := execute(t, path, "init", "--force"); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("Expected backup file: %v", err)
	}
}

func TestVerifyCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, cfgPath, "verify")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	for _, expected := range []string{"Config file", "Catalog:", "Patterns:", "History: disabled"} {
		if !strings.Contains(out, expected) {
			t.Errorf("Output missing %q:\n%s", expected, out)
		}
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"selector":{"maxToolsPerTask":1}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, bad, "verify"); err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	for _, expected := range []string{"Version:", "Commit:", "Built:"} {
		if !strings.Contains(out, expected) {
			t.Errorf("Output missing %q", expected)
		}
	}
}

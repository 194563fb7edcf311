package mcp

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/khanglvm/tool-optimizer-mcp/internal/monitor"
	"github.com/khanglvm/tool-optimizer-mcp/internal/patterns"
)

const defaultSearchLimit = 10

var errInvalidArguments = errors.New("invalid arguments")

// ToolDefinition is one entry of tools/list.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

type toolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// TaskArgs describes the task shared by optimize_tools and route_tool.
type TaskArgs struct {
	AgentType            string                     `json:"agentType,omitempty" jsonschema:"description=Agent role such as frontend-engineer or research-analyst"`
	TaskDescription      string                     `json:"taskDescription,omitempty" jsonschema:"description=Free-text description of the task"`
	Priority             model.Priority             `json:"priority,omitempty" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
	RequiresRealTimeData bool                       `json:"requiresRealTimeData,omitempty" jsonschema:"description=Exclude tools that serve cached data"`
	LocalEnvironmentOnly bool                       `json:"localEnvironmentOnly,omitempty" jsonschema:"description=Exclude externally-facing tools"`
	ResourceConstraints  *model.ResourceUtilization `json:"resourceConstraints,omitempty" jsonschema:"description=Percentage budget per resource"`
}

func (a TaskArgs) taskContext() *model.AgentTaskContext {
	return &model.AgentTaskContext{
		AgentType:            a.AgentType,
		TaskDescription:      a.TaskDescription,
		Priority:             a.Priority,
		RequiresRealTimeData: a.RequiresRealTimeData,
		LocalEnvironmentOnly: a.LocalEnvironmentOnly,
		ResourceConstraints:  a.ResourceConstraints,
	}
}

// OptimizeArgs are the arguments of optimize_tools. Unlike route_tool, the
// agent type and task description are required.
type OptimizeArgs struct {
	TaskArgs
}

// RouteArgs are the arguments of route_tool.
type RouteArgs struct {
	Tool string `json:"tool" jsonschema:"description=Catalog tool name"`
	TaskArgs
}

// RecordArgs are the arguments of record_execution.
type RecordArgs struct {
	Tool           string         `json:"tool"`
	Server         string         `json:"server"`
	Success        bool           `json:"success"`
	ResponseTimeMs float64        `json:"responseTimeMs" jsonschema:"minimum=0"`
	Context        map[string]any `json:"context,omitempty"`
}

// MetricsArgs are the arguments of get_tool_metrics.
type MetricsArgs struct {
	Tool   string `json:"tool"`
	Server string `json:"server,omitempty" jsonschema:"description=Omit to list every server of the tool"`
}

// ReportArgs are the arguments of optimization_report.
type ReportArgs struct{}

// PatternArgs are the arguments of update_pattern.
type PatternArgs struct {
	AgentType         string   `json:"agentType"`
	UniversalTools    []string `json:"universalTools,omitempty"`
	DomainTools       []string `json:"domainTools,omitempty"`
	SelectionStrategy string   `json:"selectionStrategy,omitempty"`
	OptimizationLevel string   `json:"optimizationLevel,omitempty" jsonschema:"enum=low,enum=medium,enum=high,enum=maximum"`
	WorkflowPattern   string   `json:"workflowPattern,omitempty"`
	MaxTools          int      `json:"maxTools,omitempty" jsonschema:"minimum=0"`
}

// SearchArgs are the arguments of search_tools.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"description=Natural language description of the capability"`
	Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=50"`
}

// MetricsResult lists the metrics of one tool.
type MetricsResult struct {
	Tool    string              `json:"tool"`
	Metrics []model.ToolMetrics `json:"metrics"`
}

// inputSchema reflects v. Fields without omitempty are required, and
// names marks additional fields required, such as fields of an embedded struct.
func inputSchema(v any, names ...string) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	for _, name := range names {
		if !slices.Contains(s.Required, name) {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

// decode unmarshals args and marks failures as invalid arguments.
func decode(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode arguments"), errInvalidArguments)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.Mark(errors.Newf("%s is required", field), errInvalidArguments)
	}
	return nil
}

func (s *Server) registerTools() {
	s.handlers = make(map[string]toolHandler)
	add := func(name, description string, schema *jsonschema.Schema, h toolHandler) {
		s.tools = append(s.tools, ToolDefinition{
			Name:        name,
			Description: description,
			InputSchema: schema,
		})
		s.handlers[name] = h
	}

	add("optimize_tools", `Select the smallest effective tool set for an agent task.

WHEN TO USE: Before starting a task, to load only the tools it needs.

Returns: Ordered tools with their server, phase and score, a routing
decision per tool and a performance prediction.`, inputSchema(&OptimizeArgs{}, "agentType", "taskDescription"), s.execOptimize)

	add("route_tool", `Pick the server instance that should run one tool call.

Returns: The selected server with confidence, estimated latency and
scored alternatives. Decisions are cached for the configured TTL.`, inputSchema(&RouteArgs{}), s.execRoute)

	add("record_execution", `Report the outcome of a tool call.

WHEN TO USE: After every tool call made from an optimize_tools result.
Outcomes drive future selection and routing.`, inputSchema(&RecordArgs{}), s.execRecord)

	add("get_tool_metrics", `Read the rolling success rate and response time of a tool.`, inputSchema(&MetricsArgs{}), s.execMetrics)

	add("optimization_report", `Merged report of selection statistics, routing, monitoring, alerts,
recommendations and integration patterns.`, inputSchema(&ReportArgs{}), s.execReport)

	add("update_pattern", `Replace the integration pattern of an agent type. Unknown agent types
are created. All tools must exist in the catalog.`, inputSchema(&PatternArgs{}), s.execUpdatePattern)

	add("search_tools", `Search catalog tools using natural language. Results are ranked by
keyword relevance and observed success rate.

Example queries: "take screenshot", "query database", "deploy preview"`, inputSchema(&SearchArgs{}), s.execSearch)
}

func (s *Server) execOptimize(ctx context.Context, raw json.RawMessage) (any, error) {
	var args OptimizeArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("agentType", args.AgentType); err != nil {
		return nil, err
	}
	return s.opt.Optimize(ctx, args.AgentType, args.taskContext())
}

func (s *Server) execRoute(ctx context.Context, raw json.RawMessage) (any, error) {
	var args RouteArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("tool", args.Tool); err != nil {
		return nil, err
	}
	return s.opt.RouteRequest(ctx, args.Tool, args.TaskArgs.taskContext())
}

func (s *Server) execRecord(_ context.Context, raw json.RawMessage) (any, error) {
	var args RecordArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	// malformed events are still passed on so they are counted as ignored
	invalid := monitor.ValidateEvent(model.ExecutionEvent{
		Tool:           args.Tool,
		Server:         args.Server,
		Success:        args.Success,
		ResponseTimeMs: args.ResponseTimeMs,
	})
	s.opt.RecordExecution(args.Tool, args.Server, args.Success, args.ResponseTimeMs, args.Context)
	if invalid != nil {
		return map[string]any{"recorded": false, "reason": invalid.Error()}, nil
	}

	tm, _ := s.opt.GetToolMetrics(args.Tool, args.Server)
	return map[string]any{"recorded": true, "metrics": tm}, nil
}

func (s *Server) execMetrics(_ context.Context, raw json.RawMessage) (any, error) {
	var args MetricsArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("tool", args.Tool); err != nil {
		return nil, err
	}

	res := MetricsResult{Tool: args.Tool, Metrics: []model.ToolMetrics{}}
	if args.Server != "" {
		if tm, ok := s.opt.GetToolMetrics(args.Tool, args.Server); ok {
			res.Metrics = append(res.Metrics, tm)
		}
		return res, nil
	}
	for _, tm := range s.opt.AllMetrics() {
		if tm.Tool == args.Tool {
			res.Metrics = append(res.Metrics, tm)
		}
	}
	return res, nil
}

func (s *Server) execReport(_ context.Context, _ json.RawMessage) (any, error) {
	return s.opt.GetOptimizationReport(), nil
}

func (s *Server) execUpdatePattern(_ context.Context, raw json.RawMessage) (any, error) {
	var args PatternArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("agentType", args.AgentType); err != nil {
		return nil, err
	}
	err := s.opt.UpdatePattern(args.AgentType, patterns.IntegrationPattern{
		UniversalTools:    args.UniversalTools,
		DomainTools:       args.DomainTools,
		SelectionStrategy: args.SelectionStrategy,
		OptimizationLevel: args.OptimizationLevel,
		WorkflowPattern:   args.WorkflowPattern,
		MaxTools:          args.MaxTools,
	})
	if err != nil {
		return nil, err
	}
	return s.opt.Pattern(args.AgentType)
}

func (s *Server) execSearch(ctx context.Context, raw json.RawMessage) (any, error) {
	var args SearchArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("query", args.Query); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = defaultSearchLimit
	}
	return s.opt.SearchTools(ctx, args.Query, args.Limit)
}

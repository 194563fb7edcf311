/*
Package model holds the domain types shared by the optimizer components:
task contexts, tool metrics, routing decisions, selection results, alerts,
snapshots and reports.
*/
package model

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ToolMetrics is the rolling performance record of one (server, tool) pair.
type ToolMetrics struct {
	Tool                  string    `json:"tool"`
	Server                string    `json:"server"`
	TotalCalls            int64     `json:"totalCalls"`
	SuccessRate           float64   `json:"successRate"`
	ErrorRate             float64   `json:"errorRate"`
	AverageResponseTimeMs float64   `json:"averageResponseTimeMs"`
	LastUsed              time.Time `json:"lastUsed"`
}

// ExecutionEvent is one ground-truth outcome reported by the agent runtime.
type ExecutionEvent struct {
	Tool           string         `json:"tool"`
	Server         string         `json:"server"`
	Success        bool           `json:"success"`
	ResponseTimeMs float64        `json:"responseTimeMs"`
	Context        map[string]any `json:"context,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// RouteCandidate is one analysed server option for a tool.
type RouteCandidate struct {
	Server             string  `json:"server"`
	Primary            bool    `json:"primary"`
	EstimatedLatencyMs float64 `json:"estimatedLatencyMs"`
	Confidence         float64 `json:"confidence"`
	Score              float64 `json:"score"`
	Rationale          string  `json:"rationale"`
}

// RoutingDecision is the resolved server choice for a tool call.
type RoutingDecision struct {
	Tool               string           `json:"tool"`
	SelectedServer     string           `json:"selectedServer"`
	Rationale          string           `json:"rationale"`
	EstimatedLatencyMs float64          `json:"estimatedLatencyMs"`
	Confidence         float64          `json:"confidence"`
	Score              float64          `json:"score"`
	Alternatives       []RouteCandidate `json:"alternatives,omitempty"`
	Cached             bool             `json:"cached"`
	DecidedAt          time.Time        `json:"decidedAt"`
}

// SelectedTool is one entry of an ordered tool selection.
type SelectedTool struct {
	Name     string       `json:"name"`
	Server   string       `json:"server"`
	Category string       `json:"category"`
	Phase    int          `json:"phase"`
	Score    float64      `json:"score"`
	Metrics  *ToolMetrics `json:"metrics,omitempty"`
}

// PerformancePrediction estimates how a selection will behave.
type PerformancePrediction struct {
	EstimatedExecutionTimeMs float64             `json:"estimatedExecutionTimeMs"`
	SuccessProbability       float64             `json:"successProbability"`
	ResourceUtilization      ResourceUtilization `json:"resourceUtilization"`
	WithinResourceBudget     bool                `json:"withinResourceBudget"`
}

// OptimizationResult is the response to a single optimize request.
type OptimizationResult struct {
	ID                    string                                   `json:"id"`
	AgentType             string                                   `json:"agentType"`
	Priority              Priority                                 `json:"priority"`
	OptimizationLevel     string                                   `json:"optimizationLevel"`
	WorkflowPattern       string                                   `json:"workflowPattern"`
	SelectedTools         []SelectedTool                           `json:"selectedTools"`
	SelectionRationale    string                                   `json:"selectionRationale"`
	RationaleByCategory   *orderedmap.OrderedMap[string, []string] `json:"rationaleByCategory"`
	PerformancePrediction PerformancePrediction                    `json:"performancePrediction"`
	OptimizationScore     float64                                  `json:"optimizationScore"`
	Routing               []RoutingDecision                        `json:"routing,omitempty"`
	CreatedAt             time.Time                                `json:"createdAt"`
}

// ToolNames returns the selected tool names in execution order.
func (r *OptimizationResult) ToolNames() []string {
	names := make([]string, 0, len(r.SelectedTools))
	for _, t := range r.SelectedTools {
		names = append(names, t.Name)
	}
	return names
}

// Severity grades alerts and detected trends.
type Severity string

// Known severities, ordered from least to most severe.
const (
	SeverityNone     Severity = ""
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is an advisory signal raised by the monitor.
type Alert struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	ToolName   string    `json:"toolName,omitempty"`
	ServerName string    `json:"serverName,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
}

// ServerRollup aggregates metrics for one server.
type ServerRollup struct {
	Server                string  `json:"server"`
	Tools                 int     `json:"tools"`
	TotalCalls            int64   `json:"totalCalls"`
	SuccessRate           float64 `json:"successRate"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
}

// PerformanceSnapshot is a point-in-time aggregate of all metrics.
type PerformanceSnapshot struct {
	Timestamp             time.Time               `json:"timestamp"`
	TotalCalls            int64                   `json:"totalCalls"`
	AverageResponseTimeMs float64                 `json:"averageResponseTimeMs"`
	SuccessRate           float64                 `json:"successRate"`
	ErrorRate             float64                 `json:"errorRate"`
	ToolUsage             map[string]int64        `json:"toolUsage"`
	Servers               map[string]ServerRollup `json:"servers"`
	Resources             ResourceUtilization     `json:"resources"`
}

// PerformanceImprovement describes one detected trend.
type PerformanceImprovement struct {
	Metric        string   `json:"metric"`
	Direction     string   `json:"direction"`
	ChangePercent float64  `json:"changePercent"`
	Severity      Severity `json:"severity"`
	Before        float64  `json:"before"`
	After         float64  `json:"after"`
}

// Trend directions.
const (
	DirectionImproving = "improving"
	DirectionDegrading = "degrading"
)

// OptimizationReport summarises one monitoring cycle.
type OptimizationReport struct {
	ID                    string                   `json:"id"`
	Timestamp             time.Time                `json:"timestamp"`
	OptimizationsDetected int                      `json:"optimizationsDetected"`
	OverallScore          float64                  `json:"overallScore"`
	Improvements          []PerformanceImprovement `json:"improvements"`
	Recommendations       []string                 `json:"recommendations"`
}

// IntegrationMetrics are derived quality indicators in [0,1]. They are
// nudged toward observed trend direction, not measured independently.
type IntegrationMetrics struct {
	ToolSelectionAccuracy  float64 `json:"toolSelectionAccuracy"`
	RoutingEfficiency      float64 `json:"routingEfficiency"`
	PerformanceImprovement float64 `json:"performanceImprovement"`
	ResourceOptimization   float64 `json:"resourceOptimization"`
}

// OverallScore weights the four metrics equally and scales to [0,100].
func (m IntegrationMetrics) OverallScore() float64 {
	score := 0.25*m.ToolSelectionAccuracy + 0.25*m.RoutingEfficiency +
		0.25*m.PerformanceImprovement + 0.25*m.ResourceOptimization
	return Clamp(score*100, 0, 100)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package model

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Priority is the urgency of a task.
type Priority string

// Known priorities.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Normalize maps the empty priority to medium.
func (p Priority) Normalize() Priority {
	if p == "" {
		return PriorityMedium
	}
	return p
}

// Multiplier scales an agent's base tool limit.
func (p Priority) Multiplier() float64 {
	switch p.Normalize() {
	case PriorityLow:
		return 0.7
	case PriorityHigh:
		return 1.0
	case PriorityCritical:
		return 1.2
	default:
		return 0.85
	}
}

// ResourceUtilization is a percentage budget or estimate per resource.
type ResourceUtilization struct {
	CPU     float64 `json:"cpu" yaml:"cpu" validate:"gte=0"`
	Memory  float64 `json:"memory" yaml:"memory" validate:"gte=0"`
	Network float64 `json:"network" yaml:"network" validate:"gte=0"`
	Disk    float64 `json:"disk" yaml:"disk" validate:"gte=0"`
}

// Add returns the element-wise sum.
func (r ResourceUtilization) Add(o ResourceUtilization) ResourceUtilization {
	return ResourceUtilization{
		CPU:     r.CPU + o.CPU,
		Memory:  r.Memory + o.Memory,
		Network: r.Network + o.Network,
		Disk:    r.Disk + o.Disk,
	}
}

// Average returns the mean across the four resources.
func (r ResourceUtilization) Average() float64 {
	return (r.CPU + r.Memory + r.Network + r.Disk) / 4
}

// Exceeds reports whether any resource is above the budget. Zero budget
// fields are treated as unconstrained.
func (r ResourceUtilization) Exceeds(budget ResourceUtilization) bool {
	over := func(v, limit float64) bool { return limit > 0 && v > limit }
	return over(r.CPU, budget.CPU) || over(r.Memory, budget.Memory) ||
		over(r.Network, budget.Network) || over(r.Disk, budget.Disk)
}

// AgentTaskContext describes the task an agent is about to perform.
type AgentTaskContext struct {
	AgentType            string               `json:"agentType,omitempty"`
	TaskDescription      string               `json:"taskDescription" validate:"required"`
	Priority             Priority             `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	RequiresRealTimeData bool                 `json:"requiresRealTimeData,omitempty"`
	LocalEnvironmentOnly bool                 `json:"localEnvironmentOnly,omitempty"`
	ResourceConstraints  *ResourceUtilization `json:"resourceConstraints,omitempty"`
}

var validate = validator.New()

// Validate checks required fields and enumerations.
func (c *AgentTaskContext) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidTaskContext, "task context is nil")
	}
	if strings.TrimSpace(c.TaskDescription) == "" {
		return errors.Wrap(ErrInvalidTaskContext, "taskDescription is required")
	}
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "task context validation failed"), ErrInvalidTaskContext)
	}
	return nil
}

// Fingerprint is a stable string over the routing-relevant fields.
// The task text is excluded so similar tasks share routing decisions.
func (c *AgentTaskContext) Fingerprint() string {
	if c == nil {
		return "-"
	}
	return strings.Join([]string{
		c.AgentType,
		string(c.Priority.Normalize()),
		strconv.FormatBool(c.RequiresRealTimeData),
		strconv.FormatBool(c.LocalEnvironmentOnly),
	}, "|")
}

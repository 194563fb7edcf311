package model

import "github.com/cockroachdb/errors"

// Error taxonomy shared by all optimizer components. Callers match with
// errors.Is; components wrap them with errors.Wrapf to add detail.
var (
	// ErrAgentTypeNotFound is returned when no integration pattern is
	// registered for an agent type. No partial result accompanies it.
	ErrAgentTypeNotFound = errors.New("agent type not found")

	// ErrNoRouteAvailable is returned when no primary or alternate server
	// is known for a tool.
	ErrNoRouteAvailable = errors.New("no route available")

	// ErrInvalidTaskContext is returned when required task context fields
	// are missing or malformed.
	ErrInvalidTaskContext = errors.New("invalid task context")

	// ErrMetricUpdateIgnored marks feedback that was dropped. It is never
	// returned from RecordExecution; it only classifies the drop.
	ErrMetricUpdateIgnored = errors.New("metric update ignored")

	// ErrInvalidPattern is returned by pattern updates that reference
	// unknown tools or are otherwise malformed.
	ErrInvalidPattern = errors.New("invalid integration pattern")
)

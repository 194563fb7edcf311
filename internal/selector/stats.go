package selector

import (
	"fmt"
	"sort"
)

const (
	exclusionLowSuccess = "low_success"
	exclusionContext    = "context"

	// repeatThreshold is how often a tool must be excluded or skipped
	// before it is reported.
	repeatThreshold = 3
)

// ToolStats counts how a tool fared across selections.
type ToolStats struct {
	Tool               string `json:"tool"`
	Candidate          int64  `json:"candidate"`
	Selected           int64  `json:"selected"`
	ExcludedLowSuccess int64  `json:"excludedLowSuccess"`
	ExcludedByContext  int64  `json:"excludedByContext"`
}

func (s *Selector) entry(tool string) *ToolStats {
	st, ok := s.stats[tool]
	if !ok {
		st = &ToolStats{Tool: tool}
		s.stats[tool] = st
	}
	return st
}

func (s *Selector) noteExcluded(tool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(tool)
	switch reason {
	case exclusionLowSuccess:
		st.ExcludedLowSuccess++
	case exclusionContext:
		st.ExcludedByContext++
	}
}

func (s *Selector) noteSelected(candidates []string, chosen []*candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range candidates {
		s.entry(name).Candidate++
	}
	for _, c := range chosen {
		s.entry(c.name).Selected++
	}
}

// Stats returns per-tool selection counters sorted by tool.
func (s *Selector) Stats() []ToolStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ToolStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}

// Recommendations lists tuning hints derived from selection history and
// current metrics.
func (s *Selector) Recommendations() []string {
	var recs []string
	for _, st := range s.Stats() {
		if st.ExcludedLowSuccess >= repeatThreshold {
			recs = append(recs, fmt.Sprintf(
				"%s was excluded %d times for a low success rate; check its server health or add an alternate route",
				st.Tool, st.ExcludedLowSuccess))
		}
		if st.Selected == 0 && st.Candidate >= repeatThreshold && st.ExcludedLowSuccess == 0 && st.ExcludedByContext == 0 {
			recs = append(recs, fmt.Sprintf(
				"%s was a candidate %d times but never selected; consider removing it from the pattern",
				st.Tool, st.Candidate))
		}
		if s.metrics == nil {
			continue
		}
		if m, ok := s.metrics.ToolSummary(st.Tool); ok && m.TotalCalls > 0 && m.AverageResponseTimeMs > s.cfg.ResponseTimeThresholdMs {
			recs = append(recs, fmt.Sprintf(
				"%s averages %.0fms, above the %.0fms threshold; prefer a faster route",
				st.Tool, m.AverageResponseTimeMs, s.cfg.ResponseTimeThresholdMs))
		}
	}
	return recs
}

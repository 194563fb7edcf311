package metricskey

import (
	"sync"

	"github.com/effective-security/metrics"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "metricskey")

// SampleTotal aggregates the observations of a sample metric.
type SampleTotal struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Max   float64 `json:"max"`
}

// Mean returns Sum/Count, or 0 without observations.
func (s SampleTotal) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Snapshot is a point-in-time copy of the totals, keyed by metric name.
// Values of one metric are summed over all tag combinations.
type Snapshot struct {
	Counters map[string]float64     `json:"counters"`
	Samples  map[string]SampleTotal `json:"samples"`
	Gauges   map[string]float64     `json:"gauges,omitempty"`
}

// Counter returns the total of a counter metric.
func (s Snapshot) Counter(d *metrics.Describe) float64 {
	return s.Counters[d.Name]
}

// Sample returns the aggregate of a sample metric.
func (s Snapshot) Sample(d *metrics.Describe) SampleTotal {
	return s.Samples[d.Name]
}

// Totals is a metrics.Sink keeping process-lifetime totals per metric.
type Totals struct {
	mu       sync.RWMutex
	counters map[string]float64
	samples  map[string]SampleTotal
	gauges   map[string]float64
}

var _ metrics.Sink = (*Totals)(nil)

// NewTotals returns an empty sink.
func NewTotals() *Totals {
	return &Totals{
		counters: make(map[string]float64),
		samples:  make(map[string]SampleTotal),
		gauges:   make(map[string]float64),
	}
}

// SetGauge keeps the last value.
func (t *Totals) SetGauge(key string, val float64, _ []metrics.Tag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gauges[key] = val
}

// IncrCounter accumulates val.
func (t *Totals) IncrCounter(key string, val float64, _ []metrics.Tag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[key] += val
}

// AddSample records one observation.
func (t *Totals) AddSample(key string, val float64, _ []metrics.Tag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.samples[key]
	s.Count++
	s.Sum += val
	if s.Count == 1 || val > s.Max {
		s.Max = val
	}
	t.samples[key] = s
}

// Snapshot copies the current totals.
func (t *Totals) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Counters: make(map[string]float64, len(t.counters)),
		Samples:  make(map[string]SampleTotal, len(t.samples)),
		Gauges:   make(map[string]float64, len(t.gauges)),
	}
	for k, v := range t.counters {
		snap.Counters[k] = v
	}
	for k, v := range t.samples {
		snap.Samples[k] = v
	}
	for k, v := range t.gauges {
		snap.Gauges[k] = v
	}
	return snap
}

var (
	installOnce sync.Once
	installed   *Totals
)

// Install makes a Totals sink the global metrics provider for the process
// and returns it. Only the first call installs; later calls return the same
// sink. Metric names are emitted unprefixed, with the service as a tag.
func Install(service string) *Totals {
	installOnce.Do(func() {
		sink := NewTotals()

		cfg := metrics.DefaultConfig(service)
		cfg.EnableRuntimeMetrics = false
		cfg.EnableServiceLabel = true

		if _, err := metrics.NewGlobal(cfg, sink); err != nil {
			logger.KV(xlog.ERROR, "reason", "install_metrics", "err", err.Error())
			return
		}
		installed = sink
	})
	return installed
}

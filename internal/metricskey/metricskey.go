package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsOptimizeSucceeded is base for counter metric for successful optimize requests
	StatsOptimizeSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_optimize_succeeded",
		Help:         "stats_optimize_succeeded provides total optimize requests succeeded",
		RequiredTags: []string{"agent"},
	}

	StatsOptimizeFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_optimize_failed",
		Help:         "stats_optimize_failed provides total optimize requests failed",
		RequiredTags: []string{"agent"},
	}

	StatsRouteCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_route_cache_hits",
		Help:         "stats_route_cache_hits provides total routing decisions served from cache",
		RequiredTags: []string{"tool"},
	}

	StatsRouteCacheMisses = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_route_cache_misses",
		Help:         "stats_route_cache_misses provides total routing decisions computed",
		RequiredTags: []string{"tool"},
	}

	StatsExecutionsRecorded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_executions_recorded",
		Help:         "stats_executions_recorded provides total execution outcomes applied to metrics",
		RequiredTags: []string{"tool", "server"},
	}

	StatsExecutionsIgnored = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_executions_ignored",
		Help:         "stats_executions_ignored provides total malformed execution outcomes dropped",
		RequiredTags: []string{"reason"},
	}

	StatsAlertsRaised = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_alerts_raised",
		Help:         "stats_alerts_raised provides total alerts raised by the monitor",
		RequiredTags: []string{"type", "severity"},
	}

	StatsTrackerEventsDropped = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tracker_events_dropped",
		Help:         "stats_tracker_events_dropped provides total execution events dropped by a full tracker buffer",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfOptimize = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_optimize",
		Help:         "perf_optimize provides duration of an optimize request",
		RequiredTags: []string{"agent"},
	}

	PerfSelect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_selector_select",
		Help:         "perf_selector_select provides duration of tool selection",
		RequiredTags: []string{"agent"},
	}

	PerfRoute = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_route",
		Help:         "perf_route provides duration of a routing decision",
		RequiredTags: []string{"tool"},
	}

	PerfMonitorCycle = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_monitor_cycle",
		Help:         "perf_monitor_cycle provides duration of one monitoring cycle",
		RequiredTags: []string{"trigger"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfMonitorCycle,
	&PerfOptimize,
	&PerfRoute,
	&PerfSelect,
	&StatsAlertsRaised,
	&StatsExecutionsIgnored,
	&StatsExecutionsRecorded,
	&StatsOptimizeFailed,
	&StatsOptimizeSucceeded,
	&StatsRouteCacheHits,
	&StatsRouteCacheMisses,
	&StatsTrackerEventsDropped,
}

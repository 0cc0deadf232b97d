package metrics

import "sync"

var (
	globalCollector *Collector
	once            sync.Once
)

// Global returns the global metrics collector.
func Global() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// Convenience functions for quick access

// IncCounter increments a global counter by 1.
func IncCounter(name string) {
	Global().Counter(name).Inc()
}

// AddCounter adds n to a global counter.
func AddCounter(name string, n int64) {
	Global().Counter(name).Add(n)
}

// SetGauge sets a global gauge value.
func SetGauge(name string, v float64) {
	Global().Gauge(name).Set(v)
}

// IncGauge increments a global gauge by 1.
func IncGauge(name string) {
	Global().Gauge(name).Inc()
}

// DecGauge decrements a global gauge by 1.
func DecGauge(name string) {
	Global().Gauge(name).Dec()
}

// ObserveHistogram observes a value in a global histogram.
func ObserveHistogram(name string, v float64) {
	Global().Histogram(name).Observe(v)
}

// StartTimer starts a global timer.
func StartTimer(name string) *TimerContext {
	return Global().Timer(name).Start()
}

// Metric names for qilbeemem
const (
	// Episode log metrics
	MetricEpisodesStored     = "qilbeemem_episodes_stored_total"
	MetricEpisodesRead       = "qilbeemem_episodes_read_total"
	MetricAppendDuration     = "qilbeemem_append_duration"
	MetricRecordsQuarantined = "qilbeemem_records_quarantined_total"

	// Recall metrics
	MetricRecalls        = "qilbeemem_recalls_total"
	MetricSearches       = "qilbeemem_searches_total"
	MetricSearchDuration = "qilbeemem_search_duration"

	// Consolidation metrics
	MetricConsolidationRuns      = "qilbeemem_consolidation_runs_total"
	MetricConsolidationConflicts = "qilbeemem_consolidation_conflicts_total"
	MetricConsolidationDuration  = "qilbeemem_consolidation_duration"
	MetricEpisodesPromoted       = "qilbeemem_episodes_promoted_total"
	MetricEpisodesForgotten      = "qilbeemem_episodes_forgotten_total"

	// Recovery metrics
	MetricRecoveryDuration = "qilbeemem_recovery_duration"
	MetricRecordsReplayed  = "qilbeemem_records_replayed_total"

	// Cache metrics
	MetricCacheHits   = "qilbeemem_search_cache_hits_total"
	MetricCacheMisses = "qilbeemem_search_cache_misses_total"

	// System metrics
	MetricErrors       = "qilbeemem_errors_total"
	MetricAdminActions = "qilbeemem_admin_actions_total"
)

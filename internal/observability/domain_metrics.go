package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesinsight_ask_requests_total",
			Help: "Total number of natural-language questions by outcome.",
		},
		[]string{"outcome"},
	)
	askLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salesinsight_ask_latency_ms",
			Help:    "End-to-end question latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salesinsight_generation_latency_ms",
			Help:    "Language-model SQL generation latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salesinsight_execution_latency_ms",
			Help:    "Relational store execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesinsight_cache_lookups_total",
			Help: "Total number of response cache lookups by entry class and result.",
		},
		[]string{"class", "result"},
	)
	truncatedResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salesinsight_truncated_results_total",
			Help: "Total number of query results truncated at the configured row maximum.",
		},
	)
	chartSuggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesinsight_chart_suggestions_total",
			Help: "Total number of chart suggestions by chart type.",
		},
		[]string{"chart_type"},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		askLatencyMs,
		generationLatencyMs,
		executionLatencyMs,
		cacheLookupsTotal,
		truncatedResultsTotal,
		chartSuggestionsTotal,
	)
}

// ObserveAsk records one pipeline run. outcome is "ok" or an error kind.
func ObserveAsk(outcome string, elapsed time.Duration) {
	askRequestsTotal.WithLabelValues(outcome).Inc()
	askLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveGeneration(elapsed time.Duration) {
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecution(elapsed time.Duration, truncated bool) {
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if truncated {
		truncatedResultsTotal.Inc()
	}
}

func ObserveCacheLookup(class string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(class, result).Inc()
}

func ObserveChartSuggestion(chartType string) {
	chartSuggestionsTotal.WithLabelValues(chartType).Inc()
}

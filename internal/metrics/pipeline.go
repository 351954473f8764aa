// Package metrics holds the Prometheus collectors of the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace prefixes every metric name.
const Namespace = "indexsync"

// Pipeline Prometheus metrics.
var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Change events dispatched, by kind and outcome",
		},
		[]string{"kind", "status", "reason"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_duration_seconds",
			Help:      "Change batch dispatch duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dead_letters_total",
			Help:      "Events archived after a terminal failure",
		},
		[]string{"sink", "status"}, // status: "stored" / "failed"
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "Search engine request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	EngineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "engine_errors_total",
			Help:      "Search engine request failures",
		},
		[]string{"op", "class"}, // class: "unavailable" / "rejected" / "other"
	)

	IndexCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_cache_total",
			Help:      "Index existence cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	IndexProvisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_provision_total",
			Help:      "Index provisioning results",
		},
		[]string{"result"}, // "exists" / "created" / "already_exists" / "error"
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by strategy and result",
		},
		[]string{"strategy", "result"}, // result: "ok" / "empty" / "index_missing" / "error"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "Search request duration in seconds, engine round trip included",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3, 10},
		},
		[]string{"strategy"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers the pipeline and search collectors. Must be called
// once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(DeadLettersTotal)
	prometheus.MustRegister(EngineRequestDuration)
	prometheus.MustRegister(EngineErrorsTotal)
	prometheus.MustRegister(IndexCacheTotal)
	prometheus.MustRegister(IndexProvisionTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	pipelineMetricsRegistered = true
}

// BuildInfo is a constant 1 labeled with the running build.
var BuildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build metadata of the running binary",
	},
	[]string{"version", "commit", "binary"},
)

var buildInfoRegistered bool

// RegisterBuildInfo registers BuildInfo and sets it for binary.
func RegisterBuildInfo(version, commit, binary string) {
	if !buildInfoRegistered {
		prometheus.MustRegister(BuildInfo)
		buildInfoRegistered = true
	}
	BuildInfo.WithLabelValues(version, commit, binary).Set(1)
}

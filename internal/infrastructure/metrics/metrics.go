package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ModelScout metrics
var (
	// Discovery
	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Total discovery runs by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	ModelsDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "discovery",
			Name:      "models_total",
			Help:      "Total models fetched per provider",
		},
		[]string{"provider"},
	)

	DiscoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelscout",
			Subsystem: "discovery",
			Name:      "duration_seconds",
			Help:      "Duration of provider enumeration runs",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Provider adapters
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "adapter",
			Name:      "errors_total",
			Help:      "Total provider call failures by error type",
		},
		[]string{"provider", "error_type"},
	)

	AdapterCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "adapter",
			Name:      "cache_hits_total",
			Help:      "Adapter response-cache hits",
		},
		[]string{"provider"},
	)

	// Rate limiter
	RateLimitAcquiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "ratelimit",
			Name:      "acquires_total",
			Help:      "Rate limiter acquisitions by outcome",
		},
		[]string{"provider", "outcome"},
	)

	RateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelscout",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for rate limit capacity",
			Buckets:   []float64{.005, .05, .25, 1, 5, 15, 60},
		},
		[]string{"provider"},
	)

	RateLimitBackoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "ratelimit",
			Name:      "backoffs_total",
			Help:      "Provider-signaled quota exhaustion events",
		},
		[]string{"provider"},
	)

	RateLimitEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "ratelimit",
			Name:      "evictions_total",
			Help:      "Waiters dropped from a full low-priority queue",
		},
		[]string{"provider"},
	)

	// HTTP surface
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelscout",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Collaborators
	EmbeddingsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "embeddings",
			Name:      "generated_total",
			Help:      "Embedding vectors generated by outcome",
		},
		[]string{"status"},
	)

	PersistencePushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelscout",
			Subsystem: "persistence",
			Name:      "pushes_total",
			Help:      "Aggregate pushes to the persistence sink by outcome",
		},
		[]string{"status"},
	)
)

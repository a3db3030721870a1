package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "cmshub"
)

var (
	fetchDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

	// Fetch Metrics
	FetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempts_total",
		Help:      "Count of individual request attempts against integration endpoints.",
	}, []string{"driver", "outcome"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Time taken for a fetch or send operation including retries and failover.",
		Buckets:   fetchDurationBuckets,
	}, []string{"driver", "status"})

	FetchFailoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_failovers_total",
		Help:      "Count of moves from an exhausted endpoint URL to the next candidate.",
	}, []string{"driver"})

	// Probe Metrics
	ProbeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "probe_latency_seconds",
		Help:      "Latency of diagnostic endpoint probes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"reachable"})

	// Registry Metrics
	RegistryCandidatesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registry_candidates_rejected_total",
		Help:      "Count of driver candidates excluded during discovery.",
	}, []string{"reason"})
)

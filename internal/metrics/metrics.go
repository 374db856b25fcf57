// Package metrics holds the runtime's Prometheus collectors. They live on the default
// registry, which is what the /metrics endpoint served by fiberprometheus exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "moka"

var (
	Compiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compiles_total",
		Help:      "Class compilations by result.",
	}, []string{"result"})

	Rebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registry_rebuilds_total",
		Help:      "Data store registry rebuilds by result.",
	}, []string{"result"})

	ArtifactLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_loads_total",
		Help:      "Artifact loads from the build directory by result.",
	}, []string{"result"})

	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_evictions_total",
		Help:      "Artifact cache evictions.",
	})

	WatcherEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watcher_events_total",
		Help:      "Source tree events by classified action.",
	}, []string{"action"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Entry class method invocation time by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)

// Result maps an error to the result label
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

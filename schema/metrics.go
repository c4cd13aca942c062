package schema

import "github.com/prometheus/client_golang/prometheus"

var indexTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "viewdb",
	Subsystem: "view_indexes",
	Name:      "transitions_total",
	Help:      "Index activation state changes per view.",
}, []string{"view", "op"})

var viewLoadFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "viewdb",
	Subsystem: "schema",
	Name:      "view_load_failures_total",
	Help:      "Views skipped on reload because their metadata failed to decode.",
})

// Collectors returns the metrics of this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{indexTransitions, viewLoadFailures}
}

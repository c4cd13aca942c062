package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nickyhof/viewdb/schema"
)

var (
	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "viewdb",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "Requests handled, by op and outcome.",
	}, []string{"op", "outcome"})

	connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "viewdb",
		Subsystem: "server",
		Name:      "connections",
		Help:      "Open client connections.",
	})
)

var knownOps = map[string]bool{
	OpList: true, OpDescribe: true, OpCreate: true, OpDrop: true,
	OpActivate: true, OpInactivate: true, OpInactivateAll: true, OpRebuild: true,
	OpRefresh: true, OpCount: true, OpIndexes: true, OpReload: true,
}

// opLabel keeps the op label bounded to the protocol's ops.
func opLabel(op string) string {
	if knownOps[op] {
		return op
	}
	return "unknown"
}

// newRegistry returns a registry with the server and schema collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(requests, connections)
	reg.MustRegister(schema.Collectors()...)
	return reg
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package bundle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simbridge/simbridge/internal/host"
)

// Result labels for build metrics.
const (
	ResultCached  = "cached"
	ResultRebuilt = "rebuilt"
	ResultFailed  = "failed"
)

// BuildsTotal counts build requests by role and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var BuildsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simbridge_builds_total",
		Help: "Total number of artifact build requests by role and result",
	},
	[]string{"role", "result"},
)

// BuildDuration observes how long rebuilds take.
var BuildDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "simbridge_build_duration_seconds",
		Help:    "Artifact rebuild duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"role"},
)

// RegisterMetrics registers bundle metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(BuildsTotal)
	reg.MustRegister(BuildDuration)
}

func recordBuild(role host.Role, result string) {
	BuildsTotal.WithLabelValues(role.String(), result).Inc()
}

func recordBuildDuration(role host.Role, d time.Duration) {
	BuildDuration.WithLabelValues(role.String()).Observe(d.Seconds())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package relay

import "github.com/prometheus/client_golang/prometheus"

// Delivery labels for ForwardedTotal.
const (
	deliveryImmediate = "immediate"
	deliveryQueued    = "queued"
	deliveryReplayed  = "replayed"
	deliveryFailed    = "failed"
)

// ForwardedTotal counts events forwarded to a role.
var ForwardedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simbridge_relay_forwarded_total",
		Help: "Events forwarded to a host role by event and delivery",
	},
	[]string{"role", "event", "delivery"},
)

// PendingEmits reports events waiting for a role to register.
var PendingEmits = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "simbridge_relay_pending_emits",
		Help: "Events queued for a host role without a live connection",
	},
	[]string{"role"},
)

// RegistrationsTotal counts host registrations.
var RegistrationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simbridge_relay_registrations_total",
		Help: "Host registrations by role",
	},
	[]string{"role"},
)

// RegisterMetrics registers relay metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ForwardedTotal)
	reg.MustRegister(PendingEmits)
	reg.MustRegister(RegistrationsTotal)
}

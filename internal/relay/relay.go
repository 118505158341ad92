// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package relay passes events between the app-host and sim-host connections,
// holding events for a role until that role has a live connection.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/host"
	"github.com/simbridge/simbridge/pkg/errutil"
)

// Error codes for relay failures.
const (
	CodeUnknownRole = "RELAY_UNKNOWN_ROLE"
	CodeEmitFailed  = "RELAY_EMIT_FAILED"
)

// AckFunc receives the target's acknowledgment of an event.
type AckFunc func(data json.RawMessage)

// Conn is a live connection to one host.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Emit sends an event. It must not block on the network. A non-nil ack
	// is invoked when the remote side acknowledges the event.
	Emit(event string, payload json.RawMessage, ack AckFunc) error
}

type pendingEmit struct {
	event   string
	payload json.RawMessage
	ack     AckFunc
}

// Relay holds the live connection for each role and the events waiting for a
// role to connect. Events reach a role in the order Forward was called.
type Relay struct {
	logger *slog.Logger

	mu      sync.Mutex
	conns   map[host.Role]Conn
	pending map[host.Role][]pendingEmit
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// New creates a relay with no registrations.
func New(opts ...Option) *Relay {
	r := &Relay{
		logger:  slog.Default(),
		conns:   make(map[host.Role]Conn),
		pending: make(map[host.Role][]pendingEmit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func checkRole(role host.Role) error {
	if !role.Valid() {
		return oops.Code(CodeUnknownRole).
			With("role", role.String()).
			Errorf("unknown host role %q", role)
	}
	return nil
}

// Register makes conn the live connection for role, replacing any previous
// one, then delivers every event queued for role in order. If conn rejects a
// queued event, that event and the rest stay queued for the next
// registration and conn is dropped.
func (r *Relay) Register(role host.Role, conn Conn) error {
	if err := checkRole(role); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[role]; ok && prev != nil && prev.ID() != conn.ID() {
		r.logger.Info("host registration superseded",
			"role", role.String(), "conn_id", conn.ID(), "previous_conn_id", prev.ID())
	} else {
		r.logger.Info("host registered", "role", role.String(), "conn_id", conn.ID())
	}
	r.conns[role] = conn
	RegistrationsTotal.WithLabelValues(role.String()).Inc()

	queued := r.pending[role]
	delete(r.pending, role)
	PendingEmits.WithLabelValues(role.String()).Set(0)

	for i, p := range queued {
		r.logger.Debug("handling pending emit", "role", role.String(), "event", p.event, "conn_id", conn.ID())
		if err := r.emitLocked(role, conn, p, deliveryReplayed); err != nil {
			rest := queued[i:]
			r.pending[role] = append(rest, r.pending[role]...)
			PendingEmits.WithLabelValues(role.String()).Set(float64(len(r.pending[role])))
			delete(r.conns, role)
			errutil.LogError(r.logger, "pending emit failed, keeping remaining events queued", err,
				"remaining", len(rest))
			return err
		}
	}
	return nil
}

// Forward sends an event to role, or queues it until role registers.
func (r *Relay) Forward(role host.Role, event string, payload json.RawMessage, ack AckFunc) error {
	if err := checkRole(role); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := pendingEmit{event: event, payload: payload, ack: ack}
	conn := r.conns[role]
	if conn == nil {
		r.logger.Debug("emitting (pending connection)", "role", role.String(), "event", event)
		r.pending[role] = append(r.pending[role], p)
		PendingEmits.WithLabelValues(role.String()).Set(float64(len(r.pending[role])))
		ForwardedTotal.WithLabelValues(role.String(), event, deliveryQueued).Inc()
		return nil
	}
	return r.emitLocked(role, conn, p, deliveryImmediate)
}

func (r *Relay) emitLocked(role host.Role, conn Conn, p pendingEmit, delivery string) error {
	r.logger.Debug("emitting", "role", role.String(), "event", p.event, "conn_id", conn.ID())
	if err := conn.Emit(p.event, p.payload, p.ack); err != nil {
		ForwardedTotal.WithLabelValues(role.String(), p.event, deliveryFailed).Inc()
		return oops.Code(CodeEmitFailed).
			With("role", role.String()).
			With("event", p.event).
			With("conn_id", conn.ID()).
			Wrapf(err, "emit %s to %s", p.event, role)
	}
	ForwardedTotal.WithLabelValues(role.String(), p.event, delivery).Inc()
	return nil
}

// Invalidate drops role's live connection without touching its queue, so
// later events wait for the next registration.
func (r *Relay) Invalidate(role host.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn := r.conns[role]; conn != nil {
		r.logger.Info("host invalidated", "role", role.String(), "conn_id", conn.ID())
	}
	delete(r.conns, role)
}

// Refresh tells role's live connection to reload and invalidates it. Nothing
// is queued when role is not connected, since its next page load is already
// current.
func (r *Relay) Refresh(role host.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := r.conns[role]
	if conn == nil {
		return
	}
	if err := r.emitLocked(role, conn, pendingEmit{event: EventRefresh}, deliveryImmediate); err != nil {
		errutil.LogError(r.logger, "refresh failed", err)
	}
	r.logger.Info("host invalidated", "role", role.String(), "conn_id", conn.ID())
	delete(r.conns, role)
}

// Connected reports whether role has a live connection.
func (r *Relay) Connected(role host.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[role] != nil
}

// Pending returns the number of events queued for role.
func (r *Relay) Pending(role host.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[role])
}

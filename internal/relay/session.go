// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package relay

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/simbridge/simbridge/internal/host"
)

// Session routes the events received on one connection. A connection only
// relays events once it has registered as a role; each role it registers as
// adds that role's routes.
type Session struct {
	relay *Relay
	conn  Conn

	mu    sync.Mutex
	roles []host.Role
}

// NewSession creates a session for conn.
func (r *Relay) NewSession(conn Conn) *Session {
	return &Session{relay: r, conn: conn}
}

// Roles returns the roles this connection has registered as.
func (s *Session) Roles() []host.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]host.Role(nil), s.roles...)
}

// Handle processes one received event. Events the connection has no route
// for are logged and dropped.
func (s *Session) Handle(event string, payload json.RawMessage, ack AckFunc) error {
	if role, ok := registrations[event]; ok {
		s.mu.Lock()
		s.addRole(role)
		s.mu.Unlock()
		return s.relay.Register(role, s.conn)
	}

	handled := false
	for _, role := range s.Roles() {
		rt, ok := routes[role][event]
		if !ok {
			continue
		}
		handled = true
		var a AckFunc
		if rt.withAck {
			a = ack
		}
		if err := s.relay.Forward(rt.target, event, payload, a); err != nil {
			return err
		}
	}
	if !handled {
		s.relay.logger.Debug("dropping unroutable event", "event", event, "conn_id", s.conn.ID())
	}
	return nil
}

func (s *Session) addRole(role host.Role) {
	if slices.Contains(s.roles, role) {
		return
	}
	s.roles = append(s.roles, role)
}

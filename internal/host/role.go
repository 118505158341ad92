// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package host defines the two browser host roles and the script files each
// role accepts from a plugin.
package host

import (
	"github.com/samber/oops"
)

// Role identifies one of the two cooperating browser contexts.
type Role string

// Host roles. Exactly one live instance of each is meaningful per session.
const (
	AppHost Role = "app-host"
	SimHost Role = "sim-host"
)

// CodeUnknownRole is the error code for an unrecognized role name.
const CodeUnknownRole = "UNKNOWN_ROLE"

// Roles lists every role in a stable order.
var Roles = []Role{AppHost, SimHost}

// ParseRole converts a role name into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case AppHost, SimHost:
		return Role(s), nil
	default:
		return "", oops.Code(CodeUnknownRole).
			With("role", s).
			Errorf("unknown host role %q: must be %q or %q", s, AppHost, SimHost)
	}
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// Peer returns the role on the other end of the relay.
func (r Role) Peer() Role {
	if r == AppHost {
		return SimHost
	}
	return AppHost
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == AppHost || r == SimHost
}

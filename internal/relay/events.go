// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package relay

import "github.com/simbridge/simbridge/internal/host"

// Wire event names exchanged with the hosts.
const (
	EventRegisterAppHost = "register-app-host"
	EventRegisterSimHost = "register-simulation-host"
	EventExec            = "exec"
	EventExecSuccess     = "exec-success"
	EventExecFailure     = "exec-failure"
	EventPluginMessage   = "plugin-message"
	EventPluginMethod    = "plugin-method"
	EventRefresh         = "refresh"
)

// route describes how an event received from one role is passed on.
type route struct {
	target host.Role
	// withAck passes the sender's acknowledgment through to the target.
	withAck bool
}

// routes maps each registered role to the events it may send.
var routes = map[host.Role]map[string]route{
	host.AppHost: {
		EventExec:          {target: host.SimHost, withAck: true},
		EventPluginMessage: {target: host.SimHost},
		EventPluginMethod:  {target: host.SimHost, withAck: true},
	},
	host.SimHost: {
		EventExecSuccess:   {target: host.AppHost},
		EventExecFailure:   {target: host.AppHost},
		EventPluginMessage: {target: host.AppHost},
		EventPluginMethod:  {target: host.AppHost, withAck: true},
	},
}

// registrations maps registration events to the role they claim.
var registrations = map[string]host.Role{
	EventRegisterAppHost: host.AppHost,
	EventRegisterSimHost: host.SimHost,
}

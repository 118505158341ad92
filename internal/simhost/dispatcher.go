// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package simhost holds the sim-host side of the simulator: answering exec
// calls with plugin handlers and scheduling the modal dialogs plugins show.
package simhost

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/pkg/errutil"
)

// Protocol error codes for malformed exec calls.
const (
	CodeMissingInfo    = "EXEC_MISSING_INFO"
	CodeMissingIndex   = "EXEC_MISSING_INDEX"
	CodeMissingService = "EXEC_MISSING_SERVICE"
	CodeMissingAction  = "EXEC_MISSING_ACTION"
)

// Wildcard is the service and action name of the fallback handler.
const Wildcard = "*"

// Call is one exec call being answered. Exactly one of Success or Failure
// should be called; the call stays pending on the app-host until then.
type Call struct {
	Service string
	Action  string
	Args    json.RawMessage

	index    json.RawMessage
	dispatch *Dispatcher
}

// Success completes the call with result.
func (c Call) Success(result any) {
	c.dispatch.complete(relay.EventExecSuccess, c, "result", result)
}

// Failure completes the call with err.
func (c Call) Failure(err any) {
	c.dispatch.complete(relay.EventExecFailure, c, "error", err)
}

// Handler answers an exec call.
type Handler func(call Call)

// Handlers maps service and action names to handlers. The handler at
// Handlers[Wildcard][Wildcard] receives calls nothing else matches.
type Handlers map[string]map[string]Handler

// Lookup returns the handler for service and action, falling back to the
// wildcard handler.
func (h Handlers) Lookup(service, action string) (Handler, bool) {
	if fn, ok := h[service][action]; ok && fn != nil {
		return fn, true
	}
	fn, ok := h[Wildcard][Wildcard]
	return fn, ok && fn != nil
}

// Emitter sends events to the relay.
type Emitter interface {
	Emit(event string, payload json.RawMessage, ack relay.AckFunc) error
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithReload sets the function run when the relay asks the sim-host to
// refresh.
func WithReload(fn func()) DispatcherOption {
	return func(d *Dispatcher) {
		d.reload = fn
	}
}

// WithDispatcherLogger sets the dispatcher's logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// Dispatcher answers exec calls forwarded to the sim-host.
type Dispatcher struct {
	handlers Handlers
	emitter  Emitter
	reload   func()
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher that replies through emitter.
func NewDispatcher(handlers Handlers, emitter Emitter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: handlers,
		emitter:  emitter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes an event received from the relay.
func (d *Dispatcher) Handle(event string, payload json.RawMessage, _ relay.AckFunc) error {
	switch event {
	case relay.EventExec:
		if err := d.Exec(payload); err != nil {
			errutil.LogError(d.logger, "exec rejected", err)
		}
	case relay.EventRefresh:
		if d.reload != nil {
			d.reload()
		}
	}
	return nil
}

type execEnvelope struct {
	Index   json.RawMessage `json:"index"`
	Service string          `json:"service"`
	Action  string          `json:"action"`
	Args    json.RawMessage `json:"args"`
}

// Exec validates an exec envelope and runs its handler. A malformed envelope
// is rejected with a protocol error and no reply is sent.
func (d *Dispatcher) Exec(payload json.RawMessage) error {
	call, err := d.parse(payload)
	if err != nil {
		return err
	}

	d.logger.Debug("exec", "service", call.Service, "action", call.Action, "index", string(call.index))

	handler, ok := d.handlers.Lookup(call.Service, call.Action)
	if !ok {
		call.Failure("no handler for " + call.Service + "." + call.Action)
		return nil
	}
	if _, exact := d.handlers[call.Service][call.Action]; !exact {
		d.logger.Debug("using fallback handler", "service", call.Service, "action", call.Action)
	}
	handler(call)
	return nil
}

func (d *Dispatcher) parse(payload json.RawMessage) (Call, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Call{}, oops.Code(CodeMissingInfo).Errorf("exec called on simulation host without exec info")
	}

	var env execEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Call{}, oops.Code(CodeMissingInfo).Wrapf(err, "exec called on simulation host without exec info")
	}
	if !isNumber(env.Index) {
		return Call{}, oops.Code(CodeMissingIndex).Errorf("exec called on simulation host without an index specified")
	}
	if env.Service == "" {
		return Call{}, oops.Code(CodeMissingService).
			With("index", string(env.Index)).
			Errorf("exec called on simulation host without a service specified")
	}
	if env.Action == "" {
		return Call{}, oops.Code(CodeMissingAction).
			With("index", string(env.Index)).
			With("service", env.Service).
			Errorf("exec called on simulation host without an action specified")
	}

	return Call{
		Service:  env.Service,
		Action:   env.Action,
		Args:     env.Args,
		index:    env.Index,
		dispatch: d,
	}, nil
}

// isNumber reports whether raw is a JSON number literal.
func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid(raw)
}

func (d *Dispatcher) complete(event string, c Call, key string, value any) {
	data, err := json.Marshal(map[string]any{
		"index": c.index,
		key:     value,
	})
	if err != nil {
		errutil.LogError(d.logger, "cannot encode exec completion", oops.Wrap(err),
			"service", c.Service, "action", c.Action)
		return
	}
	d.logger.Debug("exec completed", "event", event, "index", string(c.index))
	if err := d.emitter.Emit(event, data, nil); err != nil {
		errutil.LogError(d.logger, "exec completion not sent", err, "index", string(c.index))
	}
}

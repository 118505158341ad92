// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package apphost holds the app-host side of the simulator: issuing exec
// calls to the sim-host, matching their completions, and merging plugin
// clobbers into the application's namespace.
package apphost

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/pkg/errutil"
)

// Emitter sends events to the relay.
type Emitter interface {
	Emit(event string, payload json.RawMessage, ack relay.AckFunc) error
}

// Callback receives an exec call's result or error payload.
type Callback func(payload json.RawMessage)

type pendingCall struct {
	service string
	action  string
	success Callback
	failure Callback
}

type execCall struct {
	Index   uint64 `json:"index"`
	Service string `json:"service"`
	Action  string `json:"action"`
	Args    any    `json:"args"`
}

type execCompletion struct {
	Index  *uint64         `json:"index"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the tracker's logger.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithReload sets the function run when the relay asks the app-host to
// refresh.
func WithReload(fn func()) TrackerOption {
	return func(t *Tracker) {
		t.reload = fn
	}
}

// Tracker issues exec calls and resolves them when the sim-host answers.
// Calls never time out: a sim-host that never answers leaves them pending.
type Tracker struct {
	emitter Emitter
	logger  *slog.Logger
	reload  func()

	mu      sync.Mutex
	next    uint64
	pending map[uint64]pendingCall
}

// NewTracker creates a tracker that sends calls through emitter.
func NewTracker(emitter Emitter, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		emitter: emitter,
		logger:  slog.Default(),
		pending: make(map[uint64]pendingCall),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Exec sends a call and returns its correlation index. Exactly one of
// success or failure runs when the sim-host completes it.
func (t *Tracker) Exec(service, action string, args any, success, failure Callback) (uint64, error) {
	t.mu.Lock()
	index := t.next
	t.next++
	t.pending[index] = pendingCall{service: service, action: action, success: success, failure: failure}
	t.mu.Unlock()

	data, err := json.Marshal(execCall{Index: index, Service: service, Action: action, Args: args})
	if err == nil {
		err = t.emitter.Emit(relay.EventExec, data, nil)
	}
	if err != nil {
		t.mu.Lock()
		delete(t.pending, index)
		t.mu.Unlock()
		return 0, oops.With("service", service).
			With("action", action).
			Wrapf(err, "exec %s.%s", service, action)
	}
	return index, nil
}

// Pending returns the number of calls awaiting completion.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Handle processes an event received from the relay.
func (t *Tracker) Handle(event string, payload json.RawMessage, _ relay.AckFunc) error {
	switch event {
	case relay.EventExecSuccess:
		t.complete(payload, true)
	case relay.EventExecFailure:
		t.complete(payload, false)
	case relay.EventRefresh:
		if t.reload != nil {
			t.reload()
		}
	}
	return nil
}

func (t *Tracker) complete(payload json.RawMessage, ok bool) {
	var c execCompletion
	if err := json.Unmarshal(payload, &c); err != nil {
		errutil.LogWarn(t.logger, "dropping malformed exec completion", oops.Wrap(err))
		return
	}
	if c.Index == nil {
		t.logger.Warn("dropping exec completion without index")
		return
	}

	t.mu.Lock()
	call, found := t.pending[*c.Index]
	delete(t.pending, *c.Index)
	t.mu.Unlock()

	if !found {
		t.logger.Warn("exec completion for unknown index", "index", *c.Index)
		return
	}

	t.logger.Debug("exec completed", "service", call.service, "action", call.action, "index", *c.Index, "success", ok)
	if ok {
		if call.success != nil {
			call.success(c.Result)
		}
		return
	}
	if call.failure != nil {
		call.failure(c.Error)
	}
}

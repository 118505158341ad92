// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package simhost

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Scheduling error codes.
const (
	CodeNoneShown = "DIALOG_NONE_SHOWN"
	CodeNotShown  = "DIALOG_NOT_SHOWN"
	CodeUnknown   = "DIALOG_UNKNOWN"
)

// DialogState is reported to a requester as its dialog moves through the
// scheduler.
type DialogState string

// Dialog states.
const (
	StateShowing   DialogState = "showing"
	StateShown     DialogState = "shown"
	StateQueryShow DialogState = "query-show"
)

// Dialog is a modal surface owned by a plugin.
type Dialog interface {
	Show()
	Hide()
}

// DialogFuncs adapts a pair of functions to Dialog.
type DialogFuncs struct {
	ShowFunc func()
	HideFunc func()
}

// Show calls ShowFunc.
func (d DialogFuncs) Show() {
	if d.ShowFunc != nil {
		d.ShowFunc()
	}
}

// Hide calls HideFunc.
func (d DialogFuncs) Hide() {
	if d.HideFunc != nil {
		d.HideFunc()
	}
}

// OnState observes a dialog request. Its result only matters for
// StateQueryShow, asked just before a queued dialog would be shown: returning
// false withdraws the request.
type OnState func(state DialogState) bool

type dialogRequest struct {
	id      string
	onState OnState
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDefer replaces how the post-dismiss queue check is scheduled. The
// default runs it on a new goroutine as soon as possible.
func WithDefer(fn func(func())) SchedulerOption {
	return func(s *Scheduler) {
		s.deferFn = fn
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// Scheduler shows at most one dialog at a time and queues the rest in
// request order. Dialog and OnState callbacks run without the scheduler's
// lock held, so they may call back into it.
type Scheduler struct {
	deferFn func(func())
	logger  *slog.Logger

	mu      sync.Mutex
	dialogs map[string]Dialog
	current string
	queue   []dialogRequest
}

// NewScheduler creates an idle scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		deferFn: func(fn func()) { time.AfterFunc(0, fn) },
		logger:  slog.Default(),
		dialogs: make(map[string]Dialog),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds or replaces the dialog for id. The empty id is reserved for
// "no dialog shown" and is rejected.
func (s *Scheduler) Register(id string, d Dialog) error {
	if id == "" {
		return oops.Code(CodeUnknown).Errorf("dialog id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[id] = d
	return nil
}

// Current returns the id of the visible dialog.
func (s *Scheduler) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != ""
}

// Queued returns the ids waiting to be shown, in order.
func (s *Scheduler) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.queue))
	for _, r := range s.queue {
		ids = append(ids, r.id)
	}
	return ids
}

// Request shows dialog id now if nothing is visible, otherwise queues it.
func (s *Scheduler) Request(id string, onState OnState) error {
	if id == "" {
		return oops.Code(CodeUnknown).Errorf("dialog id is empty")
	}
	s.mu.Lock()
	d, ok := s.dialogs[id]
	if !ok {
		s.mu.Unlock()
		return oops.Code(CodeUnknown).With("dialog", id).Errorf("unknown dialog %q", id)
	}
	if s.current != "" {
		s.queue = append(s.queue, dialogRequest{id: id, onState: onState})
		s.logger.Debug("dialog queued", "dialog", id, "shown", s.current, "queued", len(s.queue))
		s.mu.Unlock()
		return nil
	}
	s.current = id
	s.mu.Unlock()

	s.show(id, d, onState)
	return nil
}

func (s *Scheduler) show(id string, d Dialog, onState OnState) {
	s.logger.Debug("showing dialog", "dialog", id)
	if onState != nil {
		onState(StateShowing)
	}
	d.Show()
	if onState != nil {
		onState(StateShown)
	}
}

// Dismiss hides dialog id, or the visible dialog when id is empty, then
// shows the next queued dialog once the caller's work has settled.
func (s *Scheduler) Dismiss(id string) error {
	s.mu.Lock()
	if s.current == "" {
		s.mu.Unlock()
		return oops.Code(CodeNoneShown).With("dialog", id).Errorf("no dialog is shown")
	}
	if id != "" && id != s.current {
		shown := s.current
		s.mu.Unlock()
		return oops.Code(CodeNotShown).
			With("dialog", id).
			With("shown", shown).
			Errorf("dialog %q is not shown", id)
	}
	hidden := s.current
	d := s.dialogs[hidden]
	s.current = ""
	s.mu.Unlock()

	s.logger.Debug("hiding dialog", "dialog", hidden)
	if d != nil {
		d.Hide()
	}
	s.deferFn(s.next)
	return nil
}

// next shows the first queued dialog whose requester still wants it.
func (s *Scheduler) next() {
	for {
		s.mu.Lock()
		if s.current != "" || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		req := s.queue[0]
		s.queue = slices.Delete(s.queue, 0, 1)
		s.mu.Unlock()

		if req.onState != nil && !req.onState(StateQueryShow) {
			s.logger.Debug("queued dialog withdrawn", "dialog", req.id)
			continue
		}

		s.mu.Lock()
		if s.current != "" {
			// another request won the surface while we asked
			s.queue = slices.Insert(s.queue, 0, req)
			s.mu.Unlock()
			return
		}
		d, ok := s.dialogs[req.id]
		if !ok {
			s.mu.Unlock()
			continue
		}
		s.current = req.id
		s.mu.Unlock()

		s.show(req.id, d, req.onState)
		return
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package relay_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simbridge/simbridge/internal/host"
	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/pkg/errutil"
)

type emitted struct {
	event   string
	payload string
	ack     relay.AckFunc
}

// fakeConn records emitted events.
type fakeConn struct {
	id  string
	err error
	// accepts, when positive, is how many events Emit takes before failing
	accepts int

	mu     sync.Mutex
	events []emitted
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload json.RawMessage, ack relay.AckFunc) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accepts > 0 && len(c.events) >= c.accepts {
		return errors.New("connection closed")
	}
	c.events = append(c.events, emitted{event: event, payload: string(payload), ack: ack})
	return nil
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.event)
	}
	return out
}

func (c *fakeConn) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.payload)
	}
	return out
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestRelay_ForwardToLiveConnection(t *testing.T) {
	r := relay.New()
	sim := newFakeConn("sim")
	require.NoError(t, r.Register(host.SimHost, sim))

	var acked json.RawMessage
	require.NoError(t, r.Forward(host.SimHost, relay.EventExec, raw(`{"index":1}`), func(d json.RawMessage) { acked = d }))

	require.Len(t, sim.events, 1)
	assert.Equal(t, relay.EventExec, sim.events[0].event)
	assert.JSONEq(t, `{"index":1}`, sim.events[0].payload)
	require.NotNil(t, sim.events[0].ack)
	sim.events[0].ack(raw(`"ok"`))
	assert.Equal(t, raw(`"ok"`), acked)
}

func TestRelay_QueuedEventsDeliveredInOrder(t *testing.T) {
	r := relay.New()
	require.NoError(t, r.Forward(host.SimHost, relay.EventExec, raw(`1`), nil))
	require.NoError(t, r.Forward(host.SimHost, relay.EventPluginMessage, raw(`2`), nil))
	assert.Equal(t, 2, r.Pending(host.SimHost))
	assert.InDelta(t, 2, testutil.ToFloat64(relay.PendingEmits.WithLabelValues("sim-host")), 0)

	sim := newFakeConn("sim")
	require.NoError(t, r.Register(host.SimHost, sim))
	require.NoError(t, r.Forward(host.SimHost, relay.EventExec, raw(`3`), nil))

	assert.Equal(t, []string{"1", "2", "3"}, sim.payloads())
	assert.Equal(t, []string{relay.EventExec, relay.EventPluginMessage, relay.EventExec}, sim.names())
	assert.Zero(t, r.Pending(host.SimHost))
}

func TestRelay_QueueIsPerRole(t *testing.T) {
	r := relay.New()
	require.NoError(t, r.Forward(host.SimHost, relay.EventExec, raw(`1`), nil))

	app := newFakeConn("app")
	require.NoError(t, r.Register(host.AppHost, app))
	assert.Empty(t, app.events)
	assert.Equal(t, 1, r.Pending(host.SimHost))
}

func TestRelay_RegistrationSupersedes(t *testing.T) {
	r := relay.New()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	require.NoError(t, r.Register(host.AppHost, c1))
	require.NoError(t, r.Register(host.AppHost, c2))

	require.NoError(t, r.Forward(host.AppHost, relay.EventExecSuccess, raw(`{}`), nil))
	assert.Empty(t, c1.events)
	assert.Len(t, c2.events, 1)
}

func TestRelay_InvalidateKeepsQueue(t *testing.T) {
	r := relay.New()
	require.NoError(t, r.Forward(host.SimHost, relay.EventExec, raw(`1`), nil))
	old := newFakeConn("old")
	require.NoError(t, r.Register(host.SimHost, old))

	r.Invalidate(host.SimHost)
	assert.False(t, r.Connected(host.SimHost))
	require.NoError(t, r.Forward(host.SimHost, relay.EventExec, raw(`2`), nil))
	assert.Equal(t, []string{"1"}, old.payloads())

	fresh := newFakeConn("fresh")
	require.NoError(t, r.Register(host.SimHost, fresh))
	assert.Equal(t, []string{"2"}, fresh.payloads())
}

func TestRelay_RefreshEmitsAndInvalidates(t *testing.T) {
	r := relay.New()
	sim := newFakeConn("sim")
	require.NoError(t, r.Register(host.SimHost, sim))

	r.Refresh(host.SimHost)
	assert.Equal(t, []string{relay.EventRefresh}, sim.names())
	assert.False(t, r.Connected(host.SimHost))

	r.Refresh(host.SimHost)
	assert.Zero(t, r.Pending(host.SimHost), "refresh is not queued for a disconnected host")
}

func TestRelay_EmitFailure(t *testing.T) {
	r := relay.New()
	sim := newFakeConn("sim")
	sim.err = errors.New("connection closed")
	require.NoError(t, r.Register(host.SimHost, sim))

	err := r.Forward(host.SimHost, relay.EventExec, raw(`{}`), nil)
	errutil.AssertErrorCode(t, err, relay.CodeEmitFailed)
	errutil.AssertErrorContext(t, err, "conn_id", "sim")
	assert.True(t, r.Connected(host.SimHost))
}

func TestRelay_FailedReplayKeepsRemainingEventsQueued(t *testing.T) {
	r := relay.New()
	for i := range 5 {
		require.NoError(t, r.Forward(host.SimHost, relay.EventPluginMessage, raw(itoa(i)), nil))
	}

	flaky := newFakeConn("flaky")
	flaky.accepts = 2
	err := r.Register(host.SimHost, flaky)
	errutil.AssertErrorCode(t, err, relay.CodeEmitFailed)
	assert.Equal(t, []string{"0", "1"}, flaky.payloads())
	assert.False(t, r.Connected(host.SimHost), "a connection that rejects its replay is dropped")
	assert.Equal(t, 3, r.Pending(host.SimHost))

	require.NoError(t, r.Forward(host.SimHost, relay.EventPluginMessage, raw("5"), nil))

	sim := newFakeConn("sim")
	require.NoError(t, r.Register(host.SimHost, sim))
	assert.Equal(t, []string{"2", "3", "4", "5"}, sim.payloads())
	assert.Zero(t, r.Pending(host.SimHost))
}

func TestRelay_UnknownRole(t *testing.T) {
	r := relay.New()
	err := r.Forward(host.Role("browser"), relay.EventExec, nil, nil)
	errutil.AssertErrorCode(t, err, relay.CodeUnknownRole)

	err = r.Register(host.Role(""), newFakeConn("x"))
	errutil.AssertErrorCode(t, err, relay.CodeUnknownRole)
}

func TestRelay_ConcurrentForwardsKeepPerCallerOrder(t *testing.T) {
	r := relay.New()
	sim := newFakeConn("sim")

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = r.Forward(host.SimHost, relay.EventPluginMessage, raw(`[`+itoa(w)+`,`+itoa(i)+`]`), nil)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Register(host.SimHost, sim)
	}()
	wg.Wait()

	last := map[int]int{}
	for _, p := range sim.payloads() {
		var pair [2]int
		require.NoError(t, json.Unmarshal([]byte(p), &pair))
		if prev, ok := last[pair[0]]; ok {
			assert.Greater(t, pair[1], prev)
		}
		last[pair[0]] = pair[1]
	}
	assert.Len(t, sim.payloads(), 200)
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

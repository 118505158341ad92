// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package simhost_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/internal/simhost"
	"github.com/simbridge/simbridge/pkg/errutil"
)

type sent struct {
	event   string
	payload string
}

type recordingEmitter struct {
	out []sent
}

func (e *recordingEmitter) Emit(event string, payload json.RawMessage, _ relay.AckFunc) error {
	e.out = append(e.out, sent{event: event, payload: string(payload)})
	return nil
}

func TestDispatcher_ExecSuccess(t *testing.T) {
	em := &recordingEmitter{}
	var args json.RawMessage
	d := simhost.NewDispatcher(simhost.Handlers{
		"Camera": {"takePicture": func(c simhost.Call) {
			args = c.Args
			c.Success("data:image/png")
		}},
	}, em)

	require.NoError(t, d.Exec(json.RawMessage(`{"index":3,"service":"Camera","action":"takePicture","args":[50]}`)))
	assert.JSONEq(t, `[50]`, string(args))
	require.Len(t, em.out, 1)
	assert.Equal(t, relay.EventExecSuccess, em.out[0].event)
	assert.JSONEq(t, `{"index":3,"result":"data:image/png"}`, em.out[0].payload)
}

func TestDispatcher_ExecFailure(t *testing.T) {
	em := &recordingEmitter{}
	d := simhost.NewDispatcher(simhost.Handlers{
		"Geolocation": {"getLocation": func(c simhost.Call) { c.Failure(map[string]any{"code": 1}) }},
	}, em)

	require.NoError(t, d.Exec(json.RawMessage(`{"index":0,"service":"Geolocation","action":"getLocation"}`)))
	require.Len(t, em.out, 1)
	assert.Equal(t, relay.EventExecFailure, em.out[0].event)
	assert.JSONEq(t, `{"index":0,"error":{"code":1}}`, em.out[0].payload)
}

func TestDispatcher_WildcardFallback(t *testing.T) {
	em := &recordingEmitter{}
	var got []string
	d := simhost.NewDispatcher(simhost.Handlers{
		simhost.Wildcard: {simhost.Wildcard: func(c simhost.Call) {
			got = []string{c.Service, c.Action}
			c.Failure("unsupported")
		}},
	}, em)

	require.NoError(t, d.Exec(json.RawMessage(`{"index":1,"service":"Vibration","action":"vibrate"}`)))
	assert.Equal(t, []string{"Vibration", "vibrate"}, got)
	assert.JSONEq(t, `{"index":1,"error":"unsupported"}`, em.out[0].payload)
}

func TestDispatcher_NoHandlerFails(t *testing.T) {
	em := &recordingEmitter{}
	d := simhost.NewDispatcher(simhost.Handlers{}, em)

	require.NoError(t, d.Exec(json.RawMessage(`{"index":2,"service":"Vibration","action":"vibrate"}`)))
	require.Len(t, em.out, 1)
	assert.Equal(t, relay.EventExecFailure, em.out[0].event)
}

func TestDispatcher_IndexPassesThroughUnchanged(t *testing.T) {
	em := &recordingEmitter{}
	d := simhost.NewDispatcher(simhost.Handlers{
		"S": {"a": func(c simhost.Call) { c.Success(nil) }},
	}, em)

	require.NoError(t, d.Exec(json.RawMessage(`{"index":9007199254740993,"service":"S","action":"a"}`)))
	assert.Contains(t, em.out[0].payload, `"index":9007199254740993`)
}

func TestDispatcher_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		code    string
	}{
		{"empty", ``, simhost.CodeMissingInfo},
		{"null", `null`, simhost.CodeMissingInfo},
		{"not an object", `[1]`, simhost.CodeMissingInfo},
		{"no index", `{"service":"S","action":"a"}`, simhost.CodeMissingIndex},
		{"string index", `{"index":"1","service":"S","action":"a"}`, simhost.CodeMissingIndex},
		{"no service", `{"index":1,"action":"a"}`, simhost.CodeMissingService},
		{"no action", `{"index":1,"service":"S"}`, simhost.CodeMissingAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := &recordingEmitter{}
			d := simhost.NewDispatcher(simhost.Handlers{}, em)
			err := d.Exec(json.RawMessage(tt.payload))
			errutil.AssertErrorCode(t, err, tt.code)
			assert.Empty(t, em.out, "malformed calls get no reply")
		})
	}
}

func TestDispatcher_HandleEvents(t *testing.T) {
	em := &recordingEmitter{}
	reloads := 0
	d := simhost.NewDispatcher(simhost.Handlers{
		"S": {"a": func(c simhost.Call) { c.Success(true) }},
	}, em, simhost.WithReload(func() { reloads++ }))

	require.NoError(t, d.Handle(relay.EventExec, json.RawMessage(`{"index":1,"service":"S","action":"a"}`), nil))
	require.NoError(t, d.Handle(relay.EventExec, json.RawMessage(`{}`), nil), "protocol errors never fail the connection")
	require.NoError(t, d.Handle(relay.EventRefresh, nil, nil))

	assert.Len(t, em.out, 1)
	assert.Equal(t, 1, reloads)
}

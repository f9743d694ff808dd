package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(ev Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []EventType {
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.EventType()
	}
	return out
}

func failOnTwo(t *testing.T, calls *atomic.Int32) *Processor {
	t.Helper()
	proc, err := NewProcessor("{{a}}", "", CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		calls.Add(1)
		if prompt == "2" {
			return "", errors.New("boom")
		}
		return "ok " + prompt, nil
	}))
	require.NoError(t, err)
	return proc
}

func TestEmitter_MixedInput(t *testing.T) {
	var calls atomic.Int32
	sink := &recordingSink{}
	em := &Emitter{Dispatcher: NewDispatcher(2)}

	outcome, err := em.Run(context.Background(), "run-1",
		strings.NewReader("{\"a\":1}\nnot-json\n{\"a\":2}\n"), failOnTwo(t, &calls), sink)
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventParseError,
		EventItemLog, EventProgress,
		EventItemLog, EventProgress,
		EventDone,
	}, sink.types())
	assert.Equal(t, int32(2), calls.Load())

	pe := sink.events[0].(ParseErrorEvent)
	assert.Equal(t, 2, pe.Line)

	for i, idx := range []int{2, 4} {
		p := sink.events[idx].(ProgressEvent)
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 2, p.Total)
		assert.Equal(t, p.Current, p.Success+p.Error)
	}

	done := sink.events[5].(DoneEvent)
	assert.Equal(t, "run-1", done.RunID)
	assert.Equal(t, 2, done.Total)
	assert.Equal(t, 1, done.Success)
	assert.Equal(t, 1, done.Error)
	require.Len(t, done.Results, 2)
	assert.Equal(t, 1, done.Results[0].Line)
	assert.Equal(t, 3, done.Results[1].Line)

	assert.Equal(t, 2, outcome.Total)
	assert.Equal(t, "run-1", outcome.RunID)
}

func TestEmitter_ItemLogCarriesOutcome(t *testing.T) {
	var calls atomic.Int32
	sink := &recordingSink{}
	em := &Emitter{Dispatcher: NewDispatcher(1)}

	_, err := em.Run(context.Background(), "r", strings.NewReader("{\"a\":1}\n{\"a\":2}"), failOnTwo(t, &calls), sink)
	require.NoError(t, err)

	logs := map[int]ItemLogEvent{}
	for _, ev := range sink.events {
		if l, ok := ev.(ItemLogEvent); ok {
			logs[l.Line] = l
		}
	}
	assert.Equal(t, ItemLogEvent{Line: 1, Status: "success", Output: "ok 1"}, logs[1])
	assert.Equal(t, ItemLogEvent{Line: 2, Status: "error", Error: "boom"}, logs[2])
}

func TestEmitter_NoValidRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []EventType
	}{
		{"only bad lines", "bad\n\n[1]\n", []EventType{EventParseError, EventParseError, EventFatalError}},
		{"empty", "", []EventType{EventFatalError}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			sink := &recordingSink{}

			_, err := (&Emitter{}).Run(context.Background(), "r", strings.NewReader(tt.input), failOnTwo(t, &calls), sink)

			assert.ErrorIs(t, err, ErrNoValidRecords)
			assert.Equal(t, tt.want, sink.types())
			assert.Zero(t, calls.Load())
		})
	}
}

func TestEmitter_FailingSinkDoesNotStopRun(t *testing.T) {
	var calls atomic.Int32
	rec := &recordingSink{}
	broken := SinkFunc(func(Event) error { return errors.New("client went away") })

	outcome, err := (&Emitter{Dispatcher: NewDispatcher(3)}).Run(context.Background(), "r",
		strings.NewReader("{\"a\":1}\n{\"a\":3}\n{\"a\":5}\n"), failOnTwo(t, &calls), MultiSink{broken, rec})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, outcome.Success)
	assert.Len(t, rec.events, 7)
	assert.Equal(t, EventDone, rec.events[6].EventType())
}

func TestEventJSON(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "parse error",
			ev:   ParseErrorEvent{Line: 2, Message: "bad"},
			want: `{"type":"parse_error","line":2,"message":"bad"}`,
		},
		{
			name: "item log",
			ev:   ItemLogEvent{Line: 1, Status: "success", Output: "hi"},
			want: `{"type":"item_log","line":1,"status":"success","output":"hi","error":""}`,
		},
		{
			name: "progress zero counts kept",
			ev:   ProgressEvent{Current: 1, Total: 2, Success: 1},
			want: `{"type":"progress","current":1,"total":2,"success":1,"error":0}`,
		},
		{
			name: "done",
			ev:   DoneEvent{RunID: "r1", Success: 1, Total: 1, Results: []Record{MustParseRecord(1, `{"a":1,"response":"ok"}`)}},
			want: `{"type":"done","run_id":"r1","success":1,"error":0,"total":1,"results":[{"a":1,"response":"ok"}]}`,
		},
		{
			name: "done without results",
			ev:   DoneEvent{RunID: "r2"},
			want: `{"type":"done","run_id":"r2","success":0,"error":0,"total":0,"results":[]}`,
		},
		{
			name: "fatal",
			ev:   FatalErrorEvent{Message: "no valid JSON records in dataset"},
			want: `{"type":"fatal_error","message":"no valid JSON records in dataset"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
			assert.True(t, strings.HasPrefix(string(got), `{"type":`), "type must lead: %s", got)
		})
	}
}

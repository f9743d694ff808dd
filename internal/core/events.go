package core

// events.go turns a streaming run into an ordered sequence of lifecycle
// events: parse errors, one item_log/progress pair per completed record, and
// a final done (or a single fatal_error when nothing could be decoded).
//
// All events are emitted from the goroutine that drains the dispatcher, so a
// Sink never sees concurrent calls.

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"
)

// EventType tags an event on the wire.
type EventType string

const (
	EventParseError EventType = "parse_error"
	EventItemLog    EventType = "item_log"
	EventProgress   EventType = "progress"
	EventDone       EventType = "done"
	EventFatalError EventType = "fatal_error"
)

// Event is one unit of the live status stream. Every event marshals to a
// JSON object with a "type" field.
type Event interface {
	EventType() EventType
}

// ParseErrorEvent reports a dataset line that was skipped.
type ParseErrorEvent struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ItemLogEvent reports one completed record.
type ItemLogEvent struct {
	Line   int    `json:"line"`
	Status string `json:"status"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

// ProgressEvent carries the running totals after a record completes.
type ProgressEvent struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Success int `json:"success"`
	Error   int `json:"error"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	RunID   string   `json:"run_id"`
	Success int      `json:"success"`
	Error   int      `json:"error"`
	Total   int      `json:"total"`
	Results []Record `json:"results"`
}

// FatalErrorEvent ends a stream that could not run.
type FatalErrorEvent struct {
	Message string `json:"message"`
}

func (ParseErrorEvent) EventType() EventType { return EventParseError }
func (ItemLogEvent) EventType() EventType    { return EventItemLog }
func (ProgressEvent) EventType() EventType   { return EventProgress }
func (DoneEvent) EventType() EventType       { return EventDone }
func (FatalErrorEvent) EventType() EventType { return EventFatalError }

func (e ParseErrorEvent) MarshalJSON() ([]byte, error) {
	type plain ParseErrorEvent
	return marshalTagged(EventParseError, plain(e))
}

func (e ItemLogEvent) MarshalJSON() ([]byte, error) {
	type plain ItemLogEvent
	return marshalTagged(EventItemLog, plain(e))
}

func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	type plain ProgressEvent
	return marshalTagged(EventProgress, plain(e))
}

func (e DoneEvent) MarshalJSON() ([]byte, error) {
	type plain DoneEvent
	if e.Results == nil {
		e.Results = []Record{}
	}
	return marshalTagged(EventDone, plain(e))
}

func (e FatalErrorEvent) MarshalJSON() ([]byte, error) {
	type plain FatalErrorEvent
	return marshalTagged(EventFatalError, plain(e))
}

// marshalTagged encodes v (a JSON object) with a leading "type" field.
func marshalTagged(t EventType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(marshalString(string(t)))
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Sink receives events in order. Emit is never called concurrently.
type Sink interface {
	Emit(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Emit calls f.
func (f SinkFunc) Emit(ev Event) error {
	return f(ev)
}

// MultiSink delivers every event to all sinks and returns the first error.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ev Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	ProjectID  string    `json:"project_id,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Error      int       `json:"error"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunObserver is told about streaming run events and finished runs,
// for example to publish them on a message bus. Implementations must not block.
type RunObserver interface {
	ObserveEvent(ctx context.Context, runID string, ev Event)
	ObserveCompleted(ctx context.Context, summary RunSummary)
}

// ObserverSink forwards events of one run to an observer.
func ObserverSink(ctx context.Context, runID string, o RunObserver) Sink {
	return SinkFunc(func(ev Event) error {
		o.ObserveEvent(ctx, runID, ev)
		return nil
	})
}

// Emitter drives a streaming run: tolerant decode, dispatch, events.
type Emitter struct {
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Run decodes input, dispatches every valid record through proc, and reports
// the run to sink. It returns the outcome for bookkeeping.
//
// When input holds no valid record, Run emits a single fatal_error (after any
// parse_error events) and returns ErrNoValidRecords. A failing sink is logged
// and otherwise ignored so the run still finishes.
func (e *Emitter) Run(ctx context.Context, runID string, input io.Reader, proc RecordProcessor, sink Sink) (BatchOutcome, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := e.Dispatcher
	if d == nil {
		d = NewDispatcher(DefaultWorkers)
	}

	var (
		sinkErr   error
		sinkFails int
	)
	emit := func(ev Event) {
		if err := sink.Emit(ev); err != nil {
			sinkFails++
			if sinkErr == nil {
				sinkErr = err
				logger.Warn("event sink failed, continuing run", "run_id", runID, "event", ev.EventType(), "error", err)
			}
		}
	}

	records, bad, err := DecodeTolerant(input)
	for _, de := range bad {
		emit(ParseErrorEvent{Line: de.Line, Message: de.Error()})
	}
	if err != nil {
		emit(FatalErrorEvent{Message: err.Error()})
		return BatchOutcome{RunID: runID}, err
	}
	if len(records) == 0 {
		emit(FatalErrorEvent{Message: ErrNoValidRecords.Error()})
		return BatchOutcome{RunID: runID}, ErrNoValidRecords
	}

	outcome := BatchOutcome{RunID: runID, Results: make([]ItemResult, 0, len(records))}
	total := len(records)
	for res := range d.Stream(ctx, records, proc) {
		outcome.Add(res)
		outcome.Results = append(outcome.Results, res)

		emit(ItemLogEvent{
			Line:   res.Line,
			Status: res.Status(),
			Output: res.Output,
			Error:  res.ErrorText(),
		})
		emit(ProgressEvent{
			Current: outcome.Total,
			Total:   total,
			Success: outcome.Success,
			Error:   outcome.Errors,
		})
	}
	SortResults(outcome.Results)

	emit(DoneEvent{
		RunID:   runID,
		Success: outcome.Success,
		Error:   outcome.Errors,
		Total:   outcome.Total,
		Results: outcome.Records(),
	})

	if sinkFails > 0 {
		logger.Warn("run finished with undelivered events",
			"run_id", runID,
			"failed_emits", sinkFails,
			"error", sinkErr,
		)
	}
	return outcome, nil
}

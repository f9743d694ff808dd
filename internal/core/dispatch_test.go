package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func makeRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = MustParseRecord(i+1, fmt.Sprintf(`{"n":%d}`, i+1))
	}
	return records
}

// echoProcessor answers with the value of n and fails on even numbers.
func echoProcessor(t *testing.T) *Processor {
	t.Helper()
	proc, err := NewProcessor("{{n}}", "out", CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		var n int
		fmt.Sscanf(prompt, "%d", &n)
		if n%2 == 0 {
			return "", fmt.Errorf("even %d", n)
		}
		return "odd " + prompt, nil
	}))
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return proc
}

type processorFunc func(ctx context.Context, rec Record) ItemResult

func (f processorFunc) Process(ctx context.Context, rec Record) ItemResult { return f(ctx, rec) }

func TestClampWorkers(t *testing.T) {
	tests := []struct {
		requested, ceiling, want int
	}{
		{0, 50, 1},
		{-3, 50, 1},
		{5, 50, 5},
		{100, 50, 50},
		{3, 0, 3},
		{0, 0, 1},
	}

	for _, tt := range tests {
		if got := ClampWorkers(tt.requested, tt.ceiling); got != tt.want {
			t.Errorf("ClampWorkers(%d, %d) = %d, want %d", tt.requested, tt.ceiling, got, tt.want)
		}
	}
}

func TestResolveWorkers(t *testing.T) {
	n := func(v int) *int { return &v }
	tests := []struct {
		name      string
		requested *int
		def       int
		ceiling   int
		want      int
	}{
		{"absent uses default", nil, 10, 50, 10},
		{"default capped", nil, 10, 4, 4},
		{"explicit zero", n(0), 10, 50, 1},
		{"explicit negative", n(-1), 10, 50, 1},
		{"explicit value", n(7), 10, 50, 7},
		{"explicit above ceiling", n(80), 10, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveWorkers(tt.requested, tt.def, tt.ceiling); got != tt.want {
				t.Errorf("ResolveWorkers() = %d, want %d", got, tt.want)
			}
		})
	}
}

// peakTracker returns a slow processor and the highest number of calls it saw at once.
func peakTracker() (RecordProcessor, *atomic.Int32) {
	var inFlight, peak atomic.Int32
	proc := processorFunc(func(_ context.Context, rec Record) ItemResult {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return ItemResult{Line: rec.Line, Record: rec}
	})
	return proc, &peak
}

func TestDispatcher_NonPositiveWorkersRunSerially(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, workers := range []int{0, -1} {
		proc, peak := peakTracker()
		outcome := NewDispatcher(workers).Collect(context.Background(), makeRecords(12), proc)

		if outcome.Total != 12 {
			t.Errorf("workers=%d: Total = %d, want 12", workers, outcome.Total)
		}
		if p := peak.Load(); p != 1 {
			t.Errorf("workers=%d: peak in-flight = %d, want 1", workers, p)
		}
	}
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	proc, peak := peakTracker()
	outcome := NewDispatcher(3).Collect(context.Background(), makeRecords(20), proc)

	if outcome.Total != 20 {
		t.Errorf("Total = %d, want 20", outcome.Total)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", p)
	}
}

func TestDispatcher_IsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	outcome := NewDispatcher(4).Collect(context.Background(), makeRecords(9), echoProcessor(t))

	if outcome.Total != 9 || outcome.Success != 5 || outcome.Errors != 4 {
		t.Fatalf("tally = %+v, want total 9 success 5 errors 4", outcome.Tally)
	}
	if outcome.Success+outcome.Errors != outcome.Total {
		t.Errorf("success + errors != total")
	}

	for i, res := range outcome.Results {
		if res.Line != i+1 {
			t.Fatalf("result %d has line %d, results not sorted", i, res.Line)
		}
		got, _ := res.Record.Text("out")
		if res.Line%2 == 0 {
			want := fmt.Sprintf("%seven %d", ErrorMarker, res.Line)
			if got != want || res.OK() {
				t.Errorf("line %d: out = %q, want %q", res.Line, got, want)
			}
		} else if want := fmt.Sprintf("odd %d", res.Line); got != want {
			t.Errorf("line %d: out = %q, want %q", res.Line, got, want)
		}
	}
}

func TestDispatcher_WorkerCountDoesNotChangeResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	render := func(o BatchOutcome) []string {
		out := make([]string, len(o.Results))
		for i, r := range o.Results {
			b, _ := r.Record.MarshalJSON()
			out[i] = string(b)
		}
		return out
	}

	records := makeRecords(12)
	serial := NewDispatcher(1).Collect(context.Background(), records, echoProcessor(t))
	wide := NewDispatcher(100).Collect(context.Background(), records, echoProcessor(t))

	if diff := cmp.Diff(serial.Tally, wide.Tally); diff != "" {
		t.Errorf("tally mismatch (-serial +wide):\n%s", diff)
	}
	if diff := cmp.Diff(render(serial), render(wide)); diff != "" {
		t.Errorf("records mismatch (-serial +wide):\n%s", diff)
	}
}

func TestDispatcher_StreamsInCompletionOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	proc := processorFunc(func(_ context.Context, rec Record) ItemResult {
		if rec.Line == 1 {
			<-release
		}
		return ItemResult{Line: rec.Line, Record: rec}
	})

	ch := NewDispatcher(2).Stream(context.Background(), makeRecords(2), proc)

	first := <-ch
	close(release)
	second := <-ch

	if first.Line != 2 || second.Line != 1 {
		t.Errorf("order = [%d %d], want [2 1]", first.Line, second.Line)
	}
	if _, ok := <-ch; ok {
		t.Error("channel not closed after last result")
	}
}

func TestDispatcher_CancelledContextStillYieldsEveryRecord(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc, err := NewProcessor("{{n}}", "", CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	}))
	if err != nil {
		t.Fatal(err)
	}

	outcome := NewDispatcher(2).Collect(ctx, makeRecords(5), proc)

	if outcome.Total != 5 || outcome.Errors != 5 {
		t.Errorf("tally = %+v, want 5 errors of 5", outcome.Tally)
	}
	for _, res := range outcome.Results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("line %d: err = %v, want context.Canceled", res.Line, res.Err)
		}
	}
}

func TestDispatcher_EmptyInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	outcome := NewDispatcher(4).Collect(context.Background(), nil, echoProcessor(t))
	if outcome.Total != 0 || len(outcome.Results) != 0 {
		t.Errorf("outcome = %+v, want empty", outcome)
	}
}

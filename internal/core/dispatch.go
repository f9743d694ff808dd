package core

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the worker count used when a run does not ask for one.
const DefaultWorkers = 10

// ClampWorkers bounds a worker count to at least one and at most ceiling.
// A non-positive ceiling means no cap.
func ClampWorkers(n, ceiling int) int {
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return max(n, 1)
}

// ResolveWorkers picks def when requested is nil and clamps the result.
func ResolveWorkers(requested *int, def, ceiling int) int {
	n := def
	if requested != nil {
		n = *requested
	}
	return ClampWorkers(n, ceiling)
}

// Tally counts results.
type Tally struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"error"`
}

// Add counts one result.
func (t *Tally) Add(r ItemResult) {
	t.Total++
	if r.Err != nil {
		t.Errors++
	} else {
		t.Success++
	}
}

// BatchOutcome is the result of a collect-all run.
type BatchOutcome struct {
	RunID string
	Tally
	// Results holds one entry per dispatched record, sorted by source line.
	Results []ItemResult
}

// Records returns the processed records in result order.
func (o BatchOutcome) Records() []Record {
	out := make([]Record, len(o.Results))
	for i, r := range o.Results {
		out[i] = r.Record
	}
	return out
}

// Dispatcher runs a RecordProcessor over a record set with at most Workers
// calls in flight.
type Dispatcher struct {
	Workers int
}

// NewDispatcher returns a dispatcher with workers clamped to at least one.
func NewDispatcher(workers int) *Dispatcher {
	return &Dispatcher{Workers: ClampWorkers(workers, 0)}
}

// Stream processes records concurrently and sends each result the moment it
// is ready. The channel is closed after the last result. Every record yields
// exactly one result; after ctx is done, queued records still pass through
// proc with the cancelled context and come back as failures.
//
// The caller must drain the channel.
func (d *Dispatcher) Stream(ctx context.Context, records []Record, proc RecordProcessor) <-chan ItemResult {
	out := make(chan ItemResult)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(ClampWorkers(d.Workers, 0))

		for _, rec := range records {
			g.Go(func() error {
				out <- proc.Process(ctx, rec)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// Collect runs Stream to completion and returns the results sorted by line.
func (d *Dispatcher) Collect(ctx context.Context, records []Record, proc RecordProcessor) BatchOutcome {
	outcome := BatchOutcome{Results: make([]ItemResult, 0, len(records))}
	for res := range d.Stream(ctx, records, proc) {
		outcome.Add(res)
		outcome.Results = append(outcome.Results, res)
	}
	SortResults(outcome.Results)
	return outcome
}

// SortResults orders results by source line.
func SortResults(results []ItemResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Line < results[j].Line
	})
}

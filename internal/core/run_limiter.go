package core

// run_limiter.go bounds how many processing runs execute at once.
//
// Each run already fans out to its own worker pool, so the limiter caps the
// number of pools rather than the number of calls. A run that cannot get a
// slot within maxWait fails with ErrTooManyRuns. Drain blocks until every
// admitted run has released its slot and is used during shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyRuns is returned when all run slots stay occupied for the whole wait.
var ErrTooManyRuns = errors.New("too many runs in progress, please try again later")

const (
	// DefaultMaxConcurrentRuns is used when the configured limit is not positive.
	DefaultMaxConcurrentRuns = 4

	// DefaultMaxWaitTime is how long Acquire waits for a slot by default.
	DefaultMaxWaitTime = 30 * time.Second
)

// RunLimiter is a counting semaphore for runs.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	waiting int
	idle    chan struct{} // closed while active == 0
}

// NewRunLimiter allows at most maxConcurrent runs, each waiting at most maxWait.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// Acquire takes a slot, waiting up to the configured wait time.
// Every successful Acquire must be paired with exactly one Release.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.waiting++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.waiting--
		l.mu.Unlock()
	}()

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.admit()
		return nil
	case <-timer.C:
		return ErrTooManyRuns
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *RunLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.admit()
		return true
	default:
		return false
	}
}

func (l *RunLimiter) admit() {
	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
}

// Drain blocks until no run holds a slot or ctx is done.
func (l *RunLimiter) Drain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunLimiterStatus is a snapshot of the limiter for the run-queue endpoint.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return RunLimiterStatus{
		Active:        l.active,
		Waiting:       l.waiting,
		Available:     cap(l.slots) - l.active,
		MaxConcurrent: cap(l.slots),
	}
}

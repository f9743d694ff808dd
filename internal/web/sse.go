package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/JonMunkholm/promptfactory/internal/core"
)

// sseSink writes run events as server-sent events, one "data:" frame per
// event. Headers are sent with the first event so that errors raised before
// any event can still be answered with a normal JSON error.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	broken  error
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

// Emit implements core.Sink. After a write fails, later events are dropped
// and the first write error is returned.
func (s *sseSink) Emit(ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return s.broken
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.EventType(), err)
	}

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.broken = err
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.broken = err
		return err
	}
	return nil
}

// Started reports whether the event stream has begun.
func (s *sseSink) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

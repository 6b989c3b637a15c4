package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// Emitter receives protocol events. The query pipeline writes through this
// interface so it never touches HTTP directly.
type Emitter interface {
	Emit(event Event) error
}

// Writer frames events onto an HTTP response, flushing after each one.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	metrics *observability.Metrics
}

// NewWriter prepares the response for event streaming. Fails when the
// underlying writer cannot flush.
func NewWriter(w http.ResponseWriter, metrics *observability.Metrics) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher, metrics: metrics}, nil
}

// Emit marshals the event and writes one data frame.
func (s *Writer) Emit(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.EventType(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write %s event: %w", event.EventType(), err)
	}
	s.flusher.Flush()

	if s.metrics != nil {
		s.metrics.SSEEvents.WithLabelValues(event.EventType()).Inc()
	}
	return nil
}

var _ Emitter = (*Writer)(nil)

// Collector buffers events in memory for tests.
type Collector struct {
	mu     sync.Mutex
	Events []Event
}

// Emit appends the event.
func (c *Collector) Emit(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, event)
	return nil
}

// Types returns the event type sequence.
func (c *Collector) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, len(c.Events))
	for i, e := range c.Events {
		types[i] = e.EventType()
	}
	return types
}

var _ Emitter = (*Collector)(nil)

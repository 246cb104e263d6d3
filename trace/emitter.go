package trace

import (
	"sync"
	"time"
)

// Sink is implemented by every trace destination. Sinks must tolerate
// high-frequency writes; backpressure is the sink's own responsibility — the
// emitter never drops an event.
type Sink interface {
	Emit(event Event) error
	Close() error
}

// Emitter fans one logical event stream out to every configured Sink. It is
// safe for concurrent Emit calls, matching spec.md §5's requirement that
// trace sinks tolerate use from multiple runtime instances.
type Emitter struct {
	mu    sync.Mutex
	sinks []Sink
	runID string
	now   func() time.Time
}

// NewEmitter constructs an Emitter for the given run id, fanning out to the
// given sinks in order.
func NewEmitter(runID string, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, runID: runID, now: time.Now}
}

// Emit appends Type/RunID/TimestampMs to data and forwards the event to
// every sink. The first sink error is returned, but every sink is still
// attempted — a single broken sink must not silently stop the others from
// receiving events.
func (e *Emitter) Emit(typ Type, stepID string, data map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	evt := Event{
		Type:        typ,
		RunID:       e.runID,
		StepID:      stepID,
		TimestampMs: e.now().UnixMilli(),
		Data:        data,
	}

	var firstErr error
	for _, s := range e.sinks {
		if err := s.Emit(evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink, returning the first error encountered.
func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

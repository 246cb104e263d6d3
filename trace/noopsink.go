package trace

// NoopSink discards every event. Useful for runtime instances driven purely
// for side effects (e.g. one-off scripts) that have no interest in a replay
// transcript.
type NoopSink struct{}

func (NoopSink) Emit(Event) error { return nil }
func (NoopSink) Close() error     { return nil }

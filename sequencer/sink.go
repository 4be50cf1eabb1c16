package sequencer

// TriggerSink is the boundary that turns scheduled steps into actual sound.
// Implementations wrap the external engine (MIDI out, RPC, ...). All calls are
// fire-and-forget from the scheduler's point of view: errors are logged at the
// call site and never stop the loop.
type TriggerSink interface {
	// EnsureRunning is idempotent and called before the first note of a
	// playback session.
	EnsureRunning() error
	// NoteOn starts a note. Velocity is 0..1.
	NoteOn(part, pitch int, velocity float64) error
	// NoteOff releases a note previously started on the same part.
	NoteOff(part, pitch int) error
}

// NopSink discards all triggers. Useful for tests and headless dry runs.
type NopSink struct{}

func (NopSink) EnsureRunning() error           { return nil }
func (NopSink) NoteOn(int, int, float64) error { return nil }
func (NopSink) NoteOff(int, int) error         { return nil }

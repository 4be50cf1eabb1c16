package sequencer

import (
	"errors"
	"testing"
	"time"

	"github.com/Zandman001/subcellos-sub000/clock"
)

// fakeClock drives the scheduler deterministically.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// sinkCall records one trigger boundary crossing.
type sinkCall struct {
	kind  string // "on" or "off"
	part  int
	pitch int
	vel   float64
	at    time.Time
}

// recordingSink counts and timestamps every trigger call.
type recordingSink struct {
	clk     *fakeClock
	calls   []sinkCall
	ensures int
	fail    bool // all calls return an error, calls still recorded
}

func (r *recordingSink) EnsureRunning() error {
	r.ensures++
	if r.fail {
		return errors.New("engine not ready")
	}
	return nil
}

func (r *recordingSink) NoteOn(part, pitch int, vel float64) error {
	r.calls = append(r.calls, sinkCall{kind: "on", part: part, pitch: pitch, vel: vel, at: r.clk.t})
	if r.fail {
		return errors.New("send failed")
	}
	return nil
}

func (r *recordingSink) NoteOff(part, pitch int) error {
	r.calls = append(r.calls, sinkCall{kind: "off", part: part, pitch: pitch, at: r.clk.t})
	if r.fail {
		return errors.New("send failed")
	}
	return nil
}

func (r *recordingSink) ons() []sinkCall  { return r.filter("on") }
func (r *recordingSink) offs() []sinkCall { return r.filter("off") }

func (r *recordingSink) filter(kind string) []sinkCall {
	var out []sinkCall
	for _, c := range r.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingSink) reset() { r.calls = nil }

// newTestEngine builds an engine with an in-memory snapshot store, a
// recording sink and a fake clock. Loops are not started; tests drive
// RunTick/playheadPass directly.
func newTestEngine(t *testing.T, snaps SnapshotStore) (*Engine, *recordingSink, *fakeClock) {
	t.Helper()
	if snaps == nil {
		snaps = NewMemSnapshots()
	}
	clk := newFakeClock()
	sink := &recordingSink{clk: clk}
	e := NewEngine(NewStore(snaps), NewTransport(120, "A"), sink, Options{})
	e.now = clk.now
	return e, sink, clk
}

// pump advances the fake clock in tick-interval increments, running the
// scheduler at each one, for the given span.
func pump(e *Engine, clk *fakeClock, span, tick time.Duration) {
	for elapsed := time.Duration(0); elapsed < span; elapsed += tick {
		clk.advance(tick)
		e.RunTick(clk.now())
	}
}

// putNote is shorthand for placing a single note.
func putNote(e *Engine, key Key, step, pitch int) {
	e.SetNote(key, step, Note{Pitch: pitch, Velocity: 0.8})
}

func TestLazyCreationDefaults(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	sv := e.Sequence("A", "bass")
	if sv.Length != DefaultSteps {
		t.Errorf("length = %d, want %d", sv.Length, DefaultSteps)
	}
	if sv.Res != clock.DefaultResolution {
		t.Errorf("resolution = %s, want %s", sv.Res, clock.DefaultResolution)
	}
	if sv.Mode != ModeTempo {
		t.Errorf("mode = %s, want %s", sv.Mode, ModeTempo)
	}
	if sv.LocalBPM != 120 {
		t.Errorf("localBpm = %v, want 120", sv.LocalBPM)
	}
	if sv.Kind != KindSynth {
		t.Errorf("kind = %s, want %s", sv.Kind, KindSynth)
	}
	if sv.PlayingLocal || sv.PlayingGlobal {
		t.Error("new sequence should not be playing")
	}
}

func TestSetterClamping(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	key := Key{Pattern: "A", Sound: "bass"}

	e.SetLength(key, 0)
	if got := e.Sequence("A", "bass").Length; got != 1 {
		t.Errorf("length clamped to %d, want 1", got)
	}
	e.SetLength(key, 1000)
	if got := e.Sequence("A", "bass").Length; got != MaxSteps {
		t.Errorf("length clamped to %d, want %d", got, MaxSteps)
	}

	e.SetLocalBPM(key, 1)
	if got := e.Sequence("A", "bass").LocalBPM; got != MinLocalBPM {
		t.Errorf("bpm clamped to %v, want %v", got, float64(MinLocalBPM))
	}
	e.SetLocalBPM(key, 9999)
	if got := e.Sequence("A", "bass").LocalBPM; got != MaxLocalBPM {
		t.Errorf("bpm clamped to %v, want %v", got, float64(MaxLocalBPM))
	}

	e.SetPart(key, -3)
	if got := e.Sequence("A", "bass").Part; got != 0 {
		t.Errorf("part clamped to %d, want 0", got)
	}
	e.SetPart(key, 99)
	if got := e.Sequence("A", "bass").Part; got != MaxPart {
		t.Errorf("part clamped to %d, want %d", got, MaxPart)
	}

	// Unknown resolution falls back to the default instead of erroring.
	e.SetResolution(key, "1/7")
	if got := e.Sequence("A", "bass").Res; got != clock.DefaultResolution {
		t.Errorf("resolution = %s, want %s", got, clock.DefaultResolution)
	}

	// Note values are clamped too.
	e.SetNote(key, 0, Note{Pitch: 300, Velocity: 4})
	n := e.Sequence("A", "bass").Steps[0].Notes[0]
	if n.Pitch != 127 || n.Velocity != 1 {
		t.Errorf("note not clamped: %+v", n)
	}
}

func TestSinkErrorsDoNotStopScheduler(t *testing.T) {
	e, sink, clk := newTestEngine(t, nil)
	sink.fail = true
	key := Key{Pattern: "A", Sound: "bass"}
	e.SetLength(key, 4)
	for i := 0; i < 4; i++ {
		putNote(e, key, i, 60+i)
	}

	e.StartLocal(key)
	pump(e, clk, time.Second, DefaultTickInterval)

	// 1/16 at 120 bpm: 16 steps in one second; every one recorded even though
	// every send errored.
	if got := len(sink.ons()); got < 16 {
		t.Fatalf("scheduler stalled on sink errors: %d note-ons", got)
	}
}

func TestEnsureRunningCalledOnPlaybackStart(t *testing.T) {
	e, sink, _ := newTestEngine(t, nil)
	key := Key{Pattern: "A", Sound: "bass"}
	e.Sequence("A", "bass")

	e.StartLocal(key)
	if sink.ensures != 1 {
		t.Fatalf("ensures = %d after StartLocal, want 1", sink.ensures)
	}
	e.StopLocal(key)
	e.StartGlobal()
	if sink.ensures != 2 {
		t.Fatalf("ensures = %d after StartGlobal, want 2", sink.ensures)
	}
}

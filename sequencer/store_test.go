package sequencer

import (
	"os"
	"testing"

	"github.com/Zandman001/subcellos-sub000/clock"
)

func TestEditsPersistAcrossRestore(t *testing.T) {
	snaps := NewMemSnapshots()
	key := Key{Pattern: "A", Sound: "bass"}

	e, _, _ := newTestEngine(t, snaps)
	e.SetNote(key, 2, Note{Pitch: 40, Velocity: 0.7, Legato: true})
	e.SetLength(key, 12)
	e.SetResolution(key, clock.Res8)
	e.SetMode(key, ModePoly)
	e.SetLocalBPM(key, 95)
	e.SetPart(key, 3)
	e.SetKind(key, KindSampler)

	// A fresh engine over the same snapshot store restores every persisted
	// field; playback state starts fresh.
	e2, _, _ := newTestEngine(t, snaps)
	sv := e2.Sequence("A", "bass")
	if sv.Length != 12 || sv.Res != clock.Res8 || sv.Mode != ModePoly {
		t.Fatalf("restored length/res/mode = %d/%s/%s", sv.Length, sv.Res, sv.Mode)
	}
	if sv.LocalBPM != 95 || sv.Part != 3 || sv.Kind != KindSampler {
		t.Fatalf("restored bpm/part/kind = %v/%d/%s", sv.LocalBPM, sv.Part, sv.Kind)
	}
	notes := sv.Steps[2].Notes
	if len(notes) != 1 || notes[0].Pitch != 40 || !notes[0].Legato {
		t.Fatalf("restored step 2 notes = %v", notes)
	}
	if sv.PlayingLocal || sv.PlayingGlobal || sv.LastTriggered {
		t.Fatal("transient playback state leaked into restore")
	}
}

func TestRestoreNormalizesOutOfRangeSnapshot(t *testing.T) {
	snaps := NewMemSnapshots()
	key := Key{Pattern: "A", Sound: "bass"}
	snaps.Save(key, &Snapshot{
		Steps:      []Step{{Notes: []Note{{Pitch: 500, Velocity: 3}}}},
		Length:     1000,
		Resolution: "1/13",
		Mode:       "swing",
		LocalBPM:   1,
		Part:       99,
		Kind:       "theremin",
	})

	e, _, _ := newTestEngine(t, snaps)
	sv := e.Sequence("A", "bass")
	if sv.Length != MaxSteps {
		t.Errorf("length = %d, want clamped to %d", sv.Length, MaxSteps)
	}
	if sv.Res != clock.DefaultResolution {
		t.Errorf("resolution = %s, want %s", sv.Res, clock.DefaultResolution)
	}
	if sv.Mode != ModeTempo {
		t.Errorf("mode = %s, want %s", sv.Mode, ModeTempo)
	}
	if sv.LocalBPM != MinLocalBPM {
		t.Errorf("bpm = %v, want %v", sv.LocalBPM, float64(MinLocalBPM))
	}
	if sv.Part != MaxPart {
		t.Errorf("part = %d, want %d", sv.Part, MaxPart)
	}
	if sv.Kind != KindSynth {
		t.Errorf("kind = %s, want %s", sv.Kind, KindSynth)
	}
	n := sv.Steps[0].Notes[0]
	if n.Pitch != 127 || n.Velocity != 1 {
		t.Errorf("note = %+v, want pitch/velocity clamped", n)
	}
}

func TestLoadErrorFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	snaps := NewFileSnapshots(dir)
	key := Key{Pattern: "A", Sound: "bass"}
	if err := snaps.Save(key, &Snapshot{Length: 8}); err != nil {
		t.Fatal(err)
	}
	// Corrupt the file on disk.
	if err := os.WriteFile(snaps.path(key), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	e, _, _ := newTestEngine(t, snaps)
	sv := e.Sequence("A", "bass")
	if sv.Length != DefaultSteps {
		t.Fatalf("length = %d, want defaults after load failure", sv.Length)
	}
}

func TestFileSnapshotsRoundTrip(t *testing.T) {
	snaps := NewFileSnapshots(t.TempDir())
	key := Key{Pattern: "my pattern/2", Sound: "bass:a"}

	if snap, err := snaps.Load(key); err != nil || snap != nil {
		t.Fatalf("missing snapshot: got %v, %v; want nil, nil", snap, err)
	}
	want := &Snapshot{
		Steps:      []Step{{Notes: []Note{{Pitch: 60, Velocity: 0.8}}}},
		Length:     4,
		Resolution: clock.Res16,
		Mode:       ModeTempo,
		LocalBPM:   120,
		Kind:       KindDrum,
	}
	if err := snaps.Save(key, want); err != nil {
		t.Fatal(err)
	}
	got, err := snaps.Load(key)
	if err != nil || got == nil {
		t.Fatalf("load: %v, %v", got, err)
	}
	if got.Length != 4 || got.Kind != KindDrum || got.Steps[0].Notes[0].Pitch != 60 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if err := snaps.Delete(key); err != nil {
		t.Fatal(err)
	}
	if snap, _ := snaps.Load(key); snap != nil {
		t.Fatal("snapshot survived delete")
	}
	// Double delete is fine.
	if err := snaps.Delete(key); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotFilenamesDoNotCollide(t *testing.T) {
	snaps := NewFileSnapshots(t.TempDir())
	// Underscores in key components must not be confusable with the "__"
	// separator between pattern and sound.
	a := Key{Pattern: "x_", Sound: "y"}
	b := Key{Pattern: "x", Sound: "_y"}
	if snaps.path(a) == snaps.path(b) {
		t.Fatalf("distinct keys share file %s", snaps.path(a))
	}

	if err := snaps.Save(a, &Snapshot{Length: 4}); err != nil {
		t.Fatal(err)
	}
	if err := snaps.Save(b, &Snapshot{Length: 8}); err != nil {
		t.Fatal(err)
	}
	ga, err := snaps.Load(a)
	if err != nil || ga == nil {
		t.Fatalf("load a: %v, %v", ga, err)
	}
	gb, err := snaps.Load(b)
	if err != nil || gb == nil {
		t.Fatalf("load b: %v, %v", gb, err)
	}
	if ga.Length != 4 || gb.Length != 8 {
		t.Fatalf("snapshots overwrote each other: %d, %d", ga.Length, gb.Length)
	}
}

func TestDeleteSoundReleasesAndForgets(t *testing.T) {
	snaps := NewMemSnapshots()
	e, sink, clk := newTestEngine(t, snaps)
	key := Key{Pattern: "A", Sound: "lead"}
	e.SetNote(key, 0, Note{Pitch: 64, Velocity: 0.9})

	e.StartGlobal()
	clk.advance(DefaultTickInterval)
	e.RunTick(clk.now())

	e.DeleteSound("A", "lead")

	offs := sink.offs()
	if len(offs) != 1 || offs[0].pitch != 64 {
		t.Fatalf("offs = %v, want held note released on delete", offs)
	}
	if e.store.Peek(key) != nil {
		t.Fatal("sequence still registered after delete")
	}
	if snap, _ := snaps.Load(key); snap != nil {
		t.Fatal("snapshot survived delete")
	}
	// Re-access starts from defaults, not the old content.
	if sv := e.Sequence("A", "lead"); len(sv.Steps[0].Notes) != 0 {
		t.Fatalf("recreated sequence kept old notes: %v", sv.Steps[0].Notes)
	}
}

func TestDeletePatternRemovesAllSounds(t *testing.T) {
	snaps := NewMemSnapshots()
	e, sink, clk := newTestEngine(t, snaps)
	keyBass := Key{Pattern: "A", Sound: "bass"}
	keyLead := Key{Pattern: "A", Sound: "lead"}
	keyOther := Key{Pattern: "B", Sound: "bass"}
	e.SetNote(keyBass, 0, Note{Pitch: 40, Velocity: 0.8})
	e.SetNote(keyLead, 0, Note{Pitch: 64, Velocity: 0.8})
	e.SetNote(keyOther, 0, Note{Pitch: 41, Velocity: 0.8})

	e.StartGlobal()
	clk.advance(DefaultTickInterval)
	e.RunTick(clk.now())

	e.DeletePattern("A")

	if got := len(sink.offs()); got != 2 {
		t.Fatalf("released %d notes, want 2", got)
	}
	if e.store.Peek(keyBass) != nil || e.store.Peek(keyLead) != nil {
		t.Fatal("pattern A sequences still registered")
	}
	if e.store.Peek(keyOther) == nil {
		t.Fatal("pattern B sequence was removed too")
	}
	if snap, _ := snaps.Load(keyBass); snap != nil {
		t.Fatal("pattern A snapshot survived delete")
	}
}

func TestPatternBarsTracksLongestSequence(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	keyA := Key{Pattern: "A", Sound: "bass"}
	keyB := Key{Pattern: "A", Sound: "lead"}
	e.SetLength(keyA, 16) // one bar at 1/16
	e.SetLength(keyB, 20) // spills into a second bar

	if got := e.PatternBars(); got != 2 {
		t.Fatalf("bars = %d, want 2", got)
	}

	// An 1/8-resolution sequence of 20 steps spans 3 bars (8 steps per bar).
	e.SetResolution(keyB, clock.Res8)
	if got := e.PatternBars(); got != 3 {
		t.Fatalf("bars = %d, want 3", got)
	}
}

func TestToggleNoteAddsThenRemoves(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	key := Key{Pattern: "A", Sound: "bass"}
	note := Note{Pitch: 60, Velocity: 0.8}

	e.ToggleNote(key, 3, note)
	if sv := e.Sequence("A", "bass"); len(sv.Steps[3].Notes) != 1 {
		t.Fatalf("steps[3] = %v after first toggle", sv.Steps[3].Notes)
	}
	e.ToggleNote(key, 3, note)
	if sv := e.Sequence("A", "bass"); len(sv.Steps[3].Notes) != 0 {
		t.Fatalf("steps[3] = %v after second toggle", sv.Steps[3].Notes)
	}
}

func TestShortenLengthThenRestoreKeepsHiddenSteps(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	key := Key{Pattern: "A", Sound: "bass"}
	putNote(e, key, 10, 50)

	e.SetLength(key, 8)
	e.SetLength(key, 16)

	// Steps beyond the loop point are hidden, not erased.
	if sv := e.Sequence("A", "bass"); len(sv.Steps[10].Notes) != 1 {
		t.Fatalf("steps[10] = %v, want note preserved across length change", sv.Steps[10].Notes)
	}
}

package sequencer

import "testing"

func TestGhostReflectsOccupancy(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	keyBass := Key{Pattern: "A", Sound: "bass"}
	keyLead := Key{Pattern: "A", Sound: "lead"}
	putNote(e, keyBass, 0, 40)
	putNote(e, keyBass, 4, 43)
	e.SetLength(keyLead, 8)
	putNote(e, keyLead, 7, 72)

	rows := e.Ghost()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// ForPattern orders by sound, so bass comes first.
	bass, lead := rows[0], rows[1]
	if bass.Sound != "bass" || lead.Sound != "lead" {
		t.Fatalf("row order = %s, %s", bass.Sound, lead.Sound)
	}
	if len(bass.Active) != DefaultSteps || !bass.Active[0] || !bass.Active[4] || bass.Active[1] {
		t.Fatalf("bass occupancy = %v", bass.Active)
	}
	if lead.Length != 8 || len(lead.Active) != 8 || !lead.Active[7] {
		t.Fatalf("lead row = %+v", lead)
	}
}

func TestGhostIsMemoizedUntilEdit(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	key := Key{Pattern: "A", Sound: "bass"}
	putNote(e, key, 0, 40)

	first := e.Ghost()
	second := e.Ghost()
	if &first[0] != &second[0] {
		t.Fatal("unchanged pattern recomputed ghost rows")
	}

	putNote(e, key, 3, 42)
	third := e.Ghost()
	if &third[0] == &first[0] {
		t.Fatal("edit did not invalidate ghost cache")
	}
	if !third[0].Active[3] {
		t.Fatal("recomputed rows missing new note")
	}
}

func TestGhostTracksActivePattern(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	putNote(e, Key{Pattern: "A", Sound: "bass"}, 0, 40)
	putNote(e, Key{Pattern: "B", Sound: "keys"}, 0, 60)

	if rows := e.Ghost(); len(rows) != 1 || rows[0].Sound != "bass" {
		t.Fatalf("rows for A = %+v", rows)
	}
	e.SwitchPattern("B")
	if rows := e.Ghost(); len(rows) != 1 || rows[0].Sound != "keys" {
		t.Fatalf("rows for B = %+v", rows)
	}
}

func TestGhostNewSoundInvalidates(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	putNote(e, Key{Pattern: "A", Sound: "bass"}, 0, 40)

	before := e.Ghost()
	e.Sequence("A", "lead") // materializes a new row
	after := e.Ghost()
	if len(before) != 1 || len(after) != 2 {
		t.Fatalf("rows = %d then %d, want 1 then 2", len(before), len(after))
	}
}

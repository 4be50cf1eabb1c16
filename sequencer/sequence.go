package sequencer

import (
	"time"

	"github.com/Zandman001/subcellos-sub000/clock"
)

const (
	// MaxSteps is the longest a sequence can be.
	MaxSteps = 64
	// DefaultSteps is the length of a freshly created sequence.
	DefaultSteps = 16

	// MinLocalBPM and MaxLocalBPM bound a sequence's own tempo.
	MinLocalBPM = 20
	MaxLocalBPM = 240

	// MaxPart is the highest engine routing index.
	MaxPart = 5
)

// ModuleKind determines trigger semantics: synth notes are held and released
// explicitly, sampler and drum notes are one-shots.
type ModuleKind string

const (
	KindSynth   ModuleKind = "synth"
	KindSampler ModuleKind = "sampler"
	KindDrum    ModuleKind = "drum"
)

// ClockMode selects which clock a sequence follows while the global transport
// runs: tempo sequences lock to the global clock, poly sequences always run on
// their own BPM.
type ClockMode string

const (
	ModeTempo ClockMode = "tempo"
	ModePoly  ClockMode = "poly"
)

// Note is a single pitch in a step. Legato marks "this note continues the
// previous step's identical pitch rather than re-triggering".
type Note struct {
	Pitch    int     `json:"pitch"`
	Velocity float64 `json:"velocity"`
	Legato   bool    `json:"legato,omitempty"`
}

// Step is one time slot holding zero or more notes.
type Step struct {
	Notes []Note `json:"notes,omitempty"`
}

// Key identifies a sequence: one per (pattern, sound) pair.
type Key struct {
	Pattern string
	Sound   string
}

// Sequence is a per-(pattern, sound) step sequencer instance.
// Playback-control fields are mutated only by the Engine under its lock.
type Sequence struct {
	Key  Key
	Part int        // engine routing index, 0..MaxPart
	Kind ModuleKind

	Steps    []Step
	Length   int // 1..MaxSteps, steps beyond it are ignored
	Res      clock.Resolution
	Mode     ClockMode
	LocalBPM float64

	Muted bool

	// Transient playback state, observational for the UI.
	PlayingLocal  bool
	PlayingGlobal bool
	PlayheadFrac  float64 // 0..1, display only
	PlayheadStep  int     // last fired step index
	LastTriggered bool    // visual flash, auto-cleared

	// heldNotes: synth pitches currently sounding, owned by this sequence.
	held map[int]struct{}

	// Scheduler-private fields. Only the step scheduler touches these.
	anchor     time.Time
	stepCount  int64
	nextStep   time.Time
	lastStep   int
	scheduled  bool // anchor/nextStep initialized since playback start
	flashUntil time.Time

	version uint64 // bumped on every structural edit
}

// NewSequence returns a sequence with default initialization for the key.
func NewSequence(key Key) *Sequence {
	return &Sequence{
		Key:      key,
		Kind:     KindSynth,
		Steps:    make([]Step, DefaultSteps),
		Length:   DefaultSteps,
		Res:      clock.DefaultResolution,
		Mode:     ModeTempo,
		LocalBPM: 120,
		lastStep: -1,
		held:     make(map[int]struct{}),
	}
}

// Playing reports whether the sequence is running on either transport.
func (s *Sequence) Playing() bool {
	return s.PlayingLocal || s.PlayingGlobal
}

// Version returns the mutation counter, used by derived projections to
// invalidate caches.
func (s *Sequence) Version() uint64 {
	return s.version
}

func (s *Sequence) bump() {
	s.version++
}

// StepNotes returns the notes at step i, treating out-of-range or missing
// entries as empty.
func (s *Sequence) StepNotes(i int) []Note {
	if i < 0 || i >= s.Length || i >= len(s.Steps) {
		return nil
	}
	return s.Steps[i].Notes
}

// HasNoteAt reports whether step i holds at least one note.
func (s *Sequence) HasNoteAt(i int) bool {
	return len(s.StepNotes(i)) > 0
}

// HeldPitches returns a snapshot of the currently sounding synth pitches.
func (s *Sequence) HeldPitches() []int {
	out := make([]int, 0, len(s.held))
	for p := range s.held {
		out = append(out, p)
	}
	return out
}

// ensureSteps grows the steps slice so indexes below Length exist.
func (s *Sequence) ensureSteps() {
	for len(s.Steps) < s.Length {
		s.Steps = append(s.Steps, Step{})
	}
}

// resetPlayback clears transient scheduling state ahead of a (re)start.
func (s *Sequence) resetPlayback() {
	s.PlayheadFrac = 0
	s.PlayheadStep = 0
	s.lastStep = -1
	s.stepCount = 0
	s.scheduled = false
}

func clampPart(part int) int {
	if part < 0 {
		return 0
	}
	if part > MaxPart {
		return MaxPart
	}
	return part
}

func clampLength(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxSteps {
		return MaxSteps
	}
	return n
}

func clampBPM(bpm float64) float64 {
	if bpm < MinLocalBPM {
		return MinLocalBPM
	}
	if bpm > MaxLocalBPM {
		return MaxLocalBPM
	}
	return bpm
}

func clampPitch(p int) int {
	if p < 0 {
		return 0
	}
	if p > 127 {
		return 127
	}
	return p
}

func clampVelocity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

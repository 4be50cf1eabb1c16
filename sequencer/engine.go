package sequencer

import (
	"sync"
	"time"

	"github.com/Zandman001/subcellos-sub000/clock"
	"github.com/Zandman001/subcellos-sub000/debug"
)

// Scheduler timing defaults. The tick interval is tunable (Options); the rest
// are package constants.
const (
	// DefaultTickInterval drives the step scheduler loop.
	DefaultTickInterval = 5 * time.Millisecond
	// LowPowerTickInterval widens the loop to reduce CPU draw.
	LowPowerTickInterval = 20 * time.Millisecond

	// DefaultUIRate is the playhead refresh rate in frames per second.
	DefaultUIRate = 30
	// LowPowerUIRate is the coarser low-power refresh rate.
	LowPowerUIRate = 10

	// boundaryTolerance absorbs timer jitter around a step boundary.
	boundaryTolerance = 2 * time.Millisecond

	// lateFraction: when the loop falls behind by more than this share of one
	// step, re-anchor instead of firing a catch-up burst. Pragmatic threshold,
	// not a proven bound.
	lateFraction = 0.6

	// maxCatchUpSteps bounds how many boundaries one tick may fire per
	// sequence. Safety valve against runaway catch-up.
	maxCatchUpSteps = 4

	// flashDuration is how long LastTriggered stays set. Display only.
	flashDuration = 90 * time.Millisecond
)

// Options tunes the engine loops.
type Options struct {
	TickInterval time.Duration // 0 = DefaultTickInterval
	UIRate       int           // frames/sec, 0 = DefaultUIRate
	LowPower     bool          // widens both intervals
}

// Engine owns the sequence registry and transport and runs the two playback
// loops: the fixed-interval step scheduler and the display-rate playhead
// updater. All mutation goes through Engine methods under one mutex; the two
// loops and the UI interleave on that lock, so a tick always sees consistent
// sequence state.
type Engine struct {
	mu        sync.Mutex
	store     *Store
	transport *Transport
	sink      TriggerSink

	tickInterval time.Duration
	uiInterval   time.Duration

	now func() time.Time

	stopChan chan struct{}
	running  bool

	// Ghost projection cache, keyed by a composite version signature.
	ghostSig  string
	ghostRows []GhostRow

	// UpdateChan signals UI consumers that display state changed.
	UpdateChan chan struct{}
}

// NewEngine creates an engine over the given store and sink. A nil sink is
// replaced by NopSink.
func NewEngine(store *Store, transport *Transport, sink TriggerSink, opts Options) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
		if opts.LowPower {
			tick = LowPowerTickInterval
		}
	}
	rate := opts.UIRate
	if rate <= 0 {
		rate = DefaultUIRate
		if opts.LowPower {
			rate = LowPowerUIRate
		}
	}
	return &Engine{
		store:        store,
		transport:    transport,
		sink:         sink,
		tickInterval: tick,
		uiInterval:   time.Second / time.Duration(rate),
		now:          time.Now,
		UpdateChan:   make(chan struct{}, 1),
	}
}

// Start launches the scheduler and playhead loops. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	go e.schedulerLoop(e.stopChan)
	go e.playheadLoop(e.stopChan)
}

// Stop halts the loops and stops all playback, releasing held notes.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.running {
		e.running = false
		close(e.stopChan)
	}
	e.stopAllLocked()
	e.mu.Unlock()
}

func (e *Engine) schedulerLoop(stop chan struct{}) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.RunTick(e.now())
		}
	}
}

func (e *Engine) playheadLoop(stop chan struct{}) {
	ticker := time.NewTicker(e.uiInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.playheadPass(e.now())
		}
	}
}

// notifyUpdate signals UI consumers without blocking.
func (e *Engine) notifyUpdate() {
	select {
	case e.UpdateChan <- struct{}{}:
	default:
	}
}

// Sequence materializes (or fetches) the sequence for key and returns a view.
func (e *Engine) Sequence(pattern, sound string) SequenceView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return viewOf(e.getLocked(Key{Pattern: pattern, Sound: sound}))
}

// getLocked materializes the sequence for key. A sequence created while the
// global transport runs, belonging to the active pattern and allow-listed,
// joins the grid immediately: late materialization (first access of a
// persisted sound, a pattern visited mid-playback) must not leave it silent.
func (e *Engine) getLocked(key Key) *Sequence {
	if s := e.store.Peek(key); s != nil {
		return s
	}
	s := e.store.Get(key)
	if e.transport.GlobalPlaying() && key.Pattern == e.transport.ActivePattern && e.transport.Allowed(key.Sound) {
		e.joinGlobalLocked(s, e.now())
	}
	return s
}

// TransportInfo is the read model of the process-wide transport.
type TransportInfo struct {
	State         TransportState
	LocalKey      Key
	GlobalBPM     float64
	ActivePattern string
}

// Transport returns the current transport read model.
func (e *Engine) Transport() TransportInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, _ := e.transport.LocalKey()
	return TransportInfo{
		State:         e.transport.State(),
		LocalKey:      key,
		GlobalBPM:     e.transport.GlobalBPM,
		ActivePattern: e.transport.ActivePattern,
	}
}

// SequenceView is a copied, lock-free read model of one sequence.
type SequenceView struct {
	Key           Key
	Part          int
	Kind          ModuleKind
	Length        int
	Res           clock.Resolution
	Mode          ClockMode
	LocalBPM      float64
	Muted         bool
	PlayingLocal  bool
	PlayingGlobal bool
	LastTriggered bool
	PlayheadFrac  float64
	PlayheadStep  int
	Steps         []Step
}

func viewOf(s *Sequence) SequenceView {
	steps := make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		if len(st.Notes) > 0 {
			steps[i].Notes = append([]Note(nil), st.Notes...)
		}
	}
	return SequenceView{
		Key:           s.Key,
		Part:          s.Part,
		Kind:          s.Kind,
		Length:        s.Length,
		Res:           s.Res,
		Mode:          s.Mode,
		LocalBPM:      s.LocalBPM,
		Muted:         s.Muted,
		PlayingLocal:  s.PlayingLocal,
		PlayingGlobal: s.PlayingGlobal,
		LastTriggered: s.LastTriggered,
		PlayheadFrac:  s.PlayheadFrac,
		PlayheadStep:  s.PlayheadStep,
		Steps:         steps,
	}
}

// ActiveSequences returns views of every sequence in the active pattern.
func (e *Engine) ActiveSequences() []SequenceView {
	e.mu.Lock()
	defer e.mu.Unlock()
	seqs := e.store.ForPattern(e.transport.ActivePattern)
	out := make([]SequenceView, len(seqs))
	for i, s := range seqs {
		out[i] = viewOf(s)
	}
	return out
}

// PatternBars estimates the active pattern's bar length.
func (e *Engine) PatternBars() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.PatternBars(e.transport.ActivePattern)
}

// edit applies fn to the sequence for key, bumps its version, persists, and
// re-anchors its schedule if it is playing.
func (e *Engine) edit(key Key, reanchor bool, fn func(s *Sequence)) {
	e.mu.Lock()
	s := e.getLocked(key)
	fn(s)
	s.bump()
	e.store.save(s)
	if reanchor && s.Playing() {
		e.reanchorLocked(s, e.now())
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// SetPart sets the engine routing index, clamped to 0..MaxPart.
func (e *Engine) SetPart(key Key, part int) {
	e.edit(key, false, func(s *Sequence) { s.Part = clampPart(part) })
}

// SetKind sets the module kind. Changing away from synth drains held notes so
// nothing sustains with no owner to release it.
func (e *Engine) SetKind(key Key, kind ModuleKind) {
	switch kind {
	case KindSynth, KindSampler, KindDrum:
	default:
		return
	}
	e.edit(key, false, func(s *Sequence) {
		if kind != KindSynth {
			e.releaseHeldLocked(s)
		}
		s.Kind = kind
	})
}

// SetNote places (or replaces) a note at a step. Out-of-range values are
// clamped, not rejected.
func (e *Engine) SetNote(key Key, step int, note Note) {
	e.edit(key, false, func(s *Sequence) {
		if step < 0 || step >= s.Length {
			return
		}
		s.ensureSteps()
		note.Pitch = clampPitch(note.Pitch)
		note.Velocity = clampVelocity(note.Velocity)
		notes := s.Steps[step].Notes
		for i := range notes {
			if notes[i].Pitch == note.Pitch {
				notes[i] = note
				return
			}
		}
		s.Steps[step].Notes = append(notes, note)
	})
}

// RemoveNote deletes the note with the given pitch from a step, if present.
func (e *Engine) RemoveNote(key Key, step, pitch int) {
	e.edit(key, false, func(s *Sequence) {
		if step < 0 || step >= len(s.Steps) {
			return
		}
		notes := s.Steps[step].Notes
		for i := range notes {
			if notes[i].Pitch == pitch {
				s.Steps[step].Notes = append(notes[:i], notes[i+1:]...)
				return
			}
		}
	})
}

// ToggleNote adds the note if the step lacks that pitch, removes it otherwise.
func (e *Engine) ToggleNote(key Key, step int, note Note) {
	e.mu.Lock()
	s := e.getLocked(key)
	has := false
	for _, n := range s.StepNotes(step) {
		if n.Pitch == clampPitch(note.Pitch) {
			has = true
			break
		}
	}
	e.mu.Unlock()
	if has {
		e.RemoveNote(key, step, clampPitch(note.Pitch))
	} else {
		e.SetNote(key, step, note)
	}
}

// ClearSteps empties every step of the sequence.
func (e *Engine) ClearSteps(key Key) {
	e.edit(key, false, func(s *Sequence) {
		for i := range s.Steps {
			s.Steps[i].Notes = nil
		}
	})
}

// SetResolution changes the step subdivision. Unknown values fall back to the
// default. Re-anchors a playing sequence so the edit is not audible as a jump.
func (e *Engine) SetResolution(key Key, res clock.Resolution) {
	if !res.Valid() {
		debug.Log("engine", "SetResolution %v: unknown resolution %q, using %s", key, res, clock.DefaultResolution)
		res = clock.DefaultResolution
	}
	e.edit(key, true, func(s *Sequence) { s.Res = res })
}

// SetLength changes the step count, clamped to 1..MaxSteps.
func (e *Engine) SetLength(key Key, length int) {
	e.edit(key, true, func(s *Sequence) {
		s.Length = clampLength(length)
		s.ensureSteps()
		if s.lastStep >= s.Length {
			s.lastStep = s.lastStep % s.Length
		}
		if s.PlayheadStep >= s.Length {
			s.PlayheadStep = s.PlayheadStep % s.Length
		}
	})
}

// SetMode switches between tempo (follow global clock) and poly (own clock).
func (e *Engine) SetMode(key Key, mode ClockMode) {
	switch mode {
	case ModeTempo, ModePoly:
	default:
		return
	}
	e.edit(key, true, func(s *Sequence) { s.Mode = mode })
}

// SetLocalBPM sets the sequence's own tempo, clamped to the valid range.
func (e *Engine) SetLocalBPM(key Key, bpm float64) {
	e.edit(key, true, func(s *Sequence) { s.LocalBPM = clampBPM(bpm) })
}

// SetMuted mutes or unmutes a sequence. A muted sequence keeps its schedule
// (stays phase-locked) but suppresses sink calls; muting releases held notes.
func (e *Engine) SetMuted(key Key, muted bool) {
	e.edit(key, false, func(s *Sequence) {
		if muted && !s.Muted {
			e.releaseHeldLocked(s)
		}
		s.Muted = muted
	})
}

// SetGlobalBPM sets the shared tempo, clamped to 20..300.
func (e *Engine) SetGlobalBPM(bpm float64) {
	e.mu.Lock()
	if bpm < 20 {
		bpm = 20
	}
	if bpm > 300 {
		bpm = 300
	}
	e.transport.GlobalBPM = bpm
	now := e.now()
	for _, s := range e.store.All() {
		if s.PlayingGlobal && s.Mode != ModePoly {
			e.reanchorLocked(s, now)
		}
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// DeleteSound removes the sequence for (pattern, sound), draining held notes
// and stopping it first.
func (e *Engine) DeleteSound(pattern, sound string) {
	key := Key{Pattern: pattern, Sound: sound}
	e.mu.Lock()
	if s := e.store.Peek(key); s != nil {
		e.stopSequenceLocked(s)
	}
	e.store.remove(key)
	e.mu.Unlock()
	e.notifyUpdate()
}

// DeletePattern removes every sequence of a pattern, draining held notes.
func (e *Engine) DeletePattern(pattern string) {
	e.mu.Lock()
	for _, s := range e.store.ForPattern(pattern) {
		e.stopSequenceLocked(s)
		e.store.remove(s.Key)
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// noteOn forwards to the sink, logging failures instead of propagating them.
func (e *Engine) noteOn(s *Sequence, n Note) {
	if s.Muted {
		return
	}
	if err := e.sink.NoteOn(s.Part, n.Pitch, n.Velocity); err != nil {
		debug.Log("sink", "noteOn part=%d pitch=%d: %v", s.Part, n.Pitch, err)
	}
}

// noteOff forwards to the sink, logging failures instead of propagating them.
// Note-offs are sent even while muted: a held note must always be releasable.
func (e *Engine) noteOff(s *Sequence, pitch int) {
	if err := e.sink.NoteOff(s.Part, pitch); err != nil {
		debug.Log("sink", "noteOff part=%d pitch=%d: %v", s.Part, pitch, err)
	}
}

func (e *Engine) ensureSinkRunning() {
	if err := e.sink.EnsureRunning(); err != nil {
		debug.Log("sink", "ensure running: %v", err)
	}
}

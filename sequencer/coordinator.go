package sequencer

import (
	"time"

	"github.com/Zandman001/subcellos-sub000/clock"
	"github.com/Zandman001/subcellos-sub000/debug"
)

// Transport coordination: global-vs-local exclusivity and pattern switching.
// Exactly one of {idle, one local sequence, the global-eligible sequences of
// the active pattern} plays at any time; every entry point below preserves
// that by funneling through the same stop/start helpers.

// StartGlobal starts the shared transport for the active pattern. Any local
// playback is stopped first, with its held notes released.
func (e *Engine) StartGlobal() {
	e.mu.Lock()
	now := e.now()
	e.reconcileLocked()
	if key, ok := e.transport.LocalKey(); ok {
		if s := e.store.Peek(key); s != nil {
			e.stopSequenceLocked(s)
		}
	}
	e.ensureSinkRunning()
	e.transport.transition(TransportGlobal, Key{}, now)
	for _, s := range e.store.ForPattern(e.transport.ActivePattern) {
		if !e.transport.Allowed(s.Key.Sound) {
			continue
		}
		s.resetPlayback()
		s.PlayingGlobal = true
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// StopGlobal stops the shared transport, releasing every held note.
// Idempotent: a second call finds nothing playing and does nothing.
func (e *Engine) StopGlobal() {
	e.mu.Lock()
	if e.transport.GlobalPlaying() {
		e.transport.transition(TransportIdle, Key{}, time.Time{})
	}
	for _, s := range e.store.All() {
		if s.PlayingGlobal {
			e.stopSequenceLocked(s)
		}
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// ToggleGlobal starts or stops the shared transport.
func (e *Engine) ToggleGlobal() {
	e.mu.Lock()
	playing := e.transport.GlobalPlaying()
	e.mu.Unlock()
	if playing {
		e.StopGlobal()
	} else {
		e.StartGlobal()
	}
}

// StartLocal starts one sequence on its own clock. Global playback, or any
// other local sequence, is stopped first.
func (e *Engine) StartLocal(key Key) {
	e.mu.Lock()
	now := e.now()
	e.reconcileLocked()
	if e.transport.GlobalPlaying() {
		for _, s := range e.store.All() {
			if s.PlayingGlobal {
				e.stopSequenceLocked(s)
			}
		}
	}
	if prev, ok := e.transport.LocalKey(); ok && prev != key {
		if s := e.store.Peek(prev); s != nil {
			e.stopSequenceLocked(s)
		}
	}
	e.ensureSinkRunning()
	s := e.store.Get(key)
	e.stopSequenceLocked(s)
	s.resetPlayback()
	s.PlayingLocal = true
	e.transport.transition(TransportLocal, key, now)
	e.mu.Unlock()
	e.notifyUpdate()
}

// StopLocal stops local playback of the given sequence, if it owns it.
func (e *Engine) StopLocal(key Key) {
	e.mu.Lock()
	if s := e.store.Peek(key); s != nil && s.PlayingLocal {
		e.stopSequenceLocked(s)
	}
	if owner, ok := e.transport.LocalKey(); ok && owner == key {
		e.transport.transition(TransportIdle, Key{}, time.Time{})
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// ToggleLocal starts local playback for the sequence, or stops it if it is
// already the local player.
func (e *Engine) ToggleLocal(key Key) {
	e.mu.Lock()
	owner, ok := e.transport.LocalKey()
	e.mu.Unlock()
	if ok && owner == key {
		e.StopLocal(key)
	} else {
		e.StartLocal(key)
	}
}

// SwitchPattern changes the active pattern. While global transport runs, the
// outgoing pattern's sequences are stopped (held notes released) and the
// incoming ones join on the global grid, firing their step 0 synchronously so
// there is no audible gap at the boundary.
func (e *Engine) SwitchPattern(pattern string) {
	e.mu.Lock()
	old := e.transport.ActivePattern
	if old == pattern {
		e.mu.Unlock()
		return
	}
	e.transport.ActivePattern = pattern
	if e.transport.GlobalPlaying() {
		now := e.now()
		for _, s := range e.store.ForPattern(old) {
			if s.PlayingGlobal {
				e.stopSequenceLocked(s)
			}
		}
		for _, s := range e.store.ForPattern(pattern) {
			if !e.transport.Allowed(s.Key.Sound) {
				continue
			}
			e.joinGlobalLocked(s, now)
		}
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// joinGlobalLocked puts a sequence on the running global transport mid-flight:
// anchored to GlobalStart so the shared grid is preserved, with its step 0
// fired immediately for continuity.
func (e *Engine) joinGlobalLocked(s *Sequence, now time.Time) {
	s.resetPlayback()
	s.PlayingGlobal = true

	bpm, _ := e.effectiveClockLocked(s, now)
	stepDur := clock.StepDuration(s.Res, bpm)
	if stepDur <= 0 || s.Length <= 0 {
		return
	}
	elapsed := now.Sub(e.transport.GlobalStart)
	if elapsed < 0 {
		elapsed = 0
	}
	s.anchor = e.transport.GlobalStart
	s.stepCount = int64(elapsed/stepDur) + 1
	s.nextStep = s.anchor.Add(time.Duration(s.stepCount) * stepDur)
	s.scheduled = true

	e.fireStepLocked(s, -1, 0, now)
	s.lastStep = 0
	s.PlayheadStep = 0
	s.PlayheadFrac = playheadFrac(s, now, stepDur)
}

// SetAllowedSounds replaces the allow-list (nil = all sounds allowed). While
// global transport runs, now-disallowed sequences stop immediately and newly
// allowed ones of the active pattern join the grid.
func (e *Engine) SetAllowedSounds(sounds []string) {
	e.mu.Lock()
	e.transport.setAllowed(sounds)
	if e.transport.GlobalPlaying() {
		now := e.now()
		for _, s := range e.store.ForPattern(e.transport.ActivePattern) {
			allowed := e.transport.Allowed(s.Key.Sound)
			switch {
			case s.PlayingGlobal && !allowed:
				e.stopSequenceLocked(s)
			case !s.PlayingGlobal && allowed:
				e.joinGlobalLocked(s, now)
			}
		}
	}
	e.mu.Unlock()
	e.notifyUpdate()
}

// reconcileLocked repairs flag state that violates the exclusivity invariant.
// Unreachable through the public entry points; if it ever trips, fix and log
// rather than crash.
func (e *Engine) reconcileLocked() {
	owner, hasLocal := e.transport.LocalKey()
	global := e.transport.GlobalPlaying()
	for _, s := range e.store.All() {
		if s.PlayingLocal && (!hasLocal || s.Key != owner) {
			debug.Log("transport", "reconcile: stray local flag on %v", s.Key)
			e.stopSequenceLocked(s)
		}
		if s.PlayingGlobal && !global {
			debug.Log("transport", "reconcile: stray global flag on %v", s.Key)
			e.stopSequenceLocked(s)
		}
		if s.PlayingLocal && s.PlayingGlobal {
			debug.Log("transport", "reconcile: %v marked both local and global", s.Key)
			e.stopSequenceLocked(s)
		}
	}
}

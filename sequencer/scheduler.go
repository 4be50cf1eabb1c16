package sequencer

import (
	"time"

	"github.com/Zandman001/subcellos-sub000/clock"
	"github.com/Zandman001/subcellos-sub000/debug"
)

// RunTick is one pass of the step scheduler: visit every playing sequence and
// fire all step boundaries whose scheduled time has passed. Normally driven by
// the internal ticker; exposed so tests can drive it with a fake clock.
func (e *Engine) RunTick(now time.Time) {
	e.mu.Lock()
	fired := false
	for _, s := range e.store.All() {
		if !s.Playing() {
			continue
		}
		if e.tickSequenceLocked(s, now) {
			fired = true
		}
	}
	e.mu.Unlock()
	if fired {
		e.notifyUpdate()
	}
}

// effectiveClockLocked returns the tempo and clock start for a sequence.
// Global transport supplies both unless the sequence is in poly mode, which
// always runs on its own BPM. localStart is used only when the schedule is
// first initialized.
func (e *Engine) effectiveClockLocked(s *Sequence, localStart time.Time) (bpm float64, start time.Time) {
	if s.PlayingGlobal {
		start = e.transport.GlobalStart
		if s.Mode == ModePoly {
			return s.LocalBPM, start
		}
		return e.transport.GlobalBPM, start
	}
	return s.LocalBPM, localStart
}

// tickSequenceLocked advances one sequence's schedule up to now. Reports
// whether any step fired.
func (e *Engine) tickSequenceLocked(s *Sequence, now time.Time) bool {
	bpm, start := e.effectiveClockLocked(s, now)
	stepDur := clock.StepDuration(s.Res, bpm)
	if stepDur <= 0 || s.Length <= 0 {
		return false
	}

	if !s.scheduled {
		// First tick since playback start.
		s.anchor = start
		s.nextStep = now
		s.stepCount = 0
		s.lastStep = -1
		s.scheduled = true
	}

	fired := 0
	for fired < maxCatchUpSteps && !s.nextStep.Add(-boundaryTolerance).After(now) {
		next := (s.lastStep + 1 + s.Length) % s.Length
		e.fireStepLocked(s, s.lastStep, next, now)
		s.lastStep = next
		s.PlayheadStep = next
		fired++

		// Additive schedule off the anchor, not off "now": timer jitter must
		// not accumulate into drift.
		s.stepCount++
		s.nextStep = s.anchor.Add(time.Duration(s.stepCount) * stepDur)
		s.PlayheadFrac = playheadFrac(s, now, stepDur)

		// Re-read the clock. If we fell behind by more than lateFraction of a
		// step (a stall, not jitter), re-anchor instead of firing the backlog.
		now = e.now()
		if now.Sub(s.nextStep) > time.Duration(float64(stepDur)*lateFraction) {
			debug.LogEvery(16, "sched", "%v fell behind, re-anchoring", s.Key)
			s.anchor = now
			s.stepCount = 1
			s.nextStep = now.Add(stepDur)
		}
	}
	return fired > 0
}

// reanchorLocked recomputes the schedule from the current wall-clock position.
// Called when resolution, length, BPM, or mode changes while playing, so edits
// do not cause an audible jump or a burst of skipped steps.
func (e *Engine) reanchorLocked(s *Sequence, now time.Time) {
	if !s.scheduled {
		return
	}
	bpm, _ := e.effectiveClockLocked(s, now)
	stepDur := clock.StepDuration(s.Res, bpm)
	if stepDur <= 0 {
		return
	}
	s.anchor = now
	s.stepCount = 1
	s.nextStep = now.Add(stepDur)
	if s.lastStep >= s.Length {
		s.lastStep = s.lastStep % s.Length
	}
}

// playheadFrac computes the display position: the last fired step plus the
// elapsed fraction of the current step, normalized over the loop. Display
// only; triggering never reads it.
func playheadFrac(s *Sequence, now time.Time, stepDur time.Duration) float64 {
	if s.Length <= 0 || stepDur <= 0 || s.lastStep < 0 {
		return 0
	}
	intra := 1 - float64(s.nextStep.Sub(now))/float64(stepDur)
	if intra < 0 {
		intra = 0
	}
	if intra > 1 {
		intra = 1
	}
	frac := (float64(s.lastStep) + intra) / float64(s.Length)
	if frac >= 1 {
		frac -= float64(int(frac))
	}
	return frac
}

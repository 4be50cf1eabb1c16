package sequencer

import (
	"time"

	"github.com/Zandman001/subcellos-sub000/clock"
)

// playheadPass is one pass of the display-rate updater: recompute the
// fractional playhead of every playing sequence and expire trigger flashes.
// Strictly display-only: it never touches the sink or the step schedule, so
// frame-rate throttling can never affect audio timing. Exposed for tests.
func (e *Engine) playheadPass(now time.Time) {
	e.mu.Lock()
	changed := false
	for _, s := range e.store.All() {
		if s.LastTriggered && now.After(s.flashUntil) {
			s.LastTriggered = false
			changed = true
		}
		if !s.Playing() || !s.scheduled {
			continue
		}
		bpm, _ := e.effectiveClockLocked(s, now)
		stepDur := clock.StepDuration(s.Res, bpm)
		if stepDur <= 0 {
			continue
		}
		if frac := playheadFrac(s, now, stepDur); frac != s.PlayheadFrac {
			s.PlayheadFrac = frac
			changed = true
		}
	}
	e.mu.Unlock()
	if changed {
		e.notifyUpdate()
	}
}

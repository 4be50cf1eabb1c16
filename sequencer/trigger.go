package sequencer

import "time"

// fireStepLocked fires the step-edge transition from step `from` to step `to`.
//
// Synth sequences hold notes across steps: a note whose Legato flag is set and
// whose pitch also exists in the previous step is a continuation and is neither
// released nor re-triggered. Everything held that is not continued gets a
// noteOff; everything current that is not a continuation gets a noteOn.
// Sampler and drum notes are one-shots: always re-triggered, never held.
func (e *Engine) fireStepLocked(s *Sequence, from, to int, now time.Time) {
	cur := s.StepNotes(to)
	var prev []Note
	if from >= 0 {
		prev = s.StepNotes(from)
	}

	if s.Kind == KindSynth {
		continued := make(map[int]bool, len(cur))
		for _, n := range cur {
			if n.Legato && hasPitch(prev, n.Pitch) {
				continued[n.Pitch] = true
			}
		}
		for pitch := range s.held {
			if !continued[pitch] {
				e.noteOff(s, pitch)
				delete(s.held, pitch)
			}
		}
		if !s.Muted {
			for _, n := range cur {
				if continued[n.Pitch] {
					continue
				}
				e.noteOn(s, n)
				s.held[n.Pitch] = struct{}{}
			}
		}
	} else if !s.Muted {
		for _, n := range cur {
			e.noteOn(s, n)
		}
	}

	if len(cur) > 0 {
		s.LastTriggered = true
		s.flashUntil = now.Add(flashDuration)
	}
}

func hasPitch(notes []Note, pitch int) bool {
	for _, n := range notes {
		if n.Pitch == pitch {
			return true
		}
	}
	return false
}

// releaseHeldLocked drains every held note through the sink.
func (e *Engine) releaseHeldLocked(s *Sequence) {
	for pitch := range s.held {
		e.noteOff(s, pitch)
		delete(s.held, pitch)
	}
}

// stopSequenceLocked releases held notes and clears playback state. Safe to
// call on a sequence that is not playing.
func (e *Engine) stopSequenceLocked(s *Sequence) {
	e.releaseHeldLocked(s)
	s.PlayingLocal = false
	s.PlayingGlobal = false
	s.scheduled = false
}

// stopAllLocked stops every sequence and parks the transport at idle.
func (e *Engine) stopAllLocked() {
	for _, s := range e.store.All() {
		if s.Playing() {
			e.stopSequenceLocked(s)
		}
	}
	e.transport.transition(TransportIdle, Key{}, time.Time{})
}

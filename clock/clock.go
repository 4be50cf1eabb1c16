// Package clock holds the pure tempo math shared by the scheduler and the UI.
package clock

import "time"

// Resolution is the musical subdivision defining one step's duration.
type Resolution string

const (
	Res4   Resolution = "1/4"
	Res8   Resolution = "1/8"
	Res16  Resolution = "1/16"
	Res32  Resolution = "1/32"
	Res8T  Resolution = "1/8t"
	Res16T Resolution = "1/16t"
)

// DefaultResolution is used for new sequences and as the fallback when a
// persisted snapshot carries an unknown value.
const DefaultResolution = Res16

// Resolutions lists every valid resolution in display order.
var Resolutions = []Resolution{Res4, Res8, Res16, Res32, Res8T, Res16T}

// divisor is the number of steps per quarter note at each resolution.
var divisor = map[Resolution]int{
	Res4:   1,
	Res8:   2,
	Res16:  4,
	Res32:  8,
	Res8T:  3,
	Res16T: 6,
}

// stepsPerBar is the number of steps in one 4/4 bar at each resolution.
var stepsPerBar = map[Resolution]int{
	Res4:   4,
	Res8:   8,
	Res16:  16,
	Res32:  32,
	Res8T:  12,
	Res16T: 24,
}

// Valid reports whether r is a recognized resolution.
func (r Resolution) Valid() bool {
	_, ok := divisor[r]
	return ok
}

// QuarterNote returns the duration of one quarter note at the given tempo,
// or 0 if bpm is not positive.
func QuarterNote(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / bpm)
}

// StepDuration returns the duration of one step at the given resolution and
// tempo. Returns 0 for a non-positive bpm or an unrecognized resolution; an
// unrecognized resolution is a programming error upstream, and the scheduler
// treats a zero duration as "skip this sequence".
func StepDuration(r Resolution, bpm float64) time.Duration {
	div, ok := divisor[r]
	if !ok || bpm <= 0 {
		return 0
	}
	return QuarterNote(bpm) / time.Duration(div)
}

// StepsPerBar returns the number of steps in one bar at the given resolution,
// or 0 for an unrecognized resolution.
func StepsPerBar(r Resolution) int {
	return stepsPerBar[r]
}

// Bars estimates the bar length of a pattern span with the given step count
// and resolution: ceil(length / stepsPerBar), clamped to 1..8.
func Bars(length int, r Resolution) int {
	per := stepsPerBar[r]
	if per <= 0 || length <= 0 {
		return 1
	}
	bars := (length + per - 1) / per
	if bars < 1 {
		bars = 1
	}
	if bars > 8 {
		bars = 8
	}
	return bars
}

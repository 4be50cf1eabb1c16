package sequencer

import "time"

// TransportState is the authoritative playback mode. Exactly one variant is
// active at any instant; the scattered per-sequence flags are a derived view.
type TransportState int

const (
	// TransportIdle: nothing is playing.
	TransportIdle TransportState = iota
	// TransportLocal: exactly one sequence runs on its own clock.
	TransportLocal
	// TransportGlobal: the sequences of the active pattern run on the shared clock.
	TransportGlobal
)

func (s TransportState) String() string {
	switch s {
	case TransportLocal:
		return "local"
	case TransportGlobal:
		return "global"
	default:
		return "idle"
	}
}

// Transport is the process-wide transport: the tagged playback state plus the
// shared clock and pattern routing. Never persisted.
type Transport struct {
	state    TransportState
	localKey Key // valid only when state == TransportLocal

	GlobalStart   time.Time
	GlobalBPM     float64
	ActivePattern string

	// allowed restricts which sounds participate in global transport.
	// nil means all sounds are allowed.
	allowed map[string]struct{}
}

// NewTransport returns an idle transport with the given defaults.
func NewTransport(bpm float64, activePattern string) *Transport {
	if bpm <= 0 {
		bpm = 120
	}
	return &Transport{
		GlobalBPM:     bpm,
		ActivePattern: activePattern,
	}
}

// State returns the current playback mode.
func (t *Transport) State() TransportState {
	return t.state
}

// GlobalPlaying reports whether the shared transport is running.
func (t *Transport) GlobalPlaying() bool {
	return t.state == TransportGlobal
}

// LocalKey returns the sequence that owns local playback and whether local
// playback is active.
func (t *Transport) LocalKey() (Key, bool) {
	return t.localKey, t.state == TransportLocal
}

// transition is the single authoritative state change point. It only flips the
// tag; the Engine releases notes and maintains per-sequence flags around it.
func (t *Transport) transition(next TransportState, local Key, start time.Time) {
	t.state = next
	switch next {
	case TransportLocal:
		t.localKey = local
	case TransportGlobal:
		t.localKey = Key{}
		t.GlobalStart = start
	default:
		t.localKey = Key{}
	}
}

// Allowed reports whether a sound participates in global transport.
func (t *Transport) Allowed(sound string) bool {
	if t.allowed == nil {
		return true
	}
	_, ok := t.allowed[sound]
	return ok
}

// setAllowed replaces the allow-list. nil means all sounds allowed.
func (t *Transport) setAllowed(sounds []string) {
	if sounds == nil {
		t.allowed = nil
		return
	}
	t.allowed = make(map[string]struct{}, len(sounds))
	for _, s := range sounds {
		t.allowed[s] = struct{}{}
	}
}

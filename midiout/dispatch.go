package midiout

import (
	"sync"

	"github.com/Zandman001/subcellos-sub000/debug"
)

// Output is the downstream the dispatcher drains into (normally a *Sink).
type Output interface {
	EnsureRunning() error
	NoteOn(part, pitch int, velocity float64) error
	NoteOff(part, pitch int) error
}

type eventKind uint8

const (
	eventNoteOn eventKind = iota
	eventNoteOff
)

type event struct {
	kind     eventKind
	part     int
	pitch    int
	velocity float64
}

// Dispatcher decouples the scheduler from the MIDI I/O: trigger calls enqueue
// onto a bounded channel and return immediately, a worker goroutine performs
// the actual sends. When the queue is full events are dropped (and logged)
// rather than blocking a tick.
type Dispatcher struct {
	out    Output
	events chan event

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher wraps out with a queue of the given depth (<=0 picks 256)
// and starts the worker.
func NewDispatcher(out Output, depth int) *Dispatcher {
	if depth <= 0 {
		depth = 256
	}
	d := &Dispatcher{
		out:    out,
		events: make(chan event, depth),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case ev := <-d.events:
			var err error
			switch ev.kind {
			case eventNoteOn:
				err = d.out.NoteOn(ev.part, ev.pitch, ev.velocity)
			case eventNoteOff:
				err = d.out.NoteOff(ev.part, ev.pitch)
			}
			if err != nil {
				debug.Log("midiout", "send part=%d pitch=%d: %v", ev.part, ev.pitch, err)
			}
		}
	}
}

// EnsureRunning forwards synchronously; it is called once per playback
// session, not per note.
func (d *Dispatcher) EnsureRunning() error {
	return d.out.EnsureRunning()
}

// NoteOn enqueues a note-on. Never blocks; drops when the queue is full.
func (d *Dispatcher) NoteOn(part, pitch int, velocity float64) error {
	d.enqueue(event{kind: eventNoteOn, part: part, pitch: pitch, velocity: velocity})
	return nil
}

// NoteOff enqueues a note-off. Never blocks; drops when the queue is full.
func (d *Dispatcher) NoteOff(part, pitch int) error {
	d.enqueue(event{kind: eventNoteOff, part: part, pitch: pitch})
	return nil
}

func (d *Dispatcher) enqueue(ev event) {
	select {
	case d.events <- ev:
	default:
		debug.LogEvery(32, "midiout", "queue full, dropping events")
	}
}

// Close stops the worker. Pending events are discarded.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

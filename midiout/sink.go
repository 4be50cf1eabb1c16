// Package midiout implements the scheduler's trigger boundary over MIDI.
// Each engine part maps to a MIDI channel on a single output port.
package midiout

import (
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
)

// Sink sends note triggers to one MIDI output port. The port is opened lazily
// on EnsureRunning and reused afterwards.
type Sink struct {
	portName string // substring match, "" = first available port

	mu   sync.Mutex
	send func(gomidi.Message) error
}

// NewSink creates a sink for the named output port. The name is matched
// case-insensitively as a substring; empty selects the first port.
func NewSink(portName string) *Sink {
	return &Sink{portName: portName}
}

// EnsureRunning opens the output port if it is not open yet. Idempotent.
func (s *Sink) EnsureRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send != nil {
		return nil
	}
	ports := gomidi.GetOutPorts()
	if len(ports) == 0 {
		return fmt.Errorf("no MIDI output ports available")
	}
	want := strings.ToLower(s.portName)
	for _, port := range ports {
		if want != "" && !strings.Contains(strings.ToLower(port.String()), want) {
			continue
		}
		send, err := gomidi.SendTo(port)
		if err != nil {
			return fmt.Errorf("open %s: %w", port.String(), err)
		}
		s.send = send
		return nil
	}
	return fmt.Errorf("no MIDI output port matches %q", s.portName)
}

// NoteOn sends a note-on for the given part. Velocity 0..1 maps to 1..127 so
// an audible note never degenerates into a note-off.
func (s *Sink) NoteOn(part, pitch int, velocity float64) error {
	send := s.sender()
	if send == nil {
		return fmt.Errorf("output port not open")
	}
	return send(gomidi.NoteOn(channel(part), key(pitch), midiVelocity(velocity)))
}

// NoteOff sends a note-off for the given part.
func (s *Sink) NoteOff(part, pitch int) error {
	send := s.sender()
	if send == nil {
		return fmt.Errorf("output port not open")
	}
	return send(gomidi.NoteOff(channel(part), key(pitch)))
}

// Close drops the open port. The driver connection itself is shared and
// closed process-wide by gomidi.CloseDriver.
func (s *Sink) Close() {
	s.mu.Lock()
	s.send = nil
	s.mu.Unlock()
}

func (s *Sink) sender() func(gomidi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send
}

func channel(part int) uint8 {
	if part < 0 {
		part = 0
	}
	if part > 15 {
		part = 15
	}
	return uint8(part)
}

func key(pitch int) uint8 {
	if pitch < 0 {
		pitch = 0
	}
	if pitch > 127 {
		pitch = 127
	}
	return uint8(pitch)
}

func midiVelocity(v float64) uint8 {
	if v <= 0 {
		return 1
	}
	if v >= 1 {
		return 127
	}
	vel := uint8(v*126) + 1
	return vel
}

package midiout

import (
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// OutPortNames lists the available MIDI output port names. The scan runs with
// a timeout guard: some OS MIDI services can hang, and a diagnostic listing
// should fail soft instead of wedging the process.
func OutPortNames() []string {
	ch := make(chan []string, 1)
	go func() {
		ports := gomidi.GetOutPorts()
		names := make([]string, len(ports))
		for i, p := range ports {
			names[i] = p.String()
		}
		ch <- names
	}()
	select {
	case names := <-ch:
		return names
	case <-time.After(3 * time.Second):
		return nil
	}
}

// CloseDriver releases the process-wide MIDI driver. Call once at shutdown.
func CloseDriver() {
	gomidi.CloseDriver()
}

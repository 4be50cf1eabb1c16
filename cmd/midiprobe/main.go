// Command midiprobe is a standalone MIDI output diagnostic: list ports and
// send a test note without starting the sequencer.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	defer gomidi.CloseDriver()

	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "note":
		name := ""
		if len(os.Args) > 2 {
			name = os.Args[2]
		}
		testNote(name)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("midiprobe - MIDI output diagnostics")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - list all MIDI output ports")
	fmt.Println("  note [port]   - send a short test note (middle C, channel 1)")
}

func listPorts() {
	ports := gomidi.GetOutPorts()
	if len(ports) == 0 {
		fmt.Println("no MIDI output ports found")
		return
	}
	for i, port := range ports {
		fmt.Printf("%2d: %s\n", i, port.String())
	}
}

func testNote(name string) {
	ports := gomidi.GetOutPorts()
	want := strings.ToLower(name)
	for _, port := range ports {
		if want != "" && !strings.Contains(strings.ToLower(port.String()), want) {
			continue
		}
		send, err := gomidi.SendTo(port)
		if err != nil {
			fmt.Printf("open %s: %v\n", port.String(), err)
			return
		}
		fmt.Printf("sending test note to %s\n", port.String())
		send(gomidi.NoteOn(0, 60, 100))
		time.Sleep(300 * time.Millisecond)
		send(gomidi.NoteOff(0, 60))
		return
	}
	fmt.Printf("no MIDI output port matches %q\n", name)
}

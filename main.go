// Command subcellos-sub000 runs the step sequencer engine with a terminal
// monitor, or headless.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Zandman001/subcellos-sub000/config"
	"github.com/Zandman001/subcellos-sub000/debug"
	"github.com/Zandman001/subcellos-sub000/midiout"
	"github.com/Zandman001/subcellos-sub000/sequencer"
	"github.com/Zandman001/subcellos-sub000/tui"
)

var (
	flagPort     string
	flagLowPower bool
	flagDebug    bool
	flagBPM      float64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "subcellos-sub000",
	Short: "Step sequencer engine for the subcellos sound module",
	Long: `A phase-locked step sequencer that drives an external sound engine
over MIDI: per-sound per-pattern sequences, shared or per-sequence clocks,
legato continuation, and glitch-free pattern switching.

Run without arguments for the terminal monitor.`,
	RunE: runTUI,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine headless until interrupted",
	RunE:  runHeadless,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	Run: func(cmd *cobra.Command, args []string) {
		names := midiout.OutPortNames()
		if len(names) == 0 {
			fmt.Println("no MIDI output ports found")
			return
		}
		for _, name := range names {
			fmt.Println(name)
		}
		midiout.CloseDriver()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "MIDI output port (substring match)")
	rootCmd.PersistentFlags().BoolVar(&flagLowPower, "low-power", false, "widen scheduler intervals to reduce CPU draw")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "write a debug log")
	rootCmd.PersistentFlags().Float64Var(&flagBPM, "bpm", 0, "global tempo override")
	rootCmd.AddCommand(runCmd, portsCmd)
}

// buildEngine wires config, persistence, MIDI output, and the engine.
func buildEngine() (*sequencer.Engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flagDebug || cfg.Engine.Debug {
		if err := debug.Enable(""); err != nil {
			fmt.Fprintf(os.Stderr, "debug log unavailable: %v\n", err)
		}
	}

	port := cfg.MIDI.OutPort
	if flagPort != "" {
		port = flagPort
	}
	sink := midiout.NewSink(port)
	dispatcher := midiout.NewDispatcher(sink, cfg.MIDI.QueueSize)

	snapDir, err := sequencer.DefaultSnapshotDir()
	if err != nil {
		return nil, nil, err
	}
	store := sequencer.NewStore(sequencer.NewFileSnapshots(snapDir))

	bpm := cfg.Transport.GlobalBPM
	if flagBPM > 0 {
		bpm = flagBPM
	}
	transport := sequencer.NewTransport(bpm, cfg.Transport.ActivePattern)

	opts := sequencer.Options{
		UIRate:   cfg.Engine.UIRate,
		LowPower: flagLowPower || cfg.Engine.LowPower,
	}
	if cfg.Engine.TickMs > 0 && !opts.LowPower {
		opts.TickInterval = time.Duration(cfg.Engine.TickMs) * time.Millisecond
	}
	engine := sequencer.NewEngine(store, transport, dispatcher, opts)

	cleanup := func() {
		engine.Stop()
		dispatcher.Close()
		sink.Close()
		midiout.CloseDriver()
		debug.Disable()
	}
	return engine, cleanup, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	engine.Start()

	p := tea.NewProgram(tui.NewModel(engine), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runHeadless(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	engine.Start()
	engine.StartGlobal()
	fmt.Println("engine running, ctrl+c to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	engine.StopGlobal()
	return nil
}

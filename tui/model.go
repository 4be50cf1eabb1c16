// Package tui is the terminal monitor and editor for the sequencer engine.
// It is a pure consumer of the engine's read models: ghost rows, playhead
// fractions, and transport state.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zandman001/subcellos-sub000/clock"
	"github.com/Zandman001/subcellos-sub000/sequencer"
)

// DefaultSounds are materialized for every pattern the monitor visits.
var DefaultSounds = []string{"bass", "lead", "keys", "perc"}

type Model struct {
	Engine *sequencer.Engine

	pattern  int // 1-based pattern number
	selected int // selected row
	cursor   int // step cursor
	quitting bool
}

// UpdateMsg signals that engine display state changed.
type UpdateMsg struct{}

func NewModel(engine *sequencer.Engine) Model {
	m := Model{Engine: engine, pattern: 1}
	m.materialize()
	return m
}

// materialize makes sure the default sounds exist for the active pattern.
func (m Model) materialize() {
	info := m.Engine.Transport()
	for _, sound := range DefaultSounds {
		m.Engine.Sequence(info.ActivePattern, sound)
	}
}

// ListenForUpdates forwards engine update notifications into the tea loop.
func ListenForUpdates(engine *sequencer.Engine) tea.Cmd {
	return func() tea.Msg {
		<-engine.UpdateChan
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Engine)
}

func patternID(n int) string {
	return fmt.Sprintf("pattern-%d", n)
}

func (m Model) selectedKey() (sequencer.Key, bool) {
	seqs := m.Engine.ActiveSequences()
	if m.selected < 0 || m.selected >= len(seqs) {
		return sequencer.Key{}, false
	}
	return seqs[m.selected].Key, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Engine.Stop()
			return m, tea.Quit

		case "p":
			m.Engine.ToggleGlobal()

		case "o":
			if key, ok := m.selectedKey(); ok {
				m.Engine.ToggleLocal(key)
			}

		case "j", "down":
			if m.selected < len(m.Engine.ActiveSequences())-1 {
				m.selected++
			}
		case "k", "up":
			if m.selected > 0 {
				m.selected--
			}
		case "h", "left":
			if m.cursor > 0 {
				m.cursor--
			}
		case "l", "right":
			if m.cursor < sequencer.MaxSteps-1 {
				m.cursor++
			}

		case " ", "x":
			if key, ok := m.selectedKey(); ok {
				m.Engine.ToggleNote(key, m.cursor, sequencer.Note{Pitch: 60, Velocity: 0.8})
			}

		case "g":
			if key, ok := m.selectedKey(); ok {
				seq := m.Engine.Sequence(key.Pattern, key.Sound)
				for _, n := range seq.Steps[minInt(m.cursor, len(seq.Steps)-1)].Notes {
					n.Legato = !n.Legato
					m.Engine.SetNote(key, m.cursor, n)
				}
			}

		case "m":
			if key, ok := m.selectedKey(); ok {
				seq := m.Engine.Sequence(key.Pattern, key.Sound)
				m.Engine.SetMuted(key, !seq.Muted)
			}

		case "c":
			if key, ok := m.selectedKey(); ok {
				m.Engine.ClearSteps(key)
			}

		case "[":
			if key, ok := m.selectedKey(); ok {
				seq := m.Engine.Sequence(key.Pattern, key.Sound)
				m.Engine.SetLength(key, seq.Length-1)
			}
		case "]":
			if key, ok := m.selectedKey(); ok {
				seq := m.Engine.Sequence(key.Pattern, key.Sound)
				m.Engine.SetLength(key, seq.Length+1)
			}

		case "r":
			if key, ok := m.selectedKey(); ok {
				seq := m.Engine.Sequence(key.Pattern, key.Sound)
				m.Engine.SetResolution(key, nextResolution(seq.Res))
			}

		case "y":
			if key, ok := m.selectedKey(); ok {
				seq := m.Engine.Sequence(key.Pattern, key.Sound)
				if seq.Mode == sequencer.ModeTempo {
					m.Engine.SetMode(key, sequencer.ModePoly)
				} else {
					m.Engine.SetMode(key, sequencer.ModeTempo)
				}
			}

		case "+", "=":
			m.Engine.SetGlobalBPM(m.Engine.Transport().GlobalBPM + 5)
		case "-", "_":
			m.Engine.SetGlobalBPM(m.Engine.Transport().GlobalBPM - 5)

		case ">", ".":
			m.pattern++
			m.Engine.SwitchPattern(patternID(m.pattern))
			m.materialize()
			m.selected = 0
		case "<", ",":
			if m.pattern > 1 {
				m.pattern--
				m.Engine.SwitchPattern(patternID(m.pattern))
				m.materialize()
				m.selected = 0
			}
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Engine)
	}

	return m, nil
}

func nextResolution(r clock.Resolution) clock.Resolution {
	for i, res := range clock.Resolutions {
		if res == r {
			return clock.Resolutions[(i+1)%len(clock.Resolutions)]
		}
	}
	return clock.DefaultResolution
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	playStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("120"))
	flashStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

	info := m.Engine.Transport()
	seqs := m.Engine.ActiveSequences()
	ghost := m.Engine.Ghost()
	bars := m.Engine.PatternBars()

	header := headerStyle.Render(fmt.Sprintf("subcellos  %s  %3.0fbpm  %s  %d bar",
		strings.ToUpper(info.State.String()), info.GlobalBPM, info.ActivePattern, bars))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	for i, sv := range seqs {
		marker := "  "
		if i == m.selected {
			marker = "> "
		}

		name := fmt.Sprintf("%-5s", sv.Key.Sound)
		if sv.LastTriggered {
			name = flashStyle.Render(name)
		} else if sv.PlayingLocal || sv.PlayingGlobal {
			name = playStyle.Render(name)
		}

		state := " "
		switch {
		case sv.Muted:
			state = "M"
		case sv.PlayingLocal:
			state = "L"
		case sv.PlayingGlobal:
			state = "G"
		}

		playhead := int(sv.PlayheadFrac * float64(sv.Length))
		if playhead >= sv.Length {
			playhead = sv.Length - 1
		}

		var row strings.Builder
		var active []bool
		if i < len(ghost) {
			active = ghost[i].Active
		}
		for s := 0; s < sv.Length; s++ {
			isCursor := i == m.selected && s == m.cursor
			hasNote := s < len(active) && active[s]
			char := "·"
			if hasNote {
				char = "●"
			}
			if (sv.PlayingLocal || sv.PlayingGlobal) && s == playhead {
				char = "▶"
			}
			if isCursor {
				if hasNote {
					char = "◉"
				} else {
					char = "○"
				}
			}
			row.WriteString(char)
		}

		meta := dimStyle.Render(fmt.Sprintf("  %s %s %.0fbpm", sv.Res, sv.Mode, sv.LocalBPM))
		out.WriteString(fmt.Sprintf("%s%s %s %s%s\n", marker, name, state, row.String(), meta))
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("jk:row hl:step space:note g:legato m:mute c:clear []:len r:res y:mode p:global o:local </>:pattern +/-:bpm q:quit"))
	out.WriteString("\n")

	return out.String()
}

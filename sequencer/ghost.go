package sequencer

import (
	"strconv"
	"strings"
)

// GhostRow summarizes one sequence's per-step note occupancy for
// visualization consumers.
type GhostRow struct {
	Sound  string
	Length int
	Active []bool
}

// Ghost returns the occupancy projection for the active pattern. The result
// is recomputed only when the composite version signature of the pattern's
// sequences changes; otherwise the cached value is returned. Callers must not
// mutate the returned rows.
func (e *Engine) Ghost() []GhostRow {
	e.mu.Lock()
	defer e.mu.Unlock()

	seqs := e.store.ForPattern(e.transport.ActivePattern)

	var sig strings.Builder
	sig.WriteString(e.transport.ActivePattern)
	for _, s := range seqs {
		sig.WriteByte('|')
		sig.WriteString(s.Key.Sound)
		sig.WriteByte(':')
		sig.WriteString(strconv.FormatUint(s.version, 10))
	}
	if e.ghostRows != nil && sig.String() == e.ghostSig {
		return e.ghostRows
	}

	rows := make([]GhostRow, len(seqs))
	for i, s := range seqs {
		active := make([]bool, s.Length)
		for j := range active {
			active[j] = s.HasNoteAt(j)
		}
		rows[i] = GhostRow{Sound: s.Key.Sound, Length: s.Length, Active: active}
	}
	e.ghostSig = sig.String()
	e.ghostRows = rows
	return rows
}

package sequencer

import (
	"sort"

	"github.com/Zandman001/subcellos-sub000/clock"
	"github.com/Zandman001/subcellos-sub000/debug"
)

// Store is the registry of sequences, keyed by (pattern, sound). Sequences are
// created lazily on first access, restored from the snapshot store when a
// snapshot exists. The Store does no locking of its own: the Engine owns it and
// serializes access under its mutex.
type Store struct {
	seqs  map[Key]*Sequence
	snaps SnapshotStore
}

// NewStore creates a store backed by the given snapshot store. A nil snaps
// disables persistence.
func NewStore(snaps SnapshotStore) *Store {
	return &Store{
		seqs:  make(map[Key]*Sequence),
		snaps: snaps,
	}
}

// Get returns the sequence for key, creating it on first access. A persisted
// snapshot is restored if one exists; a malformed one falls back to defaults
// with a logged notice.
func (st *Store) Get(key Key) *Sequence {
	if s, ok := st.seqs[key]; ok {
		return s
	}
	s := NewSequence(key)
	if st.snaps != nil {
		snap, err := st.snaps.Load(key)
		if err != nil {
			debug.Log("store", "load %v failed, using defaults: %v", key, err)
		} else if snap != nil {
			s.applySnapshot(snap)
		}
	}
	st.seqs[key] = s
	return s
}

// Peek returns the sequence for key without creating it.
func (st *Store) Peek(key Key) *Sequence {
	return st.seqs[key]
}

// All returns every materialized sequence, in stable key order.
func (st *Store) All() []*Sequence {
	out := make([]*Sequence, 0, len(st.seqs))
	for _, s := range st.seqs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Pattern != out[j].Key.Pattern {
			return out[i].Key.Pattern < out[j].Key.Pattern
		}
		return out[i].Key.Sound < out[j].Key.Sound
	})
	return out
}

// ForPattern returns every materialized sequence of one pattern, in stable
// sound order.
func (st *Store) ForPattern(pattern string) []*Sequence {
	var out []*Sequence
	for _, s := range st.seqs {
		if s.Key.Pattern == pattern {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Sound < out[j].Key.Sound
	})
	return out
}

// remove drops the sequence for key from the registry and deletes its
// snapshot. The caller must already have released its held notes.
func (st *Store) remove(key Key) {
	delete(st.seqs, key)
	if st.snaps != nil {
		if err := st.snaps.Delete(key); err != nil {
			debug.Log("store", "delete snapshot %v: %v", key, err)
		}
	}
}

// save persists the sequence best-effort.
func (st *Store) save(s *Sequence) {
	if st.snaps == nil {
		return
	}
	if err := st.snaps.Save(s.Key, s.snapshot()); err != nil {
		debug.Log("store", "save %v: %v", s.Key, err)
	}
}

// PatternBars estimates the bar length of a pattern: the maximum
// ceil(length/stepsPerBar) across its sequences, clamped to 1..8.
func (st *Store) PatternBars(pattern string) int {
	bars := 1
	for _, s := range st.ForPattern(pattern) {
		if b := clock.Bars(s.Length, s.Res); b > bars {
			bars = b
		}
	}
	return bars
}

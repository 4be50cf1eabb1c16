package sequencer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Zandman001/subcellos-sub000/clock"
	"github.com/Zandman001/subcellos-sub000/debug"
)

// Snapshot is the persisted shape of a sequence. Transient playback fields are
// deliberately excluded.
type Snapshot struct {
	Steps      []Step           `json:"steps"`
	Length     int              `json:"length"`
	Resolution clock.Resolution `json:"resolution"`
	Mode       ClockMode        `json:"mode"`
	LocalBPM   float64          `json:"localBpm"`
	Part       int              `json:"part"`
	Kind       ModuleKind       `json:"kind"`
}

// SnapshotStore persists sequence snapshots keyed by (pattern, sound).
// Load returns (nil, nil) when no snapshot exists for the key.
type SnapshotStore interface {
	Load(key Key) (*Snapshot, error)
	Save(key Key, snap *Snapshot) error
	Delete(key Key) error
}

// snapshot captures the persisted fields of a sequence.
func (s *Sequence) snapshot() *Snapshot {
	steps := make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		if len(st.Notes) > 0 {
			steps[i].Notes = append([]Note(nil), st.Notes...)
		}
	}
	return &Snapshot{
		Steps:      steps,
		Length:     s.Length,
		Resolution: s.Res,
		Mode:       s.Mode,
		LocalBPM:   s.LocalBPM,
		Part:       s.Part,
		Kind:       s.Kind,
	}
}

// applySnapshot restores persisted fields, normalizing anything out of range.
// Transient fields keep their defaults.
func (s *Sequence) applySnapshot(snap *Snapshot) {
	s.Length = clampLength(snap.Length)
	s.Steps = snap.Steps
	s.ensureSteps()
	if snap.Resolution.Valid() {
		s.Res = snap.Resolution
	} else {
		debug.Log("store", "snapshot %v: unknown resolution %q, using %s", s.Key, snap.Resolution, clock.DefaultResolution)
		s.Res = clock.DefaultResolution
	}
	switch snap.Mode {
	case ModeTempo, ModePoly:
		s.Mode = snap.Mode
	default:
		s.Mode = ModeTempo
	}
	s.LocalBPM = clampBPM(snap.LocalBPM)
	s.Part = clampPart(snap.Part)
	switch snap.Kind {
	case KindSynth, KindSampler, KindDrum:
		s.Kind = snap.Kind
	default:
		s.Kind = KindSynth
	}
	for i := range s.Steps {
		for j := range s.Steps[i].Notes {
			n := &s.Steps[i].Notes[j]
			n.Pitch = clampPitch(n.Pitch)
			n.Velocity = clampVelocity(n.Velocity)
		}
	}
}

// FileSnapshots stores one JSON file per key under a directory
// (by default ~/.config/subcellos/sequences).
type FileSnapshots struct {
	Dir string
}

// DefaultSnapshotDir returns the per-user sequence storage directory.
func DefaultSnapshotDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "subcellos", "sequences"), nil
}

// NewFileSnapshots creates a file-backed store rooted at dir.
func NewFileSnapshots(dir string) *FileSnapshots {
	return &FileSnapshots{Dir: dir}
}

func (f *FileSnapshots) path(key Key) string {
	name := sanitizeFilename(key.Pattern) + "__" + sanitizeFilename(key.Sound) + ".json"
	return filepath.Join(f.Dir, name)
}

// Load reads the snapshot for key, or (nil, nil) if none exists.
func (f *FileSnapshots) Load(key Key) (*Snapshot, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save writes the snapshot for key, creating the directory if needed.
func (f *FileSnapshots) Save(key Key, snap *Snapshot) error {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path(key), data, 0644)
}

// Delete removes the snapshot for key. Missing files are not an error.
func (f *FileSnapshots) Delete(key Key) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// sanitizeFilename replaces characters that are problematic in filenames.
// Underscores are escaped first so the "__" separator in path() stays
// unambiguous: ("x_", "y") and ("x", "_y") must not map to the same file.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "_", "_u")
	name = strings.ReplaceAll(name, " ", "-")
	for _, bad := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"} {
		name = strings.ReplaceAll(name, bad, "")
	}
	if name == "" {
		name = "_"
	}
	return name
}

// MemSnapshots is an in-memory SnapshotStore for tests and ephemeral runs.
type MemSnapshots struct {
	mu    sync.Mutex
	snaps map[Key]*Snapshot
}

func NewMemSnapshots() *MemSnapshots {
	return &MemSnapshots{snaps: make(map[Key]*Snapshot)}
}

func (m *MemSnapshots) Load(key Key) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[key]
	if !ok {
		return nil, nil
	}
	// Round-trip through JSON so callers can't alias stored steps.
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MemSnapshots) Save(key Key, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	var copied Snapshot
	if err := json.Unmarshal(data, &copied); err != nil {
		return err
	}
	m.snaps[key] = &copied
	return nil
}

func (m *MemSnapshots) Delete(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, key)
	return nil
}

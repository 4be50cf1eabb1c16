// Package config loads and saves the runtime configuration from
// ~/.config/subcellos/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// MIDIConfig selects the output boundary to the sound engine.
type MIDIConfig struct {
	OutPort   string `json:"outPort,omitempty"`   // substring match against MIDI out port names
	QueueSize int    `json:"queueSize,omitempty"` // trigger dispatch queue depth
}

// EngineConfig tunes the scheduler loops.
type EngineConfig struct {
	TickMs   int  `json:"tickMs,omitempty"` // step scheduler interval
	UIRate   int  `json:"uiRate,omitempty"` // playhead refresh, frames/sec
	LowPower bool `json:"lowPower,omitempty"`
	Debug    bool `json:"debug,omitempty"` // enable the debug log
}

// TransportConfig holds transport defaults applied at startup.
type TransportConfig struct {
	GlobalBPM     float64 `json:"globalBpm,omitempty"`
	ActivePattern string  `json:"activePattern,omitempty"`
}

// Config is the main configuration structure.
type Config struct {
	MIDI      MIDIConfig      `json:"midi,omitempty"`
	Engine    EngineConfig    `json:"engine,omitempty"`
	Transport TransportConfig `json:"transport,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MIDI: MIDIConfig{
			QueueSize: 256,
		},
		Engine: EngineConfig{
			TickMs: 5,
			UIRate: 30,
		},
		Transport: TransportConfig{
			GlobalBPM:     120,
			ActivePattern: "pattern-1",
		},
	}
}

// Dir returns the config directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "subcellos"), nil
}

// Path returns the full path to config.json.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

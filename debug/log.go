// Package debug is a lightweight category logger for the scheduler runtime.
// Disabled it costs one mutex hop; enabled it appends to a log file under the
// config directory so timing problems can be inspected after the fact.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	file    *os.File
	enabled bool
	every   = make(map[string]int)
)

// DefaultPath returns ~/.config/subcellos/debug.log.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "subcellos", "debug.log")
}

// Enable starts logging to path ("" = DefaultPath). Idempotent.
func Enable(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		return nil
	}
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	file = f
	enabled = true
	write("debug", "logging started")
	return nil
}

// Disable stops logging and closes the file.
func Disable() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// Log writes one line under a category. No-op while disabled.
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	write(category, fmt.Sprintf(format, args...))
}

// LogEvery writes only every nth call with the same category+format, for
// messages that would otherwise flood the log from a hot loop.
func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	key := category + "\x00" + format
	every[key]++
	if every[key]%n != 0 {
		return
	}
	write(category, fmt.Sprintf(format, args...))
}

// write assumes mu is held. Sync immediately so logs survive a crash.
func write(category, msg string) {
	if file == nil {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(file, "[%s] %-9s %s\n", ts, category, msg)
	file.Sync()
}

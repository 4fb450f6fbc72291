// Package daemon tracks the API server process through a pid file and a
// status file in the data directory.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	pidFileName    = "hsafe.pid"
	statusFileName = "status.json"
)

// ErrNotRunning is returned when no live server owns the pid file.
var ErrNotRunning = errors.New("server is not running")

// CheckRunning reports whether the pid file names a live process.
func CheckRunning(dataDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dataDir, pidFileName))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// Signal 0 checks for existence without delivering anything.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}

	return true, pid
}

// Acquire writes the current pid, failing if another live server holds it.
func Acquire(dataDir string) error {
	if running, pid := CheckRunning(dataDir); running && pid != os.Getpid() {
		return fmt.Errorf("server already running (PID %d)", pid)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(filepath.Join(dataDir, pidFileName), []byte(pid), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// Release removes the pid and status files.
func Release(dataDir string) {
	os.Remove(filepath.Join(dataDir, pidFileName))
	os.Remove(filepath.Join(dataDir, statusFileName))
}

// SendStop asks the running server to shut down.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return ErrNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	return nil
}

// StatusFile holds the serialized server status.
type StatusFile struct {
	PID       int    `json:"pid"`
	Port      int    `json:"port"`
	StartTime string `json:"start_time"`
	Rules     int    `json:"rules"`
	Nodes     int    `json:"nodes"`
}

// Uptime is the time since StartTime, zero if it cannot be parsed.
func (sf *StatusFile) Uptime(now time.Time) time.Duration {
	t, err := time.Parse(time.RFC3339, sf.StartTime)
	if err != nil {
		return 0
	}
	return now.Sub(t).Truncate(time.Second)
}

// WriteStatusFile records the server status.
func WriteStatusFile(dataDir string, sf StatusFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, statusFileName), data, 0644)
}

// ReadStatusFile reads the server status.
func ReadStatusFile(dataDir string) (*StatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, statusFileName))
	if err != nil {
		return nil, err
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}

	return &sf, nil
}

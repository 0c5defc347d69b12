// Package status maintains the daemon's externally visible state file.
// Companion tools poll the file to display live temperatures and fan speeds.
// The file exists only while the daemon runs: its absence means stopped.
package status

import (
	"encoding/json"
	"os"
	"path/filepath"

	"codeberg.org/fancurved/fancurved/internal/errors"
)

// FileName is the name of the status file inside the configuration directory
const FileName = ".fancurved_status.json"

// State describes the lifecycle stage recorded in a snapshot
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateError    State = "error"
)

// Snapshot is the daemon state written to the status file. Sensor values are
// nil when the most recent read failed; fan values are the speeds last
// applied to each fan.
type Snapshot struct {
	PID          int                 `json:"pid"`
	Status       State               `json:"status"`
	Sensors      map[string]*float64 `json:"sensors"`
	Fans         map[string]float64  `json:"fans"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// NewSnapshot returns a snapshot for the current process in the starting state
func NewSnapshot() *Snapshot {
	return &Snapshot{
		PID:     os.Getpid(),
		Status:  StateStarting,
		Sensors: make(map[string]*float64),
		Fans:    make(map[string]float64),
	}
}

// ErrorSnapshot returns a snapshot for the current process carrying a fatal
// error message
func ErrorSnapshot(message string) *Snapshot {
	snapshot := NewSnapshot()
	snapshot.Status = StateError
	snapshot.ErrorMessage = message

	return snapshot
}

// FilePublisher writes snapshots to a JSON file. Writes go to a temporary
// file that is synced and renamed into place, so readers never observe a
// partial file.
type FilePublisher struct {
	path string
}

// NewFilePublisher creates a publisher for the given status file path
func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

// Path returns the location of the status file
func (p *FilePublisher) Path() string {
	return p.path
}

// Publish atomically replaces the status file with the given snapshot
func (p *FilePublisher) Publish(snapshot *Snapshot) error {
	errFactory := errors.New()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}
	data = append(data, '\n')

	tmpPath := p.path + ".tmp"

	// 0644: companion tools may run as a different user than the daemon
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)

		return errFactory.Wrap(ErrPublishFailed, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)

		return errFactory.Wrap(ErrPublishFailed, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)

		return errFactory.Wrap(ErrPublishFailed, err)
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)

		return errFactory.Wrap(ErrPublishFailed, err)
	}

	// Sync the parent directory so the rename survives a power loss
	if dir, err := os.Open(filepath.Dir(p.path)); err == nil {
		dir.Sync()
		dir.Close()
	}

	return nil
}

// Clear removes the status file. Idempotent: a missing file is not an error.
func (p *FilePublisher) Clear() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(ErrClearFailed, err)
	}

	return nil
}

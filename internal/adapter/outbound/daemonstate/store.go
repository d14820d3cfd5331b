package daemonstate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// FileStateStore manages reading and writing the daemon's state.json.
// It provides atomic writes (write-tmp-then-rename), automatic backups,
// and file locking (flock for cross-process, mutex for in-process).
type FileStateStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStateStore creates a new FileStateStore for the given file path.
func NewFileStateStore(path string, logger *slog.Logger) *FileStateStore {
	return &FileStateStore{
		path:   path,
		logger: logger,
	}
}

// Load reads and parses the state.json file.
// If the file does not exist, it returns DefaultState().
// If the file contains invalid JSON, it returns an error.
func (s *FileStateStore) Load() (*DaemonState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("state file not found, using default state", "path", s.path)
			return s.DefaultState(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	// Skip on Windows where Unix file permission bits are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 { // group or other has access
				s.logger.Warn("state.json has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var state DaemonState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if state.Triggers == nil {
		state.Triggers = make(map[string]TriggerStateEntry)
	}
	if state.Policies == nil {
		state.Policies = make(map[string]PolicyStateEntry)
	}
	if state.Vars == nil {
		state.Vars = make(map[string]string)
	}

	return &state, nil
}

// Save writes the DaemonState to disk atomically.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Copy current file to path+".bak" (ignored if no current file)
//  4. Marshal state as indented JSON
//  5. Write to path+".tmp" with 0600 permissions
//  6. Fsync the temp file
//  7. Rename path+".tmp" -> path
//  8. Release flock
//  9. Release mutex
func (s *FileStateStore) Save(state *DaemonState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.UpdatedAt = time.Now().UTC()

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		bakPath := s.path + ".bak"
		if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on state file", "error", err)
	}

	s.logger.Debug("state saved", "path", s.path)
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileStateStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to state: %w", err)
	}
	return nil
}

// DefaultState returns a new, not-running DaemonState with empty
// trigger/policy/var tables.
func (s *FileStateStore) DefaultState() *DaemonState {
	now := time.Now().UTC()
	return &DaemonState{
		Version:   "1",
		Triggers:  make(map[string]TriggerStateEntry),
		Policies:  make(map[string]PolicyStateEntry),
		Vars:      make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Exists returns true if the state file exists on disk.
func (s *FileStateStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileStateStore) Path() string {
	return s.path
}

// MarkStarted sets PID and StartedAt to reflect a freshly launched
// daemon process, leaving every other field untouched.
func MarkStarted(state *DaemonState, pid int) {
	state.PID = pid
	state.StartedAt = time.Now().UTC()
}

// MarkStopped clears the running-process fields, leaving trigger and
// policy history intact for the next "status" read.
func MarkStopped(state *DaemonState) {
	state.PID = 0
	state.StartedAt = time.Time{}
}

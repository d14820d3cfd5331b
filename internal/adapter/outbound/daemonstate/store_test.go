package daemonstate

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDefaultState_NotRunningWithEmptyTables(t *testing.T) {
	s := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"), testLogger())
	state := s.DefaultState()

	if state.Version != "1" {
		t.Errorf("expected Version '1', got %q", state.Version)
	}
	if state.PID != 0 {
		t.Errorf("expected PID 0, got %d", state.PID)
	}
	if !state.StartedAt.IsZero() {
		t.Errorf("expected zero StartedAt, got %v", state.StartedAt)
	}
	if len(state.Triggers) != 0 || len(state.Policies) != 0 {
		t.Errorf("expected empty trigger/policy tables, got %v / %v", state.Triggers, state.Policies)
	}
	if state.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestLoad_NoFile_ReturnsDefaultState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewFileStateStore(path, testLogger())

	state, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if state.Version != "1" {
		t.Errorf("expected Version '1', got %q", state.Version)
	}
	if state.PID != 0 {
		t.Errorf("expected PID 0 for a never-started daemon, got %d", state.PID)
	}
}

func TestLoad_ValidFile_ReturnsParsedState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	now := time.Now().UTC().Truncate(time.Second)
	original := &DaemonState{
		Version:   "1",
		PID:       4242,
		StartedAt: now,
		Triggers: map[string]TriggerStateEntry{
			"periodic-cleanup": {
				Status:      "ok",
				LastCheck:   now,
				LastUsage:   72.5,
				LastCount:   120,
				TotalCount:  4800,
				TotalVolume: 1 << 30,
			},
		},
		Policies: map[string]PolicyStateEntry{
			"purge-old-logs": {
				LastRunID:     "run-1",
				LastRunStart:  now,
				LastRunEnd:    now.Add(5 * time.Minute),
				LastRunStatus: "ok",
				TotalCount:    900,
			},
		},
		Vars:      map[string]string{"last_full_scan": now.Format(time.RFC3339)},
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.MarshalIndent(original, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal test state: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write test state: %v", err)
	}

	s := NewFileStateStore(path, testLogger())
	state, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if state.PID != 4242 {
		t.Errorf("expected PID 4242, got %d", state.PID)
	}
	trig, ok := state.Triggers["periodic-cleanup"]
	if !ok {
		t.Fatalf("expected trigger entry to survive round trip")
	}
	if trig.Status != "ok" || trig.TotalCount != 4800 {
		t.Errorf("unexpected trigger entry: %+v", trig)
	}
	pol, ok := state.Policies["purge-old-logs"]
	if !ok || pol.LastRunStatus != "ok" || pol.TotalCount != 900 {
		t.Errorf("unexpected policy entry: %+v", pol)
	}
	if state.Vars["last_full_scan"] == "" {
		t.Error("expected persisted var to survive round trip")
	}
}

func TestLoad_CorruptFile_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := os.WriteFile(path, []byte("{invalid json"), 0600); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	s := NewFileStateStore(path, testLogger())
	_, err := s.Load()
	if err == nil {
		t.Fatal("expected error for corrupt JSON, got nil")
	}
}

func TestSave_CreatesFileWithCorrectContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewFileStateStore(path, testLogger())

	state := s.DefaultState()
	MarkStarted(state, 777)

	if err := s.Save(state); err != nil {
		t.Fatalf("Save() returned unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}

	var loaded DaemonState
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("failed to unmarshal saved file: %v", err)
	}
	if loaded.PID != 777 {
		t.Errorf("expected PID 777, got %d", loaded.PID)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set after Save")
	}
}

func TestSave_SetsFilePermissions0600(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewFileStateStore(path, testLogger())

	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("Save() returned unexpected error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestSave_CreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewFileStateStore(path, testLogger())

	state1 := s.DefaultState()
	MarkStarted(state1, 1)
	if err := s.Save(state1); err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}

	state2 := s.DefaultState()
	MarkStarted(state2, 2)
	if err := s.Save(state2); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	bakPath := path + ".bak"
	data, err := os.ReadFile(bakPath)
	if err != nil {
		t.Fatalf("failed to read backup file: %v", err)
	}
	var backup DaemonState
	if err := json.Unmarshal(data, &backup); err != nil {
		t.Fatalf("failed to unmarshal backup: %v", err)
	}
	if backup.PID != 1 {
		t.Errorf("expected backup PID 1, got %d", backup.PID)
	}

	currentData, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read current file: %v", err)
	}
	var current DaemonState
	if err := json.Unmarshal(currentData, &current); err != nil {
		t.Fatalf("failed to unmarshal current: %v", err)
	}
	if current.PID != 2 {
		t.Errorf("expected current PID 2, got %d", current.PID)
	}
}

func TestSave_AtomicWrite_NoTmpFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewFileStateStore(path, testLogger())

	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("Save() returned unexpected error: %v", err)
	}

	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Errorf("expected .tmp file to not exist after save, but it does")
	}
}

func TestMarkStartedThenMarkStoppedClearsPID(t *testing.T) {
	state := (&FileStateStore{}).DefaultState()
	MarkStarted(state, 999)
	if state.PID != 999 || state.StartedAt.IsZero() {
		t.Fatalf("expected MarkStarted to set PID and StartedAt: %+v", state)
	}
	MarkStopped(state)
	if state.PID != 0 || !state.StartedAt.IsZero() {
		t.Fatalf("expected MarkStopped to clear PID and StartedAt: %+v", state)
	}
}

func TestConcurrentSaves_DoNotCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewFileStateStore(path, testLogger())

	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("initial Save() failed: %v", err)
	}

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st := s.DefaultState()
			MarkStarted(st, n+1)
			if err := s.Save(st); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Save() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file after concurrent saves: %v", err)
	}
	var final DaemonState
	if err := json.Unmarshal(data, &final); err != nil {
		t.Fatalf("file corrupted after concurrent saves: %v", err)
	}
	if final.Version != "1" {
		t.Errorf("expected Version '1' after concurrent saves, got %q", final.Version)
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewFileStateStore(path, testLogger())

	now := time.Now().UTC().Truncate(time.Second)
	original := s.DefaultState()
	MarkStarted(original, 55)
	original.Triggers["hw-lw-watch"] = TriggerStateEntry{
		Status:     "running",
		LastCheck:  now,
		LastUsage:  88.1,
		TotalCount: 12,
	}
	original.Policies["archive-cold"] = PolicyStateEntry{
		LastRunID:     "run-42",
		LastRunStart:  now,
		LastRunStatus: "error",
		TotalErrors:   3,
	}
	original.Vars["cursor"] = "abc123"

	if err := s.Save(original); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if loaded.PID != 55 {
		t.Errorf("PID mismatch: got %d", loaded.PID)
	}
	if trig := loaded.Triggers["hw-lw-watch"]; trig.Status != "running" || trig.TotalCount != 12 {
		t.Errorf("trigger mismatch: %+v", trig)
	}
	if pol := loaded.Policies["archive-cold"]; pol.LastRunStatus != "error" || pol.TotalErrors != 3 {
		t.Errorf("policy mismatch: %+v", pol)
	}
	if loaded.Vars["cursor"] != "abc123" {
		t.Errorf("var mismatch: %q", loaded.Vars["cursor"])
	}
}

func TestLoad_TooOpenPermissions_WarnsButSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	data := []byte(`{"version":"1","pid":0,"triggers":{},"policies":{}}`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := NewFileStateStore(path, logger)

	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !strings.Contains(buf.String(), "too-open permissions") {
		t.Errorf("expected warning about too-open permissions, got log output: %q", buf.String())
	}
}

func TestPidFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	if err := WritePIDFile(path); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	if got := ReadPIDFile(path); got != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), got)
	}
}

func TestReadPIDFile_MissingReturnsZero(t *testing.T) {
	if got := ReadPIDFile(filepath.Join(t.TempDir(), "nope.pid")); got != 0 {
		t.Errorf("expected 0 for missing PID file, got %d", got)
	}
}

func TestProcessIsAlive_CurrentProcessIsAlive(t *testing.T) {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess: %v", err)
	}
	if !ProcessIsAlive(proc) {
		t.Error("expected the current process to report as alive")
	}
}

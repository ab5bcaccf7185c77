package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "engram.pid")

	if err := WritePIDFile(path, 12345); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	pid, err := ReadPIDFile(path)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != 12345 {
		t.Errorf("pid: got %d, want 12345", pid)
	}

	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	pid, err = ReadPIDFile(path)
	if err != nil || pid != 0 {
		t.Errorf("after remove: pid=%d err=%v", pid, err)
	}
}

func TestReadPIDFile_MissingReturnsZero(t *testing.T) {
	pid, err := ReadPIDFile(filepath.Join(t.TempDir(), "absent.pid"))
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != 0 {
		t.Errorf("pid: got %d, want 0", pid)
	}
}

func TestReadPIDFile_MalformedErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.pid")
	os.WriteFile(path, []byte("not a pid\n"), 0o644)

	if _, err := ReadPIDFile(path); err == nil {
		t.Error("expected error for malformed pid file")
	}
}

func TestRemovePIDFile_MissingIsNoop(t *testing.T) {
	if err := RemovePIDFile(filepath.Join(t.TempDir(), "absent.pid")); err != nil {
		t.Errorf("RemovePIDFile on missing file: %v", err)
	}
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if Alive(0) || Alive(-1) {
		t.Error("non-positive pids are never alive")
	}
}

func TestSupervisor_RunningPIDStaleFile(t *testing.T) {
	dir := t.TempDir()
	sup := &Supervisor{
		PIDPath: filepath.Join(dir, "engram.pid"),
		LogPath: filepath.Join(dir, "engram.log"),
	}

	// A pid that cannot exist: beyond the default pid_max.
	if err := WritePIDFile(sup.PIDPath, 1<<22+12345); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	pid, err := sup.RunningPID()
	if err != nil {
		t.Fatalf("RunningPID: %v", err)
	}
	if pid != 0 {
		t.Errorf("stale pid file should report not running, got %d", pid)
	}
}

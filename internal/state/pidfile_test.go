package state

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireWritesOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	pf, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pf.Release()

	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), pid)
	}
}

func TestAcquireFailsWhenAlreadyLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(path); err == nil {
		t.Error("expected second Acquire to fail while first holds the lock")
	}
}

func TestReleaseRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	pf, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := pf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected pid file removed after Release")
	}
}

func TestReadPIDMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Error("expected error for malformed pid file")
	}
}

func TestAcquireAfterReleaseSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	first, _ := Acquire(path)
	first.Release()

	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("expected re-Acquire to succeed after Release: %v", err)
	}
	defer second.Release()

	pid, _ := ReadPID(path)
	if pid != func() int { p, _ := strconv.Atoi(strconv.Itoa(os.Getpid())); return p }() {
		t.Errorf("unexpected pid after re-acquire: %d", pid)
	}
}

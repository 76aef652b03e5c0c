// Package state manages the daemon's exclusive-lock PID file and the
// small on-disk snapshot files ("state", "rate") used to survive
// restarts without losing the current level or fill-rate baseline.
package state

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// PIDFile holds an exclusive, OS-level advisory lock on a PID file for
// the lifetime of the daemon process, per spec.md §3's invariant (d):
// "the single-writer process file is held under an exclusive OS-level
// lock for the lifetime of the daemon."
type PIDFile struct {
	f    *os.File
	path string
}

// Acquire opens (or creates) path and takes a non-blocking exclusive
// flock on it, writing the current PID. If another process already
// holds the lock, it returns an error naming that process's PID so a
// `run` attempt against an already-running daemon fails fast with a
// clear message.
func Acquire(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("state: opening pid file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		existing, _ := os.ReadFile(path)
		f.Close()
		return nil, fmt.Errorf("state: daemon already running (pid file %s held, contents %q): %w", path, existing, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("state: truncating pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("state: writing pid file: %w", err)
	}

	return &PIDFile{f: f, path: path}, nil
}

// Release unlocks and removes the PID file. The lock is also released
// implicitly if the process dies without calling Release, since flock
// locks do not outlive the holding process.
func (p *PIDFile) Release() error {
	defer p.f.Close()
	if err := unix.Flock(int(p.f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("state: unlocking pid file: %w", err)
	}
	return os.Remove(p.path)
}

// ReadPID reads the PID recorded in an existing (possibly stale) PID
// file at path, for the `stop` subcommand to signal the running
// daemon without needing the lock itself.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("state: reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("state: malformed pid file contents %q: %w", data, err)
	}
	return pid, nil
}

package action

import (
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/diskwatchd/disk-watchdogd/internal/level"
	"github.com/diskwatchd/disk-watchdogd/internal/wlog"
	"github.com/diskwatchd/disk-watchdogd/internal/writer"
)

const (
	pauseCount = 5
	stopCount  = 5
	killCount  = 10
)

// Result records the outcome of one signal attempt against one
// candidate, for the audit journal and CLI reporting.
type Result struct {
	PID     int
	Comm    string
	Level   level.Level
	Signal  string
	Applied bool // false in dry-run, or if the signal delivery failed
	Err     error
}

// Executor sends level-appropriate signals to candidate writers.
type Executor struct {
	dryRun bool
	paused *Store
}

// New builds an Executor. paused is the PausedRecords store, updated
// whenever a pause is applied (or simulated in dry-run mode).
func New(dryRun bool, paused *Store) *Executor {
	return &Executor{dryRun: dryRun, paused: paused}
}

// ShouldAct implements spec.md §4.8's transition gating: an action
// fires only on entry into a more severe level from one of the listed
// predecessors, not on every iteration the level is sustained. This is
// what keeps action_pause from re-pausing the same PIDs every loop
// tick while the disk stays at the pause level.
func ShouldAct(prev, cur level.Level) bool {
	switch cur {
	case level.Kill:
		return prev != level.Kill
	case level.Stop:
		switch prev {
		case level.OK, level.Notice, level.Warn, level.Harsh, level.Pause:
			return true
		}
		return false
	case level.Pause:
		switch prev {
		case level.OK, level.Notice, level.Warn, level.Harsh:
			return true
		}
		return false
	default:
		return false
	}
}

// Apply sends the signal for lvl to up to lvl's configured candidate
// count, in descending bytes-written order (candidates is expected
// pre-ranked by the writer detector).
func (e *Executor) Apply(lvl level.Level, candidates []writer.Candidate) []Result {
	var n int
	var fn func(pid int, comm string) error
	var signalName string

	switch lvl {
	case level.Pause:
		n, signalName, fn = pauseCount, "SIGSTOP", e.sendStop
	case level.Stop:
		n, signalName, fn = stopCount, "SIGTERM", e.sendTerm
	case level.Kill:
		n, signalName, fn = killCount, "SIGKILL", e.sendKill
	default:
		return nil
	}

	if n > len(candidates) {
		n = len(candidates)
	}

	results := make([]Result, 0, n)
	for _, c := range candidates[:n] {
		err := fn(c.PID, c.Comm)
		res := Result{PID: c.PID, Comm: c.Comm, Level: lvl, Signal: signalName, Applied: err == nil && !e.dryRun, Err: err}
		if lvl == level.Pause {
			e.paused.Upsert(c.PID, c.Comm, time.Now())
		}
		results = append(results, res)
	}
	return results
}

func (e *Executor) sendStop(pid int, comm string) error {
	if e.dryRun {
		wlog.Printf(wlog.DryRun, "would pause pid=%d comm=%s (SIGSTOP)", pid, comm)
		return nil
	}
	wlog.Printf(wlog.Action, "pausing pid=%d comm=%s (SIGSTOP)", pid, comm)
	return signal(pid, unix.SIGSTOP)
}

func (e *Executor) sendTerm(pid int, comm string) error {
	if e.dryRun {
		wlog.Printf(wlog.DryRun, "would stop pid=%d comm=%s (SIGTERM)", pid, comm)
		return nil
	}
	wlog.Printf(wlog.Action, "stopping pid=%d comm=%s (SIGTERM)", pid, comm)
	return signal(pid, unix.SIGTERM)
}

func (e *Executor) sendKill(pid int, comm string) error {
	if e.dryRun {
		wlog.Printf(wlog.DryRun, "would kill pid=%d comm=%s (SIGKILL)", pid, comm)
		return nil
	}
	wlog.Printf(wlog.Action, "killing pid=%d comm=%s (SIGKILL)", pid, comm)
	return signal(pid, unix.SIGKILL)
}

func signal(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("action: signaling pid %d: %w", pid, err)
	}
	return nil
}

// Package resume implements spec.md §4.7's resume manager: once free
// space recovers past a hysteresis threshold, previously paused
// processes are unfrozen subject to a per-process cooldown and an
// hourly strike cap.
package resume

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/diskwatchd/disk-watchdogd/internal/action"
	"github.com/diskwatchd/disk-watchdogd/internal/wlog"
)

// stoppedState is the kernel process-state character for a stopped
// (SIGSTOP'd) process, as reported in field 3 of /proc/<pid>/stat.
const stoppedState = "T"

// staleAfter is spec.md §4.7's stale-entry cleanup window: a paused
// record older than this is dropped even if the PID still exists,
// since something has clearly gone wrong with normal resume flow by
// that point.
const staleAfter = 2 * time.Hour

// Outcome records what the manager did with one PausedRecord, for the
// audit journal and notification batching.
type Outcome struct {
	PID     int
	Comm    string
	Resumed bool
	Reason  string // why the record was kept, dropped, or resumed
}

// Manager evaluates and resumes paused processes.
type Manager struct {
	store            *action.Store
	maxStrikes       int
	cooldown         time.Duration
	autoResume       bool
	resumeThreshold  int
	dryRun           bool
}

// New builds a Manager from the resolved config.
func New(store *action.Store, autoResume bool, resumeThreshold, maxStrikes, cooldownSec int, dryRun bool) *Manager {
	return &Manager{
		store:           store,
		maxStrikes:      maxStrikes,
		cooldown:        time.Duration(cooldownSec) * time.Second,
		autoResume:      autoResume,
		resumeThreshold: resumeThreshold,
		dryRun:          dryRun,
	}
}

// Run evaluates every paused record against freeGB and the current
// time, resuming those eligible. It returns an outcome for each record
// resumed, dropped, or whose resume signal failed; records kept paused
// (strike cap or cooldown) produce no outcome. The caller sends one
// notification per call rather than one per process.
func (m *Manager) Run(freeGB int, now time.Time) []Outcome {
	m.cleanupStale(now)

	if !m.autoResume || freeGB < m.resumeThreshold {
		return nil
	}

	var outcomes []Outcome
	for _, rec := range m.store.Records() {
		outcome := m.evaluate(rec, now)
		if outcome != nil {
			outcomes = append(outcomes, *outcome)
		}
	}
	return outcomes
}

func (m *Manager) evaluate(rec action.Record, now time.Time) *Outcome {
	comm, alive := readComm(rec.PID)
	if !alive {
		m.store.Remove(rec.PID)
		return &Outcome{PID: rec.PID, Comm: rec.Comm, Reason: "pid gone"}
	}
	if comm != rec.Comm {
		m.store.Remove(rec.PID)
		return &Outcome{PID: rec.PID, Comm: rec.Comm, Reason: "comm mismatch, pid reused"}
	}

	state, err := processState(rec.PID)
	if err != nil || state != stoppedState {
		m.store.Remove(rec.PID)
		return &Outcome{PID: rec.PID, Comm: rec.Comm, Reason: "already resumed externally"}
	}

	if rec.Strikes >= m.maxStrikes {
		return nil // keep, locked at paused, no outcome worth reporting per-iteration
	}
	if now.Sub(rec.PausedAt) < m.cooldown {
		return nil // keep, cooldown not yet elapsed
	}

	if m.dryRun {
		wlog.Printf(wlog.DryRun, "would resume pid=%d comm=%s (SIGCONT)", rec.PID, rec.Comm)
		m.store.Remove(rec.PID)
		return &Outcome{PID: rec.PID, Comm: rec.Comm, Resumed: true, Reason: "dry-run"}
	}

	if err := syscall.Kill(rec.PID, unix.SIGCONT); err != nil {
		return &Outcome{PID: rec.PID, Comm: rec.Comm, Reason: fmt.Sprintf("resume signal failed: %v", err)}
	}
	wlog.Printf(wlog.Resume, "resumed pid=%d comm=%s", rec.PID, rec.Comm)
	m.store.Remove(rec.PID)
	return &Outcome{PID: rec.PID, Comm: rec.Comm, Resumed: true, Reason: "resumed"}
}

// cleanupStale drops records older than staleAfter regardless of PID
// liveness, per spec.md §4.7's manual-resume cleanup rule, applied
// here on every automatic pass too since a record that old indicates
// the normal resume path already failed for it.
func (m *Manager) cleanupStale(now time.Time) {
	for _, rec := range m.store.Records() {
		if now.Sub(rec.PausedAt) > staleAfter {
			m.store.Remove(rec.PID)
		}
	}
}

// ResumeAll implements the manual `resume` subcommand: send CONT to
// every record still in state T, then truncate the store, regardless
// of cooldown or strike count.
func ResumeAll(store *action.Store, dryRun bool) []Outcome {
	var outcomes []Outcome
	for _, rec := range store.Records() {
		comm, alive := readComm(rec.PID)
		if !alive || comm != rec.Comm {
			store.Remove(rec.PID)
			continue
		}
		state, err := processState(rec.PID)
		if err != nil || state != stoppedState {
			store.Remove(rec.PID)
			continue
		}
		if !dryRun {
			if err := syscall.Kill(rec.PID, unix.SIGCONT); err != nil {
				store.Remove(rec.PID)
				outcomes = append(outcomes, Outcome{PID: rec.PID, Comm: rec.Comm, Reason: fmt.Sprintf("resume failed: %v", err)})
				continue
			}
		}
		store.Remove(rec.PID)
		outcomes = append(outcomes, Outcome{PID: rec.PID, Comm: rec.Comm, Resumed: true, Reason: "manual resume"})
	}
	return outcomes
}

func readComm(pid int) (string, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", false
	}
	comm := strings.TrimSpace(string(data))
	if len(comm) > 15 {
		comm = comm[:15]
	}
	return comm, true
}

// processState parses field 3 of /proc/<pid>/stat, which is the
// kernel's single-character process state (T = stopped). Parsing
// starts after the last ')' rather than splitting naively on spaces,
// since the comm field (field 2) is parenthesized and can itself
// contain spaces or parentheses.
func processState(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", err
	}
	line := string(data)
	idx := strings.LastIndex(line, ")")
	if idx < 0 || idx+2 >= len(line) {
		return "", fmt.Errorf("resume: malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(line[idx+1:])
	if len(fields) < 1 {
		return "", fmt.Errorf("resume: malformed /proc/%d/stat", pid)
	}
	return fields[0], nil
}

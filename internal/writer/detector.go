package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/diskwatchd/disk-watchdogd/internal/config"
)

// maxRanked is the cap on how many candidates Detect returns, per
// spec.md §4.5 ("top 10 by bytes written").
const maxRanked = 10

// Detector runs one trace window against the monitored backing device,
// filters the result against the protected set and optional target
// allowlist, cross-checks PID liveness and ownership with gopsutil, and
// merges the window's observations into the persisted known_writers
// table before returning a ranked candidate list.
type Detector struct {
	cfg       *config.Config
	protected *PatternSet
	target    *PatternSet
	table     *Table
}

// New builds a Detector from cfg, loading (or creating) the
// known_writers table at tablePath.
func New(cfg *config.Config, tablePath string) (*Detector, error) {
	protected, err := NewPatternSet(cfg.ProtectedPatterns)
	if err != nil {
		return nil, err
	}
	target, err := NewPatternSet(cfg.TargetPatterns)
	if err != nil {
		return nil, err
	}
	table, err := LoadTable(tablePath)
	if err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, protected: protected, target: target, table: table}, nil
}

// Detect runs a single tracer window against device and returns the
// top writer candidates, merging this window's sample with the
// persisted table so bursty writers seen only in past windows still
// surface in status output.
func (d *Detector) Detect(ctx context.Context, device string) ([]Candidate, error) {
	raw, err := runTracer(ctx, d.cfg.TracerCmd, device)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for pid, w := range raw {
		if w.bytes < d.cfg.TracerByteThreshold {
			continue
		}
		if !d.isEligible(pid, w.comm) {
			continue
		}
		d.table.Upsert(pid, w.comm, w.bytes, now)
	}

	d.table.Prune(now, d.stillEligible)

	if err := d.table.Save(); err != nil {
		return nil, fmt.Errorf("writer: persisting known_writers table: %w", err)
	}

	entries := d.table.Entries()
	if len(entries) > maxRanked {
		entries = entries[:maxRanked]
	}
	return entries, nil
}

// isEligible applies the protected-set and optional target-allowlist
// filters to a comm name observed in this window.
func (d *Detector) isEligible(pid int, comm string) bool {
	if d.protected.Matches(comm) {
		return false
	}
	if !d.target.Empty() && !d.target.Matches(comm) {
		return false
	}
	return d.OwnerMatches(pid)
}

// stillEligible is the Table.Prune callback: an entry is dropped from
// the persisted table once its PID has exited, or once the PID has
// been reused by a different process (comm no longer matches what was
// recorded). This is the documented handling for spec.md §9's Open
// Question on PID reuse between detection and a later signal: rather
// than silently act against a different process sharing the old PID,
// a comm mismatch here simply drops the stale record.
func (d *Detector) stillEligible(pid int, comm string) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	name, err := proc.Name()
	if err != nil {
		return false
	}
	return truncateComm(name) == comm
}

// OwnerMatches reports whether pid's owning user matches cfg.User. An
// empty cfg.User disables the ownership check (match everyone), per
// spec.md's default of monitoring all users' processes on the
// configured mount.
func (d *Detector) OwnerMatches(pid int) bool {
	if d.cfg.User == "" {
		return true
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	owner, err := proc.Username()
	if err != nil {
		return false
	}
	return owner == d.cfg.User
}

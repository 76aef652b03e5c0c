// Package action sends the signal appropriate to a severity level to
// the top-N current writers and tracks paused processes for the
// resume manager.
package action

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// strikeWindow is the rolling window within which repeated pauses of
// the same (pid, comm) accumulate strikes, per spec.md §3
// ("strikes reset when interval since previous pause exceeds one hour").
const strikeWindow = time.Hour

// Record is spec.md §3's PausedRecord.
type Record struct {
	PID      int
	Comm     string
	PausedAt time.Time
	Strikes  int
}

// Store is the persisted "paused_pids" file: TAB-separated
// pid\tcomm\tpaused_at\tstrikes per line, rewritten atomically.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[int]Record
}

// LoadStore reads path if it exists, or starts empty if it does not.
func LoadStore(path string) (*Store, error) {
	s := &Store{path: path, records: map[int]Record{}}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("action: opening paused_pids: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parsePausedRow(line)
		if err != nil {
			continue
		}
		s.records[rec.PID] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("action: reading paused_pids: %w", err)
	}
	return s, nil
}

func parsePausedRow(line string) (Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return Record{}, fmt.Errorf("action: malformed paused_pids row %q", line)
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return Record{}, err
	}
	pausedAt, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Record{}, err
	}
	strikes, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, err
	}
	return Record{PID: pid, Comm: fields[1], PausedAt: time.Unix(pausedAt, 0), Strikes: strikes}, nil
}

func formatPausedRow(r Record) string {
	return fmt.Sprintf("%d\t%s\t%d\t%d", r.PID, r.Comm, r.PausedAt.Unix(), r.Strikes)
}

// Upsert records a fresh pause of (pid, comm) at now, incrementing the
// strike count if the same process was paused within strikeWindow, or
// starting a fresh strike count of 1 otherwise (new PID, comm mismatch
// indicating PID reuse, or the prior pause aged out of the window).
func (s *Store) Upsert(pid int, comm string, now time.Time) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[pid]
	var rec Record
	if ok && existing.Comm == comm && now.Sub(existing.PausedAt) < strikeWindow {
		rec = Record{PID: pid, Comm: comm, PausedAt: now, Strikes: existing.Strikes + 1}
	} else {
		rec = Record{PID: pid, Comm: comm, PausedAt: now, Strikes: 1}
	}
	s.records[pid] = rec
	return rec
}

// Get returns the record for pid, if tracked.
func (s *Store) Get(pid int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[pid]
	return rec, ok
}

// Remove drops pid's record, on successful resume, process death, or
// comm mismatch at observation time.
func (s *Store) Remove(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, pid)
}

// Records returns a snapshot sorted by PID.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Save atomically rewrites the paused_pids file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("action: creating state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".paused_pids-*.tmp")
	if err != nil {
		return fmt.Errorf("action: creating temp paused_pids file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	rows := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PID < rows[j].PID })

	w := bufio.NewWriter(tmp)
	for _, r := range rows {
		if _, err := fmt.Fprintln(w, formatPausedRow(r)); err != nil {
			tmp.Close()
			return fmt.Errorf("action: writing paused_pids row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("action: flushing paused_pids: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("action: syncing paused_pids: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("action: closing temp paused_pids file: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

package writer

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

// staleAfter is how long a table entry survives without being refreshed
// by a new trace window before Prune drops it, independent of whether
// the PID is still alive (the PID-liveness/comm-mismatch checks in
// Prune's alive callback can drop it sooner).
const staleAfter = 5 * time.Minute

// Table is the persisted "known_writers" record: a TAB-delimited,
// atomically-rewritten file of writers observed across trace windows,
// so a process that writes heavily in bursts still shows up in
// `writers` output between windows. Columns: pid, comm, bytes,
// first_seen (unix seconds), last_seen (unix seconds).
type Table struct {
	mu      sync.Mutex
	path    string
	entries map[int]Candidate
}

// LoadTable reads path if it exists, or starts empty if it does not.
func LoadTable(path string) (*Table, error) {
	t := &Table{path: path, entries: map[int]Candidate{}}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("writer: opening known_writers table: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cand, err := parseRow(line)
		if err != nil {
			continue // skip corrupt rows rather than fail the whole table
		}
		t.entries[cand.PID] = cand
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("writer: reading known_writers table: %w", err)
	}
	return t, nil
}

func parseRow(line string) (Candidate, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return Candidate{}, fmt.Errorf("writer: malformed row %q", line)
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return Candidate{}, err
	}
	bytesWritten, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Candidate{}, err
	}
	firstSeen, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Candidate{}, err
	}
	lastSeen, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{
		PID:       pid,
		Comm:      fields[1],
		Bytes:     bytesWritten,
		FirstSeen: time.Unix(firstSeen, 0),
		LastSeen:  time.Unix(lastSeen, 0),
	}, nil
}

func formatRow(c Candidate) string {
	return fmt.Sprintf("%d\t%s\t%d\t%d\t%d",
		c.PID, c.Comm, c.Bytes, c.FirstSeen.Unix(), c.LastSeen.Unix())
}

// Upsert records or refreshes a sighting. The byte count accumulates
// window-over-window, since a table entry represents cumulative
// observed writes, not a single window's sample.
func (t *Table) Upsert(pid int, comm string, windowBytes int64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	comm = truncateComm(comm)
	existing, ok := t.entries[pid]
	if !ok || existing.Comm != comm {
		t.entries[pid] = Candidate{PID: pid, Comm: comm, Bytes: windowBytes, FirstSeen: now, LastSeen: now}
		return
	}
	existing.Bytes += windowBytes
	existing.LastSeen = now
	t.entries[pid] = existing
}

// Prune drops entries untouched for longer than staleAfter, plus any
// entry for which alive returns false (used by callers to drop entries
// whose PID has exited or whose comm no longer matches, per the
// tracer-vs-signal-time PID reuse handling in detector.go).
func (t *Table) Prune(now time.Time, alive func(pid int, comm string) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pid, cand := range t.entries {
		if now.Sub(cand.LastSeen) > staleAfter {
			delete(t.entries, pid)
			continue
		}
		if alive != nil && !alive(pid, cand.Comm) {
			delete(t.entries, pid)
		}
	}
}

// Entries returns a snapshot sorted by descending bytes written.
func (t *Table) Entries() []Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Candidate, 0, len(t.entries))
	for _, c := range t.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bytes > out[j].Bytes })
	return out
}

// Save atomically rewrites the table file: write to a temp file in the
// same directory, fsync, then rename over the target, so a crash mid-
// write never leaves a truncated table on disk.
func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("writer: creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".known_writers-*.tmp")
	if err != nil {
		return fmt.Errorf("writer: creating temp table file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	rows := make([]Candidate, 0, len(t.entries))
	for _, c := range t.entries {
		rows = append(rows, c)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PID < rows[j].PID })
	for _, c := range rows {
		if _, err := fmt.Fprintln(w, formatRow(c)); err != nil {
			tmp.Close()
			return fmt.Errorf("writer: writing table row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writer: flushing table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writer: syncing table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writer: closing temp table file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("writer: renaming table into place: %w", err)
	}
	return nil
}

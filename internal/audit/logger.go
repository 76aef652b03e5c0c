// Package audit provides tamper-evident, hash-chained logging of the
// watchdog's level transitions and signal deliveries.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a single, chained audit record: a level transition, a
// signal sent to a writer, or a resume.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"` // e.g. "level_transition", "pause", "stop", "kill", "resume"
	PID       int            `json:"pid,omitempty"`
	Comm      string         `json:"comm,omitempty"`
	Level     string         `json:"level,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// Logger provides append-only, tamper-evident logging: each entry's
// hash incorporates the previous entry's hash, so truncating or
// editing a past line breaks the chain in a way Verify detects.
type Logger struct {
	file     *os.File
	mu       sync.Mutex
	lastHash string
}

// NewLogger opens (creating if needed) the journal at path, seeding
// its chain from the last entry already on disk.
func NewLogger(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: creating journal directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: opening journal: %w", err)
	}

	logger := &Logger{file: file, lastHash: "genesis"}
	logger.loadLastHash(path) // best-effort; start fresh on any error

	return logger, nil
}

// Log records action against the chain.
func (l *Logger) Log(action string, pid int, comm, level string, details map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		PID:       pid,
		Comm:      comm,
		Level:     level,
		Details:   details,
		PrevHash:  l.lastHash,
	}
	entry.Hash = l.computeHash(entry)
	l.lastHash = entry.Hash

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshaling entry: %w", err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: writing entry: %w", err)
	}
	return l.file.Sync()
}

// Close closes the journal file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Logger) computeHash(entry Entry) string {
	hashInput := struct {
		Timestamp time.Time      `json:"timestamp"`
		Action    string         `json:"action"`
		PID       int            `json:"pid,omitempty"`
		Comm      string         `json:"comm,omitempty"`
		Level     string         `json:"level,omitempty"`
		Details   map[string]any `json:"details,omitempty"`
		PrevHash  string         `json:"prev_hash"`
	}{
		Timestamp: entry.Timestamp,
		Action:    entry.Action,
		PID:       entry.PID,
		Comm:      entry.Comm,
		Level:     entry.Level,
		Details:   entry.Details,
		PrevHash:  entry.PrevHash,
	}
	data, _ := json.Marshal(hashInput)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func (l *Logger) loadLastHash(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := splitLines(data)
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(lines[i], &entry); err == nil {
			l.lastHash = entry.Hash
			return nil
		}
	}
	return nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// ReadAll reads every entry from the journal at path.
func ReadAll(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("audit: reading journal: %w", err)
	}

	var entries []Entry
	for i, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("audit: parsing entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Verify walks the chain and reports whether every entry's prev_hash
// links to the previous entry's hash and every entry's hash matches
// its own recomputed content hash.
func Verify(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("audit: reading journal: %w", err)
	}

	l := &Logger{}
	prevHash := "genesis"
	for i, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return false, fmt.Errorf("audit: parsing entry %d: %w", i, err)
		}
		if entry.PrevHash != prevHash {
			return false, fmt.Errorf("audit: chain broken at entry %d (timestamp %s)", i, entry.Timestamp)
		}
		wantHash := entry.Hash
		entry.Hash = ""
		if got := l.computeHash(entry); got != wantHash {
			return false, fmt.Errorf("audit: hash mismatch at entry %d (timestamp %s)", i, entry.Timestamp)
		}
		prevHash = wantHash
	}
	return true, nil
}

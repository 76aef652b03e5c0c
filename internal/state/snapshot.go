package state

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/diskwatchd/disk-watchdogd/internal/level"
)

// LoadLevel reads the "state" file, which holds nothing but the current
// level's name on its own line. ok is false if the file does not yet exist.
func LoadLevel(path string) (level.Level, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	name := strings.TrimSpace(string(data))
	for l := level.OK; l <= level.Kill; l++ {
		if l.String() == name {
			return l, true, nil
		}
	}
	return 0, false, fmt.Errorf("state: unrecognized level name %q", name)
}

// SaveLevel atomically rewrites the "state" file with l's name.
func SaveLevel(path string, l level.Level) error {
	return atomicWriteLines(path, []string{l.String()})
}

// RateSample is the persisted "rate" file: the last (free_bytes,
// wall_time) pair the fill-rate estimator saw, so a restart can seed
// the estimator instead of reporting a spurious zero rate for a full
// iteration after startup. Written as two whitespace-separated
// integers on one line, per spec.md §6.
type RateSample struct {
	FreeBytes uint64
	WallTime  time.Time
}

// LoadRateSample reads path; ok is false if the file does not yet exist.
func LoadRateSample(path string) (RateSample, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return RateSample{}, false, nil
	}
	if err != nil {
		return RateSample{}, false, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return RateSample{}, false, fmt.Errorf("state: rate file: expected 2 fields, got %d", len(fields))
	}
	freeBytes, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return RateSample{}, false, fmt.Errorf("state: rate file: parsing free_bytes: %w", err)
	}
	wallTimeUnix, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return RateSample{}, false, fmt.Errorf("state: rate file: parsing wall_time: %w", err)
	}
	return RateSample{FreeBytes: freeBytes, WallTime: time.Unix(wallTimeUnix, 0)}, true, nil
}

// SaveRateSample atomically rewrites path with r.
func SaveRateSample(path string, r RateSample) error {
	return atomicWriteLines(path, []string{fmt.Sprintf("%d %d", r.FreeBytes, r.WallTime.Unix())})
}

// NotifyStamp loads the single wall_time integer from a notify_<level>
// cooldown file. ok is false if the file does not yet exist.
func NotifyStamp(path string) (time.Time, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("state: parsing notify stamp: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

// SaveNotifyStamp atomically rewrites path with t's wall time.
func SaveNotifyStamp(path string, t time.Time) error {
	return atomicWriteLines(path, []string{strconv.FormatInt(t.Unix(), 10)})
}

// atomicWriteLines writes lines to path via a temp-file-then-rename,
// the same pattern used throughout the state layer, so a crash
// mid-write never leaves a truncated file on disk. This is a
// deliberate improvement over the teacher's approval.Store/secrets
// packages, which wrote state with a bare os.WriteFile.
func atomicWriteLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("state: creating state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			tmp.Close()
			return fmt.Errorf("state: writing: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("state: flushing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("state: syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: closing temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

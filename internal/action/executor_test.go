package action

import (
	"path/filepath"
	"testing"

	"github.com/diskwatchd/disk-watchdogd/internal/level"
	"github.com/diskwatchd/disk-watchdogd/internal/writer"
)

func candidates(n int) []writer.Candidate {
	out := make([]writer.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, writer.Candidate{PID: 1000 + i, Comm: "writer", Bytes: int64(n - i)})
	}
	return out
}

func TestApplyPauseCapsAtFiveAndRecordsPaused(t *testing.T) {
	store, _ := LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	e := New(true, store) // dry-run so no real signals are sent
	results := e.Apply(level.Pause, candidates(8))

	if len(results) != pauseCount {
		t.Fatalf("expected %d results, got %d", pauseCount, len(results))
	}
	for _, r := range results {
		if r.Applied {
			t.Error("expected dry-run results to report Applied=false")
		}
		if _, ok := store.Get(r.PID); !ok {
			t.Errorf("expected pid %d recorded in paused store even in dry-run", r.PID)
		}
	}
}

func TestApplyStopDoesNotTrackPausedRecords(t *testing.T) {
	store, _ := LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	e := New(true, store)
	results := e.Apply(level.Stop, candidates(3))

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if _, ok := store.Get(r.PID); ok {
			t.Errorf("did not expect stop action to create a paused record for pid %d", r.PID)
		}
	}
}

func TestApplyKillCapsAtTen(t *testing.T) {
	store, _ := LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	e := New(true, store)
	results := e.Apply(level.Kill, candidates(15))
	if len(results) != killCount {
		t.Fatalf("expected %d results, got %d", killCount, len(results))
	}
}

func TestApplyFewerCandidatesThanCap(t *testing.T) {
	store, _ := LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	e := New(true, store)
	results := e.Apply(level.Pause, candidates(2))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestApplyNonActionLevelReturnsNil(t *testing.T) {
	store, _ := LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	e := New(true, store)
	if results := e.Apply(level.Warn, candidates(5)); results != nil {
		t.Errorf("expected no action for warn level, got %v", results)
	}
}

func TestShouldActGating(t *testing.T) {
	cases := []struct {
		prev, cur level.Level
		want      bool
	}{
		{level.Harsh, level.Pause, true},
		{level.Pause, level.Pause, false}, // sustained, no re-pause
		{level.Pause, level.Stop, true},
		{level.Stop, level.Stop, false},
		{level.Stop, level.Kill, true},
		{level.Kill, level.Kill, false},
		{level.OK, level.Stop, true},
		{level.OK, level.Pause, true},
		{level.Warn, level.Harsh, false}, // harsh itself has no action
	}
	for _, c := range cases {
		if got := ShouldAct(c.prev, c.cur); got != c.want {
			t.Errorf("ShouldAct(%s, %s) = %v, want %v", c.prev, c.cur, got, c.want)
		}
	}
}

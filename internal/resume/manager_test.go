package resume

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/diskwatchd/disk-watchdogd/internal/action"
)

func TestRunDoesNothingWhenAutoResumeDisabled(t *testing.T) {
	store, _ := action.LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	store.Upsert(os.Getpid(), selfComm(t), time.Now().Add(-time.Hour))

	m := New(store, false, 50, 3, 300, true)
	outcomes := m.Run(100, time.Now())
	if outcomes != nil {
		t.Errorf("expected no outcomes when auto_resume disabled, got %v", outcomes)
	}
}

func TestRunDoesNothingBelowResumeThreshold(t *testing.T) {
	store, _ := action.LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	store.Upsert(os.Getpid(), selfComm(t), time.Now().Add(-time.Hour))

	m := New(store, true, 50, 3, 300, true)
	outcomes := m.Run(40, time.Now())
	if outcomes != nil {
		t.Errorf("expected no outcomes below resume threshold, got %v", outcomes)
	}
}

func TestRunDropsRecordForDeadPID(t *testing.T) {
	store, _ := action.LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	const fakePID = 1 << 30 // exceedingly unlikely to exist
	store.Upsert(fakePID, "ghost", time.Now().Add(-time.Hour))

	m := New(store, true, 50, 3, 1, true)
	outcomes := m.Run(100, time.Now())
	if len(outcomes) != 1 || outcomes[0].Resumed {
		t.Fatalf("expected a single drop outcome, got %v", outcomes)
	}
	if _, ok := store.Get(fakePID); ok {
		t.Error("expected dead-PID record to be dropped")
	}
}

func TestCleanupStaleDropsOldRecordsRegardlessOfThreshold(t *testing.T) {
	store, _ := action.LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	const fakePID = 1<<30 + 1
	store.Upsert(fakePID, "ghost", time.Now().Add(-3*time.Hour))

	m := New(store, false, 50, 3, 300, true) // auto_resume disabled; cleanup still runs
	m.Run(0, time.Now())

	if _, ok := store.Get(fakePID); ok {
		t.Error("expected stale record older than 2h to be dropped even with auto_resume disabled")
	}
}

func TestResumeAllTruncatesDeadAndMismatchedRecords(t *testing.T) {
	store, _ := action.LoadStore(filepath.Join(t.TempDir(), "paused_pids"))
	const fakePID = 1<<30 + 2
	store.Upsert(fakePID, "ghost", time.Now())

	ResumeAll(store, true)
	if _, ok := store.Get(fakePID); ok {
		t.Error("expected dead PID dropped by ResumeAll")
	}
}

func selfComm(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("/proc/self/comm")
	if err != nil {
		t.Skip("cannot read /proc/self/comm on this platform")
	}
	s := string(data)
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 15 {
		s = s[:15]
	}
	return s
}

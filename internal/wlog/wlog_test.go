package wlog

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintfIncludesLevelBracket(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Printf(Fatal, "mount %s unavailable", "/data")

	out := buf.String()
	if !strings.Contains(out, "[FATAL]") {
		t.Errorf("expected [FATAL] bracket, got %q", out)
	}
	if !strings.Contains(out, "mount /data unavailable") {
		t.Errorf("expected formatted message, got %q", out)
	}
}

func TestPrintfMultipleLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Printf(DryRun, "would send SIGSTOP to pid %d", 123)
	l.Printf(Escalate, "free=%dGB rate=%dGB/min", 68, 10)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[DRY-RUN]") {
		t.Errorf("expected [DRY-RUN], got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ESCALATE]") {
		t.Errorf("expected [ESCALATE], got %q", lines[1])
	}
}

package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/diskwatchd/disk-watchdogd/internal/audit"
	"github.com/diskwatchd/disk-watchdogd/internal/config"
)

func TestCheckConfigNil(t *testing.T) {
	result := checkConfig("/nonexistent/config", nil)
	if result.Status != StatusFail {
		t.Errorf("expected StatusFail for nil config, got %d", result.Status)
	}
}

func TestCheckConfigLoaded(t *testing.T) {
	result := checkConfig("/etc/disk-watchdogd.conf", config.Default())
	if result.Status != StatusPass {
		t.Errorf("expected StatusPass for loaded config, got %d", result.Status)
	}
}

func TestCheckMountInvalid(t *testing.T) {
	cfg := config.Default()
	cfg.Mount = "/nonexistent/mount/point/xyz"
	result := checkMount(cfg)
	if result.Status != StatusFail {
		t.Errorf("expected StatusFail for bad mount, got %d", result.Status)
	}
}

func TestCheckTracerMissing(t *testing.T) {
	cfg := config.Default()
	cfg.TracerCmd = "definitely-not-a-real-tracer-binary"
	result := checkTracer(cfg)
	if result.Status != StatusFail {
		t.Errorf("expected StatusFail for missing tracer, got %d", result.Status)
	}
}

func TestCheckStateDirMissing(t *testing.T) {
	cfg := config.Default()
	cfg.StateDir = filepath.Join(t.TempDir(), "does-not-exist-yet")
	result := checkStateDir(cfg)
	if result.Status != StatusWarn {
		t.Errorf("expected StatusWarn for missing state dir, got %d", result.Status)
	}
}

func TestCheckStateDirPresentAndPrivate(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o700); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	cfg := config.Default()
	cfg.StateDir = dir
	result := checkStateDir(cfg)
	if result.Status != StatusPass {
		t.Errorf("expected StatusPass for private 0700 dir, got %d: %s", result.Status, result.Detail)
	}
}

func TestCheckAuditLogMissing(t *testing.T) {
	result := checkAuditLog(filepath.Join(t.TempDir(), "journal.log"))
	if result.Status != StatusPass {
		t.Errorf("expected StatusPass for missing (empty) audit log, got %d", result.Status)
	}
}

func TestCheckAuditLogValidChain(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "journal.log")
	logger, err := audit.NewLogger(logPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Log("pause", 123, "ffmpeg", "pause", nil)
	logger.Close()

	result := checkAuditLog(logPath)
	if result.Status != StatusPass {
		t.Errorf("expected StatusPass for valid chain, got %d: %s", result.Status, result.Detail)
	}
}

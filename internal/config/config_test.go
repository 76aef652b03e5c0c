package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "disk-watchdogd.conf")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "# empty config, defaults only\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mount != "/" {
		t.Errorf("expected default mount /, got %s", cfg.Mount)
	}
	if !cfg.Notice.Auto {
		t.Error("expected notice threshold to default to auto")
	}
	if cfg.ResumeCooldownSec != 300 {
		t.Errorf("expected default cooldown 300, got %d", cfg.ResumeCooldownSec)
	}
}

func TestLoadOverridesThresholds(t *testing.T) {
	path := writeConfig(t, "mount=/data\nnotice=170\nwarn=119\nharsh=68\npause=30\nstop=15\nkill=5\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mount != "/data" {
		t.Errorf("expected mount /data, got %s", cfg.Mount)
	}
	if cfg.Pause.Auto || cfg.Pause.Value != 30 {
		t.Errorf("expected pause=30, got %+v", cfg.Pause)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	path := writeConfig(t, "pause=notanumber\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid threshold value")
	}
}

func TestLoadRejectsMissingEquals(t *testing.T) {
	path := writeConfig(t, "this line has no equals sign\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestLoadParsesNotifiers(t *testing.T) {
	path := writeConfig(t, "notify_webhook_enabled=true\nnotify_webhook_url=https://example.com/hook\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Notifiers) != 1 {
		t.Fatalf("expected 1 notifier, got %d", len(cfg.Notifiers))
	}
	if cfg.Notifiers[0].Params["url"] != "https://example.com/hook" {
		t.Errorf("expected url param, got %+v", cfg.Notifiers[0].Params)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/disk-watchdogd.conf"); err == nil {
		t.Fatal("expected error for nonexistent config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "mount=/\n")
	t.Setenv("DISK_WATCHDOG_MOUNT", "/srv")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mount != "/srv" {
		t.Errorf("expected env override to win, got %s", cfg.Mount)
	}
}

// Package doctor provides health checks for the disk-watchdogd runtime
// environment: config, mount, tracer availability, state directory,
// audit log integrity, and free space on the state volume.
package doctor

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/diskwatchd/disk-watchdogd/internal/audit"
	"github.com/diskwatchd/disk-watchdogd/internal/config"
	"github.com/diskwatchd/disk-watchdogd/internal/sampler"
)

// Status represents the result of a health check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

// Result holds the outcome of a single health check.
type Result struct {
	Name   string
	Status Status
	Detail string
	Fix    string // suggested remediation
}

// RunAll executes every health check against cfg and cfgPath. If cfg
// is nil (the config file failed to load), only checkConfig runs;
// every other check depends on a resolved mount/state directory and
// would otherwise report misleading failures for a problem that is
// really just the config load itself.
func RunAll(cfgPath string, cfg *config.Config, auditLogPath string) []Result {
	if cfg == nil {
		return []Result{checkConfig(cfgPath, cfg)}
	}
	return []Result{
		checkConfig(cfgPath, cfg),
		checkMount(cfg),
		checkTracer(cfg),
		checkStateDir(cfg),
		checkAuditLog(auditLogPath),
		checkDiskSpace(cfg.StateDir),
	}
}

func checkConfig(cfgPath string, cfg *config.Config) Result {
	if cfg == nil {
		return Result{
			Name:   "Configuration",
			Status: StatusFail,
			Detail: fmt.Sprintf("could not load %s", cfgPath),
			Fix:    "Check the file exists and is valid key=value syntax",
		}
	}
	return Result{
		Name:   "Configuration",
		Status: StatusPass,
		Detail: cfgPath,
	}
}

func checkMount(cfg *config.Config) Result {
	stat, err := sampler.Sample(cfg.Mount)
	if err != nil {
		return Result{
			Name:   "Monitored mount",
			Status: StatusFail,
			Detail: fmt.Sprintf("%s: %v", cfg.Mount, err),
			Fix:    "Verify the mount path exists and is accessible",
		}
	}
	return Result{
		Name:   "Monitored mount",
		Status: StatusPass,
		Detail: fmt.Sprintf("%s on %s (%d GB free of %d GB)", cfg.Mount, stat.BackingDevice, stat.FreeGB(), stat.TotalGB()),
	}
}

func checkTracer(cfg *config.Config) Result {
	path, err := exec.LookPath(cfg.TracerCmd)
	if err != nil {
		return Result{
			Name:   "Tracer binary",
			Status: StatusFail,
			Detail: fmt.Sprintf("%q not found in PATH", cfg.TracerCmd),
			Fix:    "Install the configured tracer (e.g. biosnoop from bcc-tools) or change tracer_cmd",
		}
	}
	return Result{
		Name:   "Tracer binary",
		Status: StatusPass,
		Detail: path,
	}
}

func checkStateDir(cfg *config.Config) Result {
	info, err := os.Stat(cfg.StateDir)
	if os.IsNotExist(err) {
		return Result{
			Name:   "State directory",
			Status: StatusWarn,
			Detail: fmt.Sprintf("%s does not exist yet", cfg.StateDir),
			Fix:    "Run the daemon once to create it, or create it manually with mode 0700",
		}
	}
	if err != nil {
		return Result{
			Name:   "State directory",
			Status: StatusFail,
			Detail: err.Error(),
		}
	}
	if info.Mode().Perm()&0o077 != 0 {
		return Result{
			Name:   "State directory",
			Status: StatusWarn,
			Detail: fmt.Sprintf("%s is group/world accessible", cfg.StateDir),
			Fix:    fmt.Sprintf("chmod 0700 %s", cfg.StateDir),
		}
	}
	return Result{
		Name:   "State directory",
		Status: StatusPass,
		Detail: cfg.StateDir,
	}
}

func checkAuditLog(logPath string) Result {
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return Result{
			Name:   "Audit log",
			Status: StatusPass,
			Detail: "empty (no entries yet)",
		}
	}

	entries, err := audit.ReadAll(logPath)
	if err != nil {
		return Result{
			Name:   "Audit log",
			Status: StatusFail,
			Detail: fmt.Sprintf("failed to read: %s", err),
			Fix:    "Check file permissions on the audit journal",
		}
	}

	valid, err := audit.Verify(logPath)
	if err != nil || !valid {
		detail := "hash chain broken"
		if err != nil {
			detail = err.Error()
		}
		return Result{
			Name:   "Audit log",
			Status: StatusFail,
			Detail: fmt.Sprintf("%d entries, %s", len(entries), detail),
			Fix:    "The audit log may have been tampered with; investigate immediately",
		}
	}

	return Result{
		Name:   "Audit log",
		Status: StatusPass,
		Detail: fmt.Sprintf("valid (%d entries, chain intact)", len(entries)),
	}
}

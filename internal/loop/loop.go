// Package loop implements the watchdog's single cooperative control
// loop: sample, estimate rate, classify, resume-check, act, notify,
// persist, sleep — in that fixed order, once per iteration, per
// spec.md §4.8/§5.
package loop

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.opentelemetry.io/otel/trace"

	"github.com/diskwatchd/disk-watchdogd/internal/action"
	"github.com/diskwatchd/disk-watchdogd/internal/audit"
	"github.com/diskwatchd/disk-watchdogd/internal/config"
	"github.com/diskwatchd/disk-watchdogd/internal/level"
	"github.com/diskwatchd/disk-watchdogd/internal/notify"
	"github.com/diskwatchd/disk-watchdogd/internal/rate"
	"github.com/diskwatchd/disk-watchdogd/internal/resume"
	"github.com/diskwatchd/disk-watchdogd/internal/sampler"
	"github.com/diskwatchd/disk-watchdogd/internal/state"
	"github.com/diskwatchd/disk-watchdogd/internal/telemetry"
	"github.com/diskwatchd/disk-watchdogd/internal/threshold"
	"github.com/diskwatchd/disk-watchdogd/internal/wlog"
	"github.com/diskwatchd/disk-watchdogd/internal/writer"
)

// Paths collects the state-directory file locations the loop reads
// from and writes to, all under cfg.StateDir (0700) per spec.md §6.
type Paths struct {
	PIDFile    string
	StateFile  string
	RateFile   string
	Writers    string
	PausedPIDs string
	AuditLog   string
}

// DefaultPaths derives the standard layout from cfg.
func DefaultPaths(cfg *config.Config) Paths {
	return Paths{
		PIDFile:    filepath.Join(cfg.RunDir, "disk-watchdogd.pid"),
		StateFile:  filepath.Join(cfg.StateDir, "state"),
		RateFile:   filepath.Join(cfg.StateDir, "rate"),
		Writers:    filepath.Join(cfg.StateDir, "known_writers"),
		PausedPIDs: filepath.Join(cfg.StateDir, "paused_pids"),
		AuditLog:   filepath.Join(cfg.StateDir, "audit", "journal.log"),
	}
}

// Runner owns every long-lived component the control loop drives. It
// is built once at startup and torn down once at shutdown; Reload
// swaps in a freshly resolved threshold set without recreating
// anything else, per the Design Note on process-wide global state.
type Runner struct {
	cfgPath string
	cfg     *config.Config
	paths   Paths

	thresholds *threshold.ResolvedThresholds

	pidFile     *state.PIDFile
	rateEst     *rate.Estimator
	detector    *writer.Detector
	pausedStore *action.Store
	executor    *action.Executor
	resumeMgr   *resume.Manager
	dispatcher  *notify.Dispatcher
	auditLogger *audit.Logger
	tracer      trace.Tracer

	prevLevel level.Level
}

// New builds a Runner from cfg, acquiring the PID-file lock and
// opening the persisted-state files. The caller must call Close when
// the loop exits, whether cleanly or on error.
func New(cfgPath string, cfg *config.Config) (*Runner, error) {
	diskStat, err := sampler.Sample(cfg.Mount)
	if err != nil {
		return nil, fmt.Errorf("loop: initial sample of %s: %w", cfg.Mount, err)
	}

	rt, err := threshold.Resolve(cfg, diskStat.TotalGB())
	if err != nil {
		return nil, fmt.Errorf("loop: resolving thresholds: %w", err)
	}

	paths := DefaultPaths(cfg)
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("loop: creating state directory: %w", err)
	}
	if err := os.MkdirAll(cfg.RunDir, 0o755); err != nil {
		return nil, fmt.Errorf("loop: creating run directory: %w", err)
	}

	if err := writer.CheckTracerAvailable(cfg.TracerCmd); err != nil {
		return nil, fmt.Errorf("loop: tracer unavailable: %w", err)
	}

	pidFile, err := state.Acquire(paths.PIDFile)
	if err != nil {
		return nil, err
	}

	detector, err := writer.New(cfg, paths.Writers)
	if err != nil {
		pidFile.Release()
		return nil, err
	}

	pausedStore, err := action.LoadStore(paths.PausedPIDs)
	if err != nil {
		pidFile.Release()
		return nil, err
	}

	dispatcher, err := notify.NewDispatcher(cfg)
	if err != nil {
		pidFile.Release()
		return nil, err
	}

	auditLogger, err := audit.NewLogger(paths.AuditLog)
	if err != nil {
		pidFile.Release()
		return nil, err
	}

	r := &Runner{
		cfgPath:     cfgPath,
		cfg:         cfg,
		paths:       paths,
		thresholds:  rt,
		pidFile:     pidFile,
		rateEst:     rate.New(cfg.RateWarnGBPerMin),
		detector:    detector,
		pausedStore: pausedStore,
		executor:    action.New(cfg.DryRun, pausedStore),
		resumeMgr:   resume.New(pausedStore, cfg.AutoResume, rt.Resume, cfg.ResumeMaxStrikes, cfg.ResumeCooldownSec, cfg.DryRun),
		dispatcher:  dispatcher,
		auditLogger: auditLogger,
		tracer:      telemetry.Tracer("disk-watchdogd"),
	}

	if saved, ok, err := state.LoadLevel(paths.StateFile); err == nil && ok {
		r.prevLevel = saved
	}
	if sample, ok, err := state.LoadRateSample(paths.RateFile); err == nil && ok {
		r.rateEst.Seed(sample.FreeBytes, sample.WallTime)
	}

	return r, nil
}

// Close releases the PID file and audit log. It does not remove
// persisted state files, since those are meant to survive restarts.
func (r *Runner) Close() {
	r.auditLogger.Close()
	r.pidFile.Release()
}

// Run executes the control loop until ctx is canceled or a
// termination signal is received, returning nil on clean shutdown.
func (r *Runner) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		start := time.Now()
		interval := r.iterate(ctx)
		telemetry.IterationDuration.Observe(time.Since(start).Seconds())

		daemon.SdNotify(false, daemon.SdNotifyWatchdog)

		select {
		case <-ctx.Done():
			wlog.Printf(wlog.Info, "shutting down: context canceled")
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				r.reload()
			default:
				wlog.Printf(wlog.Info, "shutting down: received %s", sig)
				return nil
			}
		case <-time.After(interval):
		}
	}
}

// sleepFor maps the post-iteration severity level to the adaptive
// sleep interval from spec.md §4.8.
func sleepFor(l level.Level) time.Duration {
	switch l {
	case level.OK:
		return 300 * time.Second
	case level.Notice:
		return 60 * time.Second
	case level.Warn:
		return 30 * time.Second
	case level.Harsh:
		return 10 * time.Second
	case level.Pause:
		return 3 * time.Second
	default: // Stop, Kill
		return 1 * time.Second
	}
}

// iterate runs one pass of sample → rate → classify → resume-check →
// possibly-act → notify → persist-state, returning the sleep interval
// for the level it ended on. Errors at the sampling stage are
// iteration-transient per spec.md §7: logged and retried after a
// fixed 60s backoff rather than the adaptive table.
func (r *Runner) iterate(ctx context.Context) time.Duration {
	ctx, span := r.tracer.Start(ctx, "iterate")
	defer span.End()

	stat, err := sampler.Sample(r.cfg.Mount)
	if err != nil {
		wlog.Printf(wlog.Warning, "sampling %s failed: %v", r.cfg.Mount, err)
		span.RecordError(err)
		return 60 * time.Second
	}

	now := time.Now()
	freeGB := stat.FreeGB()
	rateGBPerMin := r.rateEst.Update(now, stat.FreeBytes)

	telemetry.FreeBytes.Set(float64(stat.FreeBytes))
	telemetry.FillRateGBPerMin.Set(float64(rateGBPerMin))

	escalateWindow := r.cfg.RateEscalateMinutes
	if !r.cfg.SmartMode {
		escalateWindow = 0
	}
	base := level.Classify(freeGB, 0, r.thresholds, 0)
	cur := level.Classify(freeGB, rateGBPerMin, r.thresholds, escalateWindow)
	if cur != base {
		wlog.Printf(wlog.Escalate, "escalated %s -> %s (free=%dGB rate=%dGB/min)", base, cur, freeGB, rateGBPerMin)
	}
	telemetry.CurrentLevel.Set(float64(cur))

	resumed := 0
	for _, outcome := range r.resumeMgr.Run(freeGB, now) {
		if outcome.Resumed {
			resumed++
			telemetry.ResumesTotal.Inc()
			r.auditLogger.Log("resume", outcome.PID, outcome.Comm, cur.String(), map[string]any{"reason": outcome.Reason})
		}
	}
	if resumed > 0 {
		r.dispatcher.Notify(ctx, notify.Payload{
			Level:     cur,
			Mount:     r.cfg.Mount,
			FreeGB:    freeGB,
			RateGBMin: rateGBPerMin,
			Message:   fmt.Sprintf("disk-watchdogd: resumed %d paused process(es) on %s (%d GB free)", resumed, r.cfg.Mount, freeGB),
			Timestamp: now,
		})
	}

	if action.ShouldAct(r.prevLevel, cur) {
		r.act(ctx, cur, stat.BackingDevice, freeGB, rateGBPerMin)
	} else {
		r.announce(ctx, stat.BackingDevice, cur, freeGB, rateGBPerMin)
	}

	if cur == level.OK && r.prevLevel != level.OK {
		wlog.Printf(wlog.Notice, "recovered to ok (free=%dGB)", freeGB)
		r.dispatcher.ClearCooldowns()
	}

	r.persist(cur)
	r.auditLogger.Log("level_transition", 0, "", cur.String(), map[string]any{"free_gb": freeGB, "rate_gb_per_min": rateGBPerMin})

	r.prevLevel = cur
	return sleepFor(cur)
}

// act runs the writer detector and applies the level's signal to the
// ranked candidates, then notifies and journals every result.
func (r *Runner) act(ctx context.Context, cur level.Level, device string, freeGB, rateGBPerMin int) {
	candidates, err := r.detector.Detect(ctx, device)
	if err != nil {
		wlog.Printf(wlog.Warning, "writer detection failed: %v", err)
		candidates = nil
	}

	results := r.executor.Apply(cur, candidates)
	for _, res := range results {
		telemetry.ActionsTotal.WithLabelValues(cur.String()).Inc()
		details := map[string]any{"signal": res.Signal, "applied": res.Applied}
		if res.Err != nil {
			details["error"] = res.Err.Error()
			wlog.Printf(wlog.Warning, "signal delivery failed for pid=%d comm=%s: %v", res.PID, res.Comm, res.Err)
		}
		r.auditLogger.Log(actionName(cur), res.PID, res.Comm, cur.String(), details)
	}

	r.dispatcher.Notify(ctx, notify.Payload{
		Level:     cur,
		Mount:     r.cfg.Mount,
		FreeGB:    freeGB,
		RateGBMin: rateGBPerMin,
		Message:   fmt.Sprintf("disk-watchdogd: entered %s on %s (%d GB free); acted on %d writer(s)", cur, r.cfg.Mount, freeGB, len(results)),
		Timestamp: time.Now(),
		Writers:   candidates,
	})
}

// maxAnnounceWriters caps the top-writer snippet attached to a harsh
// notification, per spec.md §4.8's "rate-limited warning with
// top-writer snippet" bullet.
const maxAnnounceWriters = 5

// announce logs and notifies for the non-acting levels, per spec.md
// §4.8's per-entry bullets: notice is logged only, warn and harsh are
// logged and notified, and ok (like a sustained acting level) produces
// nothing here; recovery to ok is reported by iterate. harsh additionally
// carries a top-writer snippet: unlike act, this is a read-only
// detection pass that applies no signal.
func (r *Runner) announce(ctx context.Context, device string, cur level.Level, freeGB, rateGBPerMin int) {
	msg := fmt.Sprintf("disk-watchdogd: %s on %s (%d GB free, %d GB/min)", cur, r.cfg.Mount, freeGB, rateGBPerMin)

	var snippet []writer.Candidate
	switch cur {
	case level.Notice:
		wlog.Printf(wlog.Notice, "%s", msg)
		return // log only, no notification fan-out
	case level.Warn:
		wlog.Printf(wlog.Warning, "%s", msg)
	case level.Harsh:
		wlog.Printf(wlog.Critical, "%s", msg)
		candidates, err := r.detector.Detect(ctx, device)
		if err != nil {
			wlog.Printf(wlog.Warning, "writer detection for harsh snippet failed: %v", err)
		} else if len(candidates) > maxAnnounceWriters {
			snippet = candidates[:maxAnnounceWriters]
		} else {
			snippet = candidates
		}
	case level.OK:
		return
	default:
		return
	}

	r.dispatcher.Notify(ctx, notify.Payload{
		Level:     cur,
		Mount:     r.cfg.Mount,
		FreeGB:    freeGB,
		RateGBMin: rateGBPerMin,
		Message:   msg,
		Timestamp: time.Now(),
		Writers:   snippet,
	})
}

func actionName(l level.Level) string {
	switch l {
	case level.Pause:
		return "pause"
	case level.Stop:
		return "stop"
	case level.Kill:
		return "kill"
	default:
		return "unknown"
	}
}

// persist rewrites the "state" and "rate" files and the paused_pids
// store every iteration; the known_writers table is already persisted
// by the detector. paused_pids must be rewritten unconditionally here,
// not only from act: a recovery iteration (entering ok) never calls
// act, but resumeMgr.Run above can still have removed records from
// pausedStore in memory, and those removals need to reach disk too.
func (r *Runner) persist(cur level.Level) {
	if err := state.SaveLevel(r.paths.StateFile, cur); err != nil {
		wlog.Printf(wlog.Warning, "persisting state failed: %v", err)
	}
	if freeBytes, wallTime, ok := r.rateEst.LastSample(); ok {
		if err := state.SaveRateSample(r.paths.RateFile, state.RateSample{FreeBytes: freeBytes, WallTime: wallTime}); err != nil {
			wlog.Printf(wlog.Warning, "persisting rate failed: %v", err)
		}
	}
	if err := r.pausedStore.Save(); err != nil {
		wlog.Printf(wlog.Warning, "persisting paused_pids failed: %v", err)
	}
}

// reload re-parses the config file, re-resolves thresholds against
// the current disk size, and swaps both in only if both succeed.
// Per spec.md §5, failure retains the previous thresholds and logs
// rather than tearing down the loop.
func (r *Runner) reload() {
	wlog.Printf(wlog.Info, "reload requested (SIGHUP), re-reading %s", r.cfgPath)

	newCfg, err := config.Load(r.cfgPath)
	if err != nil {
		wlog.Printf(wlog.Warning, "reload failed: %v; retaining previous configuration", err)
		return
	}

	stat, err := sampler.Sample(newCfg.Mount)
	if err != nil {
		wlog.Printf(wlog.Warning, "reload failed: cannot sample %s: %v; retaining previous configuration", newCfg.Mount, err)
		return
	}

	rt, err := threshold.Resolve(newCfg, stat.TotalGB())
	if err != nil {
		wlog.Printf(wlog.Warning, "reload failed: %v; retaining previous thresholds", err)
		return
	}

	r.cfg = newCfg
	r.thresholds = rt
	wlog.Printf(wlog.Info, "reload succeeded: notice=%d warn=%d harsh=%d pause=%d stop=%d kill=%d resume=%d",
		rt.Notice, rt.Warn, rt.Harsh, rt.Pause, rt.Stop, rt.Kill, rt.Resume)
}

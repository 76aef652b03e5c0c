package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/diskwatchd/disk-watchdogd/internal/action"
	"github.com/diskwatchd/disk-watchdogd/internal/cli"
	"github.com/diskwatchd/disk-watchdogd/internal/config"
	"github.com/diskwatchd/disk-watchdogd/internal/doctor"
	"github.com/diskwatchd/disk-watchdogd/internal/level"
	"github.com/diskwatchd/disk-watchdogd/internal/loop"
	"github.com/diskwatchd/disk-watchdogd/internal/notify"
	"github.com/diskwatchd/disk-watchdogd/internal/redact"
	"github.com/diskwatchd/disk-watchdogd/internal/resume"
	"github.com/diskwatchd/disk-watchdogd/internal/sampler"
	"github.com/diskwatchd/disk-watchdogd/internal/state"
	"github.com/diskwatchd/disk-watchdogd/internal/telemetry"
	"github.com/diskwatchd/disk-watchdogd/internal/threshold"
	"github.com/diskwatchd/disk-watchdogd/internal/wlog"
	"github.com/diskwatchd/disk-watchdogd/internal/writer"
)

var version = "1.0.0"

const defaultConfigPath = "/etc/disk-watchdogd.conf"

// globalFlags holds the flags every subcommand shares, per spec.md §6.
type globalFlags struct {
	configPath string
	mount      string
	user       string
	dryRun     bool
}

func main() {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:     "disk-watchdogd",
		Short:   "Adaptive disk-space watchdog",
		Long:    "disk-watchdogd watches a mount point's free space and escalates through notice, warn, harsh, pause, stop, and kill responses as space runs out.",
		Version: version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath, "path to the configuration file")
	root.PersistentFlags().StringVar(&flags.mount, "mount", "", "override the configured mount point")
	root.PersistentFlags().StringVar(&flags.user, "user", "", "override the configured user filter")
	root.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "log actions without sending signals")

	run := runCmd(flags)
	root.RunE = run.RunE

	root.AddCommand(
		run,
		stopCmd(flags),
		statusCmd(flags),
		checkCmd(flags),
		writersCmd(flags),
		resumeCmd(flags),
		testCmd(flags),
		uninstallCmd(flags),
		doctorCmd(flags),
	)

	if err := root.Execute(); err != nil {
		wlog.Printf(wlog.Fatal, "%v", err)
		os.Exit(1)
	}
}

// loadConfig applies global flag overrides on top of the file+env
// layered config, per spec.md §6.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.mount != "" {
		cfg.Mount = flags.mount
	}
	if flags.user != "" {
		cfg.User = flags.user
	}
	if flags.dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

func runCmd(flags *globalFlags) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the control loop (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				wlog.Printf(wlog.Fatal, "loading config: %v", err)
				os.Exit(1)
			}
			wlog.SetRedactor(notifierSecretRedactor(cfg))

			r, err := loop.New(flags.configPath, cfg)
			if err != nil {
				wlog.Printf(wlog.Fatal, "startup: %v", err)
				os.Exit(1)
			}
			defer r.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if metricsAddr != "" {
				srv := telemetry.NewMetricsServer(metricsAddr)
				go func() {
					if err := srv.Start(ctx); err != nil {
						wlog.Printf(wlog.Warning, "metrics listener: %v", err)
					}
				}()
			}

			shutdownTrace, err := telemetry.Setup(ctx, "disk-watchdogd", version, cfg.TraceEnabled, os.Stdout)
			if err != nil {
				wlog.Printf(wlog.Warning, "telemetry setup: %v", err)
			} else {
				defer shutdownTrace(context.Background())
			}

			wlog.Printf(wlog.Info, "disk-watchdogd %s starting on %s", version, cfg.Mount)
			return r.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
	return cmd
}

func stopCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal the running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			paths := loop.DefaultPaths(cfg)

			pid, err := state.ReadPID(paths.PIDFile)
			if err != nil {
				fmt.Println("disk-watchdogd is not running (no PID file)")
				return nil
			}
			if err := signalProcess(pid); err != nil {
				os.Remove(paths.PIDFile)
				return fmt.Errorf("stale PID file removed; process %d was not running: %w", pid, err)
			}
			fmt.Printf("sent termination signal to pid %d\n", pid)
			return nil
		},
	}
}

func statusCmd(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print mount, disk size, current level, and top writers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			paths := loop.DefaultPaths(cfg)

			stat, err := sampler.Sample(cfg.Mount)
			if err != nil {
				return fmt.Errorf("sampling %s: %w", cfg.Mount, err)
			}
			rt, err := threshold.Resolve(cfg, stat.TotalGB())
			if err != nil {
				return fmt.Errorf("resolving thresholds: %w", err)
			}
			cur := level.Classify(stat.FreeGB(), 0, rt, 0)
			saved, _, _ := state.LoadLevel(paths.StateFile)

			pausedStore, err := action.LoadStore(paths.PausedPIDs)
			if err != nil {
				return err
			}
			table, err := writer.LoadTable(paths.Writers)
			if err != nil {
				return err
			}
			topWriters := table.Entries()
			if len(topWriters) > 5 {
				topWriters = topWriters[:5]
			}

			switch format {
			case "json", "yaml":
				return printStructuredStatus(format, cfg, stat, rt, cur, saved, pausedStore.Records(), topWriters)
			default:
				printPlainStatus(cfg, stat, rt, cur, saved, pausedStore.Records(), topWriters)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, or yaml")
	return cmd
}

func printPlainStatus(cfg *config.Config, stat sampler.Stat, rt *threshold.ResolvedThresholds, cur, saved level.Level, paused []action.Record, writers []writer.Candidate) {
	pct := 0.0
	if stat.TotalBytes > 0 {
		pct = float64(stat.FreeBytes) / float64(stat.TotalBytes) * 100
	}
	fmt.Println(cli.Title("disk-watchdogd status"))
	fmt.Printf("mount:          %s (%s)\n", cfg.Mount, stat.BackingDevice)
	fmt.Printf("disk size:      %d GB\n", stat.TotalGB())
	fmt.Printf("free:           %d GB (%.1f%%)\n", stat.FreeGB(), pct)
	fmt.Printf("level:          %s\n", cli.Level(cur))
	fmt.Printf("saved level:    %s\n", cli.Level(saved))
	fmt.Printf("next interval:  %s\n", sleepForDisplay(cur))
	fmt.Println(cli.Subtle(fmt.Sprintf("thresholds: notice=%d warn=%d harsh=%d pause=%d stop=%d kill=%d resume=%d",
		rt.Notice, rt.Warn, rt.Harsh, rt.Pause, rt.Stop, rt.Kill, rt.Resume)))

	fmt.Printf("\npaused processes (%d):\n", len(paused))
	for _, p := range paused {
		fmt.Printf("  pid=%-8d comm=%-16s strikes=%d since=%s\n", p.PID, p.Comm, p.Strikes, p.PausedAt.Format(time.RFC3339))
	}

	fmt.Printf("\ntop writers (%d):\n", len(writers))
	for _, w := range writers {
		fmt.Printf("  pid=%-8d comm=%-16s %s\n", w.PID, w.Comm, cli.FormatBytes(w.Bytes))
	}
}

type statusDoc struct {
	Mount      string           `json:"mount" yaml:"mount"`
	Device     string           `json:"device" yaml:"device"`
	TotalGB    int              `json:"total_gb" yaml:"total_gb"`
	FreeGB     int              `json:"free_gb" yaml:"free_gb"`
	Level      string           `json:"level" yaml:"level"`
	SavedLevel string           `json:"saved_level" yaml:"saved_level"`
	Thresholds thresholdDoc     `json:"thresholds" yaml:"thresholds"`
	Paused     []action.Record  `json:"paused" yaml:"paused"`
	Writers    []writer.Candidate `json:"writers" yaml:"writers"`
}

type thresholdDoc struct {
	Notice, Warn, Harsh, Pause, Stop, Kill, Resume int
}

func printStructuredStatus(format string, cfg *config.Config, stat sampler.Stat, rt *threshold.ResolvedThresholds, cur, saved level.Level, paused []action.Record, writers []writer.Candidate) error {
	doc := statusDoc{
		Mount: cfg.Mount, Device: stat.BackingDevice,
		TotalGB: stat.TotalGB(), FreeGB: stat.FreeGB(),
		Level: cur.String(), SavedLevel: saved.String(),
		Thresholds: thresholdDoc{rt.Notice, rt.Warn, rt.Harsh, rt.Pause, rt.Stop, rt.Kill, rt.Resume},
		Paused:     paused,
		Writers:    writers,
	}
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(doc)
}

func sleepForDisplay(l level.Level) time.Duration {
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
	default:
		return 1 * time.Second
	}
}

func checkCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Exit 0 if level is ok/notice/warn, 1 otherwise",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			stat, err := sampler.Sample(cfg.Mount)
			if err != nil {
				return err
			}
			rt, err := threshold.Resolve(cfg, stat.TotalGB())
			if err != nil {
				return err
			}
			cur := level.Classify(stat.FreeGB(), 0, rt, 0)
			fmt.Println(cli.Level(cur))
			if cur == level.OK || cur == level.Notice || cur == level.Warn {
				return nil
			}
			os.Exit(1)
			return nil
		},
	}
}

func writersCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "writers",
		Short: "Print top writers with formatted byte counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			paths := loop.DefaultPaths(cfg)
			table, err := writer.LoadTable(paths.Writers)
			if err != nil {
				return err
			}
			entries := table.Entries()
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].Bytes > entries[j].Bytes })
			for _, e := range entries {
				fmt.Printf("%-8d %-16s %10s  last_seen=%s\n", e.PID, e.Comm, cli.FormatBytes(e.Bytes), e.LastSeen.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func resumeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Manually resume all tracked paused PIDs still stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			paths := loop.DefaultPaths(cfg)
			store, err := action.LoadStore(paths.PausedPIDs)
			if err != nil {
				return err
			}
			outcomes := resume.ResumeAll(store, cfg.DryRun)
			if err := store.Save(); err != nil {
				return err
			}
			for _, o := range outcomes {
				fmt.Printf("pid=%-8d comm=%-16s resumed=%v reason=%s\n", o.PID, o.Comm, o.Resumed, o.Reason)
			}
			fmt.Printf("%d record(s) processed\n", len(outcomes))
			return nil
		},
	}
}

// fixtureLevel describes one synthetic scenario for the `test`
// subcommand's YAML fixture, per SPEC_FULL.md §4.9's (NEW) addition.
type fixtureLevel struct {
	FreeGB    int      `yaml:"free_gb"`
	RateGBMin int      `yaml:"rate_gb_per_min"`
	Writers   []string `yaml:"writers"`
}

func testCmd(flags *globalFlags) *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "test [level]",
		Short: "Drive notification fan-out for a chosen level without acting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			lvl, err := parseLevel(args[0])
			if err != nil {
				return err
			}

			freeGB, rateGBPerMin := 0, 0
			var writerNames []string
			if fixturePath != "" {
				data, err := os.ReadFile(fixturePath)
				if err != nil {
					return fmt.Errorf("reading fixture: %w", err)
				}
				fixtures := map[string]fixtureLevel{}
				if err := yaml.Unmarshal(data, &fixtures); err != nil {
					return fmt.Errorf("parsing fixture: %w", err)
				}
				if f, ok := fixtures[lvl.String()]; ok {
					freeGB, rateGBPerMin, writerNames = f.FreeGB, f.RateGBMin, f.Writers
				}
			}

			dispatcher, err := notify.NewDispatcher(cfg)
			if err != nil {
				return err
			}
			dispatcher.Notify(cmd.Context(), notify.Payload{
				Level:     lvl,
				Mount:     cfg.Mount,
				FreeGB:    freeGB,
				RateGBMin: rateGBPerMin,
				Message:   fmt.Sprintf("disk-watchdogd TEST: %s on %s (%d GB free, %d GB/min)", lvl, cfg.Mount, freeGB, rateGBPerMin),
				Timestamp: time.Now(),
			})
			fmt.Printf("dispatched test notification for level %s (writers: %v)\n", lvl, writerNames)
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "YAML fixture file describing (free_gb, rate_gb_per_min, writers) per level")
	return cmd
}

func parseLevel(s string) (level.Level, error) {
	for l := level.OK; l <= level.Kill; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

func uninstallCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the daemon, preserving config/logs/state; the binary and unit file are not removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			paths := loop.DefaultPaths(cfg)
			if pid, err := state.ReadPID(paths.PIDFile); err == nil {
				signalProcess(pid)
				os.Remove(paths.PIDFile)
			}
			fmt.Println("daemon stopped; config, logs, and state preserved")
			fmt.Println("remove the installed binary and service unit manually if no package manager is tracking them")
			return nil
		},
	}
}

func doctorCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the watchdog's environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := loadConfig(flags)
			pathsCfg := cfg
			if pathsCfg == nil {
				pathsCfg = config.Default()
			}
			paths := loop.DefaultPaths(pathsCfg)
			results := doctor.RunAll(flags.configPath, cfg, paths.AuditLog)

			passed, warned, failed := 0, 0, 0
			for _, r := range results {
				var tag string
				switch r.Status {
				case doctor.StatusPass:
					tag, passed = "[PASS]", passed+1
				case doctor.StatusWarn:
					tag, warned = "[WARN]", warned+1
				case doctor.StatusFail:
					tag, failed = "[FAIL]", failed+1
				}
				fmt.Printf("%-7s %-20s %s\n", tag, r.Name, r.Detail)
				if r.Fix != "" && r.Status != doctor.StatusPass {
					fmt.Printf("        -> %s\n", r.Fix)
				}
			}
			fmt.Printf("\n%d passed, %d warning(s), %d failure(s)\n", passed, warned, failed)
			if failed > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
}

// notifierSecretRedactor collects the webhook signing secret and SMTP
// password out of every configured notifier so neither ever appears
// in a log line (e.g. a webhook error that echoes the signed request).
func notifierSecretRedactor(cfg *config.Config) *redact.Redactor {
	r := redact.New()
	for _, nc := range cfg.Notifiers {
		r.Add(nc.Params["secret"])
		r.Add(nc.Params["password"])
	}
	return r
}

func signalProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

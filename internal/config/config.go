// Package config loads and validates the watchdog's key=value configuration
// file and resolves environment-variable overrides.
package config

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/diskwatchd/disk-watchdogd/internal/wlog"
)

// ThresholdValue is either a literal positive GB integer or the sentinel
// "auto", which the threshold resolver derives from measured disk size.
type ThresholdValue struct {
	Auto  bool
	Value int // GB, meaningful only when Auto is false
}

func (t ThresholdValue) String() string {
	if t.Auto {
		return "auto"
	}
	return strconv.Itoa(t.Value)
}

func parseThresholdValue(key, raw string) (ThresholdValue, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "auto") {
		return ThresholdValue{Auto: true}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return ThresholdValue{}, fmt.Errorf("%s: must be a positive integer or %q, got %q", key, "auto", raw)
	}
	return ThresholdValue{Value: n}, nil
}

// NotifierConfig describes one configured notification channel.
type NotifierConfig struct {
	Type    string // desktop, broadcast, email, webhook
	Enabled bool
	Params  map[string]string
}

// Config is the fully parsed, type-checked configuration. It is immutable
// after Load; a reload calls Load again for a new *Config and the caller
// decides whether to swap it in.
type Config struct {
	Mount string
	User  string // empty means all users

	Notice ThresholdValue
	Warn   ThresholdValue
	Harsh  ThresholdValue
	Pause  ThresholdValue
	Stop   ThresholdValue
	Kill   ThresholdValue

	AutoResume        bool
	ResumeThreshold   ThresholdValue
	ResumeCooldownSec int
	ResumeMaxStrikes  int

	RateWarnGBPerMin    int
	RateEscalateMinutes int
	SmartMode           bool

	TracerCmd                string
	TracerByteThreshold      int64
	HeavyWriterByteThreshold int64

	TargetPatterns    []string
	ProtectedPatterns []string

	Notifiers         []NotifierConfig
	NotifyCooldownSec int

	DryRun       bool
	MaxLogSize   int64
	TraceEnabled bool

	StateDir string
	RunDir   string
}

// Default returns the built-in defaults, applied before the file and
// environment are layered on top.
func Default() *Config {
	return &Config{
		Mount: "/",

		Notice: ThresholdValue{Auto: true},
		Warn:   ThresholdValue{Auto: true},
		Harsh:  ThresholdValue{Auto: true},
		Pause:  ThresholdValue{Auto: true},
		Stop:   ThresholdValue{Auto: true},
		Kill:   ThresholdValue{Auto: true},

		AutoResume:        true,
		ResumeThreshold:   ThresholdValue{Auto: true},
		ResumeCooldownSec: 300,
		ResumeMaxStrikes:  3,

		RateWarnGBPerMin:    2,
		RateEscalateMinutes: 10,
		SmartMode:           true,

		TracerCmd:                "biosnoop",
		TracerByteThreshold:      1 << 20, // 1 MB
		HeavyWriterByteThreshold: 1 << 20,

		TargetPatterns:    nil,
		ProtectedPatterns: defaultProtectedPatterns,

		NotifyCooldownSec: 300,
		DryRun:            false,
		MaxLogSize:        10 << 20, // 10 MB
		TraceEnabled:      false,

		StateDir: defaultStateDir(),
		RunDir:   defaultRunDir(),
	}
}

func defaultStateDir() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\disk-watchdogd`
	}
	return "/var/lib/disk-watchdogd"
}

func defaultRunDir() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\disk-watchdogd\run`
	}
	return "/run/disk-watchdogd"
}

var defaultProtectedPatterns = []string{
	`^systemd$`, `^init$`, `^kthreadd$`,
	`^(runit|upstart|openrc)$`,
	`^(Xorg|wayland-compositor|sway|gnome-shell|kwin_x11|kwin_wayland)$`,
	`^(logind|systemd-logind|gnome-session-binary|gdm|gdm3|lightdm|sddm)$`,
	`^(polkitd|polkit-agent-helper-1|NetworkManager|dbus-daemon)$`,
	`^(apt|apt-get|dpkg|dnf|yum|pacman|rpm)$`,
	`^(pulseaudio|pipewire|pipewire-pulse|wireplumber|bluetoothd|cupsd|cups-browsed)$`,
	`^disk-watchdogd$`,
}

// Load reads path, layers DISK_WATCHDOG_<KEY> environment overrides on top,
// validates the result, and returns a Config. A world-writable file is not
// fatal but is logged as a security warning.
func Load(path string) (*Config, error) {
	raw, err := readKeyValueFile(path)
	if err != nil {
		return nil, err
	}
	warnIfWorldWritable(path)

	applyEnvOverrides(raw)

	return build(raw)
}

func readKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	raw := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, fmt.Errorf("config line %d: missing '=': %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		raw[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return raw, nil
}

func warnIfWorldWritable(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o002 != 0 {
		wlog.Printf(wlog.Warning, "config file %s is world-writable; tighten permissions to 0600", path)
	}
}

func applyEnvOverrides(raw map[string]string) {
	const prefix = "DISK_WATCHDOG_"
	for _, kv := range os.Environ() {
		idx := strings.Index(kv, "=")
		if idx < 0 {
			continue
		}
		name, val := kv[:idx], kv[idx+1:]
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, prefix))
		raw[key] = val
	}
}

func build(raw map[string]string) (*Config, error) {
	c := Default()

	get := func(key string) (string, bool) {
		v, ok := raw[key]
		return v, ok
	}

	if v, ok := get("mount"); ok {
		c.Mount = v
	}
	if v, ok := get("user"); ok {
		c.User = v
	}

	thresholds := []struct {
		key string
		dst *ThresholdValue
	}{
		{"notice", &c.Notice}, {"warn", &c.Warn}, {"harsh", &c.Harsh},
		{"pause", &c.Pause}, {"stop", &c.Stop}, {"kill", &c.Kill},
		{"resume_threshold", &c.ResumeThreshold},
	}
	for _, t := range thresholds {
		if v, ok := get(t.key); ok {
			parsed, err := parseThresholdValue(t.key, v)
			if err != nil {
				return nil, err
			}
			*t.dst = parsed
		}
	}

	var err error
	if c.AutoResume, err = getBool(raw, "auto_resume", c.AutoResume); err != nil {
		return nil, err
	}
	if c.ResumeCooldownSec, err = getPositiveInt(raw, "resume_cooldown", c.ResumeCooldownSec); err != nil {
		return nil, err
	}
	if c.ResumeMaxStrikes, err = getPositiveInt(raw, "resume_max_strikes", c.ResumeMaxStrikes); err != nil {
		return nil, err
	}
	if c.RateWarnGBPerMin, err = getPositiveInt(raw, "rate_warn_gb_per_min", c.RateWarnGBPerMin); err != nil {
		return nil, err
	}
	if c.RateEscalateMinutes, err = getPositiveInt(raw, "rate_escalate_minutes", c.RateEscalateMinutes); err != nil {
		return nil, err
	}
	if c.SmartMode, err = getBool(raw, "smart_mode", c.SmartMode); err != nil {
		return nil, err
	}
	if v, ok := get("tracer_cmd"); ok {
		c.TracerCmd = v
	}
	if c.TracerByteThreshold, err = getPositiveInt64(raw, "tracer_byte_threshold", c.TracerByteThreshold); err != nil {
		return nil, err
	}
	if c.HeavyWriterByteThreshold, err = getPositiveInt64(raw, "heavy_writer_byte_threshold", c.HeavyWriterByteThreshold); err != nil {
		return nil, err
	}
	if v, ok := get("target_patterns"); ok && v != "" {
		c.TargetPatterns = splitCommaList(v)
	}
	if v, ok := get("protected_patterns"); ok && v != "" {
		c.ProtectedPatterns = append(c.ProtectedPatterns, splitCommaList(v)...)
	}
	if c.NotifyCooldownSec, err = getPositiveInt(raw, "notify_cooldown", c.NotifyCooldownSec); err != nil {
		return nil, err
	}
	if c.DryRun, err = getBool(raw, "dry_run", c.DryRun); err != nil {
		return nil, err
	}
	if c.MaxLogSize, err = getPositiveInt64(raw, "max_log_size", c.MaxLogSize); err != nil {
		return nil, err
	}
	if c.TraceEnabled, err = getBool(raw, "trace_enabled", c.TraceEnabled); err != nil {
		return nil, err
	}

	c.Notifiers = buildNotifiers(raw)

	return c, nil
}

func buildNotifiers(raw map[string]string) []NotifierConfig {
	var notifiers []NotifierConfig
	for _, kind := range []string{"desktop", "broadcast", "email", "webhook"} {
		enabled, _ := getBool(raw, "notify_"+kind+"_enabled", false)
		if !enabled {
			continue
		}
		params := make(map[string]string)
		paramPrefix := "notify_" + kind + "_"
		for k, v := range raw {
			if strings.HasPrefix(k, paramPrefix) && !strings.HasSuffix(k, "_enabled") {
				params[strings.TrimPrefix(k, paramPrefix)] = v
			}
		}
		notifiers = append(notifiers, NotifierConfig{Type: kind, Enabled: true, Params: params})
	}
	return notifiers
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getBool(raw map[string]string, key string, def bool) (bool, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: expected boolean, got %q", key, v)
	}
	return b, nil
}

func getPositiveInt(raw map[string]string, key string, def int) (int, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return def, fmt.Errorf("%s: expected positive integer, got %q", key, v)
	}
	return n, nil
}

func getPositiveInt64(raw map[string]string, key string, def int64) (int64, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("%s: expected positive integer, got %q", key, v)
	}
	return n, nil
}

// Package threshold resolves the six free-space levels and the resume
// level from a Config and a measured disk size, applying the default
// percentages, minima, and caps the watchdog ships with.
package threshold

import (
	"fmt"
	"math"

	"github.com/diskwatchd/disk-watchdogd/internal/config"
)

// ResolvedThresholds holds the six free-space levels (in whole GB) plus
// the resume level. Values are strictly decreasing from Notice to Kill,
// except that Kill may equal Stop (both have a 1 GB minimum, so they
// coincide on disks under 200 GB); Resume must be at least as large as
// Pause (see resolveResume's doc for the resolution of the 2x-pause
// ambiguity between spec prose and example).
type ResolvedThresholds struct {
	Notice int
	Warn   int
	Harsh  int
	Pause  int
	Stop   int
	Kill   int
	Resume int
}

type levelRule struct {
	name    string
	pct     float64
	minimum int
	cap     int // 0 means uncapped
}

var rules = map[string]levelRule{
	"notice": {"notice", 0.10, 10, 0},
	"warn":   {"warn", 0.07, 5, 0},
	"harsh":  {"harsh", 0.04, 3, 0},
	"pause":  {"pause", 0.02, 2, 30},
	"stop":   {"stop", 0.01, 1, 15},
	"kill":   {"kill", 0.005, 1, 5},
}

func resolveLevel(v config.ThresholdValue, diskGB int, r levelRule) int {
	n := v.Value
	if v.Auto {
		n = int(math.Floor(float64(diskGB) * r.pct))
	}
	if n < r.minimum {
		n = r.minimum
	}
	if r.cap > 0 && n > r.cap {
		n = r.cap
	}
	return n
}

// Resolve derives ResolvedThresholds from cfg and the measured disk size
// in GB. It returns an error if the result violates the ordering
// invariant kill <= stop < pause < harsh < warn < notice; the caller is
// expected to retain the previous ResolvedThresholds on error (spec.md
// §4.1: "failure to validate logs an error and retains the previous
// thresholds").
func Resolve(cfg *config.Config, diskGB int) (*ResolvedThresholds, error) {
	rt := &ResolvedThresholds{
		Notice: resolveLevel(cfg.Notice, diskGB, rules["notice"]),
		Warn:   resolveLevel(cfg.Warn, diskGB, rules["warn"]),
		Harsh:  resolveLevel(cfg.Harsh, diskGB, rules["harsh"]),
		Pause:  resolveLevel(cfg.Pause, diskGB, rules["pause"]),
		Stop:   resolveLevel(cfg.Stop, diskGB, rules["stop"]),
		Kill:   resolveLevel(cfg.Kill, diskGB, rules["kill"]),
	}

	rt.Resume = resolveResume(cfg, rt)

	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// resolveResume implements spec.md §4.1's "Resume default = min(harsh, 50);
// then bumped to 2·pause if below" rule. Taken completely literally
// against the 2x-pause reading, that rule contradicts §8 Scenario 1's
// worked example (pause=30 capped, harsh=68 → expected resume=50, but
// min(68,50)=50 is less than 2*30=60 and would be bumped to 60 under the
// literal reading). We resolve this in favor of the worked scenario: the
// bump only fires when the harsh-derived default would leave resume
// below pause itself, not below 2x pause. See DESIGN.md for the full
// writeup of this decision.
func resolveResume(cfg *config.Config, rt *ResolvedThresholds) int {
	var base int
	if cfg.ResumeThreshold.Auto {
		base = rt.Harsh
		if base > 50 {
			base = 50
		}
	} else {
		base = cfg.ResumeThreshold.Value
	}
	if base < rt.Pause {
		return 2 * rt.Pause
	}
	return base
}

// Validate checks the ordering invariant from spec.md §3(c), with kill
// allowed to equal stop, plus the resume floor and the caps.
func (rt *ResolvedThresholds) Validate() error {
	if !(rt.Kill <= rt.Stop && rt.Stop < rt.Pause && rt.Pause < rt.Harsh && rt.Harsh < rt.Warn && rt.Warn < rt.Notice) {
		return fmt.Errorf("resolved thresholds violate ordering: kill=%d stop=%d pause=%d harsh=%d warn=%d notice=%d",
			rt.Kill, rt.Stop, rt.Pause, rt.Harsh, rt.Warn, rt.Notice)
	}
	if rt.Resume < rt.Pause {
		return fmt.Errorf("resolved resume threshold %d is below pause threshold %d", rt.Resume, rt.Pause)
	}
	if rt.Pause > 30 || rt.Stop > 15 || rt.Kill > 5 {
		return fmt.Errorf("resolved thresholds exceed caps: pause=%d(<=30) stop=%d(<=15) kill=%d(<=5)", rt.Pause, rt.Stop, rt.Kill)
	}
	return nil
}

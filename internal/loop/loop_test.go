package loop

import (
	"testing"
	"time"

	"github.com/diskwatchd/disk-watchdogd/internal/level"
)

func TestSleepForMatchesAdaptiveTable(t *testing.T) {
	cases := []struct {
		l    level.Level
		want time.Duration
	}{
		{level.OK, 300 * time.Second},
		{level.Notice, 60 * time.Second},
		{level.Warn, 30 * time.Second},
		{level.Harsh, 10 * time.Second},
		{level.Pause, 3 * time.Second},
		{level.Stop, 1 * time.Second},
		{level.Kill, 1 * time.Second},
	}
	for _, c := range cases {
		if got := sleepFor(c.l); got != c.want {
			t.Errorf("sleepFor(%s) = %v, want %v", c.l, got, c.want)
		}
	}
}

func TestActionNameCoversActingLevels(t *testing.T) {
	cases := map[level.Level]string{
		level.Pause: "pause",
		level.Stop:  "stop",
		level.Kill:  "kill",
		level.Warn:  "unknown",
	}
	for l, want := range cases {
		if got := actionName(l); got != want {
			t.Errorf("actionName(%s) = %q, want %q", l, got, want)
		}
	}
}

package notify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diskwatchd/disk-watchdogd/internal/level"
)

type countingChannel struct {
	name string
	n    atomic.Int32
}

func (c *countingChannel) Name() string { return c.name }
func (c *countingChannel) Send(ctx context.Context, p Payload) error {
	c.n.Add(1)
	return nil
}

func newTestDispatcher(cooldownSec int) (*Dispatcher, *countingChannel) {
	ch := &countingChannel{name: "test"}
	d := &Dispatcher{
		channels: []Channel{ch},
		cooldown: time.Duration(cooldownSec) * time.Second,
		lastSent: map[level.Level]time.Time{},
	}
	return d, ch
}

func TestNotifyRespectsPerLevelCooldown(t *testing.T) {
	d, ch := newTestDispatcher(300)
	d.Notify(context.Background(), Payload{Level: level.Warn})
	d.Notify(context.Background(), Payload{Level: level.Warn})

	if ch.n.Load() != 1 {
		t.Errorf("expected 1 send within cooldown, got %d", ch.n.Load())
	}
}

func TestNotifyAlwaysEmitsPauseStopKill(t *testing.T) {
	d, ch := newTestDispatcher(300)
	d.Notify(context.Background(), Payload{Level: level.Pause})
	d.Notify(context.Background(), Payload{Level: level.Pause})
	d.Notify(context.Background(), Payload{Level: level.Stop})

	if ch.n.Load() != 3 {
		t.Errorf("expected pause/stop/kill to bypass cooldown every time, got %d sends", ch.n.Load())
	}
}

func TestNotifyDifferentLevelsIndependentCooldowns(t *testing.T) {
	d, ch := newTestDispatcher(300)
	d.Notify(context.Background(), Payload{Level: level.Notice})
	d.Notify(context.Background(), Payload{Level: level.Warn})

	if ch.n.Load() != 2 {
		t.Errorf("expected independent cooldowns per level, got %d sends", ch.n.Load())
	}
}

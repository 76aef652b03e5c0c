// Package notify fans out level-change notifications to configured
// channels (desktop, broadcast, email, webhook), independently and
// best-effort per channel, gated by a per-level cooldown.
package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/diskwatchd/disk-watchdogd/internal/config"
	"github.com/diskwatchd/disk-watchdogd/internal/level"
	"github.com/diskwatchd/disk-watchdogd/internal/state"
	"github.com/diskwatchd/disk-watchdogd/internal/wlog"
	"github.com/diskwatchd/disk-watchdogd/internal/writer"
)

// Payload is the event handed to every channel. Message is pre-built,
// plain text; channels that need structure (webhook) marshal Payload
// itself rather than re-deriving text from Message.
type Payload struct {
	Level     level.Level        `json:"level"`
	Mount     string             `json:"mount"`
	FreeGB    int                `json:"free_gb"`
	RateGBMin int                `json:"rate_gb_per_min"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
	Writers   []writer.Candidate `json:"writers,omitempty"`
}

// Channel is the interface every notification transport implements.
type Channel interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// alwaysEmitted levels bypass the cooldown entirely, per spec.md §4.9
// ("pause/stop/kill are always emitted").
func alwaysEmitted(l level.Level) bool {
	return l == level.Pause || l == level.Stop || l == level.Kill
}

// Dispatcher fans a Payload out to every configured channel,
// independently and best-effort: one channel's failure never affects
// another or the caller.
type Dispatcher struct {
	mu       sync.Mutex
	channels []Channel
	cooldown time.Duration
	lastSent map[level.Level]time.Time
	stateDir string
}

// NewDispatcher builds channels from cfg.Notifiers, seeding each level's
// cooldown from its notify_<level> state file so a daemon restart does
// not immediately re-emit an alert whose cooldown was still running.
func NewDispatcher(cfg *config.Config) (*Dispatcher, error) {
	d := &Dispatcher{
		cooldown: time.Duration(cfg.NotifyCooldownSec) * time.Second,
		lastSent: map[level.Level]time.Time{},
		stateDir: cfg.StateDir,
	}
	for l := level.OK; l <= level.Kill; l++ {
		if t, ok, _ := state.NotifyStamp(d.stampPath(l)); ok {
			d.lastSent[l] = t
		}
	}
	for _, nc := range cfg.Notifiers {
		if !nc.Enabled {
			continue
		}
		ch, err := buildChannel(nc)
		if err != nil {
			return nil, fmt.Errorf("notify: building %s channel: %w", nc.Type, err)
		}
		d.channels = append(d.channels, ch)
	}
	return d, nil
}

func buildChannel(nc config.NotifierConfig) (Channel, error) {
	switch nc.Type {
	case "desktop":
		return NewDesktopChannel(nc.Params), nil
	case "broadcast":
		return NewBroadcastChannel(nc.Params), nil
	case "webhook":
		return NewWebhookChannel(nc.Params)
	case "email":
		return NewEmailChannel(nc.Params)
	default:
		return nil, fmt.Errorf("unknown notifier type %q", nc.Type)
	}
}

// Notify sends p to every configured channel, provided the per-level
// cooldown has elapsed (or the level is exempt from cooldown).
func (d *Dispatcher) Notify(ctx context.Context, p Payload) {
	if !d.shouldSend(p.Level) {
		return
	}

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, p); err != nil {
				wlog.Printf(wlog.Warning, "notify: channel %s failed: %v", ch.Name(), err)
			}
		}(ch)
	}
	wg.Wait()
}

func (d *Dispatcher) shouldSend(l level.Level) bool {
	if alwaysEmitted(l) {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSent[l]
	now := time.Now()
	if ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.lastSent[l] = now
	if d.stateDir != "" {
		if err := state.SaveNotifyStamp(d.stampPath(l), now); err != nil {
			wlog.Printf(wlog.Warning, "notify: persisting cooldown for %s: %v", l, err)
		}
	}
	return true
}

func (d *Dispatcher) stampPath(l level.Level) string {
	return filepath.Join(d.stateDir, "notify_"+l.String())
}

// ClearCooldowns drops every level's recorded last-sent time, per
// spec.md §4.8's rule that entering `ok` clears per-level notification
// cooldowns so the next escalation is reported promptly rather than
// waiting out a cooldown left over from before the recovery.
func (d *Dispatcher) ClearCooldowns() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for l := range d.lastSent {
		delete(d.lastSent, l)
		if d.stateDir != "" {
			os.Remove(d.stampPath(l))
		}
	}
}

package notify

import (
	"context"
	"os/exec"
)

// DesktopChannel spawns a desktop notifier (notify-send by default) as
// an argv list, never through a shell, so process-derived text in the
// payload message can never be interpreted as shell syntax.
type DesktopChannel struct {
	cmd string
}

// NewDesktopChannel builds a DesktopChannel from params["cmd"],
// defaulting to notify-send.
func NewDesktopChannel(params map[string]string) *DesktopChannel {
	cmd := params["cmd"]
	if cmd == "" {
		cmd = "notify-send"
	}
	return &DesktopChannel{cmd: cmd}
}

func (c *DesktopChannel) Name() string { return "desktop" }

func (c *DesktopChannel) Send(ctx context.Context, p Payload) error {
	title := "disk-watchdogd: " + p.Level.String()
	return exec.CommandContext(ctx, c.cmd, title, p.Message).Run()
}

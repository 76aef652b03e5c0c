package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// BroadcastChannel spawns a terminal-broadcast tool (wall by default)
// as an argv list, so every logged-in session sees high-severity
// alerts even without a desktop session.
type BroadcastChannel struct {
	cmd string
}

// NewBroadcastChannel builds a BroadcastChannel from params["cmd"],
// defaulting to wall.
func NewBroadcastChannel(params map[string]string) *BroadcastChannel {
	cmd := params["cmd"]
	if cmd == "" {
		cmd = "wall"
	}
	return &BroadcastChannel{cmd: cmd}
}

func (c *BroadcastChannel) Name() string { return "broadcast" }

func (c *BroadcastChannel) Send(ctx context.Context, p Payload) error {
	text := fmt.Sprintf("disk-watchdogd [%s] %s: %d GB free on %s", p.Level, p.Message, p.FreeGB, p.Mount)
	cmd := exec.CommandContext(ctx, c.cmd)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

package writer

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// tracerWindow is the fixed sampling window for a single tracer
// invocation, per spec.md §4.5 ("a short-lived invocation... with a
// 1-second window").
const tracerWindow = 1 * time.Second

// rawWrite is a single observed write reported by the tracer, prior to
// per-PID aggregation across the window.
type rawWrite struct {
	pid   int
	comm  string
	bytes int64
}

// runTracer spawns the configured block-I/O tracing tool against
// device for one sampling window and returns per-PID aggregated write
// byte counts observed during that window.
//
// This replaces direct BPF program attachment: spec.md §9 sanctions
// spawning the tool and parsing its tabular output as the "robust,
// easy" alternative to attaching bytecode directly in-process, which
// is the right call here since no such bytecode exists in this repo.
func runTracer(ctx context.Context, tracerCmd string, device string) (map[int]rawWrite, error) {
	cctx, cancel := context.WithTimeout(ctx, tracerWindow+5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, tracerCmd,
		"-d", device,
		"-seconds", strconv.Itoa(int(tracerWindow.Seconds())))

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("writer: running tracer %q: %w", tracerCmd, err)
	}
	return aggregateTracerOutput(out), nil
}

// CheckTracerAvailable verifies the configured tracer binary resolves
// on PATH, so the daemon can fail fast at startup per spec.md §4.5
// rather than discovering a missing tracer mid-loop.
func CheckTracerAvailable(tracerCmd string) error {
	if _, err := exec.LookPath(tracerCmd); err != nil {
		return fmt.Errorf("writer: tracer %q not found on PATH: %w", tracerCmd, err)
	}
	return nil
}

// aggregateTracerOutput parses whitespace-delimited tracer output of
// the form "<pid> <comm> <bytes>" (additional trailing columns, such
// as a device or timestamp field, are ignored), summing bytes per PID
// across every line the tracer emitted in its window. A header line,
// or any line whose first field does not parse as a PID, is skipped.
func aggregateTracerOutput(out []byte) map[int]rawWrite {
	agg := map[int]rawWrite{}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue // header row or malformed line
		}
		bytesWritten, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
		if err != nil {
			continue
		}
		comm := truncateComm(fields[1])

		cur := agg[pid]
		cur.pid = pid
		cur.comm = comm
		cur.bytes += bytesWritten
		agg[pid] = cur
	}
	return agg
}

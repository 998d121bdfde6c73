package runner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/crucible-dev/crucible/internal/port/sandbox"
)

// devServerSignatures are command substrings that identify a long-running
// dev server rather than a run-to-completion command.
var devServerSignatures = []string{
	"npm run dev",
	"npm start",
	"pnpm dev",
	"pnpm run dev",
	"yarn dev",
	"yarn start",
	"vite",
	"next dev",
	"nuxt dev",
	"astro dev",
	"webpack serve",
	"webpack-dev-server",
	"ng serve",
	"remix dev",
}

// readyPatterns are output substrings that signal a dev server has come up.
var readyPatterns = []string{
	"ready in",
	"compiled successfully",
	"local:",
	"localhost:",
	"listening on",
	"server running",
	"started server",
	"dev server running",
	"watching for file changes",
}

// isDevServerCommand reports whether cmd looks like it starts a dev server.
func isDevServerCommand(cmd string) bool {
	lower := strings.ToLower(strings.TrimSpace(cmd))
	for _, sig := range devServerSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// devServer tracks the single shared dev-server process. Only one dev
// server runs at a time; starting a new one kills the old one first. The
// runner's sequential execution means no extra locking is needed here, but
// Stop is also called from shutdown, so a mutex-free design relies on the
// runner being drained first.
type devServer struct {
	process sandbox.Process
	command string
}

// start kills any previous dev server, spawns the new command, and scans
// its output for a ready signature, bounded by readyTimeout. It never
// fails the action: if no ready pattern is seen before the timeout, the
// server is assumed to still be booting and control returns anyway.
func (d *devServer) start(ctx context.Context, sb sandbox.Sandbox, cmd string, readyTimeout time.Duration) error {
	d.stop()

	// The server itself outlives the action that started it, so the
	// process is detached from the per-action cancel. The ready scan
	// below stays attached: aborting the action kills the new server.
	p, err := sb.Spawn(context.WithoutCancel(ctx), cmd)
	if err != nil {
		return err
	}
	d.process = p
	d.command = cmd

	slog.Info("dev server starting", "command", cmd)

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-p.Output():
			if !ok {
				// Output closed: the server exited before becoming
				// ready. Still best-effort, the caller proceeds.
				slog.Warn("dev server exited before ready signature", "command", cmd)
				return nil
			}
			if matchesReady(line) {
				slog.Info("dev server ready", "command", cmd, "line", line)
				go drain(p)
				return nil
			}
		case <-timer.C:
			slog.Warn("dev server ready timeout, continuing anyway", "command", cmd, "timeout", readyTimeout)
			go drain(p)
			return nil
		case <-ctx.Done():
			d.stop()
			return ctx.Err()
		}
	}
}

// stop kills the tracked dev server, if any.
func (d *devServer) stop() {
	if d.process != nil {
		if err := d.process.Kill(); err != nil {
			slog.Debug("dev server kill failed", "error", err)
		}
		d.process = nil
	}
}

// restart stops the tracked dev server and starts it again with its last
// command. With nothing tracked it is a no-op.
func (d *devServer) restart(ctx context.Context, sb sandbox.Sandbox, readyTimeout time.Duration) error {
	if d.command == "" {
		slog.Info("restart requested with no dev server tracked, skipping")
		return nil
	}
	return d.start(ctx, sb, d.command, readyTimeout)
}

func matchesReady(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range readyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// drain keeps consuming a long-running process's output so its pipe never
// fills and blocks the server.
func drain(p sandbox.Process) {
	for range p.Output() {
	}
}

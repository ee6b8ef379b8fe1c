package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// xvfbReadyTimeout bounds the wait for the X socket to appear.
const xvfbReadyTimeout = 5 * time.Second

// display is a private Xvfb server backing a headful Chrome.
type display struct {
	name string
	cmd  *exec.Cmd
}

// socketPath is the X11 unix socket of display ":N".
func (d *display) socketPath() string {
	return "/tmp/.X11-unix/X" + strings.TrimPrefix(d.name, ":")
}

// startDisplay runs Xvfb on name and waits until its socket accepts
// clients.
func startDisplay(ctx context.Context, name string) (*display, error) {
	d := &display{name: name}
	d.cmd = exec.Command("Xvfb", name, "-screen", "0", "1920x1080x24", "-ac", "-nolisten", "tcp")
	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start xvfb %s: %w", name, err)
	}

	deadline := time.Now().Add(xvfbReadyTimeout)
	for {
		if _, err := os.Stat(d.socketPath()); err == nil {
			return d, nil
		}
		if time.Now().After(deadline) {
			d.stop()
			return nil, fmt.Errorf("xvfb %s: no socket after %s", name, xvfbReadyTimeout)
		}
		select {
		case <-ctx.Done():
			d.stop()
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (d *display) stop() {
	if d == nil || d.cmd == nil || d.cmd.Process == nil {
		return
	}
	d.cmd.Process.Kill()
	d.cmd.Wait()
}

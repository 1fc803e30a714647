// CLAUDE:SUMMARY Starts and stops the Xvfb virtual display used by headful preview sessions.
package browser

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// startXvfb launches a virtual display. Each headful manager owns its own
// Xvfb process.
func startXvfb(display string, logger *slog.Logger) (*exec.Cmd, error) {
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start xvfb: %w", err)
	}
	// Xvfb accepts connections shortly after start.
	time.Sleep(500 * time.Millisecond)

	logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return cmd, nil
}

func stopXvfb(cmd *exec.Cmd, logger *slog.Logger) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	logger.Info("browser: xvfb stopped")
}

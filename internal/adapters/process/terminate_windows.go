//go:build windows

package process

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
)

// taskkill takes the whole tree down; gopsutil handles what it misses
func terminate(ctx context.Context, p *Process) error {
	pid := p.PID()
	if err := exec.CommandContext(ctx, "taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run(); err != nil {
		descendants := descendantPIDs(ctx, pid)
		if killErr := p.cmd.Process.Kill(); killErr != nil {
			return killErr
		}
		killPIDs(ctx, descendants, slog.New(slog.DiscardHandler))
		return err
	}
	return nil
}

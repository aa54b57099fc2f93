package process

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/process"
)

// descendantPIDs walks the process tree below pid
func descendantPIDs(ctx context.Context, pid int) []int32 {
	if pid <= 0 {
		return nil
	}
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}

	var pids []int32
	queue := []*process.Process{root}
	for len(queue) > 0 {
		children, err := queue[0].ChildrenWithContext(ctx)
		queue = queue[1:]
		if err != nil {
			continue
		}
		for _, child := range children {
			pids = append(pids, child.Pid)
			queue = append(queue, child)
		}
	}
	return pids
}

// killPIDs kills every pid that is still running
func killPIDs(ctx context.Context, pids []int32, log *slog.Logger) {
	for _, pid := range pids {
		running, err := process.PidExistsWithContext(ctx, pid)
		if err != nil || !running {
			continue
		}
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			log.Debug("failed to kill descendant", "pid", pid, "error", err)
		}
	}
}

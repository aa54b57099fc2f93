//go:build !windows

package process

import (
	"context"
	"errors"
	"syscall"
)

// terminate interrupts the node's whole process group so npx wrappers and the
// node they exec see the signal together. Where the node did not get its own
// group the interrupt goes to the node alone.
func terminate(_ context.Context, p *Process) error {
	pid := p.PID()
	err := syscall.Kill(-pid, syscall.SIGINT)
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.EPERM) {
		return syscall.Kill(pid, syscall.SIGINT)
	}
	return err
}

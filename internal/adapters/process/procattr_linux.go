//go:build linux

package process

import "syscall"

// The node gets SIGTERM when its parent dies and runs in its own process
// group so a terminal interrupt reaches only the supervisor.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
		Setpgid:   true,
	}
}

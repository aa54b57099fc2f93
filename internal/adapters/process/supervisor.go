package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/metrics"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

const (
	// DefaultStopGrace is how long a node gets to exit after the interrupt
	DefaultStopGrace = 15 * time.Second
	// DefaultKillGrace is how long to wait after a forced kill
	DefaultKillGrace = 2 * time.Second
)

// Process is a running node process owned by the supervisor
type Process struct {
	cmd     *exec.Cmd
	logFile string

	done    chan struct{}
	exitErr error
}

// PID returns the operating system process id
func (p *Process) PID() int {
	if p == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// LogFile returns the file receiving the node's output
func (p *Process) LogFile() string { return p.logFile }

// Done is closed once the process has exited
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process is gone
func (p *Process) Exited() bool {
	if p == nil {
		return true
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the wait error once the process has exited
func (p *Process) ExitErr() error {
	if !p.Exited() {
		return nil
	}
	return p.exitErr
}

// Supervisor spawns and stops node processes
type Supervisor struct {
	log     *slog.Logger
	metrics *metrics.NodeMetrics

	stopGrace time.Duration
	killGrace time.Duration
}

// NewSupervisor creates a supervisor
func NewSupervisor(log *slog.Logger, m *metrics.NodeMetrics) *Supervisor {
	return &Supervisor{
		log:       log.With("component", "supervisor"),
		metrics:   m,
		stopGrace: DefaultStopGrace,
		killGrace: DefaultKillGrace,
	}
}

// Spawn launches the command with its output redirected to the command's log
// file. The process is not tied to ctx; only Stop ends it.
func (s *Supervisor) Spawn(ctx context.Context, command domain.NodeCommand) (usecase.NodeProcess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	argv := command.Argv()
	if len(argv) == 0 || argv[0] == "" {
		return nil, &domain.SubprocessError{Message: "empty node command"}
	}

	logPath := command.LogFile
	if logPath == "" {
		logPath = os.DevNull
	} else if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = command.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, &domain.SubprocessError{Message: "failed to start Hardhat node process", Err: err}
	}

	p := &Process{
		cmd:     cmd,
		logFile: logPath,
		done:    make(chan struct{}),
	}

	go func() {
		p.exitErr = cmd.Wait()
		_ = logFile.Close()
		close(p.done)
	}()

	s.log.Debug("spawned hardhat node", "pid", p.PID(), "argv", argv, "log", logPath)
	return p, nil
}

// Stop ends the process: interrupt, wait, kill, wait, then kill any
// descendants left behind. Stopping a nil or exited process is a no-op.
func (s *Supervisor) Stop(ctx context.Context, np usecase.NodeProcess) error {
	if np == nil {
		return nil
	}
	p, ok := np.(*Process)
	if !ok {
		return fmt.Errorf("unsupported process handle %T", np)
	}
	if p == nil || p.Exited() {
		return nil
	}

	// Children reparent once the parent dies, so collect them first.
	descendants := descendantPIDs(ctx, p.PID())

	s.log.Debug("stopping hardhat node", "pid", p.PID(), "descendants", len(descendants))

	mode := "graceful"
	if err := terminate(ctx, p); err != nil {
		s.log.Debug("interrupt failed", "pid", p.PID(), "error", err)
	}

	if !s.wait(ctx, p, s.stopGrace) {
		mode = "killed"
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.log.Warn("failed to kill hardhat node", "pid", p.PID(), "error", err)
		}
		if !s.wait(ctx, p, s.killGrace) {
			s.metrics.RecordStop("stuck")
			return &domain.SubprocessError{Message: fmt.Sprintf("hardhat node (pid %d) did not exit", p.PID())}
		}
	}

	killPIDs(ctx, descendants, s.log)
	s.metrics.RecordStop(mode)
	return nil
}

func (s *Supervisor) wait(ctx context.Context, p *Process, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return p.Exited()
	}
}

var _ usecase.ProcessSupervisor = (*Supervisor)(nil)

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Paintersrp/servicestation/internal/runtime"
)

// Options describes one launch.
type Options struct {
	// Name labels errors, normally the service name.
	Name string
	// CommandLine is the raw command line to execute.
	CommandLine string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Group, when set, prepares the command so the child can join it.
	Group runtime.Group
	// Output receives the child's stdout and stderr. Nil discards them.
	Output *os.File
	// Desktop lets the child show windows on the interactive desktop
	// (Windows only).
	Desktop bool
}

// Process is an exclusively owned handle to a launched child.
type Process struct {
	name    string
	cmd     *exec.Cmd
	started time.Time

	done    chan struct{}
	waitErr error
}

// Start launches the child described by opts. No retry is attempted.
func Start(opts Options) (*Process, error) {
	if strings.TrimSpace(opts.CommandLine) == "" {
		return nil, errors.New("empty command line")
	}
	if opts.Dir != "" {
		info, err := os.Stat(opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("working directory %s is not a directory", opts.Dir)
		}
	}

	cmd, err := buildCommand(opts.CommandLine, opts.Dir, opts.Desktop)
	if err != nil {
		return nil, err
	}
	cmd.Dir = opts.Dir
	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
	}
	if opts.Group != nil {
		opts.Group.Prepare(cmd)
	} else {
		configureCmdSysProcAttr(cmd)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Name, err)
	}

	p := &Process{
		name:    opts.Name,
		cmd:     cmd,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// StartedAt reports when the child was launched.
func (p *Process) StartedAt() time.Time {
	return p.started
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Alive reports whether the child is still running. It never blocks.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the result of waiting on the child. It is only meaningful
// after Done is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// ExitCode returns the child's exit code, or -1 while it is running or when
// it was ended by a signal.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Wait blocks until the child exits or timeout elapses and reports whether
// the child exited.
func (p *Process) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return !p.Alive()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// RequestStop asks the child to exit on its own.
func (p *Process) RequestStop() error {
	if !p.Alive() {
		return nil
	}
	return requestStop(p)
}

// Kill ends the child directly, without touching its descendants.
func (p *Process) Kill() error {
	if !p.Alive() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", p.name, err)
	}
	return nil
}

//go:build !windows

package group

import (
	"errors"
	"os/exec"
	"sync"
	"syscall"

	"github.com/Paintersrp/servicestation/internal/runtime"
)

type unixGroup struct {
	name string

	mu     sync.Mutex
	pgids  []int
	cg     *cgroup
	closed bool
}

// New creates the container for service name. A cgroup is used when one can
// be created; otherwise the container falls back to process groups.
func New(name string) (runtime.Group, error) {
	g := &unixGroup{name: instanceName(name)}
	cg, err := openCgroup(g.name)
	if err == nil {
		g.cg = cg
	}
	return g, nil
}

func (g *unixGroup) Name() string { return g.name }

func (g *unixGroup) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pgid = 0
}

func (g *unixGroup) Enroll(pid int) error {
	if pid <= 0 {
		return &runtime.ContainmentError{Group: g.name, Op: "enroll", Pid: pid, Err: errors.New("invalid pid")}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return &runtime.ContainmentError{Group: g.name, Op: "enroll", Pid: pid, Err: errors.New("group closed")}
	}

	// Children are group leaders, so their pid is the pgid. Groups that no
	// longer have members are forgotten so a recycled id is never signalled.
	live := g.pgids[:0]
	for _, pgid := range g.pgids {
		if pgid != pid && syscall.Kill(-pgid, 0) == nil {
			live = append(live, pgid)
		}
	}
	g.pgids = append(live, pid)

	if g.cg != nil {
		if err := g.cg.add(pid); err != nil {
			return &runtime.ContainmentError{Group: g.name, Op: "enroll", Pid: pid, Err: err}
		}
	}
	return nil
}

func (g *unixGroup) signalLocked(sig syscall.Signal) error {
	var errs []error
	for _, pgid := range g.pgids {
		if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &runtime.ContainmentError{Group: g.name, Op: "signal " + sig.String(), Err: errors.Join(errs...)}
	}
	return nil
}

func (g *unixGroup) Suspend() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cg != nil {
		if err := g.cg.freeze(true); err == nil {
			return nil
		}
	}
	return g.signalLocked(syscall.SIGSTOP)
}

func (g *unixGroup) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cg != nil {
		if err := g.cg.freeze(false); err == nil {
			return nil
		}
	}
	return g.signalLocked(syscall.SIGCONT)
}

func (g *unixGroup) TerminateAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminateLocked()
}

func (g *unixGroup) terminateLocked() error {
	var errs []error
	if g.cg != nil {
		if err := g.cg.kill(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := g.signalLocked(syscall.SIGKILL); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &runtime.ContainmentError{Group: g.name, Op: "terminate", Err: errors.Join(errs...)}
	}
	return nil
}

func (g *unixGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	err := g.terminateLocked()
	if g.cg != nil {
		if rmErr := g.cg.remove(); rmErr != nil {
			err = errors.Join(err, &runtime.ContainmentError{Group: g.name, Op: "remove cgroup", Err: rmErr})
		}
		g.cg = nil
	}
	g.pgids = nil
	return err
}

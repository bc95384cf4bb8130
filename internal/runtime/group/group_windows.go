//go:build windows

package group

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Paintersrp/servicestation/internal/runtime"
)

type jobGroup struct {
	name string

	mu     sync.Mutex
	job    windows.Handle
	closed bool
}

// New creates a job object for service name. Closing the last handle to the
// job terminates every process still assigned to it.
func New(name string) (runtime.Group, error) {
	g := &jobGroup{name: "servicestation-" + instanceName(name)}
	namePtr, err := windows.UTF16PtrFromString(g.name)
	if err != nil {
		return nil, fmt.Errorf("job object name: %w", err)
	}
	job, err := windows.CreateJobObject(nil, namePtr)
	if err != nil {
		return nil, fmt.Errorf("create job object %s: %w", g.name, err)
	}

	var info windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION
	info.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(job)
		return nil, fmt.Errorf("configure job object %s: %w", g.name, err)
	}

	g.job = job
	return g, nil
}

func (g *jobGroup) Name() string { return g.name }

func (g *jobGroup) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
}

func (g *jobGroup) Enroll(pid int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return &runtime.ContainmentError{Group: g.name, Op: "enroll", Pid: pid, Err: errors.New("group closed")}
	}

	h, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return &runtime.ContainmentError{Group: g.name, Op: "open process", Pid: pid, Err: err}
	}
	defer windows.CloseHandle(h)

	if err := windows.AssignProcessToJobObject(g.job, h); err != nil {
		return &runtime.ContainmentError{Group: g.name, Op: "assign to job", Pid: pid, Err: err}
	}
	return nil
}

func (g *jobGroup) Suspend() error { return runtime.ErrSuspendUnsupported }
func (g *jobGroup) Resume() error  { return nil }

func (g *jobGroup) TerminateAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	if err := windows.TerminateJobObject(g.job, 1); err != nil {
		return &runtime.ContainmentError{Group: g.name, Op: "terminate", Err: err}
	}
	return nil
}

func (g *jobGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if err := windows.CloseHandle(g.job); err != nil {
		return &runtime.ContainmentError{Group: g.name, Op: "close", Err: err}
	}
	return nil
}

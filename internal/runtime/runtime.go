package runtime

import (
	"errors"
	"fmt"
	"os/exec"
)

// Log sources attached to records produced while supervising a child.
const (
	LogSourceSystem = "system"
	LogSourceStdout = "stdout"
	LogSourceStderr = "stderr"
)

// ErrSuspendUnsupported is returned by Group implementations that cannot
// freeze their members.
var ErrSuspendUnsupported = errors.New("runtime: group suspension not supported")

// Group is a kernel-backed container that holds a supervised child together
// with every process it spawns, so that the whole tree can be terminated at
// once. A Group is created once per configuration snapshot and every child
// launched under that snapshot joins it.
type Group interface {
	// Name identifies the container for diagnostics.
	Name() string

	// Prepare sets platform attributes on cmd before it is started.
	Prepare(cmd *exec.Cmd)

	// Enroll adds a started process to the container. Failure leaves the
	// child running outside containment and is reported as a
	// *ContainmentError.
	Enroll(pid int) error

	// Suspend freezes every member. Resume thaws them.
	Suspend() error
	Resume() error

	// TerminateAll forcibly ends every member, including descendants that
	// are still running after their parent exited.
	TerminateAll() error

	// Close releases the container. Members still alive are terminated
	// where the platform supports it.
	Close() error
}

// ContainmentError reports a failed group operation. It is never fatal to the
// supervisor: the child keeps running, only the cascade guarantee is lost.
type ContainmentError struct {
	Group string
	Op    string
	Pid   int
	Err   error
}

func (e *ContainmentError) Error() string {
	if e.Pid > 0 {
		return fmt.Sprintf("group %s: %s pid %d: %v", e.Group, e.Op, e.Pid, e.Err)
	}
	return fmt.Sprintf("group %s: %s: %v", e.Group, e.Op, e.Err)
}

func (e *ContainmentError) Unwrap() error { return e.Err }

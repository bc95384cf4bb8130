// Package svcctl implements the service control state machine: it drives a
// Handler through start, pause, continue and stop in response to control
// opcodes from the host service manager and reports every transition.
package svcctl

import (
	"fmt"
	"time"
)

// State mirrors the Windows SERVICE_* state values.
type State uint32

const (
	Stopped         State = 1
	StartPending    State = 2
	StopPending     State = 3
	Running         State = 4
	ContinuePending State = 5
	PausePending    State = 6
	Paused          State = 7
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case StartPending:
		return "start_pending"
	case StopPending:
		return "stop_pending"
	case Running:
		return "running"
	case ContinuePending:
		return "continue_pending"
	case PausePending:
		return "pause_pending"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Pending reports whether s is a transitional state.
func (s State) Pending() bool {
	switch s {
	case StartPending, StopPending, ContinuePending, PausePending:
		return true
	}
	return false
}

// Accepts is the set of controls a service is willing to receive.
type Accepts uint32

const (
	AcceptStop          Accepts = 1
	AcceptPauseContinue Accepts = 2
	AcceptShutdown      Accepts = 4
)

// Has reports whether every bit of other is set.
func (a Accepts) Has(other Accepts) bool {
	return a&other == other
}

// Status is the record reported to the host on every transition.
type Status struct {
	State      State
	Accepts    Accepts
	Checkpoint uint32
	WaitHint   time.Duration
	ExitCode   uint32
}

// Opcode is a control request from the host.
type Opcode uint32

const (
	OpcodeStop        Opcode = 1
	OpcodePause       Opcode = 2
	OpcodeContinue    Opcode = 3
	OpcodeInterrogate Opcode = 4
	OpcodeShutdown    Opcode = 5

	// OpcodeUserMin and OpcodeUserMax bound the user-defined range.
	OpcodeUserMin Opcode = 128
	OpcodeUserMax Opcode = 255

	// OpcodeReload asks the service to reload its configuration.
	OpcodeReload Opcode = OpcodeUserMin
)

// User reports whether op is in the user-defined range.
func (op Opcode) User() bool {
	return op >= OpcodeUserMin && op <= OpcodeUserMax
}

func (op Opcode) String() string {
	switch op {
	case OpcodeStop:
		return "stop"
	case OpcodePause:
		return "pause"
	case OpcodeContinue:
		return "continue"
	case OpcodeInterrogate:
		return "interrogate"
	case OpcodeShutdown:
		return "shutdown"
	case OpcodeReload:
		return "reload"
	default:
		return fmt.Sprintf("opcode(%d)", uint32(op))
	}
}

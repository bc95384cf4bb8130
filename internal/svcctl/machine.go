package svcctl

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultStopTimeout bounds how long a stop waits for Run to return.
	DefaultStopTimeout = 10 * time.Second
	// DefaultStartWaitHint is reported with StartPending.
	DefaultStartWaitHint = 30 * time.Second
	// DefaultControlWaitHint is reported with pause and continue pending.
	DefaultControlWaitHint = 5 * time.Second
)

// Option tunes a Machine.
type Option func(*Machine)

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// Machine drives a Handler through its lifecycle. Control requests are
// serialized; status reads never wait for a control to finish.
type Machine struct {
	handler     Handler
	reporter    Reporter
	stopTimeout time.Duration

	// ctrlMu serializes Control and the start/finish phases of Serve.
	ctrlMu        sync.Mutex
	cancel        context.CancelFunc
	runDone       chan struct{}
	runErr        error
	stopRequested Opcode
	reportedFinal bool

	statusMu sync.Mutex
	name     string
	status   Status
}

// NewMachine builds a machine for h that reports to r.
func NewMachine(h Handler, r Reporter, opts ...Option) *Machine {
	m := &Machine{
		handler:     h,
		reporter:    r,
		stopTimeout: DefaultStopTimeout,
		status:      Status{State: Stopped},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the name the machine registered under, once Serve got there.
func (m *Machine) Name() string {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.name
}

// Status returns the last reported status.
func (m *Machine) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

// Serve runs the service to completion and returns its exit code. args[0] is
// the name the host started the service under. Stopped is reported exactly
// once before Serve returns.
func (m *Machine) Serve(args []string) uint32 {
	m.ctrlMu.Lock()
	m.report(Status{State: StartPending, WaitHint: DefaultStartWaitHint})
	m.ctrlMu.Unlock()

	// Init runs without the control lock so a stop received meanwhile is
	// recorded instead of blocking the host.
	initErr := m.handler.Init(args)

	m.ctrlMu.Lock()
	if initErr != nil {
		code := exitCodeFor(initErr, ExitCodeInitFailed)
		m.reportStopped(code)
		m.ctrlMu.Unlock()
		return code
	}

	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	if n, ok := m.handler.(Namer); ok && n.ServiceName() != "" {
		name = n.ServiceName()
	}
	if err := Register(name, m); err != nil {
		code := exitCodeFor(err, ExitCodeDuplicateName)
		m.reportStopped(code)
		m.ctrlMu.Unlock()
		return code
	}
	defer Unregister(name, m)
	m.statusMu.Lock()
	m.name = name
	m.statusMu.Unlock()

	if op := m.stopRequested; op != 0 {
		m.report(Status{State: StopPending, WaitHint: m.stopTimeout})
		m.notifyStop(op)
		m.reportStopped(0)
		m.ctrlMu.Unlock()
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	m.cancel = cancel
	m.runDone = runDone
	m.report(Status{State: Running, Accepts: m.accepts()})
	m.ctrlMu.Unlock()

	runErr := m.handler.Run(ctx)
	m.runErr = runErr
	close(runDone)

	m.ctrlMu.Lock()
	defer m.ctrlMu.Unlock()
	cancel()
	if !m.reportedFinal {
		// Run returned without a stop request.
		m.report(Status{State: StopPending, WaitHint: m.stopTimeout})
		m.reportStopped(m.runExitCode())
	}
	return m.Status().ExitCode
}

// Control delivers one opcode. Controls arriving after Stopped are ignored.
func (m *Machine) Control(op Opcode) {
	m.ctrlMu.Lock()
	defer m.ctrlMu.Unlock()

	cur := m.Status()
	if cur.State == Stopped && m.reportedFinal {
		return
	}

	switch op {
	case OpcodeStop, OpcodeShutdown:
		switch cur.State {
		case StartPending:
			if m.stopRequested == 0 {
				m.stopRequested = op
			}
			m.rereport()
		case StopPending, Stopped:
			m.rereport()
		default:
			m.stop(op)
		}

	case OpcodePause:
		if cur.State != Running || !m.accepts().Has(AcceptPauseContinue) {
			m.rereport()
			return
		}
		m.report(Status{State: PausePending, WaitHint: DefaultControlWaitHint})
		var err error
		if p, ok := m.handler.(Pauser); ok {
			err = p.OnPause()
		}
		if err != nil {
			m.report(Status{State: Running, Accepts: m.accepts()})
			return
		}
		m.report(Status{State: Paused, Accepts: m.accepts()})

	case OpcodeContinue:
		if cur.State != Paused {
			m.rereport()
			return
		}
		m.report(Status{State: ContinuePending, WaitHint: DefaultControlWaitHint})
		var err error
		if c, ok := m.handler.(Continuer); ok {
			err = c.OnContinue()
		}
		if err != nil {
			m.report(Status{State: Paused, Accepts: m.accepts()})
			return
		}
		m.report(Status{State: Running, Accepts: m.accepts()})

	case OpcodeInterrogate:
		if q, ok := m.handler.(Inquirer); ok {
			q.OnInquire()
		}
		m.rereport()

	default:
		if u, ok := m.handler.(UserController); ok {
			u.OnUserControl(op)
		}
		m.rereport()
	}
}

// stop runs with ctrlMu held.
func (m *Machine) stop(op Opcode) {
	m.report(Status{State: StopPending, WaitHint: m.stopTimeout})
	m.notifyStop(op)
	if m.cancel != nil {
		m.cancel()
	}
	if m.runDone != nil {
		timer := time.NewTimer(m.stopTimeout)
		defer timer.Stop()
		select {
		case <-m.runDone:
			m.reportStopped(m.runExitCode())
			return
		case <-timer.C:
		}
	}
	m.reportStopped(0)
}

func (m *Machine) notifyStop(op Opcode) {
	if op == OpcodeShutdown {
		if s, ok := m.handler.(Shutdowner); ok {
			s.OnShutdown()
			return
		}
	}
	m.handler.OnStop()
}

// runExitCode is only valid once runDone is closed.
func (m *Machine) runExitCode() uint32 {
	if m.runErr == nil || errors.Is(m.runErr, context.Canceled) {
		return 0
	}
	return exitCodeFor(m.runErr, ExitCodeInitFailed)
}

func (m *Machine) accepts() Accepts {
	if a, ok := m.handler.(Accepter); ok {
		return a.Accepts()
	}
	return AcceptStop | AcceptShutdown
}

func (m *Machine) reportStopped(code uint32) {
	m.reportedFinal = true
	m.report(Status{State: Stopped, ExitCode: code})
}

func (m *Machine) rereport() {
	m.statusMu.Lock()
	st := m.status
	m.statusMu.Unlock()
	m.publish(st)
}

func (m *Machine) report(st Status) {
	m.statusMu.Lock()
	if st.State.Pending() {
		if st.State == m.status.State {
			st.Checkpoint = m.status.Checkpoint + 1
		} else {
			st.Checkpoint = 1
		}
	}
	if st.State.Pending() || st.State == Stopped {
		st.Accepts = 0
	}
	m.status = st
	m.statusMu.Unlock()
	m.publish(st)
}

func (m *Machine) publish(st Status) {
	if m.reporter == nil {
		return
	}
	_ = m.reporter.ReportStatus(st)
}

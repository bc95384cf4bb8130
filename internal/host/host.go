// Package host connects a svcctl.Machine to the platform's service manager
// and installs or removes the service registration.
package host

import (
	"fmt"
	"io"
	"sync"

	"github.com/Paintersrp/servicestation/internal/eventlog"
	"github.com/Paintersrp/servicestation/internal/metrics"
	"github.com/Paintersrp/servicestation/internal/svcctl"
)

// Options configures Run.
type Options struct {
	// Name is passed to the machine as args[0]. The handler may override it
	// once its configuration is loaded.
	Name string
	// Log returns the logger transitions are written to. It is consulted on
	// every report because handlers replace their logger during Init.
	Log func() *eventlog.Logger
	// Machine options such as the stop timeout.
	Machine []svcctl.Option
}

// statusAttacher is implemented by handlers that expose machine status.
type statusAttacher interface {
	SetStatusSource(func() svcctl.Status)
}

func newMachine(h svcctl.Handler, r svcctl.Reporter, opts Options) *svcctl.Machine {
	m := svcctl.NewMachine(h, r, opts.Machine...)
	if sa, ok := h.(statusAttacher); ok {
		sa.SetStatusSource(m.Status)
	}
	return m
}

// dispatch routes op to the machine registered under m's service name. Until
// Init has registered a name, m receives op directly.
func dispatch(m *svcctl.Machine, op svcctl.Opcode) {
	if name := m.Name(); name != "" {
		if target, ok := svcctl.Lookup(name); ok {
			target.Control(op)
			return
		}
	}
	m.Control(op)
}

// reporter logs state changes, updates the state gauge and forwards every
// status to the platform.
type reporter struct {
	log     func() *eventlog.Logger
	forward func(svcctl.Status) error

	mu   sync.Mutex
	last svcctl.State
}

func newReporter(log func() *eventlog.Logger, forward func(svcctl.Status) error) *reporter {
	return &reporter{log: log, forward: forward}
}

func (r *reporter) logger() *eventlog.Logger {
	if r.log == nil {
		return nil
	}
	return r.log()
}

func (r *reporter) ReportStatus(st svcctl.Status) error {
	r.mu.Lock()
	changed := st.State != r.last
	r.last = st.State
	forward := r.forward
	r.mu.Unlock()

	l := r.logger()
	if changed {
		switch {
		case st.State == svcctl.Stopped && st.ExitCode != 0:
			l.Errorf("service %s (exit code %d)", st.State, st.ExitCode)
		default:
			l.Infof("service %s", st.State)
		}
	}
	metrics.SetServiceState(l.Name(), uint32(st.State))
	if forward == nil {
		return nil
	}
	if err := forward(st); err != nil {
		l.Warnf("report status %s: %v", st.State, err)
		return err
	}
	return nil
}

func (r *reporter) setForward(forward func(svcctl.Status) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forward = forward
}

// executable resolves the absolute, symlink-free path of the running binary.
func printf(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, format, args...)
}

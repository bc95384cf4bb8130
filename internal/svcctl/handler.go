package svcctl

import "context"

// Handler is the service body driven by a Machine.
type Handler interface {
	// Init prepares the service. args[0] is the registered service name.
	// A non-nil error aborts the start with a non-zero exit code.
	Init(args []string) error
	// Run performs the service's work until ctx is cancelled.
	Run(ctx context.Context) error
	// OnStop is called before the run context is cancelled.
	OnStop()
}

// Pauser handles Pause. Services without it pause as a no-op.
type Pauser interface {
	OnPause() error
}

// Continuer handles Continue. Services without it continue as a no-op.
type Continuer interface {
	OnContinue() error
}

// Shutdowner handles system shutdown. Services without it get OnStop.
type Shutdowner interface {
	OnShutdown()
}

// Inquirer is notified of Interrogate requests.
type Inquirer interface {
	OnInquire()
}

// UserController receives user-defined and otherwise unhandled opcodes.
type UserController interface {
	OnUserControl(op Opcode)
}

// Namer supplies the name to register after Init, which may differ from the
// name the host started the service under.
type Namer interface {
	ServiceName() string
}

// Accepter declares the controls accepted while running.
type Accepter interface {
	Accepts() Accepts
}

// Reporter publishes status to the host service manager.
type Reporter interface {
	ReportStatus(Status) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Status) error

func (f ReporterFunc) ReportStatus(st Status) error { return f(st) }

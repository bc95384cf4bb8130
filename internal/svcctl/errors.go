package svcctl

import (
	"errors"
	"fmt"
)

const (
	// ExitCodeInitFailed is reported when Init fails, including
	// configuration errors.
	ExitCodeInitFailed uint32 = 1
	// ExitCodeDuplicateName is reported when the service name is already
	// registered in this process (ERROR_DUPLICATE_SERVICE_NAME).
	ExitCodeDuplicateName uint32 = 1078
)

// ErrDuplicateName is wrapped by RegistrationError.
var ErrDuplicateName = errors.New("service name already registered")

// ExitCoder is implemented by errors carrying their own exit code.
type ExitCoder interface {
	ExitCode() uint32
}

// RegistrationError reports a failed registration in the process-wide table.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register service %q: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func (e *RegistrationError) ExitCode() uint32 { return ExitCodeDuplicateName }

func exitCodeFor(err error, fallback uint32) uint32 {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		if code := coder.ExitCode(); code != 0 {
			return code
		}
	}
	return fallback
}

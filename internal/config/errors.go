package config

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every configuration failure via errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// Error describes why a configuration source could not be turned into a
// Snapshot.
type Error struct {
	Path string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config %s: service.%s: %v", e.Path, e.Key, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports true for ErrInvalid so callers can classify without errors.As.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

func fieldError(path, key string, format string, args ...any) *Error {
	return &Error{Path: path, Key: key, Err: fmt.Errorf(format, args...)}
}

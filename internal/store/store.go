// Package store persists, per installed executable, which configuration file
// the service must load when the host manager restarts it without arguments.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaxKeyLength bounds the executable path used as the lookup key.
const MaxKeyLength = 2048 - len(keyPrefix) - len(keySuffix)

const (
	keyPrefix = `SOFTWARE\StationService\Services\`
	keySuffix = `\setup`
)

var (
	// ErrNotFound is returned when no entry exists for an executable.
	ErrNotFound = errors.New("store: no entry for executable")
	// ErrPathTooLong is returned when the executable path exceeds MaxKeyLength.
	ErrPathTooLong = errors.New("store: executable path too long")
)

// Store is the machine-scoped key/value store holding the config_file value.
type Store interface {
	ConfigFile(exePath string) (string, error)
	SetConfigFile(exePath, configFile string) error
	Remove(exePath string) error
}

func checkKey(exePath string) error {
	if exePath == "" {
		return fmt.Errorf("store: executable path is required")
	}
	if len(exePath) > MaxKeyLength {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPathTooLong, len(exePath), MaxKeyLength)
	}
	return nil
}

// ExecutableKey returns the key an executable is stored under: the absolute
// path with symlinks resolved. An empty override means the running binary.
// Install and service start must agree on it.
func ExecutableKey(override string) (string, error) {
	exe := override
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return "", fmt.Errorf("store: locate executable: %w", err)
		}
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Abs(exe)
}

package svcctl

import (
	"errors"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registered = make(map[string]*Machine)
)

func registryKey(name string) string {
	return strings.ToLower(name)
}

// Register associates name with m for the lifetime of the process. Names are
// compared case-insensitively, like the Windows service manager does.
func Register(name string, m *Machine) error {
	if name == "" {
		return &RegistrationError{Name: name, Err: errors.New("name must not be empty")}
	}
	if m == nil {
		return &RegistrationError{Name: name, Err: errors.New("machine must not be nil")}
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	key := registryKey(name)
	if existing, ok := registered[key]; ok && existing != m {
		return &RegistrationError{Name: name, Err: ErrDuplicateName}
	}
	registered[key] = m
	return nil
}

// Lookup returns the machine registered under name.
func Lookup(name string) (*Machine, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registered[registryKey(name)]
	return m, ok
}

// Unregister removes name if it is still held by m.
func Unregister(name string, m *Machine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := registryKey(name)
	if registered[key] == m {
		delete(registered, key)
	}
}

//go:build windows

package store

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const valueConfigFile = "config_file"

// RegistryStore keeps entries under HKLM\SOFTWARE\StationService\Services.
type RegistryStore struct{}

// Default returns the machine-scoped store for this host.
func Default() Store {
	return RegistryStore{}
}

func keyPath(exePath string) string {
	return keyPrefix + exePath + keySuffix
}

func (RegistryStore) ConfigFile(exePath string) (string, error) {
	if err := checkKey(exePath); err != nil {
		return "", err
	}
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, keyPath(exePath), registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, exePath)
	}
	if err != nil {
		return "", fmt.Errorf("open registry key %q: %w", keyPath(exePath), err)
	}
	defer k.Close()

	value, valType, err := k.GetStringValue(valueConfigFile)
	if errors.Is(err, registry.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, exePath)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", valueConfigFile, err)
	}
	if valType == registry.EXPAND_SZ {
		if expanded, err := registry.ExpandString(value); err == nil {
			value = expanded
		}
	}
	return value, nil
}

func (RegistryStore) SetConfigFile(exePath, configFile string) error {
	if err := checkKey(exePath); err != nil {
		return err
	}
	k, _, err := registry.CreateKey(registry.LOCAL_MACHINE, keyPath(exePath), registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("create registry key %q: %w", keyPath(exePath), err)
	}
	defer k.Close()

	if err := k.SetExpandStringValue(valueConfigFile, configFile); err != nil {
		return fmt.Errorf("set %s in %q: %w", valueConfigFile, keyPath(exePath), err)
	}
	return nil
}

func (RegistryStore) Remove(exePath string) error {
	if err := checkKey(exePath); err != nil {
		return err
	}
	err := registry.DeleteKey(registry.LOCAL_MACHINE, keyPath(exePath))
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete registry key %q: %w", keyPath(exePath), err)
	}
	return nil
}

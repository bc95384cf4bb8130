package host

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Paintersrp/servicestation/internal/config"
	"github.com/Paintersrp/servicestation/internal/store"
)

// Installer registers the executable with the host service manager.
type Installer struct {
	// Store receives the config_file pointer for the executable.
	Store store.Store
	// Out receives operator-facing progress lines.
	Out io.Writer
	// Executable overrides the registered binary. Defaults to os.Executable.
	Executable string

	// UnitDir and Systemctl are used by the systemd installer.
	UnitDir   string
	Systemctl func(ctx context.Context, args ...string) error
}

// Install registers snap's service and records snap.Source in the store.
// Installing an already registered service succeeds.
func (i *Installer) Install(ctx context.Context, snap *config.Snapshot) error {
	if snap == nil {
		return errors.New("install: no configuration")
	}
	exe, err := store.ExecutableKey(i.Executable)
	if err != nil {
		return err
	}
	printf(i.Out, "Install '%s'.\n", snap.ServiceName)
	if err := i.register(ctx, snap, exe); err != nil {
		return fmt.Errorf("install %s: %w", snap.ServiceName, err)
	}
	if i.Store != nil {
		if err := i.Store.SetConfigFile(exe, snap.Source); err != nil {
			return fmt.Errorf("install %s: record config file: %w", snap.ServiceName, err)
		}
	}
	printf(i.Out, "Installed '%s' ok.\n", snap.ServiceName)
	return nil
}

// Uninstall removes the registration and the store entry. Removing a
// service that is not installed succeeds.
func (i *Installer) Uninstall(ctx context.Context, snap *config.Snapshot) error {
	if snap == nil {
		return errors.New("uninstall: no configuration")
	}
	exe, err := store.ExecutableKey(i.Executable)
	if err != nil {
		return err
	}
	printf(i.Out, "Uninstall '%s'.\n", snap.ServiceName)
	if err := i.unregister(ctx, snap); err != nil {
		return fmt.Errorf("uninstall %s: %w", snap.ServiceName, err)
	}
	if i.Store != nil {
		if err := i.Store.Remove(exe); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("uninstall %s: remove config file entry: %w", snap.ServiceName, err)
		}
	}
	printf(i.Out, "Uninstalled '%s' ok.\n", snap.ServiceName)
	return nil
}

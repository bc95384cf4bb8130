//go:build windows

package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/Paintersrp/servicestation/internal/config"
	"github.com/Paintersrp/servicestation/internal/eventlog"
)

const removeWait = 10 * time.Second

func (i *Installer) register(_ context.Context, snap *config.Snapshot, exe string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service manager: %w", err)
	}
	defer m.Disconnect()

	if s, err := m.OpenService(snap.ServiceName); err == nil {
		s.Close()
		printf(i.Out, "'%s' is already installed.\n", snap.ServiceName)
		return nil
	}

	serviceType := uint32(windows.SERVICE_WIN32_OWN_PROCESS)
	if snap.AllowDesktopInteraction {
		serviceType |= windows.SERVICE_INTERACTIVE_PROCESS
	}
	s, err := m.CreateService(snap.ServiceName, exe, mgr.Config{
		ServiceType:  serviceType,
		StartType:    mgr.StartAutomatic,
		ErrorControl: mgr.ErrorNormal,
		DisplayName:  snap.ServiceName,
		Description:  snap.Description,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	defer s.Close()

	if err := eventlog.InstallSource(snap.ServiceName); err != nil {
		printf(i.Out, "warning: event log source: %v\n", err)
	}
	return nil
}

func (i *Installer) unregister(_ context.Context, snap *config.Snapshot) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(snap.ServiceName)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			printf(i.Out, "'%s' is not installed.\n", snap.ServiceName)
			return nil
		}
		return fmt.Errorf("open service: %w", err)
	}
	defer s.Close()

	if st, err := s.Query(); err == nil && st.State != svc.Stopped {
		if _, err := s.Control(svc.Stop); err == nil {
			waitStopped(s, removeWait)
		}
	}
	if err := s.Delete(); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if err := eventlog.RemoveSource(snap.ServiceName); err != nil {
		printf(i.Out, "warning: event log source: %v\n", err)
	}
	return nil
}

func waitStopped(s *mgr.Service, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st, err := s.Query()
		if err != nil || st.State == svc.Stopped {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
}

//go:build !windows

package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/Paintersrp/servicestation/internal/config"
)

// DefaultUnitDir is where unit files are written.
const DefaultUnitDir = "/etc/systemd/system"

func (i *Installer) unitPath(snap *config.Snapshot) string {
	dir := i.UnitDir
	if dir == "" {
		dir = DefaultUnitDir
	}
	return filepath.Join(dir, UnitName(snap.ServiceName))
}

func (i *Installer) systemctl(ctx context.Context, args ...string) error {
	if i.Systemctl != nil {
		return i.Systemctl(ctx, args...)
	}
	out, err := exec.CommandContext(ctx, "systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return nil
}

func (i *Installer) register(ctx context.Context, snap *config.Snapshot, exe string) error {
	path := i.unitPath(snap)
	unit := RenderUnit(snap, exe)

	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, unit):
		printf(i.Out, "'%s' is already installed.\n", snap.ServiceName)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("read unit: %w", err)
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create unit dir: %w", err)
		}
		if err := renameio.WriteFile(path, unit, 0o644); err != nil {
			return fmt.Errorf("write unit: %w", err)
		}
	}

	if err := i.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}
	return i.systemctl(ctx, "enable", UnitName(snap.ServiceName))
}

func (i *Installer) unregister(ctx context.Context, snap *config.Snapshot) error {
	path := i.unitPath(snap)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		printf(i.Out, "'%s' is not installed.\n", snap.ServiceName)
		return nil
	}
	if err := i.systemctl(ctx, "disable", UnitName(snap.ServiceName)); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove unit: %w", err)
	}
	return i.systemctl(ctx, "daemon-reload")
}

// UnitName maps a service name onto a systemd unit file name.
func UnitName(service string) string {
	var b strings.Builder
	for _, r := range service {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		b.WriteString("servicestation")
	}
	return b.String() + ".service"
}

// RenderUnit produces the unit file for snap. ExecStart carries no arguments;
// the configuration is found through the store entry keyed by exe.
func RenderUnit(snap *config.Snapshot, exe string) []byte {
	desc := snap.Description
	if desc == "" {
		desc = snap.ServiceName
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", strings.ReplaceAll(desc, "\n", " "))
	fmt.Fprintf(&b, "After=network.target\n\n")
	fmt.Fprintf(&b, "[Service]\n")
	fmt.Fprintf(&b, "Type=notify\n")
	fmt.Fprintf(&b, "ExecStart=%s\n", quoteExec(exe))
	fmt.Fprintf(&b, "KillMode=process\n")
	fmt.Fprintf(&b, "Restart=no\n\n")
	fmt.Fprintf(&b, "[Install]\n")
	fmt.Fprintf(&b, "WantedBy=multi-user.target\n")
	return b.Bytes()
}

func quoteExec(path string) string {
	if !strings.ContainsAny(path, " \t\"\\") {
		return path
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(path)
	return `"` + escaped + `"`
}

//go:build !windows

package service

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/servicestation/internal/api"
	"github.com/Paintersrp/servicestation/internal/config"
	"github.com/Paintersrp/servicestation/internal/engine"
	"github.com/Paintersrp/servicestation/internal/metrics"
	"github.com/Paintersrp/servicestation/internal/store"
	"github.com/Paintersrp/servicestation/internal/svcctl"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeINI(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newTestService(t *testing.T, opts Options) (*Service, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	opts.LogConsole = out
	opts.DisableSystemLog = true
	if opts.PollInterval == 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.StopGrace == 0 {
		opts.StopGrace = 500 * time.Millisecond
	}
	svc := New(opts)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, out
}

func TestInitUsesExplicitConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "station.ini")
	writeINI(t, path, "[service]\nname = explicit-svc\ncommand_line = sleep 1\n")

	svc, _ := newTestService(t, Options{ConfigPath: path, ExplicitConfig: true})
	require.NoError(t, svc.Init([]string{"explicit-svc"}))
	assert.Equal(t, "explicit-svc", svc.ServiceName())
	assert.Equal(t, "explicit-svc", svc.Log().Name())
	assert.Equal(t, path, svc.Snapshot().Source)
}

func TestInitFallsBackToStoreEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stored.ini")
	writeINI(t, path, "[service]\nname = stored-svc\ncommand_line = sleep 1\n")

	fs := &store.FileStore{Path: filepath.Join(dir, "services.yaml")}
	require.NoError(t, fs.SetConfigFile("/opt/station/bin/servicestation", path))

	svc, _ := newTestService(t, Options{
		ConfigPath: filepath.Join(dir, "missing.ini"),
		Store:      fs,
		Executable: "/opt/station/bin/servicestation",
	})
	require.NoError(t, svc.Init(nil))
	assert.Equal(t, "stored-svc", svc.ServiceName())
}

func TestInitFindsStoreEntryThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stored.ini")
	writeINI(t, path, "[service]\nname = linked-svc\ncommand_line = sleep 1\n")

	target := filepath.Join(dir, "releases", "servicestation")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755))
	link := filepath.Join(dir, "servicestation")
	require.NoError(t, os.Symlink(target, link))

	// Install records the entry under the resolved key.
	key, err := store.ExecutableKey(link)
	require.NoError(t, err)
	fs := &store.FileStore{Path: filepath.Join(dir, "services.yaml")}
	require.NoError(t, fs.SetConfigFile(key, path))

	svc, _ := newTestService(t, Options{
		ConfigPath: filepath.Join(dir, "missing.ini"),
		Store:      fs,
		Executable: link,
	})
	require.NoError(t, svc.Init(nil))
	assert.Equal(t, "linked-svc", svc.ServiceName())
}

func TestInitExplicitConfigWinsOverStore(t *testing.T) {
	dir := t.TempDir()
	stored := filepath.Join(dir, "stored.ini")
	explicit := filepath.Join(dir, "explicit.ini")
	writeINI(t, stored, "[service]\nname = stored\ncommand_line = sleep 1\n")
	writeINI(t, explicit, "[service]\nname = explicit\ncommand_line = sleep 1\n")

	fs := &store.FileStore{Path: filepath.Join(dir, "services.yaml")}
	require.NoError(t, fs.SetConfigFile("/usr/bin/station", stored))

	svc, _ := newTestService(t, Options{ConfigPath: explicit, ExplicitConfig: true, Store: fs, Executable: "/usr/bin/station"})
	require.NoError(t, svc.Init(nil))
	assert.Equal(t, "explicit", svc.ServiceName())
}

func TestInitReportsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ini")
	writeINI(t, path, "[service]\nname = bad\n")

	svc, out := newTestService(t, Options{ConfigPath: path, ExplicitConfig: true})
	err := svc.Init(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))
	assert.Nil(t, svc.Snapshot())
	assert.Contains(t, out.String(), "load configuration")
}

func TestRunBeforeInitFails(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	require.Error(t, svc.Run(context.Background()))
}

func childPid(t *testing.T, svc *Service) int {
	t.Helper()
	report, err := svc.Status(context.Background())
	if errors.Is(err, api.ErrNotRunning) {
		// Init has not loaded a snapshot yet.
		return 0
	}
	if !assert.NoError(t, err) || !report.Child.Alive {
		return 0
	}
	return report.Child.Pid
}

func TestStatusBeforeInitIsNotRunning(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	_, err := svc.Status(context.Background())
	require.ErrorIs(t, err, api.ErrNotRunning)
	assert.Equal(t, 0, childPid(t, svc))
}

func waitForChild(t *testing.T, svc *Service, not int) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		pid = childPid(t, svc)
		return pid != 0 && pid != not
	}, 5*time.Second, 20*time.Millisecond)
	return pid
}

type serving struct {
	machine *svcctl.Machine
	done    chan uint32
}

func serve(t *testing.T, svc *Service) *serving {
	t.Helper()
	m := svcctl.NewMachine(svc, svcctl.ReporterFunc(func(svcctl.Status) error { return nil }), svcctl.WithStopTimeout(5*time.Second))
	svc.SetStatusSource(m.Status)
	s := &serving{machine: m, done: make(chan uint32, 1)}
	go func() { s.done <- m.Serve(nil) }()
	t.Cleanup(func() {
		m.Control(svcctl.OpcodeStop)
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
		}
	})
	return s
}

func TestServeSupervisesAndStops(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	writeINI(t, path, "[service]\nname = serve-stop\ncommand_line = sleep 30\n")

	svc, out := newTestService(t, Options{ConfigPath: path, ExplicitConfig: true, Version: "1.2.3"})
	s := serve(t, svc)

	waitForChild(t, svc, 0)
	report, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "serve-stop", report.Service)
	assert.Equal(t, "1.2.3", report.Version)
	assert.Equal(t, svcctl.Running.String(), report.State)
	assert.Equal(t, "sleep 30", report.CommandLine)

	s.machine.Control(svcctl.OpcodeStop)
	select {
	case code := <-s.done:
		assert.Equal(t, uint32(0), code)
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
	}
	assert.Equal(t, svcctl.Stopped, s.machine.Status().State)
	assert.Contains(t, out.String(), "stop requested")

	report, err = svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Child.Alive)
	assert.NotContains(t, scrapeMetrics(t), `service="serve-stop"`)
}

func scrapeMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestReloadReplacesChild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	writeINI(t, path, "[service]\nname = reload-ok\ncommand_line = sleep 30\n")

	svc, out := newTestService(t, Options{ConfigPath: path, ExplicitConfig: true})
	s := serve(t, svc)
	first := waitForChild(t, svc, 0)

	writeINI(t, path, "[service]\nname = reload-ok\ncommand_line = sleep 31\n")
	s.machine.Control(svcctl.OpcodeReload)

	second := waitForChild(t, svc, first)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "sleep 31", svc.Snapshot().CommandLine)
	assert.Contains(t, out.String(), "reloaded configuration")
}

func TestReloadKeepsChildOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	writeINI(t, path, "[service]\nname = reload-bad\ncommand_line = sleep 30\n")

	svc, out := newTestService(t, Options{ConfigPath: path, ExplicitConfig: true})
	serve(t, svc)
	first := waitForChild(t, svc, 0)

	writeINI(t, path, "[service]\nname = reload-bad\ngui = perhaps\ncommand_line = sleep 5\n")
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("reload rejected"))
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, first, childPid(t, svc))
	assert.Equal(t, "sleep 30", svc.Snapshot().CommandLine)
}

func TestReloadKeepsServiceName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	writeINI(t, path, "[service]\nname = keep-name\ncommand_line = sleep 30\n")

	svc, out := newTestService(t, Options{ConfigPath: path, ExplicitConfig: true})
	serve(t, svc)
	first := waitForChild(t, svc, 0)

	writeINI(t, path, "[service]\nname = other-name\ncommand_line = sleep 31\n")
	svc.RequestReload()

	waitForChild(t, svc, first)
	assert.Equal(t, "keep-name", svc.ServiceName())
	assert.Contains(t, out.String(), "needs a reinstall")
}

func TestPauseRejectsReload(t *testing.T) {
	if _, err := os.Stat("/proc/self"); err != nil {
		t.Skip("requires procfs")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	writeINI(t, path, "[service]\nname = pause-svc\ncommand_line = sleep 30\n")

	svc, _ := newTestService(t, Options{ConfigPath: path, ExplicitConfig: true})
	s := serve(t, svc)
	waitForChild(t, svc, 0)

	s.machine.Control(svcctl.OpcodePause)
	require.Equal(t, svcctl.Paused, s.machine.Status().State)

	_, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, api.ErrReloadRejected)

	s.machine.Control(svcctl.OpcodeContinue)
	require.Equal(t, svcctl.Running, s.machine.Status().State)
	_, err = svc.Reload(context.Background())
	assert.NoError(t, err)
}

func TestEmitLogsEvents(t *testing.T) {
	svc, out := newTestService(t, Options{})
	svc.Emit(engine.Event{
		Service: "emit-svc",
		Type:    engine.EventTypeLaunchFailed,
		Message: "launch failed",
		Level:   "error",
		Source:  "system",
		Err:     errors.New("exec: not found"),
	})
	assert.Contains(t, out.String(), "launch failed: exec: not found")
	assert.Contains(t, out.String(), `"level":"error"`)
}

func TestParseDropped(t *testing.T) {
	assert.Equal(t, 12, parseDropped("dropped=12 source=stdout"))
	assert.Equal(t, 0, parseDropped("no counter here"))
}

func TestAcceptsPauseContinue(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	accepts := svc.Accepts()
	assert.True(t, accepts.Has(svcctl.AcceptStop))
	assert.True(t, accepts.Has(svcctl.AcceptShutdown))
	assert.True(t, accepts.Has(svcctl.AcceptPauseContinue))
}

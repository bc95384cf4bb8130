// Package service is the concrete service body run by the control state
// machine: it loads the configuration, keeps the configured command running
// under a supervisor and reacts to pause, continue and reload requests.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdruntime "runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vawter.tech/stopper"

	"github.com/Paintersrp/servicestation/internal/api"
	httpapi "github.com/Paintersrp/servicestation/internal/api/http"
	"github.com/Paintersrp/servicestation/internal/config"
	"github.com/Paintersrp/servicestation/internal/engine"
	"github.com/Paintersrp/servicestation/internal/eventlog"
	"github.com/Paintersrp/servicestation/internal/metrics"
	"github.com/Paintersrp/servicestation/internal/runtime"
	"github.com/Paintersrp/servicestation/internal/runtime/group"
	"github.com/Paintersrp/servicestation/internal/store"
	"github.com/Paintersrp/servicestation/internal/svcctl"
)

const taskStopGrace = time.Second

// Options configures a Service.
type Options struct {
	// ConfigPath is the configuration file named on the command line.
	ConfigPath string
	// ExplicitConfig is set when ConfigPath was given explicitly; otherwise
	// the pointer store is consulted first.
	ExplicitConfig bool
	// Store holds the config_file pointer for installed executables.
	Store store.Store
	// Executable keys the store lookup. Defaults to the running binary.
	Executable string
	// Version is reported by the status API.
	Version string

	StopGrace    time.Duration
	PollInterval time.Duration

	// LogConsole and DisableSystemLog are passed to the event log.
	LogConsole       io.Writer
	DisableSystemLog bool

	// NewGroup creates the process container for each snapshot.
	NewGroup func(name string) (runtime.Group, error)
}

// Service implements svcctl.Handler.
type Service struct {
	opts Options

	logger atomic.Pointer[eventlog.Logger]
	status func() svcctl.Status

	reloadCh chan struct{}
	paused   atomic.Bool

	mu   sync.Mutex
	snap *config.Snapshot
	sup  *engine.Supervisor
}

// New builds a service. Nothing is loaded until Init.
func New(opts Options) *Service {
	if opts.StopGrace <= 0 {
		opts.StopGrace = engine.DefaultStopGrace
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = engine.DefaultPollInterval
	}
	if opts.NewGroup == nil {
		opts.NewGroup = group.New
	}
	s := &Service{
		opts:     opts,
		reloadCh: make(chan struct{}, 1),
	}
	s.logger.Store(s.openLog(config.DefaultServiceName))
	return s
}

func (s *Service) openLog(name string) *eventlog.Logger {
	return eventlog.New(name, eventlog.Options{Console: s.opts.LogConsole, DisableSystem: s.opts.DisableSystemLog})
}

// Log returns the current event log.
func (s *Service) Log() *eventlog.Logger {
	return s.logger.Load()
}

// SetStatusSource lets the status API report the machine's state.
func (s *Service) SetStatusSource(fn func() svcctl.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = fn
}

// Snapshot returns the configuration currently in effect.
func (s *Service) Snapshot() *config.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Close releases the event log.
func (s *Service) Close() error {
	return s.Log().Close()
}

// ServiceName reports the configured name once Init has loaded it.
func (s *Service) ServiceName() string {
	if snap := s.Snapshot(); snap != nil {
		return snap.ServiceName
	}
	return ""
}

// Accepts declares stop and shutdown, plus pause and continue where process
// groups can be suspended.
func (s *Service) Accepts() svcctl.Accepts {
	accepts := svcctl.AcceptStop | svcctl.AcceptShutdown
	if stdruntime.GOOS != "windows" {
		accepts |= svcctl.AcceptPauseContinue
	}
	return accepts
}

// Init chooses and loads the configuration file.
func (s *Service) Init(args []string) error {
	path, origin := s.resolveConfigPath()
	snap, err := config.Load(path)
	if err != nil {
		s.Log().Errorf("load configuration from %s (%s): %v", path, origin, err)
		return err
	}

	if snap.ServiceName != s.Log().Name() {
		prev := s.logger.Swap(s.openLog(snap.ServiceName))
		_ = prev.Close()
	}
	for _, w := range snap.Warnings {
		s.Log().Warn(w)
	}
	if len(args) > 0 && args[0] != "" && !strings.EqualFold(args[0], snap.ServiceName) {
		s.Log().Warnf("started as %q but configured as %q", args[0], snap.ServiceName)
	}
	s.Log().Infof("loaded configuration %s (%s)", snap.Source, origin)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

func (s *Service) resolveConfigPath() (string, string) {
	if s.opts.ExplicitConfig && s.opts.ConfigPath != "" {
		return s.opts.ConfigPath, "command line"
	}
	if s.opts.Store != nil {
		exe, err := store.ExecutableKey(s.opts.Executable)
		if err != nil {
			s.Log().Warnf("config pointer lookup: %v", err)
		} else {
			path, err := s.opts.Store.ConfigFile(exe)
			switch {
			case err == nil && path != "":
				return path, "store"
			case err != nil && !errors.Is(err, store.ErrNotFound):
				s.Log().Warnf("config pointer lookup for %s: %v", exe, err)
			}
		}
	}
	if s.opts.ConfigPath != "" {
		return s.opts.ConfigPath, "default"
	}
	return config.DefaultFile, "default"
}

// Run supervises the configured command until ctx is cancelled. A reload
// replaces the supervisor only after the new configuration loaded cleanly.
func (s *Service) Run(ctx context.Context) error {
	snap := s.Snapshot()
	if snap == nil {
		return errors.New("service not initialised")
	}

	for {
		sup, err := s.newSupervisor(snap)
		if err != nil {
			s.Log().Errorf("create process group: %v", err)
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		tasks := s.startTasks(runCtx, snap)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = sup.Run(runCtx)
		}()

		next := s.waitForReload(ctx, snap)

		cancel()
		<-done
		s.mu.Lock()
		if err := sup.Stop(s.opts.StopGrace); err != nil {
			s.Log().Errorf("stop child: %v", err)
		}
		if next != nil {
			s.snap = next
		}
		s.mu.Unlock()
		tasks.Stop(taskStopGrace)
		_ = tasks.Wait()

		if next == nil {
			s.paused.Store(false)
			metrics.ResetService(snap.ServiceName)
			return nil
		}
		s.Log().Infof("reloaded configuration %s", next.Source)
		snap = next
	}
}

func (s *Service) newSupervisor(snap *config.Snapshot) (*engine.Supervisor, error) {
	g, err := s.opts.NewGroup(snap.ServiceName)
	if err != nil {
		return nil, err
	}
	cfg := engine.ConfigFromSnapshot(snap)
	cfg.PollInterval = s.opts.PollInterval
	sup := engine.New(cfg, g, s)

	s.mu.Lock()
	s.sup = sup
	s.mu.Unlock()
	return sup, nil
}

// waitForReload returns the next snapshot, or nil once ctx is done.
func (s *Service) waitForReload(ctx context.Context, cur *config.Snapshot) *config.Snapshot {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.reloadCh:
		}
		if s.paused.Load() {
			s.Log().Warn("reload ignored while paused")
			continue
		}
		next, err := config.Load(cur.Source)
		if err != nil {
			s.Log().Errorf("reload rejected, keeping current child: %v", err)
			continue
		}
		for _, w := range next.Warnings {
			s.Log().Warn(w)
		}
		if next.ServiceName != cur.ServiceName {
			s.Log().Warnf("service name change to %q needs a reinstall; keeping %q", next.ServiceName, cur.ServiceName)
			renamed := *next
			renamed.ServiceName = cur.ServiceName
			next = &renamed
		}
		return next
	}
}

func (s *Service) startTasks(ctx context.Context, snap *config.Snapshot) *stopper.Context {
	sctx := stopper.WithContext(ctx)

	if snap.StatusAddr != "" {
		srv, err := httpapi.NewServer(httpapi.Config{Addr: snap.StatusAddr, Controller: s})
		if err != nil {
			s.Log().Errorf("status api: %v", err)
		} else {
			sctx.Go(func(sctx *stopper.Context) error {
				s.Log().Infof("status api listening on %s", srv.Addr())
				if err := srv.Run(sctx); err != nil {
					s.Log().Errorf("status api: %v", err)
				}
				return nil
			})
		}
	}

	if snap.WatchConfig {
		sctx.Go(func(sctx *stopper.Context) error {
			err := config.Watch(sctx, snap.Source, config.DefaultWatchDebounce, func() {
				s.Log().Infof("configuration file %s changed", snap.Source)
				s.RequestReload()
			})
			if err != nil {
				s.Log().Warnf("configuration watch: %v", err)
			}
			return nil
		})
	}
	return sctx
}

// RequestReload asks Run to reload the configuration. Requests made while one
// is already pending are merged.
func (s *Service) RequestReload() {
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Service) OnStop() {
	s.Log().Info("stop requested")
}

func (s *Service) OnShutdown() {
	s.Log().Info("system shutdown, stopping")
}

func (s *Service) OnPause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		return api.ErrNotRunning
	}
	if err := s.sup.Pause(); err != nil {
		s.Log().Errorf("pause: %v", err)
		return err
	}
	s.paused.Store(true)
	s.Log().Info("paused")
	return nil
}

func (s *Service) OnContinue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		return api.ErrNotRunning
	}
	if err := s.sup.Resume(); err != nil {
		s.Log().Errorf("continue: %v", err)
		return err
	}
	s.paused.Store(false)
	s.Log().Info("continued")
	return nil
}

func (s *Service) OnInquire() {}

func (s *Service) OnUserControl(op svcctl.Opcode) {
	if op == svcctl.OpcodeReload {
		s.Log().Info("reload requested")
		s.RequestReload()
		return
	}
	s.Log().Warnf("ignoring control code %d", uint32(op))
}

// Emit bridges supervisor events to the event log and metrics.
func (s *Service) Emit(evt engine.Event) {
	msg := evt.Message
	if evt.Err != nil && !strings.Contains(msg, evt.Err.Error()) {
		msg = fmt.Sprintf("%s: %v", msg, evt.Err)
	}
	s.Log().Log(eventlog.ParseSeverity(evt.Level), evt.Source, msg)

	switch evt.Type {
	case engine.EventTypeStarted:
		metrics.SetChildAlive(evt.Service, true)
	case engine.EventTypeExited, engine.EventTypeStopped:
		metrics.SetChildAlive(evt.Service, false)
	case engine.EventTypeRestarted:
		metrics.IncrementChildRestart(evt.Service)
	case engine.EventTypeLaunchFailed:
		metrics.IncrementLaunchFailure(evt.Service)
		metrics.SetChildAlive(evt.Service, false)
	case engine.EventTypeOutputDropped:
		metrics.AddOutputDropped(evt.Service, parseDropped(evt.Message))
	}
}

func parseDropped(msg string) int {
	for _, field := range strings.Fields(msg) {
		if v, ok := strings.CutPrefix(field, "dropped="); ok {
			n, _ := strconv.Atoi(v)
			return n
		}
	}
	return 0
}

// Status implements api.Controller.
func (s *Service) Status(context.Context) (*api.StatusReport, error) {
	s.mu.Lock()
	snap, sup, statusFn := s.snap, s.sup, s.status
	s.mu.Unlock()
	if snap == nil {
		return nil, api.ErrNotRunning
	}

	report := &api.StatusReport{
		Service:     snap.ServiceName,
		Version:     s.opts.Version,
		ConfigFile:  snap.Source,
		CommandLine: api.RedactCommandLine(snap.CommandLine),
		GeneratedAt: time.Now().UTC(),
		Warnings:    snap.Warnings,
	}
	if statusFn != nil {
		st := statusFn()
		report.State = st.State.String()
		report.StateCode = uint32(st.State)
		report.ExitCode = st.ExitCode
	}
	if sup != nil {
		report.Child = sup.Stats()
	}
	return report, nil
}

// Reload implements api.Controller.
func (s *Service) Reload(context.Context) (*api.ReloadResult, error) {
	snap := s.Snapshot()
	if snap == nil {
		return nil, api.ErrNotRunning
	}
	if s.paused.Load() {
		return nil, fmt.Errorf("%w: service is paused", api.ErrReloadRejected)
	}
	s.RequestReload()
	return &api.ReloadResult{Service: snap.ServiceName, ConfigFile: snap.Source, RequestedAt: time.Now().UTC()}, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Paintersrp/servicestation/internal/config"
	"github.com/Paintersrp/servicestation/internal/logmux"
	"github.com/Paintersrp/servicestation/internal/runtime"
	"github.com/Paintersrp/servicestation/internal/runtime/process"
)

const (
	// DefaultPollInterval is the fixed period of the monitor loop.
	DefaultPollInterval = time.Second
	// DefaultStopGrace is how long a child may take to honour the
	// cooperative stop request before the group is terminated.
	DefaultStopGrace = 4 * time.Second

	reapTimeout        = 2 * time.Second
	captureCloseWait   = time.Second
	captureBufferLines = 4096
)

// ErrStopped is returned by Start once Stop has been called.
var ErrStopped = errors.New("supervisor stopped")

// LaunchError reports a failed child launch.
type LaunchError struct {
	Service     string
	CommandLine string
	Attempt     int
	Err         error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (attempt %d) %q: %v", e.Service, e.Attempt, e.CommandLine, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TeardownError reports a failure while stopping the child and its group.
type TeardownError struct {
	Service string
	Err     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown %s: %v", e.Service, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// Config describes the child a Supervisor owns.
type Config struct {
	Name         string
	CommandLine  string
	WorkingDir   string
	LogFile      string
	Desktop      bool
	PollInterval time.Duration
}

// ConfigFromSnapshot derives supervisor settings from a loaded snapshot.
// LogFile is only set when the snapshot asks for output capture.
func ConfigFromSnapshot(snap *config.Snapshot) Config {
	cfg := Config{
		Name:         snap.ServiceName,
		CommandLine:  snap.CommandLine,
		WorkingDir:   snap.WorkingDirectory,
		Desktop:      snap.AllowDesktopInteraction,
		PollInterval: DefaultPollInterval,
	}
	if snap.CaptureOutput() {
		cfg.LogFile = snap.LogFilePath
	}
	return cfg
}

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	Pid            int       `json:"pid"`
	Alive          bool      `json:"alive"`
	Paused         bool      `json:"paused"`
	Attempts       int64     `json:"attempts"`
	Restarts       int64     `json:"restarts"`
	LaunchFailures int64     `json:"launch_failures"`
	OutputDropped  int64     `json:"output_dropped"`
	StartedAt      time.Time `json:"started_at,omitempty"`
}

// Supervisor keeps exactly one child running for the lifetime of a
// configuration snapshot. It launches the child, polls its liveness, restarts
// it whenever it is found dead, and tears it down together with every
// descendant when stopped. The supervisor owns the group it is given and
// closes it on Stop.
type Supervisor struct {
	cfg   Config
	group runtime.Group
	sink  EventSink

	sleep func(context.Context, time.Duration) error

	mu           sync.Mutex
	stopped      bool
	paused       bool
	exitReported bool

	current atomic.Pointer[process.Process]

	attempts       atomic.Int64
	restarts       atomic.Int64
	launchFailures atomic.Int64

	captureMu sync.Mutex
	capture   *logmux.Mux
	pipeR     *os.File
	pipeW     *os.File
	logFile   *os.File

	stopOnce sync.Once
	stopErr  error
}

// New builds a supervisor. When cfg.LogFile is set the child's output is
// captured into it; a capture setup failure is reported as an event and the
// child runs without capture.
func New(cfg Config, group runtime.Group, sink EventSink) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	s := &Supervisor{
		cfg:   cfg,
		group: group,
		sink:  sink,
		sleep: sleepWithContext,
	}
	if cfg.LogFile != "" {
		if err := s.openCapture(); err != nil {
			s.emit(Event{Type: EventTypeCaptureFailed, Level: "warn", Reason: ReasonOutputCapture,
				Message: fmt.Sprintf("output capture disabled: %v", err), Err: err})
		}
	}
	return s
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Name returns the service name the supervisor runs under.
func (s *Supervisor) Name() string {
	return s.cfg.Name
}

// Start launches the child unless one is already alive. A failed launch is
// reported and returned as a *LaunchError; it is not retried here.
func (s *Supervisor) Start() error {
	return s.start(ReasonInitialStart)
}

func (s *Supervisor) start(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if cur := s.current.Load(); cur != nil && cur.Alive() {
		return nil
	}

	attempt := int(s.attempts.Add(1))
	s.emit(Event{Type: EventTypeStarting, Attempt: attempt, Reason: reason,
		Message: fmt.Sprintf("starting %q", s.cfg.CommandLine)})

	proc, err := process.Start(process.Options{
		Name:        s.cfg.Name,
		CommandLine: s.cfg.CommandLine,
		Dir:         s.cfg.WorkingDir,
		Group:       s.group,
		Output:      s.pipeW,
		Desktop:     s.cfg.Desktop,
	})
	if err != nil {
		s.launchFailures.Add(1)
		lerr := &LaunchError{Service: s.cfg.Name, CommandLine: s.cfg.CommandLine, Attempt: attempt, Err: err}
		s.emit(Event{Type: EventTypeLaunchFailed, Level: "error", Attempt: attempt, Reason: ReasonStartFailure,
			Message: lerr.Error(), Err: lerr})
		return lerr
	}

	s.current.Store(proc)
	s.exitReported = false

	if s.group != nil {
		if err := s.group.Enroll(proc.Pid()); err != nil {
			s.emit(Event{Type: EventTypeEnrollFailed, Level: "warn", Attempt: attempt, Pid: proc.Pid(),
				Reason: ReasonContainment, Message: fmt.Sprintf("child running outside its group: %v", err), Err: err})
		}
	}

	s.emit(Event{Type: EventTypeStarted, Attempt: attempt, Pid: proc.Pid(), Reason: reason,
		Message: fmt.Sprintf("child started pid=%d", proc.Pid())})
	return nil
}

// IsAlive reports whether the current child is running. It never blocks.
func (s *Supervisor) IsAlive() bool {
	cur := s.current.Load()
	return cur != nil && cur.Alive()
}

// Run performs the initial start and then polls the child once per poll
// interval, restarting it whenever it is found dead. Restarts are
// unconditional: there is no backoff and no limit. Run returns nil when ctx
// is cancelled or the supervisor has been stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	_ = s.start(ReasonInitialStart)
	for {
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			s.drainOutput()
			return nil
		}
		s.drainOutput()
		if s.isStopped() {
			return nil
		}
		s.poll()
	}
}

func (s *Supervisor) poll() {
	s.mu.Lock()
	if s.stopped || s.paused {
		s.mu.Unlock()
		return
	}
	cur := s.current.Load()
	if cur != nil && cur.Alive() {
		s.mu.Unlock()
		return
	}
	if cur != nil && !s.exitReported {
		s.exitReported = true
		msg := fmt.Sprintf("child pid=%d exited with code %d", cur.Pid(), cur.ExitCode())
		if err := cur.ExitErr(); err != nil {
			msg = fmt.Sprintf("child pid=%d exited: %v", cur.Pid(), err)
		}
		s.emit(Event{Type: EventTypeExited, Level: "warn", Pid: cur.Pid(), Reason: ReasonChildExited,
			Message: msg, Err: cur.ExitErr()})
	}
	s.mu.Unlock()

	if err := s.start(ReasonRestart); err != nil {
		return
	}
	s.restarts.Add(1)
	if cur := s.current.Load(); cur != nil {
		s.emit(Event{Type: EventTypeRestarted, Level: "warn", Pid: cur.Pid(), Attempt: int(s.attempts.Load()),
			Reason: ReasonRestart, Message: fmt.Sprintf("child restarted pid=%d", cur.Pid())})
	}
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Pause suspends every process in the group.
func (s *Supervisor) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.group == nil {
		return runtime.ErrSuspendUnsupported
	}
	if s.paused {
		return nil
	}
	if err := s.group.Suspend(); err != nil {
		return err
	}
	s.paused = true
	return nil
}

// Resume thaws a paused group.
func (s *Supervisor) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if !s.paused || s.group == nil {
		return nil
	}
	if err := s.group.Resume(); err != nil {
		return err
	}
	s.paused = false
	return nil
}

// Stop ends the child and every process in its group. The child first gets a
// cooperative stop request and up to grace to exit; the group is then
// terminated regardless. Stop is idempotent and Start refuses to launch once
// it has been called.
func (s *Supervisor) Stop(grace time.Duration) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(grace)
	})
	return s.stopErr
}

func (s *Supervisor) stop(grace time.Duration) error {
	// Start refuses to launch once stopped is set; the waits run without s.mu.
	s.mu.Lock()
	s.stopped = true
	proc := s.current.Load()
	pid := 0
	if proc != nil {
		pid = proc.Pid()
	}
	s.emit(Event{Type: EventTypeStopping, Pid: pid, Reason: ReasonSupervisorStop, Message: "stopping child"})

	var errs []error
	if s.group != nil && s.paused {
		if err := s.group.Resume(); err != nil {
			errs = append(errs, fmt.Errorf("resume: %w", err))
		}
		s.paused = false
	}
	s.mu.Unlock()

	if proc != nil && proc.Alive() {
		if err := proc.RequestStop(); err != nil {
			errs = append(errs, fmt.Errorf("stop request: %w", err))
		}
		proc.Wait(grace)
	}

	if s.group != nil {
		if err := s.group.TerminateAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if proc != nil {
		if proc.Alive() {
			if err := proc.Kill(); err != nil {
				errs = append(errs, err)
			}
		}
		if !proc.Wait(reapTimeout) {
			errs = append(errs, fmt.Errorf("child pid=%d not reaped", pid))
		}
	}
	if s.group != nil {
		if err := s.group.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closeCapture()

	if len(errs) > 0 {
		terr := &TeardownError{Service: s.cfg.Name, Err: errors.Join(errs...)}
		s.emit(Event{Type: EventTypeTeardownFailed, Level: "error", Pid: pid, Reason: ReasonStopFailed,
			Message: terr.Error(), Err: terr})
		return terr
	}
	s.emit(Event{Type: EventTypeStopped, Pid: pid, Reason: ReasonSupervisorStop, Message: "child stopped"})
	return nil
}

// Stats returns a snapshot of the supervisor counters.
func (s *Supervisor) Stats() Stats {
	st := Stats{
		Attempts:       s.attempts.Load(),
		Restarts:       s.restarts.Load(),
		LaunchFailures: s.launchFailures.Load(),
	}
	if cur := s.current.Load(); cur != nil {
		st.Pid = cur.Pid()
		st.Alive = cur.Alive()
		st.StartedAt = cur.StartedAt()
	}
	s.mu.Lock()
	st.Paused = s.paused
	s.mu.Unlock()

	s.captureMu.Lock()
	if s.capture != nil {
		st.OutputDropped = s.capture.Dropped()
	}
	s.captureMu.Unlock()
	return st
}

func (s *Supervisor) emit(evt Event) {
	evt.Service = s.cfg.Name
	sendEvent(s.sink, evt)
}

func (s *Supervisor) openCapture() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.LogFile), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(s.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("create output pipe: %w", err)
	}
	s.logFile = f
	s.pipeR = r
	s.pipeW = w
	s.capture = logmux.New(captureBufferLines)
	s.capture.Add(r, runtime.LogSourceStdout)
	return nil
}

// drainOutput appends buffered output to the log file.
func (s *Supervisor) drainOutput() {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	s.drainLocked()
}

func (s *Supervisor) drainLocked() {
	if s.capture == nil || s.logFile == nil {
		return
	}
	for _, line := range s.capture.Drain() {
		text := line.Text
		if line.Source == runtime.LogSourceSystem {
			text = "[servicestation] " + text
			if strings.HasPrefix(line.Text, "dropped=") {
				s.emit(Event{Type: EventTypeOutputDropped, Level: "warn", Reason: ReasonOutputCapture, Message: line.Text})
			}
		}
		if _, err := s.logFile.WriteString(text + "\n"); err != nil {
			s.emit(Event{Type: EventTypeCaptureFailed, Level: "warn", Reason: ReasonOutputCapture,
				Message: fmt.Sprintf("write log file: %v", err), Err: err})
			return
		}
	}
}

func (s *Supervisor) closeCapture() {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.capture == nil {
		return
	}
	_ = s.pipeW.Close()

	// Descendants that escaped the group may still hold the write end; the
	// read end is closed after a short wait so the reader always returns.
	done := make(chan struct{})
	go func() {
		s.capture.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(captureCloseWait):
		_ = s.pipeR.Close()
		<-done
	}
	s.drainLocked()
	_ = s.pipeR.Close()
	_ = s.logFile.Close()
	s.capture = nil
	s.logFile = nil
}

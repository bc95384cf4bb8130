package engine

import (
	"time"

	"github.com/Paintersrp/servicestation/internal/runtime"
)

// EventType captures lifecycle notifications emitted by the supervisor.
type EventType string

const (
	EventTypeStarting       EventType = "starting"
	EventTypeStarted        EventType = "started"
	EventTypeRestarted      EventType = "restarted"
	EventTypeLaunchFailed   EventType = "launch_failed"
	EventTypeEnrollFailed   EventType = "enroll_failed"
	EventTypeExited         EventType = "exited"
	EventTypeStopping       EventType = "stopping"
	EventTypeStopped        EventType = "stopped"
	EventTypeTeardownFailed EventType = "teardown_failed"
	EventTypeOutputDropped  EventType = "output_dropped"
	EventTypeCaptureFailed  EventType = "capture_failed"
)

// Event represents a single lifecycle notification.
type Event struct {
	Timestamp time.Time
	Service   string
	Type      EventType
	Message   string
	Level     string
	Source    string
	Err       error
	Attempt   int
	Pid       int
	Reason    string
}

const (
	ReasonInitialStart   = "initial_start"
	ReasonRestart        = "restart"
	ReasonStartFailure   = "start_failure"
	ReasonChildExited    = "child_exited"
	ReasonContainment    = "containment"
	ReasonSupervisorStop = "supervisor_stop"
	ReasonStopFailed     = "stop_failed"
	ReasonOutputCapture  = "output_capture"
)

// EventSink receives supervisor events. Emit is called synchronously, possibly
// with supervisor locks held: it must not block for long or call back into the
// supervisor.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(evt Event) { f(evt) }

func sendEvent(sink EventSink, evt Event) {
	if sink == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Level == "" {
		evt.Level = "info"
	}
	if evt.Source == "" {
		evt.Source = runtime.LogSourceSystem
	}
	sink.Emit(evt)
}

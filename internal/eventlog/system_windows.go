//go:build windows

package eventlog

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows/svc/eventlog"
)

// eventID is the single message id used for every record; the event source is
// registered with the generic EventCreate message file.
const eventID = 1

type windowsHook struct {
	log *eventlog.Log
}

func systemHook(name string) (logrus.Hook, io.Closer, error) {
	l, err := eventlog.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log %q: %w", name, err)
	}
	return &windowsHook{log: l}, l, nil
}

func (h *windowsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *windowsHook) Fire(entry *logrus.Entry) error {
	msg := entry.Message
	if src, ok := entry.Data["source"].(string); ok && src != "" {
		msg = fmt.Sprintf("[%s] %s", src, msg)
	}
	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return h.log.Error(eventID, msg)
	case logrus.WarnLevel:
		return h.log.Warning(eventID, msg)
	default:
		return h.log.Info(eventID, msg)
	}
}

// InstallSource registers name as an event source for the Application log.
func InstallSource(name string) error {
	err := eventlog.InstallAsEventCreate(name, eventlog.Error|eventlog.Warning|eventlog.Info)
	if err != nil {
		return fmt.Errorf("install event source %q: %w", name, err)
	}
	return nil
}

// RemoveSource removes the event source registration for name.
func RemoveSource(name string) error {
	if err := eventlog.Remove(name); err != nil {
		return fmt.Errorf("remove event source %q: %w", name, err)
	}
	return nil
}

// Package eventlog writes service events to the host's system log: syslog on
// Unix, the Windows event log on Windows. Records are JSON encoded with the
// keys ts, level, msg, service and source. When no system log is reachable,
// or when stderr is a terminal, records are also written to the console.
package eventlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Paintersrp/servicestation/internal/runtime"
)

// Severity classifies a record. The system log receives one write per record.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// ParseSeverity maps a level string ("info", "warn", "error") to a Severity.
// Unknown values are treated as info.
func ParseSeverity(level string) Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warn", "warning":
		return SeverityWarn
	case "error", "err", "fatal":
		return SeverityError
	default:
		return SeverityInfo
	}
}

func (s Severity) level() logrus.Level {
	switch s {
	case SeverityWarn:
		return logrus.WarnLevel
	case SeverityError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Options tunes a Logger.
type Options struct {
	// Console receives every record when set. When nil, stderr is used if it
	// is a terminal or if the system log could not be opened.
	Console io.Writer
	// DisableSystem skips the system log backend.
	DisableSystem bool
}

// Logger writes records for a single event source, normally the service name.
type Logger struct {
	name  string
	base  *logrus.Logger
	entry *logrus.Entry

	closeOnce sync.Once
	closer    io.Closer
}

// New opens a logger for the named event source.
func New(name string, opts Options) *Logger {
	base := logrus.New()
	base.SetFormatter(newFormatter())
	base.SetLevel(logrus.InfoLevel)

	l := &Logger{name: name, base: base}

	var systemErr error
	if !opts.DisableSystem {
		hook, closer, err := systemHook(name)
		if err != nil {
			systemErr = err
		} else {
			base.AddHook(hook)
			l.closer = closer
		}
	}

	switch {
	case opts.Console != nil:
		base.SetOutput(opts.Console)
	case l.closer == nil || term.IsTerminal(int(os.Stderr.Fd())):
		base.SetOutput(os.Stderr)
	default:
		base.SetOutput(io.Discard)
	}

	l.entry = base.WithField("service", name)
	if systemErr != nil && !opts.DisableSystem {
		l.Log(SeverityWarn, runtime.LogSourceSystem, fmt.Sprintf("system log unavailable: %v", systemErr))
	}
	return l
}

func newFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	}
}

// Name reports the event source the logger writes under.
func (l *Logger) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Log writes one record. An empty source defaults to the system source.
func (l *Logger) Log(sev Severity, source, msg string) {
	if l == nil {
		return
	}
	if source == "" {
		source = runtime.LogSourceSystem
	}
	l.entry.WithField("source", source).Log(sev.level(), msg)
}

func (l *Logger) Info(msg string)  { l.Log(SeverityInfo, "", msg) }
func (l *Logger) Warn(msg string)  { l.Log(SeverityWarn, "", msg) }
func (l *Logger) Error(msg string) { l.Log(SeverityError, "", msg) }

func (l *Logger) Infof(format string, args ...any) {
	l.Log(SeverityInfo, "", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Log(SeverityWarn, "", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Log(SeverityError, "", fmt.Sprintf(format, args...))
}

// Close releases the system log handle. Further writes go to the console only.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() {
		l.base.ReplaceHooks(make(logrus.LevelHooks))
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}

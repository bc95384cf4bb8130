//go:build !windows

package eventlog

import (
	"io"
	"log/syslog"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func systemHook(name string) (logrus.Hook, io.Closer, error) {
	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, name)
	if err != nil {
		return nil, nil, err
	}
	return hook, hook.Writer, nil
}

//go:build !windows

package process

import (
	"errors"
	"fmt"
	"syscall"
)

func requestStop(p *Process) error {
	if err := syscall.Kill(-p.Pid(), syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal process group %s: %w", p.name, err)
	}
	return nil
}

//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func buildCommand(commandLine, _ string, _ bool) (*exec.Cmd, error) {
	return exec.Command("/bin/sh", "-c", commandLine), nil
}

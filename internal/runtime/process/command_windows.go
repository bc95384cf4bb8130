//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

func configureCmdSysProcAttr(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
}

// buildCommand passes commandLine to CreateProcess untouched. The program
// path is resolved from the first token the same way CreateProcess would.
func buildCommand(commandLine, dir string, desktop bool) (*exec.Cmd, error) {
	program := firstToken(commandLine)
	if program == "" {
		return nil, errors.New("empty command line")
	}
	path, err := resolveProgram(program, dir)
	if err != nil {
		return nil, err
	}
	cmd := &exec.Cmd{
		Path: path,
		SysProcAttr: &syscall.SysProcAttr{
			CmdLine:    commandLine,
			HideWindow: !desktop,
		},
	}
	return cmd, nil
}

func firstToken(commandLine string) string {
	s := strings.TrimLeft(commandLine, " \t")
	if strings.HasPrefix(s, `"`) {
		if end := strings.IndexByte(s[1:], '"'); end >= 0 {
			return s[1 : end+1]
		}
		return s[1:]
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

func resolveProgram(program, dir string) (string, error) {
	if path, err := exec.LookPath(program); err == nil {
		return path, nil
	}
	if dir != "" && !filepath.IsAbs(program) {
		candidate := filepath.Join(dir, program)
		for _, c := range []string{candidate, candidate + ".exe"} {
			if info, err := os.Stat(c); err == nil && !info.IsDir() {
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("resolve %q: %w", program, exec.ErrNotFound)
}

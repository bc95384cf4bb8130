//go:build linux

package group

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// cgroupRoot is the parent directory for every service cgroup.
var cgroupRoot = "/sys/fs/cgroup/servicestation"

type cgroup struct {
	dir string
}

func openCgroup(name string) (*cgroup, error) {
	if os.Geteuid() != 0 {
		return nil, errors.New("cgroups require root")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(cgroupRoot), "cgroup.controllers")); err != nil {
		return nil, fmt.Errorf("cgroup v2 unavailable: %w", err)
	}
	dir := filepath.Join(cgroupRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", dir, err)
	}
	return &cgroup{dir: dir}, nil
}

// add moves pid into the cgroup. A child that already exited is not an error.
func (c *cgroup) add(pid int) error {
	err := writeString(filepath.Join(c.dir, "cgroup.procs"), strconv.Itoa(pid))
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (c *cgroup) freeze(frozen bool) error {
	val := "0"
	if frozen {
		val = "1"
	}
	return writeString(filepath.Join(c.dir, "cgroup.freeze"), val)
}

func (c *cgroup) kill() error {
	return writeString(filepath.Join(c.dir, "cgroup.kill"), "1")
}

// remove deletes the cgroup directory. The kernel refuses while members are
// still being torn down, so a few attempts are made.
func (c *cgroup) remove() error {
	var err error
	for attempt := 0; attempt < 20; attempt++ {
		err = os.Remove(c.dir)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if !errors.Is(err, syscall.EBUSY) {
			return err
		}
		time.Sleep(25 * time.Millisecond)
	}
	return err
}

func writeString(path, val string) error {
	return os.WriteFile(path, []byte(val), 0o644)
}

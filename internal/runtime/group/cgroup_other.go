//go:build !linux && !windows

package group

import "errors"

type cgroup struct {
	dir string
}

func openCgroup(string) (*cgroup, error) {
	return nil, errors.New("cgroups not supported on this platform")
}

func (c *cgroup) add(int) error     { return errors.ErrUnsupported }
func (c *cgroup) freeze(bool) error { return errors.ErrUnsupported }
func (c *cgroup) kill() error       { return errors.ErrUnsupported }
func (c *cgroup) remove() error     { return nil }

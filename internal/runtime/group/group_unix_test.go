//go:build !windows

package group

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/servicestation/internal/runtime"
)

func startInGroup(t *testing.T, g runtime.Group, script string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", script)
	g.Prepare(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, g.Enroll(cmd.Process.Pid))
	return cmd
}

// processExists treats zombies as gone; /proc is consulted where available.
func processExists(pid int) bool {
	if data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid)); err == nil {
		if i := bytes.LastIndexByte(data, ')'); i >= 0 && i+2 < len(data) {
			return data[i+2] != 'Z'
		}
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func waitGone(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for processExists(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("process %d still running", pid)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInstanceNameIsSanitizedAndUnique(t *testing.T) {
	a := instanceName("web front/end")
	b := instanceName("web front/end")
	assert.True(t, strings.HasPrefix(a, "web_front_end-"), a)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(instanceName(""), "service-"))
}

func TestTerminateAllKillsDescendants(t *testing.T) {
	g, err := New("terminate")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	pidFile := filepath.Join(t.TempDir(), "grandchild.pid")
	cmd := startInGroup(t, g, "sleep 30 & echo $! > "+pidFile+"; wait")
	go func() { _ = cmd.Wait() }()

	var grandchild int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil || len(bytes.TrimSpace(data)) == 0 {
			return false
		}
		grandchild, err = strconv.Atoi(string(bytes.TrimSpace(data)))
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, g.TerminateAll())
	waitGone(t, cmd.Process.Pid)
	waitGone(t, grandchild)
}

func TestTerminateAllReachesOrphanedGroups(t *testing.T) {
	g, err := New("orphans")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	pidFile := filepath.Join(t.TempDir(), "orphan.pid")
	// The shell exits immediately, leaving its background child behind in
	// the same process group.
	parent := startInGroup(t, g, "sleep 30 & echo $! > "+pidFile)
	require.NoError(t, parent.Wait())

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	orphan, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	require.NoError(t, err)
	require.True(t, processExists(orphan))

	// A later child joins the same container.
	next := startInGroup(t, g, "sleep 30")
	go func() { _ = next.Wait() }()

	require.NoError(t, g.TerminateAll())
	waitGone(t, orphan)
	waitGone(t, next.Process.Pid)
}

func TestSuspendAndResume(t *testing.T) {
	g, err := New("suspend")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	out := filepath.Join(t.TempDir(), "ticks")
	cmd := startInGroup(t, g, "while true; do echo x >> "+out+"; sleep 0.02; done")
	go func() { _ = cmd.Wait() }()

	size := func() int64 {
		info, err := os.Stat(out)
		if err != nil {
			return 0
		}
		return info.Size()
	}
	require.Eventually(t, func() bool { return size() > 0 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, g.Suspend())
	time.Sleep(100 * time.Millisecond)
	frozen := size()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, frozen, size(), "output grew while suspended")

	require.NoError(t, g.Resume())
	require.Eventually(t, func() bool { return size() > frozen }, 3*time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotentAndRejectsEnroll(t *testing.T) {
	g, err := New("close")
	require.NoError(t, err)

	cmd := startInGroup(t, g, "sleep 30")
	go func() { _ = cmd.Wait() }()

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	waitGone(t, cmd.Process.Pid)

	err = g.Enroll(os.Getpid())
	var cerr *runtime.ContainmentError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "enroll", cerr.Op)
}

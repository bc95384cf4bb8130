package process

import (
	"os"
	"path/filepath"
	stdruntime "runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("process tests skipped on windows")
	}
}

func TestStartReportsLivenessWithoutBlocking(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(Options{Name: "sleeper", CommandLine: "sleep 0.2"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Alive() {
		t.Fatalf("expected child to be alive right after start")
	}
	if p.ExitCode() != -1 {
		t.Fatalf("expected exit code -1 while running, got %d", p.ExitCode())
	}
	if !p.Wait(3 * time.Second) {
		t.Fatalf("child did not exit")
	}
	if p.Alive() {
		t.Fatalf("expected child to be reported dead after exit")
	}
	if p.ExitCode() != 0 {
		t.Fatalf("expected clean exit, got %d", p.ExitCode())
	}
}

func TestStartRunsInWorkingDirectory(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	p, err := Start(Options{Name: "pwd", CommandLine: "pwd > where", Dir: dir})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Wait(3 * time.Second) {
		t.Fatalf("child did not exit")
	}
	data, err := os.ReadFile(filepath.Join(dir, "where"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(data)))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Fatalf("working directory mismatch: got %s want %s", got, want)
	}
}

func TestStartFailsForMissingWorkingDirectory(t *testing.T) {
	skipOnWindows(t)

	_, err := Start(Options{Name: "nowhere", CommandLine: "true", Dir: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatalf("expected launch error for missing working directory")
	}
	if _, err := Start(Options{Name: "blank", CommandLine: "   "}); err == nil {
		t.Fatalf("expected launch error for empty command line")
	}
}

func TestRequestStopReachesShellChildren(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(Options{Name: "trap", CommandLine: "trap 'exit 7' TERM; while true; do sleep 0.05; done"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := p.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	if !p.Wait(3 * time.Second) {
		_ = p.Kill()
		t.Fatalf("child ignored cooperative stop")
	}
	if p.ExitCode() != 7 {
		t.Fatalf("expected trap exit code 7, got %d", p.ExitCode())
	}
	if err := p.RequestStop(); err != nil {
		t.Fatalf("request stop after exit: %v", err)
	}
}

func TestOutputIsWrittenToProvidedFile(t *testing.T) {
	skipOnWindows(t)

	out, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create output: %v", err)
	}
	defer out.Close()

	p, err := Start(Options{Name: "echo", CommandLine: "echo hello; echo oops >&2", Output: out})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Wait(3 * time.Second) {
		t.Fatalf("child did not exit")
	}
	data, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(string(data), "oops") {
		t.Fatalf("unexpected output %q", data)
	}
}

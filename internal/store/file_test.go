//go:build !windows

package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "services.yaml")
	s := &FileStore{Path: path}

	_, err := s.ConfigFile("/usr/bin/servicestation")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetConfigFile("/usr/bin/servicestation", "/etc/web.ini"))
	require.NoError(t, s.SetConfigFile("/opt/other/servicestation", "/etc/other.ini"))

	got, err := s.ConfigFile("/usr/bin/servicestation")
	require.NoError(t, err)
	assert.Equal(t, "/etc/web.ini", got)

	// A fresh instance reads what the first one wrote.
	reopened := &FileStore{Path: path}
	got, err = reopened.ConfigFile("/opt/other/servicestation")
	require.NoError(t, err)
	assert.Equal(t, "/etc/other.ini", got)

	require.NoError(t, reopened.Remove("/usr/bin/servicestation"))
	require.NoError(t, reopened.Remove("/usr/bin/servicestation"))
	_, err = s.ConfigFile("/usr/bin/servicestation")
	require.ErrorIs(t, err, ErrNotFound)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "config_file: /etc/other.ini")
}

func TestFileStoreRejectsLongKeys(t *testing.T) {
	s := &FileStore{Path: filepath.Join(t.TempDir(), "services.yaml")}
	long := "/" + strings.Repeat("x", MaxKeyLength)

	require.ErrorIs(t, s.SetConfigFile(long, "/etc/a.ini"), ErrPathTooLong)
	_, err := s.ConfigFile(long)
	require.ErrorIs(t, err, ErrPathTooLong)
	require.Error(t, s.SetConfigFile("", "/etc/a.ini"))
}

func TestFileStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services: [unterminated"), 0o644))

	_, err := (&FileStore{Path: path}).ConfigFile("/usr/bin/servicestation")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDefaultHonoursEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(EnvPath, path)

	fs, ok := Default().(*FileStore)
	require.True(t, ok)
	assert.Equal(t, path, fs.Path)
}

func TestExecutableKeyResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "bin", "servicestation")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755))
	link := filepath.Join(dir, "current")
	require.NoError(t, os.Symlink(target, link))

	want, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	got, err := ExecutableKey(link)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	direct, err := ExecutableKey(target)
	require.NoError(t, err)
	assert.Equal(t, got, direct)

	self, err := ExecutableKey("")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(self))
}

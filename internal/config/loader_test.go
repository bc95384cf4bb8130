package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullSection(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `[service]
name = web
description = Web frontend
command_line = ping -t 127.0.0.1 # not a comment
working_dir = app
log_file = logs/child.log
gui = yes
status_addr = 127.0.0.1:7701
watch_config = no
`)

	snap, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "web", snap.ServiceName)
	assert.Equal(t, "Web frontend", snap.Description)
	assert.Equal(t, "ping -t 127.0.0.1 # not a comment", snap.CommandLine)
	assert.Equal(t, filepath.Join(dir, "app"), snap.WorkingDirectory)
	assert.Equal(t, filepath.Join(dir, "logs", "child.log"), snap.LogFilePath)
	assert.True(t, snap.AllowDesktopInteraction)
	assert.True(t, snap.CaptureOutput())
	assert.Equal(t, "127.0.0.1:7701", snap.StatusAddr)
	assert.False(t, snap.WatchConfig)
	assert.Equal(t, path, snap.Source)
	assert.Empty(t, snap.Warnings)
}

func TestLoadIgnoresNameCase(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `[Service]
Name = Web
Command_Line = ping -t 127.0.0.1
LOG_FILE = Logs/Child.log
GUI = Yes
`)

	snap, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Web", snap.ServiceName)
	assert.Equal(t, "ping -t 127.0.0.1", snap.CommandLine)
	assert.Equal(t, filepath.Join(dir, "Logs", "Child.log"), snap.LogFilePath)
	assert.True(t, snap.AllowDesktopInteraction)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[service]\ncommand_line = ping -t 127.0.0.1\n")

	snap, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultServiceName, snap.ServiceName)
	assert.Equal(t, dir, snap.WorkingDirectory)
	assert.Empty(t, snap.LogFilePath)
	assert.False(t, snap.CaptureOutput())
	assert.False(t, snap.AllowDesktopInteraction)
}

func TestLoadExpandsEnvironmentInPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STATION_WORKDIR", filepath.Join(dir, "from-env"))
	path := writeConfig(t, dir, "[service]\ncommand_line = true\nworking_dir = ${STATION_WORKDIR}\n")

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "from-env"), snap.WorkingDirectory)
}

func TestLoadRejectsInvalidSources(t *testing.T) {
	cases := map[string]struct {
		body string
		key  string
	}{
		"empty command line":   {body: "[service]\nname = x\ncommand_line =\n", key: "command_line"},
		"missing command line": {body: "[service]\nname = x\n", key: "command_line"},
		"bad gui value":        {body: "[service]\ncommand_line = true\ngui = maybe\n", key: "gui"},
		"name too long":        {body: "[service]\ncommand_line = true\nname = " + strings.Repeat("n", MaxNameLength+1) + "\n", key: "name"},
		"missing section":      {body: "[other]\ncommand_line = true\n"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tc.body)
			snap, err := Load(path)
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.True(t, errors.Is(err, ErrInvalid))

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tc.key, cfgErr.Key)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadTruncatesLongDescription(t *testing.T) {
	long := strings.Repeat("é", MaxDescriptionLength)
	path := writeConfig(t, t.TempDir(), "[service]\ncommand_line = true\ndescription = "+long+"\n")

	snap, err := Load(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(snap.Description), MaxDescriptionLength)
	assert.True(t, strings.HasPrefix(long, snap.Description))
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "description")
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

const sectionService = "service"

// Load reads a service definition from the INI file at path. Load has no side
// effects: on failure it returns a *Error and nothing else is touched.
func Load(path string) (*Snapshot, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &Error{Path: path, Err: fmt.Errorf("no configuration file given")}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("resolve path: %w", err)}
	}

	// Section and key names match regardless of case; values keep theirs.
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true, IgnoreInlineComment: true}, absPath)
	if err != nil {
		return nil, &Error{Path: absPath, Err: fmt.Errorf("load: %w", err)}
	}
	sec, err := file.GetSection(sectionService)
	if err != nil {
		return nil, &Error{Path: absPath, Err: fmt.Errorf("missing [%s] section", sectionService)}
	}

	baseDir := filepath.Dir(absPath)
	snap := &Snapshot{
		ServiceName: keyString(sec, "name", DefaultServiceName),
		Description: keyString(sec, "description", ""),
		CommandLine: keyString(sec, "command_line", ""),
		StatusAddr:  keyString(sec, "status_addr", ""),
		Source:      absPath,
	}

	snap.WorkingDirectory = resolvePath(baseDir, os.ExpandEnv(keyString(sec, "working_dir", DefaultWorkingDir)))
	if logFile := os.ExpandEnv(keyString(sec, "log_file", "")); logFile != "" {
		snap.LogFilePath = resolvePath(baseDir, logFile)
	}

	if snap.AllowDesktopInteraction, err = keyYesNo(sec, "gui"); err != nil {
		return nil, &Error{Path: absPath, Key: "gui", Err: err}
	}
	if snap.WatchConfig, err = keyYesNo(sec, "watch_config"); err != nil {
		return nil, &Error{Path: absPath, Key: "watch_config", Err: err}
	}

	if err := snap.validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func keyString(sec *ini.Section, name, def string) string {
	if !sec.HasKey(name) {
		return def
	}
	return strings.TrimSpace(sec.Key(name).String())
}

func keyYesNo(sec *ini.Section, name string) (bool, error) {
	switch strings.ToLower(keyString(sec, name, "no")) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("expected yes or no, got %q", sec.Key(name).String())
	}
}

func resolvePath(base, value string) string {
	if value == "" {
		return base
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Clean(filepath.Join(base, value))
}

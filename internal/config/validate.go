package config

import (
	"fmt"
	"unicode/utf8"
)

func (s *Snapshot) validate() error {
	if s.CommandLine == "" {
		return fieldError(s.Source, "command_line", "must not be empty")
	}
	if s.ServiceName == "" {
		return fieldError(s.Source, "name", "must not be empty")
	}
	if len(s.ServiceName) > MaxNameLength {
		return fieldError(s.Source, "name", "longer than %d bytes", MaxNameLength)
	}
	for key, value := range map[string]string{
		"command_line": s.CommandLine,
		"working_dir":  s.WorkingDirectory,
		"log_file":     s.LogFilePath,
	} {
		if len(value) > MaxPathLength {
			return fieldError(s.Source, key, "longer than %d bytes", MaxPathLength)
		}
	}
	if len(s.Description) > MaxDescriptionLength {
		s.Description = truncate(s.Description, MaxDescriptionLength)
		s.Warnings = append(s.Warnings, fmt.Sprintf("service.description truncated to %d bytes", MaxDescriptionLength))
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package config

// Defaults applied when a key is absent from the [service] section.
const (
	DefaultServiceName = "ServiceRunner"
	DefaultWorkingDir  = "."
	DefaultFile        = "config.ini"
)

// Length limits enforced at the configuration boundary.
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 256
	MaxPathLength        = 2048
)

// Snapshot is the fully resolved description of what to supervise and how.
// It is immutable once returned by Load and may be shared freely.
type Snapshot struct {
	ServiceName             string
	Description             string
	CommandLine             string
	WorkingDirectory        string
	LogFilePath             string
	AllowDesktopInteraction bool

	// StatusAddr is the listen address of the optional status API.
	StatusAddr string
	// WatchConfig reloads the service when Source changes on disk.
	WatchConfig bool

	// Source is the absolute path of the file the snapshot was loaded from.
	Source string
	// Warnings collects non-fatal adjustments made while loading.
	Warnings []string
}

// CaptureOutput reports whether child output should be appended to LogFilePath.
func (s *Snapshot) CaptureOutput() bool {
	return s != nil && s.LogFilePath != ""
}

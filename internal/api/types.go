package api

import (
	stdcontext "context"
	"errors"
	"time"

	"github.com/Paintersrp/servicestation/internal/engine"
)

var (
	ErrNotRunning     = errors.New("service not running")
	ErrReloadRejected = errors.New("reload rejected")
)

// StatusReport describes the service and its supervised child.
type StatusReport struct {
	Service     string       `json:"service"`
	Version     string       `json:"version"`
	State       string       `json:"state"`
	StateCode   uint32       `json:"state_code"`
	ExitCode    uint32       `json:"exit_code"`
	ConfigFile  string       `json:"config_file"`
	CommandLine string       `json:"command_line"`
	GeneratedAt time.Time    `json:"generated_at"`
	Child       engine.Stats `json:"child"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// ReloadResult captures the outcome of a reload request.
type ReloadResult struct {
	Service     string    `json:"service"`
	ConfigFile  string    `json:"config_file"`
	RequestedAt time.Time `json:"requested_at"`
}

// Controller exposes the service operations required by the status server.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Reload(stdcontext.Context) (*ReloadResult, error)
}

package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	serviceState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "servicestation",
		Name:      "service_state",
		Help:      "Last reported service state (1=stopped, 2=start pending, 3=stop pending, 4=running, 5=continue pending, 6=pause pending, 7=paused).",
	}, []string{"service"})

	childAlive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "servicestation",
		Name:      "child_alive",
		Help:      "Whether the supervised child is running (1=alive, 0=dead).",
	}, []string{"service"})

	childRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servicestation",
		Name:      "child_restarts_total",
		Help:      "Total number of times the supervised child was restarted after dying.",
	}, []string{"service"})

	launchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servicestation",
		Name:      "launch_failures_total",
		Help:      "Total number of failed child launches.",
	}, []string{"service"})

	outputDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servicestation",
		Name:      "output_dropped_lines_total",
		Help:      "Captured output lines discarded because the log file writer fell behind.",
	}, []string{"service"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "servicestation",
		Name:      "build_info",
		Help:      "Build metadata for the running servicestation binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(serviceState, childAlive, childRestarts, launchFailures, outputDropped, buildInfo)
}

// Registry returns the Prometheus registry containing all servicestation metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetServiceState records the last reported state value for a service.
func SetServiceState(service string, state uint32) {
	if service == "" {
		return
	}
	serviceState.WithLabelValues(service).Set(float64(state))
}

// SetChildAlive records whether the child of a service is running.
func SetChildAlive(service string, alive bool) {
	if service == "" {
		return
	}
	value := 0.0
	if alive {
		value = 1.0
	}
	childAlive.WithLabelValues(service).Set(value)
}

// IncrementChildRestart increments the restart counter by one for a service.
func IncrementChildRestart(service string) {
	if service == "" {
		return
	}
	childRestarts.WithLabelValues(service).Inc()
}

// IncrementLaunchFailure increments the launch failure counter for a service.
func IncrementLaunchFailure(service string) {
	if service == "" {
		return
	}
	launchFailures.WithLabelValues(service).Inc()
}

// AddOutputDropped adds n discarded output lines for a service.
func AddOutputDropped(service string, n int) {
	if service == "" || n <= 0 {
		return
	}
	outputDropped.WithLabelValues(service).Add(float64(n))
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// ResetService clears every series recorded for a service.
func ResetService(service string) {
	if service == "" {
		return
	}
	serviceState.DeleteLabelValues(service)
	childAlive.DeleteLabelValues(service)
	childRestarts.DeleteLabelValues(service)
	launchFailures.DeleteLabelValues(service)
	outputDropped.DeleteLabelValues(service)
}

package metrics

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Spawn modes.
const (
	ModeBlocking = "blocking"
	ModeAsync    = "async"
)

// Spawn outcomes.
const (
	OutcomeExited      = "exited"
	OutcomeStartFailed = "start_failed"
	OutcomeTimeout     = "timeout"
	OutcomeMaxBuffer   = "max_buffer"
	OutcomeRejected    = "rejected"
)

var (
	registry = prometheus.NewRegistry()

	spawnTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portexec",
		Name:      "spawn_total",
		Help:      "Processes spawned, by mode and outcome.",
	}, []string{"mode", "outcome"})

	spawnDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portexec",
		Name:      "spawn_duration_seconds",
		Help:      "Wall-clock lifetime of spawned processes in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
	}, []string{"mode"})

	resolveMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portexec",
		Name:      "resolve_misses_total",
		Help:      "Executable names that could not be resolved.",
	})

	shellWrapped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portexec",
		Name:      "shell_wrapped_total",
		Help:      "Scripts launched through the command interpreter.",
	})

	listingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portexec",
		Name:      "process_listing_duration_seconds",
		Help:      "Latency of process table listings in seconds.",
	}, []string{"source"})

	listingProcesses = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "portexec",
		Name:      "process_listing_processes",
		Help:      "Processes observed by the most recent listing.",
	}, []string{"source"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "portexec",
		Name:      "build_info",
		Help:      "Build metadata for the running portexec binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(spawnTotal, spawnDuration, resolveMisses, shellWrapped, listingDuration, listingProcesses, buildInfo)
}

// Registry returns the Prometheus registry containing all portexec metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveSpawn records the outcome of a spawned process. A zero duration
// skips the latency histogram, which is the case for processes that never
// started.
func ObserveSpawn(mode, outcome string, d time.Duration) {
	if mode == "" || outcome == "" {
		return
	}
	spawnTotal.WithLabelValues(mode, outcome).Inc()
	if d > 0 {
		spawnDuration.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// IncResolveMiss counts an executable name that did not resolve.
func IncResolveMiss() {
	resolveMisses.Inc()
}

// IncShellWrapped counts a script routed through the command interpreter.
func IncShellWrapped() {
	shellWrapped.Inc()
}

// ObserveListing records a process table listing.
func ObserveListing(source string, processes int, d time.Duration) {
	label := source
	if label == "" {
		label = "unknown"
	}
	listingDuration.WithLabelValues(label).Observe(d.Seconds())
	listingProcesses.WithLabelValues(label).Set(float64(processes))
}

// WriteTextfile writes the registry in the text exposition format to path,
// for collection by a node exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
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

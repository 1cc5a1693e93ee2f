package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	activeTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wasmvisor",
		Name:      "active_tasks",
		Help:      "Current number of admitted tasks across the plane.",
	})

	processesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wasmvisor",
		Name:      "processes_created_total",
		Help:      "Total number of processes registered with the plane.",
	})

	threadsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wasmvisor",
		Name:      "threads_started_total",
		Help:      "Total number of threads started, labelled by workload.",
	}, []string{"workload"})

	signalsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wasmvisor",
		Name:      "signals_delivered_total",
		Help:      "Total signals delivered to workload threads.",
	}, []string{"workload"})

	admissionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wasmvisor",
		Name:      "admissions_rejected_total",
		Help:      "Task admissions refused because the plane limit was reached.",
	})

	backoffPause = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wasmvisor",
		Name:      "cpu_backoff_pause_seconds",
		Help:      "Pauses suggested by the idle-CPU backoff controller.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wasmvisor",
		Name:      "build_info",
		Help:      "Build metadata for the running wasmvisor binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(activeTasks, processesCreated, threadsStarted, signalsDelivered, admissionsRejected, backoffPause, buildInfo)
}

// Registry returns the Prometheus registry containing all wasmvisor metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetActiveTasks records the plane-wide task count.
func SetActiveTasks(n int) {
	activeTasks.Set(float64(n))
}

// IncProcessesCreated counts one registered process.
func IncProcessesCreated() {
	processesCreated.Inc()
}

// IncThreadsStarted counts one started thread for a workload.
func IncThreadsStarted(workload string) {
	if workload == "" {
		workload = "unknown"
	}
	threadsStarted.WithLabelValues(workload).Inc()
}

// AddSignalsDelivered counts signals delivered to a workload's threads.
func AddSignalsDelivered(workload string, n int) {
	if n <= 0 {
		return
	}
	if workload == "" {
		workload = "unknown"
	}
	signalsDelivered.WithLabelValues(workload).Add(float64(n))
}

// IncAdmissionsRejected counts a refused task admission.
func IncAdmissionsRejected() {
	admissionsRejected.Inc()
}

// ObserveBackoffPause records a pause suggested by the backoff controller.
func ObserveBackoffPause(d time.Duration) {
	if d <= 0 {
		return
	}
	backoffPause.Observe(d.Seconds())
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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels runs that finished without recorded errors.
	OutcomeSuccess = "success"
	// OutcomePartial labels runs that returned records alongside errors.
	OutcomePartial = "partial"
	// OutcomeError labels runs that could not be executed at all.
	OutcomeError = "error"
)

// Probe result labels.
const (
	ProbeOK          = "ok"
	ProbeNotFound    = "not_found"
	ProbeNonZeroExit = "non_zero_exit"
	ProbeTimedOut    = "timed_out"
	ProbeError       = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graviton_inventory",
			Name:      "runs_total",
			Help:      "Total number of detection runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "graviton_inventory",
			Name:      "run_seconds",
			Help:      "Detection run latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graviton_inventory",
			Name:      "probes_total",
			Help:      "Commands executed against the inspected host, partitioned by result.",
		},
		[]string{"result"},
	)

	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graviton_inventory",
			Name:      "detections_total",
			Help:      "Detected applications, partitioned by category and compatibility status.",
		},
		[]string{"category", "status"},
	)
)

// Register attaches graviton-inventory collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		probesTotal,
		detectionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	switch label {
	case OutcomeSuccess, OutcomePartial, OutcomeError:
	default:
		label = OutcomeError
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveProbe counts one command execution.
func ObserveProbe(result string) {
	probesTotal.WithLabelValues(result).Inc()
}

// ObserveDetection counts one emitted detection record.
func ObserveDetection(category, status string) {
	detectionsTotal.WithLabelValues(category, status).Inc()
}

package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mealgen",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Generation runs by outcome",
		},
		[]string{"outcome"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mealgen",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of generation runs in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
		[]string{"outcome"},
	)

	runsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mealgen",
			Subsystem: "pipeline",
			Name:      "inflight_runs",
			Help:      "Generation runs currently executing",
		},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mealgen",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of the templates and grocery_list stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)

	subtasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mealgen",
			Subsystem: "pipeline",
			Name:      "subtasks_total",
			Help:      "Per-recipe sub-task dispositions",
		},
		[]string{"kind", "outcome"},
	)

	wavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mealgen",
			Subsystem: "pipeline",
			Name:      "waves_total",
			Help:      "Completion waves processed, by phase",
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, runsInflight, stageDuration, subtasksTotal, wavesTotal)
}

// Sub-task outcome labels.
const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeEmpty    = "empty"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
	outcomeDropped  = "dropped"
)

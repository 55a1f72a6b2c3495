package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exerciser_evaluations_total",
			Help: "Total number of attempt evaluations by outcome",
		},
		[]string{"language", "status"}, // status: AC, PT, WA, CE or error
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exerciser_evaluation_duration_ms",
			Help:    "Evaluation duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"language"},
	)

	TestVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exerciser_test_verdicts_total",
			Help: "Verdicts of individual exercise tests",
		},
		[]string{"verdict"},
	)

	ActiveEvaluations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exerciser_active_evaluations",
			Help: "Number of attempts currently running in a sandbox",
		},
	)

	WaitingEvaluations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exerciser_waiting_evaluations",
			Help: "Number of evaluations waiting for a free runner slot",
		},
	)

	ExercisesStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exerciser_exercises",
			Help: "Number of stored exercises",
		},
	)

	LogAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exerciser_log_appends_total",
			Help: "Usage log appends by result",
		},
		[]string{"result"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exerciser_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)
)

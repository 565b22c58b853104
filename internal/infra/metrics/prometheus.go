package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightdata_runs_total",
		Help: "Total number of analysis runs, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightdata_run_stage_duration_seconds",
		Help:    "Duration of each analysis run stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	TrajectoryPoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flightdata_trajectory_points",
		Help:    "Number of trajectory points produced per run",
		Buckets: []float64{0, 1, 2, 10, 50, 100, 500, 1000, 5000},
	})

	FramesDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightdata_frames_detected_total",
		Help: "Total number of frames returned by the detector across all runs",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flightdata_active_runs",
		Help: "Number of analysis runs currently in progress",
	})

	StorageRetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightdata_storage_retry_total",
		Help: "Total number of retried storage calls, by backend half",
	}, []string{"half"})
)

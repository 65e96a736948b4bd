package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "awd_irrigation_runs_started_total",
		Help: "Irrigation runs started.",
	})
	runsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "awd_irrigation_runs_completed_total",
		Help: "Irrigation runs that reached their target level.",
	})
	runsStopped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awd_irrigation_runs_stopped_total",
		Help: "Irrigation runs stopped short of target, by reason.",
	}, []string{"reason"})
	anomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "awd_irrigation_anomalies_total",
		Help: "Anomalies detected during irrigation runs.",
	}, []string{"type", "severity"})
	tickErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "awd_irrigation_tick_errors_total",
		Help: "Monitoring ticks that failed with an internal error.",
	})
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "awd_irrigation_active_runs",
		Help: "Currently active irrigation runs.",
	})
)

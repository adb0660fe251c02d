// Package metrics holds the process-wide prometheus collectors. They are
// registered with the default registry and served by the ops server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fitbuddy"

var (
	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "job_runs_total",
		Help:      "Job executions by job id and outcome (ok, error, panic, timeout, skipped).",
	}, []string{"job", "outcome"})
	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "job_duration_seconds",
		Help:      "Wall time of job bodies.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"job"})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "runner",
		Name:      "queue_depth",
		Help:      "Firings waiting for the execution context.",
	})
	sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "sends_total",
		Help:      "Per-recipient send attempts by outcome (ok, error).",
	}, []string{"outcome"})
	lastBroadcast = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "last_finished_timestamp_seconds",
		Help:      "Unix timestamp of the most recent finished broadcast.",
	})
	completions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "content",
		Name:      "completions_total",
		Help:      "Content requests by category and source (remote, fallback).",
	}, []string{"category", "source"})
)

func init() {
	prometheus.MustRegister(jobRuns, jobDuration, queueDepth, sends, lastBroadcast, completions)
}

func RecordJobRun(job, outcome string, took time.Duration) {
	jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome != "skipped" {
		jobDuration.WithLabelValues(job).Observe(took.Seconds())
	}
}

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

func RecordSend(ok bool) {
	if ok {
		sends.WithLabelValues("ok").Inc()
		return
	}
	sends.WithLabelValues("error").Inc()
}

func RecordBroadcastFinished(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastBroadcast.Set(float64(ts.Unix()))
}

// RecordCompletion counts content requests; fallback is true when a pool entry was used.
func RecordCompletion(category string, fallback bool) {
	src := "remote"
	if fallback {
		src = "fallback"
	}
	completions.WithLabelValues(category, src).Inc()
}

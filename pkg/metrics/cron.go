package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// CronJobMetrics records runs of the scheduled maintenance jobs, labeled by
// job name and outcome.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job executions by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of one cron job run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 600},
		}, []string{"job"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run, for staleness alerts.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastRun)
	return m
}

func (c *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil {
		return
	}
	job = normalizeLabel(job)
	c.runs.WithLabelValues(job, outcomeSuccess).Inc()
	c.lastRun.WithLabelValues(job).SetToCurrentTime()
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), outcomeFailure).Inc()
}

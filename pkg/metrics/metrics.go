package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sitebackuper"

// Collector exposes job outcomes as prometheus metrics.
type Collector struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	lastCompleted prometheus.Gauge
}

func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		jobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of finished backup and restore jobs",
		}, []string{"kind", "service", "status"}),

		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of backup and restore jobs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"kind"}),

		lastCompleted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_completed_timestamp_seconds",
			Help:      "Unix time of the latest completed backup",
		}),
	}
}

func (c *Collector) JobFinished(kind, service, status string, d time.Duration) {
	c.jobsTotal.WithLabelValues(kind, service, status).Inc()
	c.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) SetLastCompleted(at time.Time) {
	c.lastCompleted.Set(float64(at.Unix()))
}

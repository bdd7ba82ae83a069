package sched

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the scheduler counters as prometheus metrics. Register
// it on a registry and serve that via promhttp; the bench subcommand does.
type Collector struct {
	s *Scheduler

	queued    *prometheus.Desc
	active    *prometheus.Desc
	completed *prometheus.Desc
	canceled  *prometheus.Desc
	failed    *prometheus.Desc
	rejected  *prometheus.Desc
}

func NewCollector(s *Scheduler) *Collector {
	return &Collector{
		s: s,
		queued: prometheus.NewDesc("chunkforge_jobs_queued",
			"Jobs waiting in scheduler queues.", nil, nil),
		active: prometheus.NewDesc("chunkforge_jobs_active",
			"Jobs currently running on workers.", nil, nil),
		completed: prometheus.NewDesc("chunkforge_jobs_completed_total",
			"Jobs finished without error.", nil, nil),
		canceled: prometheus.NewDesc("chunkforge_jobs_canceled_total",
			"Jobs that observed cancellation.", nil, nil),
		failed: prometheus.NewDesc("chunkforge_jobs_failed_total",
			"Jobs finished with an error, panics included.", nil, nil),
		rejected: prometheus.NewDesc("chunkforge_jobs_rejected_total",
			"Submissions rejected by backpressure or shutdown.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queued
	ch <- c.active
	ch <- c.completed
	ch <- c.canceled
	ch <- c.failed
	ch <- c.rejected
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.s.Stats()
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(stats.Queued))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(stats.Active))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(stats.Completed))
	ch <- prometheus.MustNewConstMetric(c.canceled, prometheus.CounterValue, float64(stats.Canceled))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(stats.Failed))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(stats.Rejected))
}

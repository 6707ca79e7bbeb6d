// Package metrics exposes Prometheus collectors for the monitor service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal          *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	emailsSentTotal      prometheus.Counter
	emailFailuresTotal   prometheus.Counter
	probeErrorsTotal     *prometheus.CounterVec
	cycleDurationSeconds prometheus.Histogram
	lastCycleUnixtime    prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatch_checks_total",
				Help: "Total product checks, labeled by product and result.",
			},
			[]string{"product", "result"},
		)

		transitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatch_transitions_total",
				Help: "Total stock state transitions, labeled by product and new state.",
			},
			[]string{"product", "to"},
		)

		emailsSentTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stockwatch_emails_sent_total",
				Help: "Total alert emails delivered.",
			},
		)

		emailFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stockwatch_email_failures_total",
				Help: "Total alert email delivery failures.",
			},
		)

		probeErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatch_probe_errors_total",
				Help: "Total probe failures, labeled by kind (transient, fatal).",
			},
			[]string{"kind"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockwatch_cycle_duration_seconds",
				Help:    "Histogram of full scrape cycle durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		lastCycleUnixtime = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockwatch_last_cycle_unixtime",
				Help: "Unix timestamp of the last completed scrape cycle.",
			},
		)
	})
}

func ObserveCheck(product, result string) {
	if checksTotal != nil {
		checksTotal.WithLabelValues(product, result).Inc()
	}
}

func ObserveTransition(product string, inStock bool) {
	if transitionsTotal == nil {
		return
	}
	to := "out_of_stock"
	if inStock {
		to = "in_stock"
	}
	transitionsTotal.WithLabelValues(product, to).Inc()
}

func ObserveEmail(ok bool) {
	if ok {
		if emailsSentTotal != nil {
			emailsSentTotal.Inc()
		}
		return
	}
	if emailFailuresTotal != nil {
		emailFailuresTotal.Inc()
	}
}

func ObserveProbeError(kind string) {
	if probeErrorsTotal != nil {
		probeErrorsTotal.WithLabelValues(kind).Inc()
	}
}

func ObserveCycle(d time.Duration) {
	if cycleDurationSeconds != nil {
		cycleDurationSeconds.Observe(d.Seconds())
	}
	if lastCycleUnixtime != nil {
		lastCycleUnixtime.SetToCurrentTime()
	}
}

package prometheus

import (
	"github.com/marmos91/dapagg/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// reporter is the Prometheus-backed implementation of metrics.Reporter.
type reporter struct {
	uploads            *prometheus.CounterVec
	aggregateInitCount *prometheus.CounterVec
	aggregateInitSize  *prometheus.HistogramVec
	aggregateInitSecs  *prometheus.HistogramVec
	aggregateContinue  *prometheus.CounterVec
	replays            *prometheus.CounterVec
	hpkeFailures       *prometheus.CounterVec
	taskCount          prometheus.Gauge
}

// NewReporter creates a new Prometheus-backed metrics.Reporter.
//
// Returns nil if metrics are not enabled (metrics.InitRegistry not called),
// so callers can pass the result straight through without a nil check of
// their own.
func NewReporter() metrics.Reporter {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	r := &reporter{
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggd_uploads_total",
				Help: "Total number of report uploads by task and outcome",
			},
			[]string{"task_id", "outcome"},
		),
		aggregateInitCount: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggd_aggregate_init_rounds_total",
				Help: "Total number of aggregate-init rounds processed by task and VDAF",
			},
			[]string{"task_id", "vdaf"},
		),
		aggregateInitSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggd_aggregate_init_report_count",
				Help:    "Number of report shares per aggregate-init request",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"task_id"},
		),
		aggregateInitSecs: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggd_aggregate_init_duration_seconds",
				Help:    "Time spent processing an aggregate-init round",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_id"},
		),
		aggregateContinue: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggd_aggregate_continue_total",
				Help: "Total number of aggregate-continue rounds by task and outcome",
			},
			[]string{"task_id", "outcome"},
		),
		replays: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggd_replays_rejected_total",
				Help: "Total number of rejected replayed nonces or aggregation jobs by task",
			},
			[]string{"task_id"},
		),
		hpkeFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggd_hpke_open_failures_total",
				Help: "Total number of HPKE open failures on uploaded reports by task",
			},
			[]string{"task_id"},
		),
		taskCount: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "aggd_registry_task_count",
				Help: "Current number of tasks held in the task registry",
			},
		),
	}

	return r
}

func (r *reporter) RecordUpload(taskID string, outcome string) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues(taskID, outcome).Inc()
}

func (r *reporter) RecordAggregateInit(taskID string, vdaf string, reportCount int, durationSeconds float64) {
	if r == nil {
		return
	}
	r.aggregateInitCount.WithLabelValues(taskID, vdaf).Inc()
	r.aggregateInitSize.WithLabelValues(taskID).Observe(float64(reportCount))
	r.aggregateInitSecs.WithLabelValues(taskID).Observe(durationSeconds)
}

func (r *reporter) RecordAggregateContinue(taskID string, outcome string) {
	if r == nil {
		return
	}
	r.aggregateContinue.WithLabelValues(taskID, outcome).Inc()
}

func (r *reporter) RecordReplay(taskID string) {
	if r == nil {
		return
	}
	r.replays.WithLabelValues(taskID).Inc()
}

func (r *reporter) RecordHPKEFailure(taskID string) {
	if r == nil {
		return
	}
	r.hpkeFailures.WithLabelValues(taskID).Inc()
}

func (r *reporter) SetTaskCount(n int) {
	if r == nil {
		return
	}
	r.taskCount.Set(float64(n))
}

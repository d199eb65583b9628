// Package metrics defines the Prometheus metrics of a submission run and of
// the status API.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run collects the counters of one CLI run. A run is short-lived, so the
// values are pushed to a Pushgateway when it ends.
type Run struct {
	reg *prometheus.Registry

	RecordsValidated prometheus.Counter
	RecordsInvalid   prometheus.Counter
	RecordsSkipped   prometheus.Counter
	RecordsSubmitted prometheus.Counter
	Outcomes         *prometheus.CounterVec
	BatchesFailed    prometheus.Counter
	BatchDuration    prometheus.Histogram
}

func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Run{
		reg: reg,
		RecordsValidated: f.NewCounter(prometheus.CounterOpts{
			Name: "ubysync_records_validated_total",
			Help: "Input rows that passed validation",
		}),
		RecordsInvalid: f.NewCounter(prometheus.CounterOpts{
			Name: "ubysync_records_invalid_total",
			Help: "Input rows rejected by validation",
		}),
		RecordsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "ubysync_records_skipped_total",
			Help: "Valid records skipped because they are already known",
		}),
		RecordsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "ubysync_records_submitted_total",
			Help: "Records sent to the registration service",
		}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ubysync_record_outcomes_total",
			Help: "Persisted record outcomes by final status",
		}, []string{"status"}),
		BatchesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "ubysync_batches_failed_total",
			Help: "Batches whose submission outcome was unsuccessful",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ubysync_batch_duration_seconds",
			Help:    "Round trip of one batch including confirmation parsing",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

func (r *Run) Registry() *prometheus.Registry { return r.reg }

// ObserveBatch records the duration of a batch; call with the batch start time.
func (r *Run) ObserveBatch(start time.Time, success bool) {
	r.BatchDuration.Observe(time.Since(start).Seconds())
	if !success {
		r.BatchesFailed.Inc()
	}
}

func (r *Run) Outcome(status string) {
	r.Outcomes.WithLabelValues(status).Inc()
}

// Push sends all run metrics to the Pushgateway; an empty url is a no-op.
func (r *Run) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "ubysync"
	}
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return errors.Wrap(err, "push metrics")
	}
	return nil
}

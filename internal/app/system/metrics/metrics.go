// Package metrics exposes Prometheus counters for the completion pipeline.
// All methods are safe on a nil *Metrics so components can run without a
// registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	completions     *prometheus.CounterVec
	raceLosses      prometheus.Counter
	dispatches      *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	sweepRuns       prometheus.Counter
	sweepExamined   prometheus.Counter
	sweepErrors     prometheus.Counter
	ballots         *prometheus.CounterVec
	rateLimited     prometheus.Counter
	dispatchSeconds prometheus.Histogram
}

// New registers the pipeline collectors with reg. A nil reg returns nil,
// which disables collection.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	return &Metrics{
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boardhub_completions_total",
			Help: "Terminal status transitions applied, by item type, reason and verdict",
		}, []string{"item_type", "reason", "passed"}),
		raceLosses: factory.NewCounter(prometheus.CounterOpts{
			Name: "boardhub_completion_race_losses_total",
			Help: "Completion checks that lost the conditional status update",
		}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boardhub_dispatches_total",
			Help: "Summary dispatches by result (sent, failed, duplicate, render_error)",
		}, []string{"result", "source"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boardhub_deliveries_total",
			Help: "Per-recipient delivery results",
		}, []string{"result"}),
		sweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "boardhub_sweep_runs_total",
			Help: "Deadline sweep runs",
		}),
		sweepExamined: factory.NewCounter(prometheus.CounterOpts{
			Name: "boardhub_sweep_items_examined_total",
			Help: "Items examined by the deadline sweep",
		}),
		sweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "boardhub_sweep_errors_total",
			Help: "Per-item errors collected by the deadline sweep",
		}),
		ballots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boardhub_ballots_total",
			Help: "Ballot writes by result",
		}, []string{"result"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "boardhub_ballots_rate_limited_total",
			Help: "Ballot requests rejected by the rate limiter",
		}),
		dispatchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "boardhub_dispatch_duration_seconds",
			Help:    "Time to render and fan out one summary",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Completion records an applied terminal transition.
func (m *Metrics) Completion(itemType, reason string, passed bool) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(itemType, reason, boolLabel(passed)).Inc()
}

// RaceLoss records a conditional update that changed nothing.
func (m *Metrics) RaceLoss() {
	if m == nil {
		return
	}
	m.raceLosses.Inc()
}

// Dispatch records the result of one summary dispatch.
func (m *Metrics) Dispatch(result, source string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(result, source).Inc()
	if seconds > 0 {
		m.dispatchSeconds.Observe(seconds)
	}
}

// Delivery records one recipient's final delivery result.
func (m *Metrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "sent"
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// Sweep records one sweep run.
func (m *Metrics) Sweep(examined, errs int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepExamined.Add(float64(examined))
	m.sweepErrors.Add(float64(errs))
}

// Ballot records a ballot write result ("ok" or an error class).
func (m *Metrics) Ballot(result string) {
	if m == nil {
		return
	}
	m.ballots.WithLabelValues(result).Inc()
}

// RateLimited records a rejected ballot request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/logger"
)

const namespace = "shipyard"

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Engine metrics
	jobsDispatchedTotal  *prometheus.CounterVec
	jobsFinishedTotal    *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	executionsInFlight   prometheus.Gauge
	cancellationsTotal   *prometheus.CounterVec
	lateCallbacksTotal   *prometheus.CounterVec
	rollbackOutcomeTotal *prometheus.CounterVec

	// Webhook and recovery metrics
	webhookDeliveriesTotal *prometheus.CounterVec
	webhookDuration        prometheus.Histogram
	jobsRecoveredTotal     *prometheus.CounterVec
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates a Prometheus sink registered with reg
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initEngineMetrics(reg)
	s.initWebhookMetrics(reg)
	return s
}

func (s *PrometheusSink) initEngineMetrics(reg prometheus.Registerer) {
	s.jobsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dispatched_total",
		Help:      "Total number of job executions dispatched.",
	}, []string{"kind"})
	s.jobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "Total number of executions that recorded a terminal status.",
	}, []string{"kind", "status"})
	s.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Time from start to recorded outcome of an execution.",
		Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
	}, []string{"kind"})
	s.executionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "executions_in_flight",
		Help:      "Number of executions currently supervised by the dispatcher.",
	})
	s.cancellationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancellations_total",
		Help:      "Total number of cancellation requests.",
	}, []string{"kind", "accepted"})
	s.lateCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "late_callbacks_total",
		Help:      "Total number of runner outcomes ignored because the job had already finished.",
	}, []string{"kind"})
	s.rollbackOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rollbacks_total",
		Help:      "Total number of rollback requests by outcome.",
	}, []string{"outcome"})

	s.register(reg, s.jobsDispatchedTotal, "jobs_dispatched_total")
	s.register(reg, s.jobsFinishedTotal, "jobs_finished_total")
	s.register(reg, s.jobDuration, "job_duration_seconds")
	s.register(reg, s.executionsInFlight, "executions_in_flight")
	s.register(reg, s.cancellationsTotal, "cancellations_total")
	s.register(reg, s.lateCallbacksTotal, "late_callbacks_total")
	s.register(reg, s.rollbackOutcomeTotal, "rollbacks_total")
}

func (s *PrometheusSink) initWebhookMetrics(reg prometheus.Registerer) {
	s.webhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Total number of terminal status webhooks by outcome.",
	}, []string{"outcome"})
	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_duration_seconds",
		Help:      "Webhook request latency in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	s.jobsRecoveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_recovered_total",
		Help:      "Total number of jobs found unfinished at startup, by action taken.",
	}, []string{"action"})

	s.register(reg, s.webhookDeliveriesTotal, "webhook_deliveries_total")
	s.register(reg, s.webhookDuration, "webhook_duration_seconds")
	s.register(reg, s.jobsRecoveredTotal, "jobs_recovered_total")
}

// register attempts to register a collector, logging any errors without propagating them
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		logger.Warnf("metrics: failed to register %s_%s: %v", namespace, name, err)
	}
}

// JobDispatched implements engine.MetricsSink
func (s *PrometheusSink) JobDispatched(kind models.JobKind) {
	s.jobsDispatchedTotal.WithLabelValues(kind.String()).Inc()
}

// JobFinished implements engine.MetricsSink
func (s *PrometheusSink) JobFinished(kind models.JobKind, status models.JobStatus, duration time.Duration) {
	s.jobsFinishedTotal.WithLabelValues(kind.String(), status.String()).Inc()
	s.jobDuration.WithLabelValues(kind.String()).Observe(duration.Seconds())
}

// ExecutionsInFlightIncr implements engine.MetricsSink
func (s *PrometheusSink) ExecutionsInFlightIncr() {
	s.executionsInFlight.Inc()
}

// ExecutionsInFlightDecr implements engine.MetricsSink
func (s *PrometheusSink) ExecutionsInFlightDecr() {
	s.executionsInFlight.Dec()
}

// CancellationRequested implements engine.MetricsSink
func (s *PrometheusSink) CancellationRequested(kind models.JobKind, accepted bool) {
	s.cancellationsTotal.WithLabelValues(kind.String(), strconv.FormatBool(accepted)).Inc()
}

// LateCallbackIgnored implements engine.MetricsSink
func (s *PrometheusSink) LateCallbackIgnored(kind models.JobKind) {
	s.lateCallbacksTotal.WithLabelValues(kind.String()).Inc()
}

// RollbackResolved implements engine.MetricsSink
func (s *PrometheusSink) RollbackResolved(outcome string) {
	s.rollbackOutcomeTotal.WithLabelValues(outcome).Inc()
}

// WebhookDelivery records one webhook attempt
func (s *PrometheusSink) WebhookDelivery(outcome string, duration time.Duration) {
	s.webhookDeliveriesTotal.WithLabelValues(outcome).Inc()
	if outcome != WebhookOutcomeSkipped {
		s.webhookDuration.Observe(duration.Seconds())
	}
}

// JobsRecovered records jobs handled by startup recovery
func (s *PrometheusSink) JobsRecovered(action string, count int) {
	s.jobsRecoveredTotal.WithLabelValues(action).Add(float64(count))
}

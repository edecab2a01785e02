package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

func TestPrometheusSinkCountsEngineActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)

	s.JobDispatched(models.JobKindTestRun)
	s.JobDispatched(models.JobKindTestRun)
	s.JobDispatched(models.JobKindDeployment)
	s.ExecutionsInFlightIncr()
	s.ExecutionsInFlightIncr()
	s.ExecutionsInFlightDecr()
	s.JobFinished(models.JobKindTestRun, models.JobStatusPassed, 3*time.Second)
	s.CancellationRequested(models.JobKindTestRun, false)
	s.LateCallbackIgnored(models.JobKindDeployment)
	s.RollbackResolved(engine.RollbackOutcomeCreated)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.jobsDispatchedTotal.WithLabelValues("test_run")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.jobsDispatchedTotal.WithLabelValues("deployment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.executionsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.jobsFinishedTotal.WithLabelValues("test_run", "PASSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.cancellationsTotal.WithLabelValues("test_run", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.lateCallbacksTotal.WithLabelValues("deployment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.rollbackOutcomeTotal.WithLabelValues("created")))
}

func TestPrometheusSinkWebhookAndRecovery(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)

	s.WebhookDelivery(WebhookOutcomeDelivered, 100*time.Millisecond)
	s.WebhookDelivery(WebhookOutcomeSkipped, 0)
	s.JobsRecovered(RecoveryFailed, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.webhookDeliveriesTotal.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.webhookDeliveriesTotal.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.jobsRecoveredTotal.WithLabelValues("failed")))

	expected := `
# HELP shipyard_webhook_duration_seconds Webhook request latency in seconds.
# TYPE shipyard_webhook_duration_seconds histogram
shipyard_webhook_duration_seconds_bucket{le="0.1"} 1
shipyard_webhook_duration_seconds_bucket{le="0.25"} 1
shipyard_webhook_duration_seconds_bucket{le="0.5"} 1
shipyard_webhook_duration_seconds_bucket{le="1"} 1
shipyard_webhook_duration_seconds_bucket{le="2.5"} 1
shipyard_webhook_duration_seconds_bucket{le="5"} 1
shipyard_webhook_duration_seconds_bucket{le="10"} 1
shipyard_webhook_duration_seconds_bucket{le="+Inf"} 1
shipyard_webhook_duration_seconds_sum 0.1
shipyard_webhook_duration_seconds_count 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "shipyard_webhook_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)

	// A second sink on the same registry must still be usable
	s := NewPrometheusSink(reg)
	assert.NotPanics(t, func() {
		s.JobDispatched(models.JobKindTestRun)
		s.ExecutionsInFlightIncr()
	})
}

func TestNoopSinkImplementsSink(t *testing.T) {
	var s Sink = NewNoopSink()
	assert.NotPanics(t, func() {
		s.JobDispatched(models.JobKindTestRun)
		s.JobFinished(models.JobKindDeployment, models.JobStatusDeployed, time.Second)
		s.ExecutionsInFlightIncr()
		s.ExecutionsInFlightDecr()
		s.CancellationRequested(models.JobKindDeployment, true)
		s.LateCallbackIgnored(models.JobKindTestRun)
		s.RollbackResolved(engine.RollbackOutcomeError)
		s.WebhookDelivery(WebhookOutcomeFailed, time.Second)
		s.JobsRecovered(RecoveryRedispatched, 1)
	})
}

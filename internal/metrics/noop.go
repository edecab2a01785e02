package metrics

import (
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
)

// NoopSink is a no-op implementation of Sink, used when metrics are disabled
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobDispatched(models.JobKind)                                {}
func (n *NoopSink) JobFinished(models.JobKind, models.JobStatus, time.Duration) {}
func (n *NoopSink) ExecutionsInFlightIncr()                                     {}
func (n *NoopSink) ExecutionsInFlightDecr()                                     {}
func (n *NoopSink) CancellationRequested(models.JobKind, bool)                  {}
func (n *NoopSink) LateCallbackIgnored(models.JobKind)                          {}
func (n *NoopSink) RollbackResolved(string)                                     {}
func (n *NoopSink) WebhookDelivery(string, time.Duration)                       {}
func (n *NoopSink) JobsRecovered(string, int)                                   {}

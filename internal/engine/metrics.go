package engine

import (
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
)

// MetricsSink records engine activity. All methods must be non-blocking.
type MetricsSink interface {
	JobDispatched(kind models.JobKind)
	JobFinished(kind models.JobKind, status models.JobStatus, duration time.Duration)
	ExecutionsInFlightIncr()
	ExecutionsInFlightDecr()
	CancellationRequested(kind models.JobKind, accepted bool)
	LateCallbackIgnored(kind models.JobKind)
	RollbackResolved(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) JobDispatched(models.JobKind)                                {}
func (nopMetrics) JobFinished(models.JobKind, models.JobStatus, time.Duration) {}
func (nopMetrics) ExecutionsInFlightIncr()                                     {}
func (nopMetrics) ExecutionsInFlightDecr()                                     {}
func (nopMetrics) CancellationRequested(models.JobKind, bool)                  {}
func (nopMetrics) LateCallbackIgnored(models.JobKind)                          {}
func (nopMetrics) RollbackResolved(string)                                     {}

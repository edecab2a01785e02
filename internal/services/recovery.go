package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/db/repos"
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/internal/logger"
	"github.com/celestiaorg/shipyard/internal/metrics"
)

// InterruptedError is recorded on jobs whose execution was lost with the process
const InterruptedError = "interrupted by restart"

// RecoveryReport counts what a recovery pass did
type RecoveryReport struct {
	Failed       int
	Cancelled    int
	Redispatched int
}

// Recovery reconciles jobs left behind by a previous process. It must run
// before the API accepts requests, while no execution is in flight.
type Recovery struct {
	runs        *repos.TestRunRepository
	deployments *repos.DeploymentRepository
	suites      *repos.TestSuiteRepository
	machine     *engine.StateMachine
	dispatcher  *engine.Dispatcher
	metrics     metrics.Sink
}

// NewRecovery creates a recovery pass
func NewRecovery(
	runs *repos.TestRunRepository,
	deployments *repos.DeploymentRepository,
	suites *repos.TestSuiteRepository,
	machine *engine.StateMachine,
	dispatcher *engine.Dispatcher,
) *Recovery {
	return &Recovery{
		runs:        runs,
		deployments: deployments,
		suites:      suites,
		machine:     machine,
		dispatcher:  dispatcher,
		metrics:     metrics.NewNoopSink(),
	}
}

// WithMetrics attaches a metrics sink
func (r *Recovery) WithMetrics(sink metrics.Sink) *Recovery {
	if sink != nil {
		r.metrics = sink
	}
	return r
}

// Run fails every job that was executing when the previous process stopped and
// re-dispatches every job that never started.
func (r *Recovery) Run(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	interrupted, err := r.interruptedJobs(ctx)
	if err != nil {
		return report, err
	}
	for _, job := range interrupted {
		if r.finish(ctx, engine.RefOf(job), engine.EventFail, InterruptedError) {
			report.Failed++
		}
	}

	runs, err := r.runs.ListByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return report, fmt.Errorf("failed to list pending test runs: %w", err)
	}
	for i := range runs {
		run := &runs[i]
		suite, err := r.suites.Get(ctx, run.TestSuiteID)
		if err != nil {
			reason := fmt.Sprintf("test suite %d unavailable: %v", run.TestSuiteID, err)
			if r.finish(ctx, engine.RefOf(run), engine.EventCancel, reason) {
				report.Cancelled++
			}
			continue
		}
		if r.redispatch(ctx, engine.Request{Job: run, Spec: TestRunSpec(run, suite), Timeout: suite.Timeout()}) {
			report.Redispatched++
		}
	}

	deployments, err := r.deployments.ListByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return report, fmt.Errorf("failed to list pending deployments: %w", err)
	}
	for i := range deployments {
		d := &deployments[i]
		if r.redispatch(ctx, engine.Request{Job: d, Spec: engine.DeploymentSpec(d)}) {
			report.Redispatched++
		}
	}

	r.metrics.JobsRecovered(metrics.RecoveryFailed, report.Failed)
	r.metrics.JobsRecovered(metrics.RecoveryCancelled, report.Cancelled)
	r.metrics.JobsRecovered(metrics.RecoveryRedispatched, report.Redispatched)
	logger.InfoWithFields("recovery complete", map[string]interface{}{
		"failed":       report.Failed,
		"cancelled":    report.Cancelled,
		"redispatched": report.Redispatched,
	})
	return report, nil
}

func (r *Recovery) interruptedJobs(ctx context.Context) ([]models.Job, error) {
	runs, err := r.runs.ListByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list running test runs: %w", err)
	}
	deployments, err := r.deployments.ListByStatus(ctx, models.JobStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list in progress deployments: %w", err)
	}

	jobs := make([]models.Job, 0, len(runs)+len(deployments))
	for i := range runs {
		jobs = append(jobs, &runs[i])
	}
	for i := range deployments {
		jobs = append(jobs, &deployments[i])
	}
	return jobs, nil
}

// finish applies a terminal event, reporting whether it took effect
func (r *Recovery) finish(ctx context.Context, ref engine.Ref, ev engine.Event, reason string) bool {
	_, err := r.machine.Apply(ctx, ref, ev, engine.Patch{Error: reason})
	if err == nil {
		return true
	}
	var illegal *engine.IllegalTransitionError
	if !errors.As(err, &illegal) {
		logger.ErrorWithFields("failed to recover job", map[string]interface{}{
			"job_kind": ref.Kind,
			"job_id":   ref.ID,
			"error":    err.Error(),
		})
	}
	return false
}

func (r *Recovery) redispatch(ctx context.Context, req engine.Request) bool {
	if _, err := r.dispatcher.Dispatch(ctx, req); err != nil {
		ref := engine.RefOf(req.Job)
		logger.ErrorWithFields("failed to re-dispatch pending job", map[string]interface{}{
			"job_kind": ref.Kind,
			"job_id":   ref.ID,
			"error":    err.Error(),
		})
		return false
	}
	return true
}

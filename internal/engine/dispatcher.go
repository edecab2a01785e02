package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/logger"
)

const (
	// DefaultWriteTimeout bounds every record write made on behalf of an execution
	DefaultWriteTimeout = 10 * time.Second
	// outcomeWriteAttempts is how often recording a terminal status is retried
	outcomeWriteAttempts = 5
	// outcomeWriteBackoff is the initial wait between those attempts
	outcomeWriteBackoff = 200 * time.Millisecond
)

// Request asks the dispatcher to execute a job
type Request struct {
	// Job is either a new record (zero ID), which is persisted in PENDING, or an
	// existing PENDING record that has no execution yet.
	Job models.Job
	// Spec is handed to the runner; Ref and ExecutionID are filled in.
	Spec RunSpec
	// Timeout requests cancellation after the given duration. Zero uses the
	// dispatcher default.
	Timeout time.Duration
}

// Handle refers to a dispatched execution
type Handle struct {
	Ref         Ref
	ExecutionID string
	done        chan struct{}
}

// Done is closed once the execution has been supervised to its end
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Dispatcher creates job records and launches their executions as supervised goroutines
type Dispatcher struct {
	machine        *StateMachine
	registry       *Registry
	runner         Runner
	metrics        MetricsSink
	wg             sync.WaitGroup
	writeTimeout   time.Duration
	defaultTimeout time.Duration
}

// NewDispatcher creates a dispatcher
func NewDispatcher(machine *StateMachine, registry *Registry, runner Runner) *Dispatcher {
	return &Dispatcher{
		machine:      machine,
		registry:     registry,
		runner:       runner,
		metrics:      nopMetrics{},
		writeTimeout: DefaultWriteTimeout,
	}
}

// WithMetrics attaches a metrics sink to the dispatcher
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	if sink != nil {
		d.metrics = sink
	}
	return d
}

// WithDefaultTimeout sets the deadline applied to requests without one. Zero disables it.
func (d *Dispatcher) WithDefaultTimeout(timeout time.Duration) *Dispatcher {
	d.defaultTimeout = timeout
	return d
}

// Dispatch persists the job in PENDING when it is new, launches its execution
// and returns without waiting for it.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Handle, error) {
	if req.Job == nil {
		return nil, errors.New("dispatch request has no job")
	}

	ref := RefOf(req.Job)
	store, err := d.machine.Store(ref.Kind)
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	if ref.ID != 0 {
		if d.registry.Active(ref) {
			return nil, &AlreadyRunningError{Ref: ref}
		}
		status, err := store.LoadStatus(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if _, err := Next(ref.Kind, status, EventStart); err != nil {
			var illegal *IllegalTransitionError
			if errors.As(err, &illegal) {
				illegal.Ref = ref
			}
			return nil, err
		}
	} else {
		record := req.Job.Record()
		record.Status = models.JobStatusPending
		record.ExecutionID = executionID
		record.StartedAt = nil
		record.FinishedAt = nil
		if err := store.Insert(ctx, req.Job); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", ref.Kind.Noun(), err)
		}
		ref = RefOf(req.Job)
	}

	spec := req.Spec
	spec.Ref = ref
	spec.ExecutionID = executionID

	exec, stop := NewExecution(context.Background(), spec, store)
	if !d.registry.register(ref, exec.token) {
		stop()
		return nil, &AlreadyRunningError{Ref: ref}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}

	h := &Handle{Ref: ref, ExecutionID: executionID, done: make(chan struct{})}
	d.wg.Add(1)
	d.metrics.JobDispatched(ref.Kind)
	d.metrics.ExecutionsInFlightIncr()
	go d.supervise(h, exec, timeout)

	logger.InfoWithFields("job dispatched", map[string]interface{}{
		"job_kind":     ref.Kind,
		"job_id":       ref.ID,
		"execution_id": executionID,
		"timeout":      timeout.String(),
	})
	return h, nil
}

// Wait blocks until every supervised execution has ended. If ctx expires first,
// all in-flight executions are signalled to stop and ctx.Err() is returned.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n := d.registry.signalAll()
		logger.Warnf("Dispatcher shutdown deadline reached, signalled %d in-flight executions", n)
		return ctx.Err()
	}
}

// supervise owns one execution from start to its recorded terminal status
func (d *Dispatcher) supervise(h *Handle, exec *Execution, timeout time.Duration) {
	token := exec.token
	defer d.wg.Done()
	defer close(h.done)
	defer d.metrics.ExecutionsInFlightDecr()
	defer d.registry.release(h.Ref, token)

	fields := map[string]interface{}{
		"job_kind":     h.Ref.Kind,
		"job_id":       h.Ref.ID,
		"execution_id": h.ExecutionID,
	}

	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() { d.expire(h.Ref, timeout) })
		defer timer.Stop()
	}

	started := d.machine.Now()
	if _, err := d.apply(h.Ref, EventStart, Patch{ExecutionID: h.ExecutionID, StartedAt: &started}); err != nil {
		fields["error"] = err.Error()
		if isIllegal(err) {
			logger.InfoWithFields("job no longer pending, skipping execution", fields)
			return
		}
		logger.ErrorWithFields("failed to start job", fields)
		return
	}

	result, runErr := d.invoke(token.Context(), exec)
	if runErr != nil {
		fields["error"] = runErr.Error()
		if token.Cancelled() {
			logger.InfoWithFields("job execution stopped after cancellation", fields)
		} else {
			logger.ErrorWithFields("job execution failed", fields)
		}
	}

	ev, patch := outcome(h.Ref.Kind, result, runErr, d.machine.Now())
	status, err := d.recordOutcome(h.Ref, ev, patch)
	if err != nil {
		fields["error"] = err.Error()
		if isIllegal(err) {
			d.metrics.LateCallbackIgnored(h.Ref.Kind)
			fields["event"] = ev
			logger.InfoWithFields("ignoring late runner callback", fields)
			return
		}
		logger.ErrorWithFields("failed to record job outcome", fields)
		return
	}

	d.metrics.JobFinished(h.Ref.Kind, status, d.machine.Now().Sub(started))
	fields["status"] = status
	logger.InfoWithFields("job finished", fields)
}

// invoke runs the runner and turns anything escaping it, panics included, into an ExecutionError
func (d *Dispatcher) invoke(ctx context.Context, exec *Execution) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorWithFields("runner panicked", map[string]interface{}{
				"job_kind":     exec.Spec.Ref.Kind,
				"job_id":       exec.Spec.Ref.ID,
				"execution_id": exec.Spec.ExecutionID,
				"panic":        fmt.Sprint(r),
				"stack":        string(debug.Stack()),
			})
			result = nil
			err = &ExecutionError{
				Ref:         exec.Spec.Ref,
				ExecutionID: exec.Spec.ExecutionID,
				Panicked:    true,
				Err:         fmt.Errorf("%v", r),
			}
		}
	}()

	result, err = d.runner.Run(ctx, exec)
	if err != nil {
		return result, &ExecutionError{Ref: exec.Spec.Ref, ExecutionID: exec.Spec.ExecutionID, Err: err}
	}
	if result == nil {
		return nil, &ExecutionError{
			Ref:         exec.Spec.Ref,
			ExecutionID: exec.Spec.ExecutionID,
			Err:         errors.New("runner returned no result"),
		}
	}
	return result, nil
}

// recordOutcome applies the terminal event, retrying writes that fail for reasons
// other than the transition being illegal.
func (d *Dispatcher) recordOutcome(ref Ref, ev Event, patch Patch) (models.JobStatus, error) {
	backoff := outcomeWriteBackoff
	var err error
	for attempt := 1; attempt <= outcomeWriteAttempts; attempt++ {
		var status models.JobStatus
		status, err = d.apply(ref, ev, patch)
		if err == nil || isIllegal(err) {
			return status, err
		}
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return "", err
		}
		logger.Warnf("Recording outcome of %s failed (attempt %d/%d): %v", ref, attempt, outcomeWriteAttempts, err)
		time.Sleep(backoff)
		backoff *= 2
	}
	return "", err
}

func (d *Dispatcher) apply(ref Ref, ev Event, patch Patch) (models.JobStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()
	return d.machine.Apply(ctx, ref, ev, patch)
}

// expire layers a deadline over the cancellation registry
func (d *Dispatcher) expire(ref Ref, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()
	reason := fmt.Sprintf("execution exceeded timeout of %s", timeout)
	if err := d.registry.RequestCancel(ctx, ref, reason); err != nil && !isValidation(err) {
		logger.Errorf("Failed to cancel %s after timeout: %v", ref, err)
	}
}

// outcome maps a runner report to the terminal event and the fields written with it
func outcome(kind models.JobKind, result *Result, runErr error, now time.Time) (Event, Patch) {
	var patch Patch
	if result != nil {
		patch.AppendLogs = result.Output
	}
	if runErr != nil {
		patch.Error = runErr.Error()
		return EventFail, patch
	}

	if kind == models.JobKindTestRun && result.Tests != nil {
		patch.Fields = map[string]interface{}{
			models.TestRunTotalTestsField:  result.Tests.Total,
			models.TestRunPassedTestsField: result.Tests.Passed,
			models.TestRunFailedTestsField: result.Tests.Failed,
		}
		if result.Tests.Coverage != nil {
			patch.Fields[models.TestRunCoverageField] = *result.Tests.Coverage
		}
	}

	if !result.Success {
		patch.Error = result.Message
		if patch.Error == "" {
			patch.Error = "runner reported failure"
		}
		return EventFail, patch
	}

	if kind == models.JobKindDeployment {
		patch.Fields = map[string]interface{}{models.DeploymentDeployedAtField: now}
	}
	return EventSucceed, patch
}

func isIllegal(err error) bool {
	var illegal *IllegalTransitionError
	return errors.As(err, &illegal)
}

func isValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/shipyard/internal/db/models"
)

// blockingRunner reports on started and returns once the execution is cancelled
type blockingRunner struct {
	started chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 1)}
}

func (r *blockingRunner) Run(ctx context.Context, exec *Execution) (*Result, error) {
	exec.Logf("waiting for cancellation")
	r.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *blockingRunner) waitStarted(t *testing.T) {
	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not start")
	}
}

func TestDispatchTestRunPasses(t *testing.T) {
	coverage := 0.9
	runner := RunnerFunc(func(_ context.Context, exec *Execution) (*Result, error) {
		assert.Equal(t, "staging", exec.Spec.Environment)
		assert.NotEmpty(t, exec.Spec.ExecutionID)
		exec.Logf("running %d commands", len(exec.Spec.Commands))
		return &Result{
			Success: true,
			Output:  "all good\n",
			Tests:   &TestSummary{Total: 12, Passed: 12, Coverage: &coverage},
		}, nil
	})
	h := newHarness(runner)

	run := newTestRun()
	handle, err := h.dispatcher.Dispatch(context.Background(), Request{
		Job:  run,
		Spec: RunSpec{Environment: run.Environment, Commands: []string{"make test"}},
	})
	require.NoError(t, err)
	require.NotZero(t, handle.Ref.ID)
	require.True(t, waitDone(handle))

	stored := h.runs.testRun(handle.Ref.ID)
	assert.Equal(t, models.JobStatusPassed, stored.Status)
	assert.Equal(t, handle.ExecutionID, stored.ExecutionID)
	assert.Equal(t, 12, stored.TotalTests)
	assert.Equal(t, 12, stored.PassedTests)
	require.NotNil(t, stored.Coverage)
	assert.Equal(t, coverage, *stored.Coverage)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.FinishedAt)
	assert.Contains(t, stored.Logs, "running 1 commands")
	assert.Contains(t, stored.Logs, "all good")
	assert.Zero(t, h.registry.Len())
	assert.Zero(t, h.metrics.active())
}

func TestDispatchDeploymentRecordsDeployedAt(t *testing.T) {
	h := newHarness(succeed)
	handle, err := h.dispatcher.Dispatch(context.Background(), Request{
		Job: newDeployment("production", "v1", "", nil),
	})
	require.NoError(t, err)
	require.True(t, waitDone(handle))

	stored := h.deploys.deployment(handle.Ref.ID)
	assert.Equal(t, models.JobStatusDeployed, stored.Status)
	assert.NotNil(t, stored.DeployedAt)
	assert.NotNil(t, stored.FinishedAt)
}

func TestDispatchRecordsFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner Runner
		errMsg string
	}{
		{
			name: "runner error",
			runner: RunnerFunc(func(context.Context, *Execution) (*Result, error) {
				return nil, errors.New("connection refused")
			}),
			errMsg: "connection refused",
		},
		{
			name: "runner panic",
			runner: RunnerFunc(func(context.Context, *Execution) (*Result, error) {
				panic("index out of range")
			}),
			errMsg: "index out of range",
		},
		{
			name: "structured failure",
			runner: RunnerFunc(func(context.Context, *Execution) (*Result, error) {
				return &Result{Success: false, Message: "3 tests failed", Tests: &TestSummary{Total: 5, Passed: 2, Failed: 3}}, nil
			}),
			errMsg: "3 tests failed",
		},
		{
			name: "no result",
			runner: RunnerFunc(func(context.Context, *Execution) (*Result, error) {
				return nil, nil
			}),
			errMsg: "runner returned no result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.runner)
			handle, err := h.dispatcher.Dispatch(context.Background(), Request{Job: newTestRun()})
			require.NoError(t, err)
			require.True(t, waitDone(handle))

			stored := h.runs.testRun(handle.Ref.ID)
			assert.Equal(t, models.JobStatusFailed, stored.Status)
			assert.Contains(t, stored.Error, tt.errMsg)
			assert.NotNil(t, stored.FinishedAt)
			assert.Zero(t, h.registry.Len())
		})
	}
}

func TestDispatchRetriesOutcomeWrites(t *testing.T) {
	h := newHarness(nil)
	h.dispatcher.runner = RunnerFunc(func(context.Context, *Execution) (*Result, error) {
		h.runs.mu.Lock()
		h.runs.casErrors = 2
		h.runs.mu.Unlock()
		return &Result{Success: true}, nil
	})

	handle, err := h.dispatcher.Dispatch(context.Background(), Request{Job: newTestRun()})
	require.NoError(t, err)
	require.True(t, waitDone(handle))
	assert.Equal(t, models.JobStatusPassed, h.runs.testRun(handle.Ref.ID).Status)
}

func TestDispatchRejectsSecondExecution(t *testing.T) {
	runner := newBlockingRunner()
	h := newHarness(runner)
	id := h.runs.put(newTestRun())
	run := &models.TestRun{}
	run.ID = id

	handle, err := h.dispatcher.Dispatch(context.Background(), Request{Job: run})
	require.NoError(t, err)
	runner.waitStarted(t)

	_, err = h.dispatcher.Dispatch(context.Background(), Request{Job: run})
	var running *AlreadyRunningError
	require.True(t, errors.As(err, &running))
	assert.Equal(t, id, running.Ref.ID)

	require.NoError(t, h.registry.RequestCancel(context.Background(), handle.Ref, "stop"))
	require.True(t, waitDone(handle))

	// A finished job cannot be started again
	_, err = h.dispatcher.Dispatch(context.Background(), Request{Job: run})
	assert.True(t, isIllegal(err))
}

func TestDispatchSkipsJobCancelledBeforeStart(t *testing.T) {
	h := newHarness(RunnerFunc(func(context.Context, *Execution) (*Result, error) {
		t.Error("runner must not be invoked")
		return nil, nil
	}))
	id := h.runs.put(newTestRun())
	ref := Ref{Kind: models.JobKindTestRun, ID: id}
	require.NoError(t, h.registry.RequestCancel(context.Background(), ref, "not needed"))

	run := &models.TestRun{}
	run.ID = id
	_, err := h.dispatcher.Dispatch(context.Background(), Request{Job: run})
	assert.True(t, isIllegal(err))
	assert.Equal(t, models.JobStatusCancelled, h.runs.testRun(id).Status)
}

func TestDispatchWithoutJob(t *testing.T) {
	h := newHarness(succeed)
	_, err := h.dispatcher.Dispatch(context.Background(), Request{})
	assert.Error(t, err)
}

func TestDispatchTimeoutCancels(t *testing.T) {
	h := newHarness(newBlockingRunner())
	h.dispatcher.WithDefaultTimeout(20 * time.Millisecond)

	handle, err := h.dispatcher.Dispatch(context.Background(), Request{Job: newTestRun()})
	require.NoError(t, err)
	require.True(t, waitDone(handle))

	stored := h.runs.testRun(handle.Ref.ID)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)
	assert.Contains(t, stored.Error, "execution exceeded timeout of 20ms")
	assert.NotNil(t, stored.FinishedAt)
}

func TestRequestTimeoutOverridesDefault(t *testing.T) {
	h := newHarness(newBlockingRunner())
	h.dispatcher.WithDefaultTimeout(time.Hour)

	handle, err := h.dispatcher.Dispatch(context.Background(), Request{Job: newTestRun(), Timeout: 10 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, waitDone(handle))
	assert.Equal(t, models.JobStatusCancelled, h.runs.testRun(handle.Ref.ID).Status)
}

func TestWaitSignalsExecutionsOnDeadline(t *testing.T) {
	runner := newBlockingRunner()
	h := newHarness(runner)
	handle, err := h.dispatcher.Dispatch(context.Background(), Request{Job: newTestRun()})
	require.NoError(t, err)
	runner.waitStarted(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.dispatcher.Wait(ctx), context.DeadlineExceeded)

	require.True(t, waitDone(handle))
	require.NoError(t, h.dispatcher.Wait(context.Background()))
	assert.True(t, IsTerminal(h.runs.testRun(handle.Ref.ID).Status))
}

func TestOutcome(t *testing.T) {
	now := time.Now().UTC()

	ev, patch := outcome(models.JobKindDeployment, &Result{Success: true, Output: "x"}, nil, now)
	assert.Equal(t, EventSucceed, ev)
	assert.Equal(t, now, patch.Fields[models.DeploymentDeployedAtField])
	assert.Equal(t, "x", patch.AppendLogs)

	ev, patch = outcome(models.JobKindTestRun, &Result{Success: false}, nil, now)
	assert.Equal(t, EventFail, ev)
	assert.Equal(t, "runner reported failure", patch.Error)

	ev, patch = outcome(models.JobKindTestRun, nil, errors.New("exit status 1"), now)
	assert.Equal(t, EventFail, ev)
	assert.Equal(t, "exit status 1", patch.Error)
	assert.Nil(t, patch.Fields)
}

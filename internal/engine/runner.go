package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/celestiaorg/shipyard/internal/logger"
)

// RunSpec is the resolved specification of a job handed to a Runner
type RunSpec struct {
	Ref           Ref                    `json:"-"`
	ExecutionID   string                 `json:"execution_id"`
	Environment   string                 `json:"environment"`
	Branch        string                 `json:"branch,omitempty"`
	CommitHash    string                 `json:"commit_hash,omitempty"`
	Version       string                 `json:"version,omitempty"`
	Commands      []string               `json:"commands,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// TestSummary holds the aggregate counters of a test run
type TestSummary struct {
	Total    int
	Passed   int
	Failed   int
	Coverage *float64
}

// Result is what a Runner reports when it returns without error
type Result struct {
	// Success is false for a structured failure such as failing tests.
	Success bool
	// Message describes a structured failure.
	Message string
	// Output is appended to the job logs.
	Output string
	// Tests is only meaningful for test runs.
	Tests *TestSummary
}

// LogAppender receives the log lines written by an execution
type LogAppender interface {
	AppendLogs(ctx context.Context, id uint, text string) error
}

// Execution is the runner's view of one in-flight job
type Execution struct {
	Spec  RunSpec
	token *Token
	logs  LogAppender
}

// NewExecution builds the execution of spec, writing logs through logs. The
// returned cancel function plays the part of a cancellation request.
func NewExecution(parent context.Context, spec RunSpec, logs LogAppender) (*Execution, context.CancelFunc) {
	token := newToken(parent)
	return &Execution{Spec: spec, token: token, logs: logs}, token.signal
}

// Cancelled reports whether cancellation was requested. Runners check it at
// safe checkpoints and stop as soon as practical.
func (e *Execution) Cancelled() bool {
	return e.token.Cancelled()
}

// Done is closed when cancellation is requested
func (e *Execution) Done() <-chan struct{} {
	return e.token.Done()
}

// Context returns a context cancelled together with the execution
func (e *Execution) Context() context.Context {
	return e.token.Context()
}

// Logf appends a timestamped line to the job logs
func (e *Execution) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
	ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
	defer cancel()
	if err := e.logs.AppendLogs(ctx, e.Spec.Ref.ID, line); err != nil {
		logger.WarnWithFields("failed to append job logs", map[string]interface{}{
			"job_kind":     e.Spec.Ref.Kind,
			"job_id":       e.Spec.Ref.ID,
			"execution_id": e.Spec.ExecutionID,
			"error":        err.Error(),
		})
	}
}

// Runner performs the actual work of a job. The context is cancelled when the
// job is cancelled.
type Runner interface {
	Run(ctx context.Context, exec *Execution) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, exec *Execution) (*Result, error)

// Run implements Runner
func (f RunnerFunc) Run(ctx context.Context, exec *Execution) (*Result, error) {
	return f(ctx, exec)
}

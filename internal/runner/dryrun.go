package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

// Configuration keys understood by the dry-run runner
const (
	// ConfigSimulateFailure makes the job fail. A string value is used as the failure message.
	ConfigSimulateFailure = "simulateFailure"
	// ConfigTotalTests sets the number of tests a test run reports
	ConfigTotalTests = "totalTests"
	// ConfigFailedTests sets the number of failing tests a test run reports
	ConfigFailedTests = "failedTests"
	// ConfigCoverage sets the coverage ratio a test run reports
	ConfigCoverage = "coverage"
)

const (
	defaultTestsPerCommand = 10
	defaultCoverage        = 0.8
)

// defaultTestCommands is used for suites without commands
var defaultTestCommands = []string{"go test ./..."}

// DryRun walks through the steps of a job without executing anything, pausing
// between steps. Cancellation is honoured before each step.
type DryRun struct {
	stepDelay time.Duration
}

var _ engine.Runner = (*DryRun)(nil)

// NewDryRun creates a dry-run runner pausing stepDelay between steps
func NewDryRun(stepDelay time.Duration) *DryRun {
	return &DryRun{stepDelay: stepDelay}
}

// Run implements engine.Runner
func (r *DryRun) Run(ctx context.Context, exec *engine.Execution) (*engine.Result, error) {
	switch exec.Spec.Ref.Kind {
	case models.JobKindTestRun:
		return r.runTests(ctx, exec)
	case models.JobKindDeployment:
		return r.deploy(ctx, exec)
	default:
		return nil, fmt.Errorf("dry run cannot execute job kind %q", exec.Spec.Ref.Kind)
	}
}

func (r *DryRun) runTests(ctx context.Context, exec *engine.Execution) (*engine.Result, error) {
	spec := exec.Spec
	commands := spec.Commands
	if len(commands) == 0 {
		commands = defaultTestCommands
	}

	exec.Logf("Starting test run on branch %q in %s", spec.Branch, spec.Environment)
	for _, command := range commands {
		if err := r.checkpoint(ctx, exec); err != nil {
			return nil, err
		}
		exec.Logf("$ %s", command)
	}

	total := intValue(spec.Configuration, ConfigTotalTests, defaultTestsPerCommand*len(commands))
	failed := intValue(spec.Configuration, ConfigFailedTests, 0)
	if failed > total {
		failed = total
	}
	coverage := floatValue(spec.Configuration, ConfigCoverage, defaultCoverage)
	summary := &engine.TestSummary{
		Total:    total,
		Passed:   total - failed,
		Failed:   failed,
		Coverage: &coverage,
	}
	exec.Logf("Tests: %d total, %d passed, %d failed", summary.Total, summary.Passed, summary.Failed)

	if msg, fail := failure(spec.Configuration); fail {
		return &engine.Result{Success: false, Message: msg, Tests: summary}, nil
	}
	if failed > 0 {
		return &engine.Result{
			Success: false,
			Message: fmt.Sprintf("%d of %d tests failed", failed, total),
			Tests:   summary,
		}, nil
	}
	return &engine.Result{Success: true, Tests: summary}, nil
}

func (r *DryRun) deploy(ctx context.Context, exec *engine.Execution) (*engine.Result, error) {
	spec := exec.Spec
	steps := []string{
		fmt.Sprintf("Fetching version %s (commit %s)", spec.Version, shortCommit(spec.CommitHash)),
		fmt.Sprintf("Rolling out to %s", spec.Environment),
		"Verifying health checks",
	}
	if reason, ok := spec.Configuration[engine.RollbackReasonKey]; ok {
		exec.Logf("Rollback deployment: %v", reason)
	}

	for _, step := range steps {
		if err := r.checkpoint(ctx, exec); err != nil {
			return nil, err
		}
		exec.Logf("%s", step)
	}

	if msg, fail := failure(spec.Configuration); fail {
		return &engine.Result{Success: false, Message: msg}, nil
	}
	exec.Logf("Version %s deployed to %s", spec.Version, spec.Environment)
	return &engine.Result{Success: true}, nil
}

// checkpoint waits one step and reports cancellation
func (r *DryRun) checkpoint(ctx context.Context, exec *engine.Execution) error {
	if exec.Cancelled() {
		exec.Logf("Cancellation requested, stopping")
		return context.Canceled
	}
	if r.stepDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(r.stepDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		exec.Logf("Cancellation requested, stopping")
		return ctx.Err()
	}
}

func failure(cfg map[string]interface{}) (string, bool) {
	switch v := cfg[ConfigSimulateFailure].(type) {
	case bool:
		return "simulated failure", v
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	default:
		return "", false
	}
}

func intValue(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatValue(cfg map[string]interface{}, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func shortCommit(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	if hash == "" {
		return "unknown"
	}
	return hash
}

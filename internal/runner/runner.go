// Package runner contains the Runner implementations the engine dispatches jobs to
package runner

import (
	"context"
	"fmt"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

// Router hands each execution to the runner registered for its job kind
type Router struct {
	runners map[models.JobKind]engine.Runner
}

var _ engine.Runner = (*Router)(nil)

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{runners: make(map[models.JobKind]engine.Runner)}
}

// Handle registers the runner for a job kind
func (r *Router) Handle(kind models.JobKind, runner engine.Runner) *Router {
	r.runners[kind] = runner
	return r
}

// Run implements engine.Runner
func (r *Router) Run(ctx context.Context, exec *engine.Execution) (*engine.Result, error) {
	runner, ok := r.runners[exec.Spec.Ref.Kind]
	if !ok {
		return nil, fmt.Errorf("no runner registered for job kind %q", exec.Spec.Ref.Kind)
	}
	return runner.Run(ctx, exec)
}

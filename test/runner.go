package test

import (
	"context"
	"sync"

	"github.com/celestiaorg/shipyard/internal/engine"
)

// GateRunner wraps a Runner and, while holding, blocks every execution until
// Release is called or the execution is cancelled.
type GateRunner struct {
	inner engine.Runner

	mu       sync.Mutex
	holding  bool
	stubborn bool
	release  chan struct{}
	started  []engine.RunSpec
}

var _ engine.Runner = (*GateRunner)(nil)

// NewGateRunner creates a gate around inner. The gate starts open.
func NewGateRunner(inner engine.Runner) *GateRunner {
	return &GateRunner{inner: inner, release: make(chan struct{})}
}

// Hold makes subsequent executions wait for Release
func (g *GateRunner) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holding = true
	g.release = make(chan struct{})
}

// HoldIgnoringCancel makes subsequent executions wait for Release even when
// cancelled, then report success. It reproduces a runner whose success
// arrives after the job was cancelled.
func (g *GateRunner) HoldIgnoringCancel() {
	g.Hold()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stubborn = true
}

// Release lets every held execution continue and opens the gate
func (g *GateRunner) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holding {
		g.holding = false
		g.stubborn = false
		close(g.release)
	}
}

// Started returns the specs of every execution that reached the runner
func (g *GateRunner) Started() []engine.RunSpec {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]engine.RunSpec(nil), g.started...)
}

// Run implements engine.Runner
func (g *GateRunner) Run(ctx context.Context, exec *engine.Execution) (*engine.Result, error) {
	g.mu.Lock()
	g.started = append(g.started, exec.Spec)
	holding, stubborn, release := g.holding, g.stubborn, g.release
	g.mu.Unlock()

	if stubborn {
		<-release
		return &engine.Result{Success: true, Tests: &engine.TestSummary{Total: 1, Passed: 1}}, nil
	}
	if holding {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.Run(ctx, exec)
}

package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/celestiaorg/shipyard/internal/logger"
)

// Token is the cancellation signal handed to an in-flight execution. Runners
// poll Cancelled at safe checkpoints or select on Done while blocked.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancelled reports whether cancellation was requested
func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Done is closed when cancellation is requested
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context returns a context that is cancelled together with the token
func (t *Token) Context() context.Context {
	return t.ctx
}

func (t *Token) signal() {
	t.cancel()
}

// Registry maps in-flight jobs to their cancellation tokens. Its lock is
// independent of the record store so cancellation never waits on slow writes
// held by other jobs.
type Registry struct {
	mu      sync.Mutex
	entries map[Ref]*Token
	machine *StateMachine
	metrics MetricsSink
}

// NewRegistry creates a cancellation registry that validates cancellations through machine
func NewRegistry(machine *StateMachine) *Registry {
	return &Registry{
		entries: make(map[Ref]*Token),
		machine: machine,
		metrics: nopMetrics{},
	}
}

// WithMetrics attaches a metrics sink to the registry
func (r *Registry) WithMetrics(sink MetricsSink) *Registry {
	if sink != nil {
		r.metrics = sink
	}
	return r
}

// register adds token for ref. It returns false if ref already has one.
func (r *Registry) register(ref Ref, token *Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[ref]; exists {
		return false
	}
	r.entries[ref] = token
	return true
}

// release removes the entry for ref if it still belongs to token
func (r *Registry) release(ref Ref, token *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[ref]; ok && current == token {
		delete(r.entries, ref)
	}
	token.signal()
}

// detach removes the entry of ref, whose job is terminal, and fires its token.
// It reports whether an entry was found. A runner that ignores the token keeps
// running until it returns, but no longer counts as in flight.
func (r *Registry) detach(ref Ref) bool {
	r.mu.Lock()
	token, ok := r.entries[ref]
	delete(r.entries, ref)
	r.mu.Unlock()
	if ok {
		token.signal()
	}
	return ok
}

// signalAll fires every registered token
func (r *Registry) signalAll() int {
	r.mu.Lock()
	tokens := make([]*Token, 0, len(r.entries))
	for _, token := range r.entries {
		tokens = append(tokens, token)
	}
	r.mu.Unlock()
	for _, token := range tokens {
		token.signal()
	}
	return len(tokens)
}

// Active reports whether ref has an in-flight execution
func (r *Registry) Active(ref Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[ref]
	return ok
}

// Len returns the number of in-flight executions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RequestCancel moves the job to CANCELLED and signals its execution, if one is
// in flight. The registry entry is dropped as soon as the job is CANCELLED. Cancelling a job that is not pending or running fails with a
// *ValidationError every time it is attempted.
func (r *Registry) RequestCancel(ctx context.Context, ref Ref, reason string) error {
	_, err := r.machine.Apply(ctx, ref, EventCancel, Patch{Error: reason})
	if err != nil {
		var illegal *IllegalTransitionError
		if errors.As(err, &illegal) {
			r.metrics.CancellationRequested(ref.Kind, false)
			return illegal.AsValidation()
		}
		return err
	}

	r.metrics.CancellationRequested(ref.Kind, true)
	signalled := r.detach(ref)
	logger.InfoWithFields("job cancelled", map[string]interface{}{
		"job_kind":  ref.Kind,
		"job_id":    ref.ID,
		"signalled": signalled,
		"reason":    reason,
	})
	return nil
}

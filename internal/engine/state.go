package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/logger"
)

// maxSwapAttempts bounds how often Apply re-reads a status that changed under it
const maxSwapAttempts = 3

// Event is a request to move a job to another status
type Event string

const (
	// EventStart is emitted when the runner picks up a pending job
	EventStart Event = "start"
	// EventSucceed is emitted when the runner reports success
	EventSucceed Event = "succeed"
	// EventFail is emitted when the runner reports a failure or the execution crashes
	EventFail Event = "fail"
	// EventCancel is emitted by a cancellation request
	EventCancel Event = "cancel"
	// EventRollBack is emitted only by the rollback resolver
	EventRollBack Event = "rollback"
)

func (e Event) verb() string {
	switch e {
	case EventSucceed:
		return "complete"
	default:
		return string(e)
	}
}

// Ref identifies a job record
type Ref struct {
	Kind models.JobKind
	ID   uint
}

// RefOf returns the reference of a persisted job
func RefOf(job models.Job) Ref {
	return Ref{Kind: job.JobKind(), ID: job.JobID()}
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

type edge struct {
	from  models.JobStatus
	event Event
}

// transitions is the complete set of legal status changes per job kind
var transitions = map[models.JobKind]map[edge]models.JobStatus{
	models.JobKindTestRun: {
		{models.JobStatusPending, EventStart}:   models.JobStatusRunning,
		{models.JobStatusRunning, EventSucceed}: models.JobStatusPassed,
		{models.JobStatusRunning, EventFail}:    models.JobStatusFailed,
		{models.JobStatusPending, EventCancel}:  models.JobStatusCancelled,
		{models.JobStatusRunning, EventCancel}:  models.JobStatusCancelled,
	},
	models.JobKindDeployment: {
		{models.JobStatusPending, EventStart}:      models.JobStatusInProgress,
		{models.JobStatusInProgress, EventSucceed}: models.JobStatusDeployed,
		{models.JobStatusInProgress, EventFail}:    models.JobStatusFailed,
		{models.JobStatusPending, EventCancel}:     models.JobStatusCancelled,
		{models.JobStatusInProgress, EventCancel}:  models.JobStatusCancelled,
		{models.JobStatusDeployed, EventRollBack}:  models.JobStatusRolledBack,
	},
}

// terminal lists the statuses in which a job has finished. DEPLOYED is terminal
// but still accepts the rollback event.
var terminal = map[models.JobStatus]bool{
	models.JobStatusPassed:     true,
	models.JobStatusDeployed:   true,
	models.JobStatusFailed:     true,
	models.JobStatusCancelled:  true,
	models.JobStatusRolledBack: true,
}

// Next returns the status a job of the given kind moves to when ev is applied in from.
func Next(kind models.JobKind, from models.JobStatus, ev Event) (models.JobStatus, error) {
	table, ok := transitions[kind]
	if !ok {
		return "", fmt.Errorf("unknown job kind %q", kind)
	}
	to, ok := table[edge{from, ev}]
	if !ok {
		return "", &IllegalTransitionError{Ref: Ref{Kind: kind}, Current: from, Event: ev}
	}
	return to, nil
}

// IsTerminal reports whether status marks a finished job
func IsTerminal(status models.JobStatus) bool {
	return terminal[status]
}

// Patch carries the fields written together with a status change
type Patch struct {
	ExecutionID string
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Error       string
	AppendLogs  string
	// Fields holds kind specific columns such as test counters.
	Fields map[string]interface{}
}

// Store is the job record store for one job kind
type Store interface {
	// Insert persists a new job record in its current (PENDING) status.
	Insert(ctx context.Context, job models.Job) error
	// LoadStatus returns the stored status, or a *NotFoundError.
	LoadStatus(ctx context.Context, id uint) (models.JobStatus, error)
	// CompareAndSwap writes to and patch only if the stored status is still from.
	CompareAndSwap(ctx context.Context, id uint, from, to models.JobStatus, patch Patch) (bool, error)
	// AppendLogs appends diagnostic output regardless of status.
	AppendLogs(ctx context.Context, id uint, text string) error
}

// Transition describes an applied status change
type Transition struct {
	Ref   Ref
	From  models.JobStatus
	To    models.JobStatus
	Event Event
	At    time.Time
}

// Observer is notified after every applied transition. Implementations must not block.
type Observer interface {
	Transitioned(ctx context.Context, t Transition)
}

// StateMachine is the single authority for job status changes
type StateMachine struct {
	stores    map[models.JobKind]Store
	locks     *keyedMutex
	clock     func() time.Time
	observers []Observer
}

// NewStateMachine creates a state machine over the given per-kind stores
func NewStateMachine(stores map[models.JobKind]Store) *StateMachine {
	return &StateMachine{
		stores: stores,
		locks:  newKeyedMutex(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Observe registers an observer. It must be called before the machine is used.
func (m *StateMachine) Observe(o Observer) *StateMachine {
	m.observers = append(m.observers, o)
	return m
}

// Now returns the machine's current time
func (m *StateMachine) Now() time.Time {
	return m.clock()
}

// Store returns the record store for a job kind
func (m *StateMachine) Store(kind models.JobKind) (Store, error) {
	store, ok := m.stores[kind]
	if !ok {
		return nil, fmt.Errorf("no store registered for job kind %q", kind)
	}
	return store, nil
}

// Apply moves the job to the status ev leads to and returns it. Writes to the
// same job are serialized; whichever event is applied first wins and a later
// event that is no longer legal fails with *IllegalTransitionError.
func (m *StateMachine) Apply(ctx context.Context, ref Ref, ev Event, patch Patch) (models.JobStatus, error) {
	store, err := m.Store(ref.Kind)
	if err != nil {
		return "", err
	}
	return m.ApplyFunc(ctx, ref, ev, func(ctx context.Context, from, to models.JobStatus, at time.Time) (bool, error) {
		p := patch
		if IsTerminal(to) && !IsTerminal(from) {
			p.FinishedAt = &at
		}
		return store.CompareAndSwap(ctx, ref.ID, from, to, p)
	})
}

// WriteFunc persists a validated transition. It must only write if the stored
// status still equals from and report whether it did.
type WriteFunc func(ctx context.Context, from, to models.JobStatus, at time.Time) (bool, error)

// ApplyFunc validates ev like Apply but lets the caller persist the transition,
// for writes that span more than the job's own record.
func (m *StateMachine) ApplyFunc(ctx context.Context, ref Ref, ev Event, write WriteFunc) (models.JobStatus, error) {
	store, err := m.Store(ref.Kind)
	if err != nil {
		return "", err
	}

	unlock := m.locks.Lock(ref.String())
	defer unlock()

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		current, err := store.LoadStatus(ctx, ref.ID)
		if err != nil {
			return "", err
		}

		next, err := Next(ref.Kind, current, ev)
		if err != nil {
			var illegal *IllegalTransitionError
			if errors.As(err, &illegal) {
				illegal.Ref = ref
			}
			return current, err
		}

		at := m.clock()
		swapped, err := write(ctx, current, next, at)
		if err != nil {
			return current, fmt.Errorf("failed to persist %s -> %s for %s: %w", current, next, ref, err)
		}
		if !swapped {
			// Another process moved the record; re-read and re-validate.
			continue
		}

		logger.DebugWithFields("job transitioned", map[string]interface{}{
			"job_kind": ref.Kind,
			"job_id":   ref.ID,
			"from":     current,
			"to":       next,
			"event":    ev,
		})
		m.Notify(ctx, Transition{Ref: ref, From: current, To: next, Event: ev, At: at})
		return next, nil
	}

	return "", fmt.Errorf("status of %s changed concurrently %d times", ref, maxSwapAttempts)
}

// Notify forwards a transition to the observers
func (m *StateMachine) Notify(ctx context.Context, t Transition) {
	for _, o := range m.observers {
		o.Transitioned(ctx, t)
	}
}

// keyedMutex hands out one mutex per key and frees it when unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key and returns its release function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of keys currently held or awaited
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

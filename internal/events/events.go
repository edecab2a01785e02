// Package events provides the in-process job lifecycle event bus
package events

import (
	"context"
	"sync"
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/internal/logger"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	// EventJobTransitioned is emitted for every applied status change
	EventJobTransitioned EventType = "job_transitioned"
	// EventJobFinished is emitted when a job enters a terminal status
	EventJobFinished EventType = "job_finished"
	// EventChannelSize is the buffer size for the event channel
	EventChannelSize = 100
)

// Event represents a job lifecycle event
type Event struct {
	Type  EventType        // The type of event
	Kind  models.JobKind   // The job kind
	JobID uint             // The job ID
	From  models.JobStatus // The status the job left
	To    models.JobStatus // The status the job entered
	Cause engine.Event     // The state machine event that caused the change
	At    time.Time        // When the change was applied
}

// Handler is a function that handles an event
type Handler func(context.Context, Event) error

// Bus delivers lifecycle events to subscribed handlers asynchronously
type Bus struct {
	handlers   map[EventType][]Handler
	handlersMu sync.RWMutex
	eventChan  chan Event
	inflight   sync.WaitGroup
	stopped    chan struct{}
}

var _ engine.Observer = (*Bus)(nil)

// NewBus creates an event bus with the default buffer size
func NewBus() *Bus {
	return &Bus{
		handlers:  make(map[EventType][]Handler),
		eventChan: make(chan Event, EventChannelSize),
		stopped:   make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	logger.Debugf("📝 Registered handler for event type: %s", eventType)
}

// Publish queues an event. It never blocks: when the buffer is full the event is dropped.
func (b *Bus) Publish(event Event) bool {
	select {
	case b.eventChan <- event:
		logger.Debugf("📢 Published event: %s (%s %d)", event.Type, event.Kind, event.JobID)
		return true
	default:
		logger.Warnf("Event buffer full, dropping %s for %s %d", event.Type, event.Kind, event.JobID)
		return false
	}
}

// Transitioned implements engine.Observer
func (b *Bus) Transitioned(_ context.Context, t engine.Transition) {
	event := Event{
		Type:  EventJobTransitioned,
		Kind:  t.Ref.Kind,
		JobID: t.Ref.ID,
		From:  t.From,
		To:    t.To,
		Cause: t.Event,
		At:    t.At,
	}
	b.Publish(event)
	if engine.IsTerminal(t.To) {
		event.Type = EventJobFinished
		b.Publish(event)
	}
}

// Start starts the event processing loop
func (b *Bus) Start(ctx context.Context) {
	go b.processEvents(ctx)
	logger.Info("🎯 Started event processing loop")
}

// Wait blocks until the processing loop has stopped and every handler returned
func (b *Bus) Wait() {
	<-b.stopped
	b.inflight.Wait()
}

// processEvents handles events in the background
func (b *Bus) processEvents(ctx context.Context) {
	defer close(b.stopped)
	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Stopping event processing loop")
			return
		case event := <-b.eventChan:
			b.dispatch(ctx, event)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event Event) {
	b.handlersMu.RLock()
	eventHandlers := b.handlers[event.Type]
	b.handlersMu.RUnlock()

	for _, handler := range eventHandlers {
		b.inflight.Add(1)
		go func(h Handler, e Event) {
			defer b.inflight.Done()
			if err := h(ctx, e); err != nil {
				logger.Errorf("❌ Failed to handle event %s for %s %d: %v", e.Type, e.Kind, e.JobID, err)
			}
		}(handler, event)
	}
}

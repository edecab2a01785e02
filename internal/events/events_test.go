package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

func collect(t *testing.T, bus *Bus, eventType EventType, n int) func() []Event {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		events []Event
	)
	wg.Add(n)
	bus.Subscribe(eventType, func(_ context.Context, e Event) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		wg.Done()
		return nil
	})
	return func() []Event {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Test timed out waiting for event handler")
		}
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func TestEventSystem(t *testing.T) {
	t.Run("Transition and finish events", func(t *testing.T) {
		bus := NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		bus.Start(ctx)

		transitioned := collect(t, bus, EventJobTransitioned, 2)
		finished := collect(t, bus, EventJobFinished, 1)

		ref := engine.Ref{Kind: models.JobKindTestRun, ID: 7}
		now := time.Now().UTC()
		bus.Transitioned(ctx, engine.Transition{Ref: ref, From: models.JobStatusPending, To: models.JobStatusRunning, Event: engine.EventStart, At: now})
		bus.Transitioned(ctx, engine.Transition{Ref: ref, From: models.JobStatusRunning, To: models.JobStatusPassed, Event: engine.EventSucceed, At: now})

		assert.Len(t, transitioned(), 2)
		got := finished()
		require.Len(t, got, 1)
		assert.Equal(t, uint(7), got[0].JobID)
		assert.Equal(t, models.JobKindTestRun, got[0].Kind)
		assert.Equal(t, models.JobStatusPassed, got[0].To)
		assert.Equal(t, engine.EventSucceed, got[0].Cause)
	})

	t.Run("Multiple Handlers", func(t *testing.T) {
		bus := NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		bus.Start(ctx)

		first := collect(t, bus, EventJobFinished, 1)
		second := collect(t, bus, EventJobFinished, 1)
		bus.Publish(Event{Type: EventJobFinished, Kind: models.JobKindDeployment, JobID: 1, To: models.JobStatusDeployed})

		assert.Len(t, first(), 1)
		assert.Len(t, second(), 1)
	})

	t.Run("Publish never blocks", func(t *testing.T) {
		bus := NewBus()
		for i := 0; i < EventChannelSize; i++ {
			require.True(t, bus.Publish(Event{Type: EventJobTransitioned}))
		}
		assert.False(t, bus.Publish(Event{Type: EventJobTransitioned}))
	})

	t.Run("Wait returns after stop", func(t *testing.T) {
		bus := NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		bus.Start(ctx)
		cancel()

		done := make(chan struct{})
		go func() {
			bus.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Wait did not return after the loop stopped")
		}
	})
}

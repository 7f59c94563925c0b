package events

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestMemoryBusRoutesByType(t *testing.T) {
	bus := NewMemoryBus(zap.NewNop())

	var escalations, all recorder
	bus.Subscribe(ComplaintEscalated, escalations.handle)
	bus.Subscribe(AllEvents, all.handle)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{Type: AssignmentCreated, ComplaintID: "c1"}))
	require.NoError(t, bus.Publish(ctx, Event{Type: ComplaintEscalated, ComplaintID: "c1", Level: 1}))
	require.NoError(t, bus.Publish(ctx, Event{Type: ComplaintEscalated, ComplaintID: "c1", Level: 2}))
	require.NoError(t, bus.Close())

	got := escalations.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Level)
	assert.Equal(t, 2, got[1].Level)
	assert.Len(t, all.snapshot(), 3)
}

func TestMemoryBusHandlerErrorsAreIsolated(t *testing.T) {
	bus := NewMemoryBus(nil)

	var ok recorder
	bus.Subscribe(AssignmentCreated, func(context.Context, Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(AssignmentCreated, func(context.Context, Event) error {
		panic("bad handler")
	})
	bus.Subscribe(AssignmentCreated, ok.handle)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: AssignmentCreated}))
	require.NoError(t, bus.Close())
	assert.Len(t, ok.snapshot(), 1)
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus(nil)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: AssignmentCreated}), ErrBusClosed)
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	bus, err := NewRedisBus(ctx, client, "complaint-events-test", zap.NewNop())
	require.NoError(t, err)

	received := make(chan Event, 1)
	bus.Subscribe(ComplaintEscalated, func(_ context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, bus.Publish(ctx, Event{Type: ComplaintEscalated, ComplaintID: "c9", Level: 3}))

	select {
	case e := <-received:
		assert.Equal(t, "c9", e.ComplaintID)
		assert.Equal(t, 3, e.Level)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
	require.NoError(t, bus.Close())
}

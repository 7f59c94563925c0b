package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

const defaultQueueSize = 256

type subscriber struct {
	eventType string
	handler   Handler
	queue     chan Event
}

// MemoryBus delivers events asynchronously inside the process. Each
// subscriber has its own queue and goroutine, so a slow consumer never
// blocks another one. Events reach a given subscriber in publish order.
type MemoryBus struct {
	logger    *zap.Logger
	queueSize int

	mu          sync.RWMutex
	subscribers []*subscriber
	closed      bool
	wg          sync.WaitGroup
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBus{
		logger:    logger.Named("events"),
		queueSize: defaultQueueSize,
	}
}

// Subscribe registers h for eventType, or for every type with AllEvents.
func (b *MemoryBus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	sub := &subscriber{
		eventType: eventType,
		handler:   h,
		queue:     make(chan Event, b.queueSize),
	}
	b.subscribers = append(b.subscribers, sub)

	b.wg.Add(1)
	go b.run(sub)
}

func (b *MemoryBus) run(sub *subscriber) {
	defer b.wg.Done()
	for e := range sub.queue {
		b.deliver(sub, e)
	}
}

func (b *MemoryBus) deliver(sub *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("type", e.Type),
				zap.String("complaint_id", e.ComplaintID),
				zap.Any("panic", r))
		}
	}()
	if err := sub.handler(context.Background(), e); err != nil {
		b.logger.Warn("event handler failed",
			zap.String("type", e.Type),
			zap.String("complaint_id", e.ComplaintID),
			zap.Error(err))
	}
}

// Publish enqueues e for every matching subscriber. It blocks only while a
// subscriber queue is full, and gives up when ctx is done.
func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	for _, sub := range b.subscribers {
		if sub.eventType != AllEvents && sub.eventType != e.Type {
			continue
		}
		select {
		case sub.queue <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting events and waits until every queued event was handled.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

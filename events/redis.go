package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBus publishes events on a Redis pub/sub channel so that every
// replica's subscribers see them. Received messages are handed to a local
// MemoryBus for delivery.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
	local   *MemoryBus

	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

// NewRedisBus connects to Redis and starts receiving on channel.
func NewRedisBus(ctx context.Context, client *redis.Client, channel string, logger *zap.Logger) (*RedisBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pubsub := client.Subscribe(ctx, channel)
	// wait for the subscription confirmation before publishing anything
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	b := &RedisBus{
		client:  client,
		channel: channel,
		logger:  logger.Named("events.redis"),
		local:   NewMemoryBus(logger),
		pubsub:  pubsub,
		done:    make(chan struct{}),
	}
	go b.receive()
	return b, nil
}

func (b *RedisBus) receive() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			b.logger.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		if err := b.local.Publish(context.Background(), e); err != nil {
			b.logger.Warn("failed to deliver event locally", zap.String("type", e.Type), zap.Error(err))
		}
	}
}

// Publish serializes e onto the Redis channel.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(eventType string, h Handler) {
	b.local.Subscribe(eventType, h)
}

// Close unsubscribes from Redis and drains local subscribers.
func (b *RedisBus) Close() error {
	var err error
	b.once.Do(func() {
		err = b.pubsub.Close()
		<-b.done
		b.local.Close()
	})
	return err
}

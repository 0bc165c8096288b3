package replication

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisConfig selects the Redis server used as the broadcast medium.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisTransport broadcasts over Redis PUBLISH/SUBSCRIBE. Redis echoes a
// publisher's own messages, which the Channel drops by source.
type RedisTransport struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	channel string
	inbox   chan []byte
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*RedisTransport)(nil)

// NewRedisTransport connects, subscribes to channel and starts forwarding
// inbound messages.
func NewRedisTransport(ctx context.Context, cfg RedisConfig, channel string) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	pubsub := client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so nothing published right after
	// construction is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	t := &RedisTransport{
		client:  client,
		pubsub:  pubsub,
		channel: channel,
		inbox:   make(chan []byte, memoryQueueSize),
		done:    make(chan struct{}),
	}
	go t.forward()
	return t, nil
}

func (t *RedisTransport) forward() {
	defer close(t.inbox)
	for msg := range t.pubsub.Channel() {
		select {
		case t.inbox <- []byte(msg.Payload):
		case <-t.done:
			return
		default:
			// inbox full: lossy by contract
		}
	}
}

// Send publishes payload on the channel.
func (t *RedisTransport) Send(ctx context.Context, payload []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if err := t.client.Publish(ctx, t.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.channel, err)
	}
	return nil
}

// Messages yields inbound payloads.
func (t *RedisTransport) Messages() <-chan []byte {
	return t.inbox
}

// Close unsubscribes and closes the client.
func (t *RedisTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		if err := t.pubsub.Close(); err != nil {
			t.closeErr = err
		}
		if err := t.client.Close(); err != nil && t.closeErr == nil {
			t.closeErr = err
		}
	})
	return t.closeErr
}

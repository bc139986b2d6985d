package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/scriptflow/config"
	"github.com/BaSui01/scriptflow/types"
)

// EventType discriminates output events on the wire.
type EventType string

const (
	// EventLine carries one line of standard output
	EventLine EventType = "line"

	// EventStatus carries a status transition, including the terminal one
	EventStatus EventType = "status"
)

// subscriberBuffer is the per-subscription channel capacity. A subscriber
// that falls further behind than this loses events rather than stalling the
// broker.
const subscriberBuffer = 256

// OutputEvent is one event on an execution's output stream.
type OutputEvent struct {
	ExecutionID string    `json:"execution_id"`
	Type        EventType `json:"type"`
	Line        string    `json:"line,omitempty"`
	Status      string    `json:"status,omitempty"`
	ExitCode    int       `json:"exit_code,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Terminal reports whether this event ends the stream.
func (e OutputEvent) Terminal() bool {
	return e.Type == EventStatus && e.Status != "" && e.Status != "running"
}

// Broker publishes execution output to per-execution Redis channels and
// hands out subscriptions on them.
type Broker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewBroker connects to Redis and verifies the connection.
func NewBroker(cfg config.RedisConfig, logger *zap.Logger) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrBrokerUnavailable, "failed to connect to redis").WithCause(err)
	}

	b := NewBrokerWithClient(client, cfg.ChannelPrefix, logger)
	b.logger.Info("output broker connected",
		zap.String("addr", cfg.Addr),
		zap.String("channel_prefix", cfg.ChannelPrefix),
	)
	return b, nil
}

// NewBrokerWithClient wraps an existing Redis client. Used by tests to point
// the broker at miniredis.
func NewBrokerWithClient(client *redis.Client, prefix string, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "broker")),
	}
}

func (b *Broker) channel(executionID string) string {
	return b.prefix + executionID
}

// Publish sends one event to the execution's channel. Publishing to a
// channel with no subscribers is not an error.
func (b *Broker) Publish(ctx context.Context, event OutputEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return types.NewError(types.ErrBrokerUnavailable, "broker is closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to encode output event").WithCause(err)
	}

	if err := b.client.Publish(ctx, b.channel(event.ExecutionID), data).Err(); err != nil {
		b.logger.Error("publish failed",
			zap.String("execution_id", event.ExecutionID),
			zap.Error(err),
		)
		return types.NewError(types.ErrBrokerUnavailable, "failed to publish output event").WithCause(err).WithRetryable(true)
	}
	return nil
}

// Subscribe opens a stream of events for one execution. The returned cancel
// function must be called to release the underlying Redis subscription; the
// event channel closes once the subscription ends.
func (b *Broker) Subscribe(ctx context.Context, executionID string) (<-chan OutputEvent, func(), error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, nil, types.NewError(types.ErrBrokerUnavailable, "broker is closed")
	}
	sub := b.client.Subscribe(ctx, b.channel(executionID))
	b.mu.RUnlock()

	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, types.NewError(types.ErrBrokerUnavailable, "failed to subscribe").WithCause(err).WithRetryable(true)
	}

	events := make(chan OutputEvent, subscriberBuffer)
	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event OutputEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed output event",
					zap.String("execution_id", executionID),
					zap.Error(err),
				)
				continue
			}
			select {
			case events <- event:
			default:
				b.logger.Warn("subscriber too slow, dropping event",
					zap.String("execution_id", executionID),
				)
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return events, cancel, nil
}

// Ping checks the Redis connection.
func (b *Broker) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return types.NewError(types.ErrBrokerUnavailable, "broker is closed")
	}
	return b.client.Ping(ctx).Err()
}

// Close shuts the broker down.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.logger.Info("closing output broker")

	return b.client.Close()
}

package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// subscribeBuffer is the number of inbound messages held between the redis
// reader and the consumer.
const subscribeBuffer = 64

// Redis is a PubSub backed by Redis PUBLISH/SUBSCRIBE.
type Redis struct {
	client *redis.Client
}

// DialRedis connects to the relay and verifies it answers PING.
func DialRedis(ctx context.Context, opts *redis.Options) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Redis{client: client}, nil
}

// NewRedis wraps an existing client without checking connectivity.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Publish(ctx context.Context, channel, message string) error {
	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	sub := r.client.Subscribe(ctx, channels...)
	// Wait for the subscription to be confirmed so that failures surface
	// here rather than as a silently empty stream.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	// Receive does not observe ctx while blocked on the socket, so closing
	// the subscription is what unblocks the reader on cancellation.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = sub.Close()
	}()

	out := make(chan Message, subscribeBuffer)
	go func() {
		defer close(out)
		defer close(done)
		for {
			// ReceiveMessage reports a dropped connection instead of
			// resubscribing behind the caller's back, which ends the stream.
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("redis subscription lost", "channels", channels, "err", err)
				}
				return
			}
			select {
			case out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *Redis) Close() error { return r.client.Close() }

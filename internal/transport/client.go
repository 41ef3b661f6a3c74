package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"go.klb.dev/csync/internal/formatter"
	"go.klb.dev/csync/internal/frame"
)

// DefaultTimeout bounds a single publish when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config binds a Client to a device identity.
type Config struct {
	Namespace string
	Device    string
	Timeout   time.Duration
}

// Client sends and receives frames for one device.
type Client struct {
	ps        PubSub
	format    formatter.Formatter
	namespace string
	device    string
	timeout   time.Duration
}

// NewClient returns a Client publishing on cfg.Device's channel.
func NewClient(ps PubSub, f formatter.Formatter, cfg Config) *Client {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		ps:        ps,
		format:    f,
		namespace: ns,
		device:    cfg.Device,
		timeout:   timeout,
	}
}

// Channel returns the channel this client publishes on.
func (c *Client) Channel() string { return Channel(c.namespace, c.device) }

// Send encodes, formats and publishes f on the local channel. The publish is
// bounded by the client timeout and is not retried.
func (c *Client) Send(ctx context.Context, f *frame.Frame) error {
	start := time.Now()
	msg, err := c.format.Encode(frame.Encode(f))
	if err != nil {
		return fmt.Errorf("format frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.ps.Publish(ctx, c.Channel(), msg); err != nil {
		return err
	}
	slog.Debug("frame published",
		"channel", c.Channel(),
		"kind", f.Kind,
		"size", humanize.Bytes(uint64(len(f.Payload))),
		"took", time.Since(start),
	)
	return nil
}

// Subscribe watches the channels of peers and yields decoded frames. A message
// that fails to decode is logged and dropped; the stream continues. The
// returned channel is closed when the underlying subscription ends.
func (c *Client) Subscribe(ctx context.Context, peers []string) (<-chan *frame.Frame, error) {
	channels := make([]string, len(peers))
	for i, p := range peers {
		channels[i] = Channel(c.namespace, p)
	}
	msgs, err := c.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, err
	}
	slog.Info("subscribed", "channels", channels)

	out := make(chan *frame.Frame, subscribeBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			f, err := c.decode(msg)
			if err != nil {
				slog.Warn("dropping inbound message",
					"from", Origin(c.namespace, msg.Channel),
					"err", err,
				)
				continue
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) decode(msg Message) (*frame.Frame, error) {
	data, err := c.format.Decode(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("format decode: %w", err)
	}
	f, err := frame.Decode(data, Origin(c.namespace, msg.Channel))
	if err != nil {
		return nil, fmt.Errorf("frame decode: %w", err)
	}
	return f, nil
}

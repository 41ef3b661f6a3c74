// Package transport carries formatted frames over a publish/subscribe relay.
//
// PubSub is the raw relay contract: text messages on named channels. Client
// binds a PubSub to one device identity and to the frame and formatter layers,
// so the sync loop deals only in frames.
package transport

import (
	"context"
	"errors"
	"strings"
)

// DefaultNamespace prefixes every device channel.
const DefaultNamespace = "/csync"

// ErrNoChannels is returned when Subscribe is called with nothing to watch.
var ErrNoChannels = errors.New("no channels to subscribe")

// Message is one inbound relay message.
type Message struct {
	Channel string
	Payload string
}

// PubSub is a publish/subscribe relay client.
//
// Publish reports relay failures to the caller and does not retry.
//
// Subscribe opens one long-lived subscription. The returned channel is closed
// when the subscription ends, either because ctx was cancelled or because the
// relay connection was lost; it is never restarted.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Close() error
}

// Channel returns the relay channel for device under namespace.
func Channel(namespace, device string) string {
	return strings.TrimSuffix(namespace, "/") + "/" + device
}

// Origin recovers the device name from a channel. Channels outside namespace
// are returned unchanged.
func Origin(namespace, channel string) string {
	prefix := strings.TrimSuffix(namespace, "/") + "/"
	if name, ok := strings.CutPrefix(channel, prefix); ok {
		return name
	}
	return channel
}

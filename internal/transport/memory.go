package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by a Memory relay after Close.
var ErrClosed = errors.New("relay closed")

// Memory is an in-process relay. Every subscriber on a channel receives each
// message published to it. Delivery to a full subscriber is dropped, never
// blocked, so one slow consumer cannot stall publishers.
type Memory struct {
	mu         sync.Mutex
	subs       map[int]*memorySub
	nextID     int
	closed     bool
	publishErr error
	published  []Message
}

type memorySub struct {
	channels map[string]struct{}
	ch       chan Message
	done     chan struct{}
}

// end closes the subscription. Callers hold m.mu and delete it from m.subs.
func (s *memorySub) end() {
	close(s.ch)
	close(s.done)
}

// NewMemory returns an empty in-process relay.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]*memorySub)}
}

// FailPublish makes every later Publish return err. Pass nil to clear.
func (m *Memory) FailPublish(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

// Published returns a copy of every message accepted by Publish.
func (m *Memory) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published...)
}

func (m *Memory) Publish(ctx context.Context, channel, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.publishErr != nil {
		err := m.publishErr
		m.mu.Unlock()
		return err
	}
	msg := Message{Channel: channel, Payload: message}
	m.published = append(m.published, msg)
	var targets []chan Message
	for _, s := range m.subs {
		if _, ok := s.channels[channel]; ok {
			targets = append(targets, s.ch)
		}
	}
	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			slog.Warn("memory relay subscriber full, dropping", "channel", channel)
		}
	}
	m.mu.Unlock()
	return nil
}

// Inject delivers a raw message to subscribers of channel without recording
// it as published.
func (m *Memory) Inject(channel, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if _, ok := s.channels[channel]; ok {
			select {
			case s.ch <- Message{Channel: channel, Payload: payload}:
			default:
			}
		}
	}
}

func (m *Memory) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	s := &memorySub{
		channels: make(map[string]struct{}, len(channels)),
		ch:       make(chan Message, subscribeBuffer),
		done:     make(chan struct{}),
	}
	for _, c := range channels {
		s.channels[c] = struct{}{}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = s
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.drop(id)
		case <-s.done:
		}
	}()
	return s.ch, nil
}

// Disconnect ends every active subscription, as a lost relay connection would.
func (m *Memory) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subs {
		s.end()
		delete(m.subs, id)
	}
}

// Subscribers returns the number of active subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) Close() error {
	m.Disconnect()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) drop(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		s.end()
		delete(m.subs, id)
	}
}

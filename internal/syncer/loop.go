// Package syncer runs the loop that keeps the local clipboard in sync with
// peer devices through the relay.
//
// The loop owns a single goroutine of control: it waits for whichever of a
// local clipboard change or an inbound frame is ready, handles exactly that
// one event, and waits again. The dedup cell is therefore never shared.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.klb.dev/csync/internal/clip"
	"go.klb.dev/csync/internal/dedup"
	"go.klb.dev/csync/internal/frame"
	"go.klb.dev/csync/internal/logging"
)

var (
	// ErrStreamClosed means the relay subscription ended while the loop was
	// listening.
	ErrStreamClosed = errors.New("relay subscription closed")
	// ErrClipboardClosed means the clipboard backend stopped reporting changes.
	ErrClipboardClosed = errors.New("clipboard watch closed")
)

// Transport is what the loop needs from the relay client.
type Transport interface {
	Send(ctx context.Context, f *frame.Frame) error
	Subscribe(ctx context.Context, peers []string) (<-chan *frame.Frame, error)
}

// Config selects what the loop does.
type Config struct {
	Mode  Mode
	Peers []string
}

// Loop is the clipboard sync loop.
type Loop struct {
	backend   clip.Backend
	transport Transport
	mode      Mode
	peers     []string
	dedup     *dedup.Detector
	state     atomic.Int32
}

// New creates a loop but does not start it.
func New(backend clip.Backend, t Transport, cfg Config) *Loop {
	return &Loop{
		backend:   backend,
		transport: t,
		mode:      cfg.Mode,
		peers:     cfg.Peers,
		dedup:     dedup.New(),
	}
}

// State returns the current state. Safe to call from any goroutine.
func (l *Loop) State() State { return State(l.state.Load()) }

// Mode returns the operating mode.
func (l *Loop) Mode() Mode { return l.mode }

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	slog.Debug("sync loop state", "state", s)
}

// Run blocks until ctx is cancelled or a fatal condition ends the loop.
// Cancellation returns nil. Loss of the relay subscription returns
// ErrStreamClosed; a stopped clipboard watcher returns ErrClipboardClosed.
// Failures while handling a single event are logged and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(ShuttingDown)

	var inbound <-chan *frame.Frame
	if l.mode.Receives() {
		ch, err := l.transport.Subscribe(ctx, l.peers)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		inbound = ch
	}

	var local <-chan clip.Item
	if l.mode.Sends() {
		local = l.backend.Watch()
	}

	l.setState(Listening)
	slog.Info("sync loop listening",
		"mode", l.mode,
		"backend", l.backend.Name(),
		"peers", l.peers,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync loop stopping")
			return nil

		case f, ok := <-inbound:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStreamClosed
			}
			l.handleInbound(f)

		case it, ok := <-local:
			if !ok {
				return ErrClipboardClosed
			}
			l.handleLocal(ctx, it)
		}
	}
}

// handleLocal publishes a local clipboard change unless it is empty or the
// value was the last one seen in either direction.
func (l *Loop) handleLocal(ctx context.Context, it clip.Item) {
	log := slog.With("kind", it.Kind)
	switch v := l.dedup.CheckLocal(it.Data); v {
	case dedup.SkipEmpty:
		log.Debug("clipboard returned empty data, skip sending")
		return
	case dedup.SkipDuplicate:
		log.Debug("clipboard data not changed, skip sending")
		return
	}

	logging.LogPayload("local clipboard changed, sending", it.Kind, "", it.Data)
	if err := l.transport.Send(ctx, &frame.Frame{Kind: it.Kind, Payload: it.Data}); err != nil {
		log.Error("send frame failed", "err", err)
	}
}

// handleInbound writes a peer frame into the local clipboard unless it
// matches the last value seen.
func (l *Loop) handleInbound(f *frame.Frame) {
	if l.dedup.CheckRemote(f.Payload) == dedup.SkipDuplicate {
		slog.Debug("received same clipboard data, skip writing", "from", f.Origin, "kind", f.Kind)
		return
	}

	logging.LogPayload("clipboard received", f.Kind, f.Origin, f.Payload)
	if err := l.backend.Write(clip.Item{Kind: f.Kind, Data: f.Payload}); err != nil {
		slog.Error("clipboard write failed", "from", f.Origin, "err", err)
	}
}

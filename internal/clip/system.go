//go:build darwin || windows || linux

package clip

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.design/x/clipboard"

	"go.klb.dev/csync/internal/frame"
)

// systemBackend reads and writes through golang.design/x/clipboard. The
// platform file supplies a trigger reporting whether the clipboard may have
// changed since the last tick; the backend then diffs each format.
//
// Polling starts on the first Watch call. A backend that is only written to
// never reads the clipboard.
type systemBackend struct {
	name     string
	interval time.Duration
	trigger  func() bool

	watchCh  chan Item
	done     chan struct{}
	started  sync.Once
	closed   sync.Once
	lastText []byte
	lastImg  []byte
}

func newSystemBackend(name string, interval time.Duration, trigger func() bool) *systemBackend {
	b := &systemBackend{
		name:     name,
		interval: interval,
		trigger:  trigger,
		watchCh:  make(chan Item, watchBuffer),
		done:     make(chan struct{}),
	}
	return b
}

func (b *systemBackend) Name() string { return b.name }

func (b *systemBackend) poll() {
	// Windows delivers clipboard messages to the thread owning the
	// listener window, which is created by the first trigger call.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(b.watchCh)
	b.lastText = clipboard.Read(clipboard.FmtText)
	b.lastImg = clipboard.Read(clipboard.FmtImage)
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			if !b.trigger() {
				continue
			}
			if text := clipboard.Read(clipboard.FmtText); !bytes.Equal(text, b.lastText) {
				b.lastText = text
				b.emit(Item{Kind: frame.KindText, Data: text})
			}
			if img := clipboard.Read(clipboard.FmtImage); !bytes.Equal(img, b.lastImg) {
				b.lastImg = img
				b.emit(Item{Kind: frame.KindImage, Data: img})
			}
		}
	}
}

func (b *systemBackend) emit(it Item) {
	select {
	case b.watchCh <- it:
	default:
		slog.Warn("clipboard watch channel full, dropping", "kind", it.Kind)
	}
}

func (b *systemBackend) Read(kind frame.Kind) ([]byte, error) {
	f, err := format(kind)
	if err != nil {
		return nil, err
	}
	return clipboard.Read(f), nil
}

func (b *systemBackend) Write(it Item) error {
	f, err := format(it.Kind)
	if err != nil {
		return err
	}
	clipboard.Write(f, it.Data)
	return nil
}

func (b *systemBackend) Watch() <-chan Item {
	b.started.Do(func() { go b.poll() })
	return b.watchCh
}

func (b *systemBackend) Close() {
	b.closed.Do(func() {
		close(b.done)
		// Never watched: no poller owns watchCh, and none may start now.
		b.started.Do(func() { close(b.watchCh) })
	})
}

func format(kind frame.Kind) (clipboard.Format, error) {
	switch kind {
	case frame.KindText:
		return clipboard.FmtText, nil
	case frame.KindImage:
		return clipboard.FmtImage, nil
	default:
		return 0, fmt.Errorf("unsupported clipboard kind: %s", kind)
	}
}

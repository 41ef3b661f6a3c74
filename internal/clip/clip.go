// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the change trigger:
//
//	clip_darwin.go    macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go   Windows via golang.design/x/clipboard + AddClipboardFormatListener
//	clip_linux.go     Linux via golang.design/x/clipboard, polling only
//	clip_other.go     unsupported platforms
//
// Memory is an in-process backend for tests and tools that don't own a
// display.
package clip

import (
	"errors"

	"go.klb.dev/csync/internal/frame"
)

// watchBuffer is how many unconsumed changes a backend holds before dropping.
const watchBuffer = 16

// ErrUnsupported is returned by New on platforms without a clipboard driver.
var ErrUnsupported = errors.New("clipboard not supported on this platform")

// Item is one clipboard representation. Image data is PNG.
type Item struct {
	Kind frame.Kind
	Data []byte
}

// Backend is the interface that all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard content of the given kind, or nil
	// if there is none.
	Read(kind frame.Kind) ([]byte, error)

	// Write replaces the clipboard content of item.Kind.
	Write(item Item) error

	// Watch returns a channel that receives the new content whenever a
	// clipboard representation changes, including changes made by Write.
	// The channel is closed by Close.
	Watch() <-chan Item

	// Close stops watching and releases any resources held by the backend.
	Close()
}

//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #import <Cocoa/Cocoa.h>
//
// NSInteger csync_changeCount() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
import "C"

import (
	"fmt"
	"time"

	"golang.design/x/clipboard"
)

const darwinPollInterval = 100 * time.Millisecond

// New returns the macOS clipboard backend. The pasteboard changeCount is
// cheap to poll, so formats are only read after it moves.
func New() (Backend, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("init clipboard driver: %w", err)
	}
	last := C.csync_changeCount()
	changed := func() bool {
		cc := C.csync_changeCount()
		if cc == last {
			return false
		}
		last = cc
		return true
	}
	return newSystemBackend("macOS NSPasteboard", darwinPollInterval, changed), nil
}

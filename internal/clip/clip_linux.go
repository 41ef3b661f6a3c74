//go:build linux

package clip

import (
	"fmt"
	"time"

	"golang.design/x/clipboard"
)

const linuxPollInterval = 250 * time.Millisecond

// New returns the Linux clipboard backend. X11 and Wayland offer no change
// notification through the driver, so every tick diffs both formats.
// clipboard.Init is called here rather than in init() so that CLI
// sub-commands that never touch the clipboard work on headless hosts.
func New() (Backend, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("init clipboard driver: %w", err)
	}
	return newSystemBackend("Linux clipboard (poll)", linuxPollInterval, func() bool { return true }), nil
}

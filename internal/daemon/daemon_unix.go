//go:build !windows

package daemon

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// detached starts the child in its own session so it survives the
// terminal that launched it.
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

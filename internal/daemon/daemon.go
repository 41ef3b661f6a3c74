// Package daemon manages the background sync process through a pid file and
// a log file in a data directory. It holds no long-lived state: every call
// re-reads the pid file, so separate CLI invocations agree on what is
// running.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StopTimeout is how long Stop waits for the process to exit after asking
// it to terminate.
const StopTimeout = 2 * time.Second

const stopPoll = 50 * time.Millisecond

// ErrStillRunning is returned by Stop when the process outlives StopTimeout.
var ErrStillRunning = errors.New("still running")

// State describes what the pid file says about the daemon.
type State int

const (
	// NotRunning means there is no pid file.
	NotRunning State = iota
	// Running means the recorded process is alive.
	Running
	// Stale means a pid file exists but names no live process, or cannot be
	// parsed.
	Stale
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "not running"
	case Running:
		return "running"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a snapshot of the daemon record. PID is zero when State is
// NotRunning or the pid file could not be parsed.
type Status struct {
	State State
	PID   int
}

// Daemon locates the pid and log files for one data directory.
type Daemon struct {
	// Env holds extra KEY=value pairs appended to the parent's environment
	// when spawning, for values that must not appear on the command line.
	Env []string

	pidPath string
	logPath string
}

// New returns a Daemon rooted at dir, creating dir if needed.
func New(dir string) (*Daemon, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat data dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("data dir %s is not a directory", dir)
	}
	return &Daemon{
		pidPath: filepath.Join(dir, "pid"),
		logPath: filepath.Join(dir, "logs"),
	}, nil
}

func (d *Daemon) PidPath() string { return d.pidPath }
func (d *Daemon) LogPath() string { return d.logPath }

// Status reports the daemon state without changing anything on disk.
func (d *Daemon) Status() (Status, error) {
	data, err := os.ReadFile(d.pidPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Status{State: NotRunning}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read pid file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		slog.Warn("invalid pid file", "path", d.pidPath, "content", raw)
		return Status{State: Stale}, nil
	}
	if !alive(pid) {
		return Status{State: Stale, PID: pid}, nil
	}
	return Status{State: Running, PID: pid}, nil
}

// Start spawns argv as a detached process unless one is already running.
// The child's stdout and stderr are appended to the log file. It returns the
// pid of the running process and whether this call started it.
func (d *Daemon) Start(argv []string) (pid int, started bool, err error) {
	if len(argv) == 0 {
		return 0, false, errors.New("start: empty command")
	}
	st, err := d.Status()
	if err != nil {
		return 0, false, err
	}
	if st.State == Running {
		return st.PID, false, nil
	}

	logf, err := os.OpenFile(d.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, false, fmt.Errorf("open log file: %w", err)
	}
	defer logf.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logf
	cmd.Stderr = logf
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	cmd.SysProcAttr = detached()
	if err := cmd.Start(); err != nil {
		return 0, false, fmt.Errorf("spawn %s: %w", argv[0], err)
	}
	pid = cmd.Process.Pid

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return 0, false, fmt.Errorf("write pid file: %w", err)
	}

	// Reap the child if it exits while this process is still alive, so a
	// liveness probe does not see a zombie.
	go func() { _ = cmd.Wait() }()

	slog.Debug("daemon spawned", "pid", pid, "argv", argv, "log", d.logPath)
	return pid, true, nil
}

// Stop terminates the recorded process and removes the pid file. A missing
// or stale record is not an error.
func (d *Daemon) Stop() error {
	st, err := d.Status()
	if err != nil {
		return err
	}
	switch st.State {
	case NotRunning:
		return nil
	case Stale:
		return d.removePidFile()
	}

	if err := terminate(st.PID); err != nil {
		return fmt.Errorf("signal %d: %w", st.PID, err)
	}
	deadline := time.Now().Add(StopTimeout)
	for time.Now().Before(deadline) {
		if !alive(st.PID) {
			return d.removePidFile()
		}
		time.Sleep(stopPoll)
	}
	if !alive(st.PID) {
		return d.removePidFile()
	}
	return fmt.Errorf("process %d %w after %s, kill it manually", st.PID, ErrStillRunning, StopTimeout)
}

// Restart stops any running process and starts argv.
func (d *Daemon) Restart(argv []string) (int, error) {
	if err := d.Stop(); err != nil {
		return 0, fmt.Errorf("stop: %w", err)
	}
	pid, _, err := d.Start(argv)
	return pid, err
}

func (d *Daemon) removePidFile() error {
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

package syncer

import "fmt"

// Mode selects which directions the loop runs.
type Mode int

const (
	// Bidirectional publishes local changes and applies peer frames.
	Bidirectional Mode = iota
	// WriteOnly applies peer frames and never reads the local clipboard.
	WriteOnly
	// ReadOnly publishes local changes and never subscribes.
	ReadOnly
)

func (m Mode) String() string {
	switch m {
	case Bidirectional:
		return "bidirectional"
	case WriteOnly:
		return "write-only"
	case ReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Sends reports whether local changes are published.
func (m Mode) Sends() bool { return m != WriteOnly }

// Receives reports whether peer frames are applied.
func (m Mode) Receives() bool { return m != ReadOnly }

// ModeFor resolves configuration flags to a mode. With no peers to watch
// there is nothing to receive, so the loop only publishes.
func ModeFor(readOnly, writeOnly bool, peers []string) Mode {
	switch {
	case writeOnly:
		return WriteOnly
	case readOnly || len(peers) == 0:
		return ReadOnly
	default:
		return Bidirectional
	}
}

// State is the lifecycle state of a Loop.
type State int32

const (
	Idle State = iota
	Listening
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case ShuttingDown:
		return "shutting-down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

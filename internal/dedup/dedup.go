// Package dedup suppresses redundant clipboard publishes and write-backs.
//
// A Detector keeps the fingerprint of the last accepted payload in a single
// cell shared by both directions. A value written to the local clipboard from
// a peer is therefore recognised when the clipboard watcher reports it again,
// and a value published locally is recognised if it comes back from the relay.
//
// A Detector is not safe for concurrent use. It is owned by one sync loop.
package dedup

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint is a BLAKE3-256 digest of a payload.
type Fingerprint [32]byte

// Sum returns the fingerprint of payload.
func Sum(payload []byte) Fingerprint {
	return blake3.Sum256(payload)
}

// String returns the short hex form used in logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:8])
}

// Verdict is the outcome of a check.
type Verdict int

const (
	Accept Verdict = iota
	SkipEmpty
	SkipDuplicate
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case SkipEmpty:
		return "skip-empty"
	case SkipDuplicate:
		return "skip-duplicate"
	default:
		return "unknown"
	}
}

// Detector holds the last accepted fingerprint.
type Detector struct {
	last Fingerprint
	set  bool
}

// New returns a Detector with no history.
func New() *Detector { return &Detector{} }

// CheckLocal decides whether a payload read from the local clipboard should be
// published. Empty payloads are never published; some backends report
// spurious empty changes.
func (d *Detector) CheckLocal(payload []byte) Verdict {
	if len(payload) == 0 {
		return SkipEmpty
	}
	return d.observe(payload)
}

// CheckRemote decides whether a payload received from a peer should be
// written to the local clipboard.
func (d *Detector) CheckRemote(payload []byte) Verdict {
	return d.observe(payload)
}

// Last returns the last accepted fingerprint and whether one exists.
func (d *Detector) Last() (Fingerprint, bool) {
	return d.last, d.set
}

func (d *Detector) observe(payload []byte) Verdict {
	sum := Sum(payload)
	if d.set && sum == d.last {
		return SkipDuplicate
	}
	d.last = sum
	d.set = true
	return Accept
}

//go:build !darwin && !windows && !linux

package clip

// New reports that no clipboard driver exists for this platform.
func New() (Backend, error) {
	return nil, ErrUnsupported
}

//go:build !windows

package capture

// NewSource returns the capture source for this platform.
func NewSource() (Source, error) {
	return nil, ErrNotSupported
}

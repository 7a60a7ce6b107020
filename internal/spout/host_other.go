//go:build !windows

package spout

// NewHost returns ErrNotSupported outside Windows.
func NewHost() (Host, error) {
	return nil, ErrNotSupported
}

//go:build !windows

package inject

// NewSpawner returns ErrNotSupported outside Windows.
func NewSpawner() (Spawner, error) {
	return nil, ErrNotSupported
}

// NewLoader returns ErrNotSupported outside Windows.
func NewLoader() (Loader, error) {
	return nil, ErrNotSupported
}

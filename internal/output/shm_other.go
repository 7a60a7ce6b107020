//go:build !windows

package output

// OpenSharedMemory creates the channel consumers open by name.
func OpenSharedMemory(name string) (Channel, error) {
	return nil, ErrNotSupported
}

// ReadSharedMemory reads the record another process publishes under name.
func ReadSharedMemory(name string) (Header, bool, error) {
	return Header{}, false, ErrNotSupported
}

package output

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrMappingCreation is returned when the named shared-memory channel
	// cannot be created or mapped.
	ErrMappingCreation = errors.New("shared memory channel creation failed")

	// ErrNotSupported is returned on platforms without named shared memory.
	ErrNotSupported = errors.New("shared memory channel not supported on this platform")

	// ErrClosed is returned when publishing to a closed channel.
	ErrClosed = errors.New("channel closed")
)

// HeaderSize is the size of the channel record in bytes.
const HeaderSize = 24

// Header is the record consumers read from the channel. Handle is the
// shared texture handle, zero while nothing is published; Target is the
// captured window handle, zero for the desktop.
type Header struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	Handle uint64 `json:"handle"`
	Target uint64 `json:"target"`
}

// Published reports whether the header carries a usable texture handle.
func (h Header) Published() bool {
	return h.Handle != 0
}

func (h Header) String() string {
	return fmt.Sprintf("%dx%d handle=0x%x target=0x%x", h.Width, h.Height, h.Handle, h.Target)
}

// MarshalTo writes h into b, which must hold HeaderSize bytes, in
// little-endian order at offsets 0, 4, 8 and 16.
func (h Header) MarshalTo(b []byte) {
	_ = b[HeaderSize-1]
	binary.LittleEndian.PutUint32(b[0:4], h.Width)
	binary.LittleEndian.PutUint32(b[4:8], h.Height)
	binary.LittleEndian.PutUint64(b[8:16], h.Handle)
	binary.LittleEndian.PutUint64(b[16:24], h.Target)
}

// UnmarshalHeader decodes a record written by MarshalTo.
func UnmarshalHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("header needs %d bytes, got %d", HeaderSize, len(b))
	}
	return Header{
		Width:  binary.LittleEndian.Uint32(b[0:4]),
		Height: binary.LittleEndian.Uint32(b[4:8]),
		Handle: binary.LittleEndian.Uint64(b[8:16]),
		Target: binary.LittleEndian.Uint64(b[16:24]),
	}, nil
}

// Channel is the named location consumers poll for the current shared
// texture.
type Channel interface {
	// Publish makes h visible to consumers
	Publish(h Header) error

	// Clear zeroes the handle so consumers stop opening the texture
	Clear() error

	// Read returns the record currently visible to consumers
	Read() (Header, error)

	// Name returns the channel name consumers open
	Name() string

	Close() error
}

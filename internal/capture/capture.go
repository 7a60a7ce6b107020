package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
)

var (
	// ErrDeviceCreation is returned when the GPU device or its WinRT wrapper
	// cannot be created.
	ErrDeviceCreation = errors.New("graphics device creation failed")

	// ErrSessionInit is returned when the capture item, frame pool or OS
	// capture session cannot be created or started.
	ErrSessionInit = errors.New("capture session initialization failed")

	// ErrInvalidDimensions is returned when the capture item reports a zero
	// width or height.
	ErrInvalidDimensions = errors.New("capture item has invalid dimensions")

	// ErrNotSupported is returned on platforms without Windows.Graphics.Capture.
	ErrNotSupported = errors.New("graphics capture not supported on this platform")
)

// Size is a texture or content size in pixels.
type Size struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Valid reports whether both dimensions are non-zero.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Texture is a reference-counted GPU texture.
type Texture interface {
	AddRef()
	Release()
	Size() Size
}

// SharedTexture is a texture another process can open by handle.
type SharedTexture interface {
	Texture
	Handle() uint64
}

// Device is the GPU device frames are captured on. Copies only work between
// textures created on the same device.
type Device interface {
	// CreateSharedTexture creates a BGRA shader-resource texture that other
	// processes can open through its shared handle
	CreateSharedTexture(size Size) (SharedTexture, error)

	// CopyResource copies src into dst; both must share a size and format
	CopyResource(dst, src Texture) error

	// Flush submits queued GPU commands
	Flush()
}

// Frame is one captured frame. It is valid until Close and must not be kept
// past the callback that received it.
type Frame interface {
	// Texture returns a new reference to the frame's surface; the caller
	// releases it
	Texture() (Texture, error)

	// ContentSize is the size of the captured content when the frame was
	// produced, which lags the frame pool size during a resize
	ContentSize() Size

	Close()
}

// Stream is the OS capture pipeline for one target: device, capture item,
// frame pool and capture session.
type Stream interface {
	Device() Device

	// ContentSize is the capture item's size
	ContentSize() Size

	// CreatePool creates the frame pool and capture session at size
	CreatePool(size Size) error

	// Recreate resizes the frame pool's buffers
	Recreate(size Size) error

	// Subscribe registers the frame-arrived and item-closed handlers. Both
	// are called on OS worker threads.
	Subscribe(onFrame, onClosed func()) error

	// Unsubscribe removes the handlers registered by Subscribe
	Unsubscribe()

	SetCursorCapture(enabled bool) error

	// Start begins delivering frames
	Start() error

	// TryGetNextFrame returns the next frame or nil when none is queued
	TryGetNextFrame() (Frame, error)

	// Pump services the calling thread's message queue for up to timeout and
	// reports whether the capture item has been closed
	Pump(timeout time.Duration) (closed bool)

	// Close stops the capture session and the frame pool
	Close()

	// Release frees the capture item and the device
	Release()
}

// Source opens capture streams for targets.
type Source interface {
	// Open creates the device and the capture item for target. Errors wrap
	// ErrDeviceCreation or ErrSessionInit.
	Open(target window.Target) (Stream, error)
}

// FrameSink consumes frames delivered by a Session.
type FrameSink interface {
	Consume(frame Frame) error
}

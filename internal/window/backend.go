package window

import "errors"

var (
	// ErrTargetNotFound is returned when no visible top-level window matches
	// the requested executable name or title.
	ErrTargetNotFound = errors.New("target window not found")

	// ErrNotSupported is returned by the OS backend on platforms without a
	// desktop window manager binding.
	ErrNotSupported = errors.New("window backend not supported on this platform")
)

// Handle is an opaque OS window handle.
type Handle uintptr

// Size is a client-area size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Info describes one top-level window as reported by a Backend.
type Info struct {
	Handle    Handle `json:"handle"`
	PID       int    `json:"pid"`
	Title     string `json:"title"`
	Visible   bool   `json:"visible"`
	HasParent bool   `json:"has_parent"`
	Minimized bool   `json:"minimized"`
}

// Backend defines the window system operations the locator and style guard
// need. The Win32 implementation lives in win32_backend_windows.go.
type Backend interface {
	// ListWindows returns every top-level window in enumeration order
	ListWindows() ([]Info, error)

	// IsWindow reports whether the handle still names an existing window
	IsWindow(h Handle) bool

	// IsMinimized reports whether the window is iconic
	IsMinimized(h Handle) bool

	// ClientSize returns the size of the window's client area
	ClientSize(h Handle) (Size, error)

	// Restore un-minimizes the window
	Restore(h Handle) error

	// Style returns the window's GWL_STYLE bits
	Style(h Handle) (uint32, error)

	// SetStyle replaces the window's GWL_STYLE bits and re-frames it
	SetStyle(h Handle, style uint32) error

	// Name returns the backend name (e.g., "win32")
	Name() string
}

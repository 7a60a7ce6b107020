// Package windowtest provides an in-memory window system for tests.
package windowtest

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
)

// Backend is a scriptable window.Backend.
type Backend struct {
	mu       sync.Mutex
	windows  []window.Info
	sizes    map[window.Handle]window.Size
	styles   map[window.Handle][]uint32
	gone     map[window.Handle]bool
	restored []window.Handle
	lists    int
	ListErr  error
}

// NewBackend returns a backend holding infos in enumeration order.
func NewBackend(infos ...window.Info) *Backend {
	return &Backend{
		windows: infos,
		sizes:   make(map[window.Handle]window.Size),
		styles:  make(map[window.Handle][]uint32),
		gone:    make(map[window.Handle]bool),
	}
}

// Add appends a window to the enumeration order.
func (b *Backend) Add(info window.Info) {
	b.mu.Lock()
	b.windows = append(b.windows, info)
	delete(b.gone, info.Handle)
	b.mu.Unlock()
}

// Destroy makes the window disappear.
func (b *Backend) Destroy(h window.Handle) {
	b.mu.Lock()
	b.gone[h] = true
	b.mu.Unlock()
}

// SetSize sets a window's client size.
func (b *Backend) SetSize(h window.Handle, s window.Size) {
	b.mu.Lock()
	b.sizes[h] = s
	b.mu.Unlock()
}

// SetInitialStyle sets the style a window starts with.
func (b *Backend) SetInitialStyle(h window.Handle, style uint32) {
	b.mu.Lock()
	b.styles[h] = []uint32{style}
	b.mu.Unlock()
}

// StyleHistory returns every style the window has had, oldest first.
func (b *Backend) StyleHistory(h window.Handle) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint32(nil), b.styles[h]...)
}

// Restored returns the handles passed to Restore.
func (b *Backend) Restored() []window.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]window.Handle(nil), b.restored...)
}

// Lists returns the number of ListWindows calls.
func (b *Backend) Lists() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lists
}

func (b *Backend) Name() string { return "windowtest" }

func (b *Backend) ListWindows() ([]window.Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	out := make([]window.Info, 0, len(b.windows))
	for _, w := range b.windows {
		if !b.gone[w.Handle] {
			out = append(out, w)
		}
	}
	return out, nil
}

func (b *Backend) IsWindow(h window.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gone[h] {
		return false
	}
	for _, w := range b.windows {
		if w.Handle == h {
			return true
		}
	}
	return false
}

func (b *Backend) IsMinimized(h window.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.windows {
		if w.Handle == h {
			return w.Minimized
		}
	}
	return false
}

func (b *Backend) ClientSize(h window.Handle) (window.Size, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sizes[h]
	if !ok || b.gone[h] {
		return window.Size{}, fmt.Errorf("no window 0x%x", uintptr(h))
	}
	return s, nil
}

func (b *Backend) Restore(h window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restored = append(b.restored, h)
	for i := range b.windows {
		if b.windows[i].Handle == h {
			b.windows[i].Minimized = false
		}
	}
	return nil
}

func (b *Backend) Style(h window.Handle) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hist := b.styles[h]
	if len(hist) == 0 {
		return 0, nil
	}
	return hist[len(hist)-1], nil
}

func (b *Backend) SetStyle(h window.Handle, style uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.styles[h] = append(b.styles[h], style)
	return nil
}

// Processes is a fixed PID to image name table.
type Processes map[int]string

func (p Processes) ProcessName(pid int) (string, error) {
	name, ok := p[pid]
	if !ok {
		return "", fmt.Errorf("process %d: access denied", pid)
	}
	return name, nil
}

// NewLocator returns a locator over b with a 1920x1080 primary display and
// the given retry interval.
func NewLocator(b *Backend, procs Processes, retry time.Duration) *window.Locator {
	l := window.NewLocator(b, procs)
	l.DisplayBounds = func() image.Rectangle { return image.Rect(0, 0, 1920, 1080) }
	l.RetryInterval = retry
	return l
}

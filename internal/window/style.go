package window

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/rs/zerolog"
)

// Win32 window style bits touched by the borderless transform.
const (
	StyleCaption     uint32 = 0x00C00000
	StyleThickFrame  uint32 = 0x00040000
	StyleMinimizeBox uint32 = 0x00020000
	StyleMaximizeBox uint32 = 0x00010000
	StyleSysMenu     uint32 = 0x00080000
	StylePopup       uint32 = 0x80000000
)

// BorderlessStyle strips the frame decorations from style and marks the
// window as a popup.
func BorderlessStyle(style uint32) uint32 {
	return style&^(StyleCaption|StyleThickFrame|StyleMinimizeBox|StyleMaximizeBox|StyleSysMenu) | StylePopup
}

// StyleGuard makes one window borderless at a time and remembers the style
// it had before, so it can be put back.
type StyleGuard struct {
	backend Backend
	log     *zerolog.Logger

	mu       sync.Mutex
	handle   Handle
	original uint32
	applied  bool
}

// NewStyleGuard creates a guard that changes styles through backend.
func NewStyleGuard(backend Backend) *StyleGuard {
	return &StyleGuard{
		backend: backend,
		log:     logger.WithComponent("window"),
	}
}

// Apply makes t borderless. Applying to the window that is already modified
// keeps the style recorded the first time; applying to a different window
// reverts the previous one first. The desktop target is ignored.
func (g *StyleGuard) Apply(t Target) error {
	if t.Desktop {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.applied && g.handle == t.Handle {
		return nil
	}
	g.revertLocked()

	style, err := g.backend.Style(t.Handle)
	if err != nil {
		return fmt.Errorf("failed to read window style: %w", err)
	}
	if err := g.backend.SetStyle(t.Handle, BorderlessStyle(style)); err != nil {
		return fmt.Errorf("failed to set borderless style: %w", err)
	}

	g.handle = t.Handle
	g.original = style
	g.applied = true

	g.log.Debug().
		Uint32("original", style).
		Uint32("borderless", BorderlessStyle(style)).
		Msg("Applied borderless window style")
	return nil
}

// Revert restores the original style if the window still exists.
func (g *StyleGuard) Revert() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revertLocked()
}

func (g *StyleGuard) revertLocked() {
	if !g.applied {
		return
	}
	g.applied = false

	if !g.backend.IsWindow(g.handle) {
		return
	}
	if err := g.backend.SetStyle(g.handle, g.original); err != nil {
		g.log.Warn().Err(err).Msg("Failed to restore window style")
		return
	}
	g.log.Debug().Uint32("style", g.original).Msg("Restored window style")
}

package handoff

import (
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
)

// Slot holds at most one texture, the newest one put into it. Put runs on
// capture callback threads, Take on the main loop.
type Slot struct {
	mu    sync.Mutex
	tex   capture.Texture
	ready atomic.Bool
}

// Put stores tex, taking ownership of the caller's reference. A texture
// that was never taken is released.
func (s *Slot) Put(tex capture.Texture) {
	s.mu.Lock()
	old := s.tex
	s.tex = tex
	s.ready.Store(true)
	s.mu.Unlock()

	if old != nil {
		old.Release()
	}
}

// Ready reports whether a texture is waiting, without locking.
func (s *Slot) Ready() bool {
	return s.ready.Load()
}

// Take removes and returns the waiting texture, or nil. The caller owns the
// returned reference.
func (s *Slot) Take() capture.Texture {
	if !s.ready.Load() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tex := s.tex
	s.tex = nil
	s.ready.Store(false)
	return tex
}

// Release drops any waiting texture.
func (s *Slot) Release() {
	if tex := s.Take(); tex != nil {
		tex.Release()
	}
}

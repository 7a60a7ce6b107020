package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/rs/zerolog"
)

// Stats counts what happened to delivered frames.
type Stats struct {
	Copied  uint64 `json:"copied"`
	Dropped uint64 `json:"dropped"`
}

// Session is one capture of one target. It is built by Initialize, fed to a
// FrameSink by Start and torn down by Close; it is never reused.
type Session struct {
	stream Stream
	target window.Target
	size   Size
	log    *zerolog.Logger

	lifecycle  Lifecycle
	sink       FrameSink
	itemClosed atomic.Bool
	onClosed   func()

	// resized holds the latest content size that differed from size
	resized atomic.Pointer[Size]

	copied  atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
}

// Initialize opens a stream for target and prepares its frame pool at the
// item's current size. The returned session is not yet delivering frames.
func Initialize(src Source, target window.Target) (*Session, error) {
	log := logger.WithComponent("capture")

	stream, err := src.Open(target)
	if err != nil {
		return nil, err
	}

	size := stream.ContentSize()
	if !size.Valid() {
		stream.Release()
		return nil, fmt.Errorf("%w: %s", ErrInvalidDimensions, size)
	}

	if err := stream.CreatePool(size); err != nil {
		stream.Release()
		return nil, err
	}

	log.Info().
		Str("target", target.String()).
		Uint32("width", size.Width).
		Uint32("height", size.Height).
		Msg("Capture session initialized")

	return &Session{
		stream: stream,
		target: target,
		size:   size,
		log:    log,
	}, nil
}

// Size is the content size the session was initialized with.
func (s *Session) Size() Size {
	return s.size
}

// Target returns the captured target.
func (s *Session) Target() window.Target {
	return s.target
}

// Device returns the device frames are produced on.
func (s *Session) Device() Device {
	return s.stream.Device()
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// SetCursorCapture toggles whether the cursor is drawn into frames.
func (s *Session) SetCursorCapture(enabled bool) error {
	return s.stream.SetCursorCapture(enabled)
}

// Recreate resizes the frame pool. It is safe to call from the frame
// callback.
func (s *Session) Recreate(size Size) error {
	return s.stream.Recreate(size)
}

// OnClosed sets a function called, on an OS thread, when the capture item
// closes. It must be set before Start.
func (s *Session) OnClosed(fn func()) {
	s.onClosed = fn
}

// Start registers the frame and closed handlers and begins capture. Frames
// are passed to sink while the session is Active.
func (s *Session) Start(sink FrameSink) error {
	s.sink = sink
	if err := s.stream.Subscribe(s.handleFrame, s.handleItemClosed); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInit, err)
	}
	if err := s.stream.Start(); err != nil {
		s.stream.Unsubscribe()
		return fmt.Errorf("%w: %v", ErrSessionInit, err)
	}
	s.log.Debug().Msg("Capture started")
	return nil
}

func (s *Session) handleFrame() {
	if !s.lifecycle.Enter() {
		s.dropped.Add(1)
		return
	}
	defer s.lifecycle.Exit()

	frame, err := s.stream.TryGetNextFrame()
	if err != nil {
		s.log.Debug().Err(err).Msg("TryGetNextFrame failed")
		return
	}
	if frame == nil {
		return
	}
	defer frame.Close()

	if content := frame.ContentSize(); content != s.size && content.Valid() {
		s.resized.Store(&content)
	}

	if err := s.sink.Consume(frame); err != nil {
		s.dropped.Add(1)
		s.log.Debug().Err(err).Msg("Frame dropped")
		return
	}
	s.copied.Add(1)
}

func (s *Session) handleItemClosed() {
	s.itemClosed.Store(true)
	s.log.Info().Str("target", s.target.String()).Msg("Capture item closed")
	if s.onClosed != nil {
		s.onClosed()
	}
}

// ItemClosed reports whether the OS has closed the capture item.
func (s *Session) ItemClosed() bool {
	return s.itemClosed.Load()
}

// ContentResized returns the content size of the most recent frame that
// did not match Size. The texture fed by this session is stale once it
// reports true.
func (s *Session) ContentResized() (Size, bool) {
	p := s.resized.Load()
	if p == nil {
		return Size{}, false
	}
	return *p, true
}

// Wait services the message queue for up to timeout and reports whether the
// capture item has closed.
func (s *Session) Wait(timeout time.Duration) bool {
	if s.stream.Pump(timeout) {
		return true
	}
	return s.itemClosed.Load()
}

// Drain stops admitting frames and waits for in-flight callbacks. After it
// returns no frame reaches the sink.
func (s *Session) Drain() {
	s.lifecycle.Drain()
}

// Stats returns frame counters.
func (s *Session) Stats() Stats {
	return Stats{Copied: s.copied.Load(), Dropped: s.dropped.Load()}
}

// Close drains the session, removes its handlers and releases the stream.
// It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.lifecycle.Drain()
		s.stream.Unsubscribe()
		s.stream.Close()
		s.stream.Release()
		s.lifecycle.Destroy()

		stats := s.Stats()
		s.log.Info().
			Uint64("frames_copied", stats.Copied).
			Uint64("frames_dropped", stats.Dropped).
			Msg("Capture session closed")
	})
}

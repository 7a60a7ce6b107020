// Package handoff captures one window and hands its newest frame to a
// texture-sharing sink from a single main loop.
package handoff

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/rs/zerolog"
)

// TextureSink publishes textures to other processes.
type TextureSink interface {
	// Send shares tex. The caller keeps its reference.
	Send(tex capture.Texture) error
	Close() error
}

// SinkFactory creates a sink on the capture device.
type SinkFactory func(device capture.Device) (TextureSink, error)

// StopReason says why Run returned.
type StopReason string

const (
	StopCancelled    StopReason = "cancelled"
	StopKey          StopReason = "stop_key"
	StopTargetClosed StopReason = "target_closed"
)

// Options configures a Sender.
type Options struct {
	// Query is a window title or executable name
	Query string

	Cursor bool

	// LoopInterval bounds how long the main loop waits for messages
	LoopInterval time.Duration

	// StopRequested is polled once per loop; nil uses the END key
	StopRequested func() bool
}

// Stats counts main-loop activity.
type Stats struct {
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"send_errors"`
	Recreated  uint64 `json:"recreated"`
}

// Sender runs the hand-off engine for one target. There is no retry: when
// the target goes away Run returns.
type Sender struct {
	locator *window.Locator
	source  capture.Source
	newSink SinkFactory
	opts    Options
	log     *zerolog.Logger

	slot       Slot
	sent       atomic.Uint64
	sendErrors atomic.Uint64
	recreated  atomic.Uint64
}

// NewSender creates a sender. Nothing happens until Run.
func NewSender(locator *window.Locator, source capture.Source, newSink SinkFactory, opts Options) *Sender {
	if opts.LoopInterval <= 0 {
		opts.LoopInterval = time.Millisecond
	}
	if opts.StopRequested == nil {
		opts.StopRequested = endKeyPressed
	}
	return &Sender{
		locator: locator,
		source:  source,
		newSink: newSink,
		opts:    opts,
		log:     logger.WithComponent("handoff"),
	}
}

// Run captures the target until ctx is cancelled, the stop key is pressed
// or the target closes.
func (s *Sender) Run(ctx context.Context) (StopReason, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	target, err := s.locator.Find(s.opts.Query)
	if err != nil {
		return "", err
	}
	if err := s.locator.Restore(target); err != nil {
		s.log.Warn().Err(err).Msg("Could not restore minimized window")
	}

	session, err := capture.Initialize(s.source, target)
	if err != nil {
		return "", err
	}

	if !s.opts.Cursor {
		if err := session.SetCursorCapture(false); err != nil {
			s.log.Debug().Err(err).Msg("Cursor capture setting not applied")
		}
	}

	sink, err := s.newSink(session.Device())
	if err != nil {
		session.Close()
		return "", fmt.Errorf("failed to create sink: %w", err)
	}

	// The session must stop delivering before the slot is emptied
	defer func() {
		session.Close()
		s.slot.Release()
		if err := sink.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close sink")
		}
	}()

	var closed atomic.Bool
	session.OnClosed(func() { closed.Store(true) })

	if err := session.Start(&slotSink{session: session, slot: &s.slot, last: session.Size(), recreated: &s.recreated}); err != nil {
		return "", err
	}

	s.log.Info().
		Str("target", target.String()).
		Str("size", session.Size().String()).
		Msg("Capturing, press END to stop")

	reason := s.loop(ctx, session, target, &closed, sink)

	stats := s.Stats()
	s.log.Info().
		Str("reason", string(reason)).
		Uint64("sent", stats.Sent).
		Uint64("send_errors", stats.SendErrors).
		Msg("Hand-off stopped")
	return reason, nil
}

func (s *Sender) loop(ctx context.Context, session *capture.Session, target window.Target, closed *atomic.Bool, sink TextureSink) StopReason {
	device := session.Device()
	for {
		if ctx.Err() != nil {
			return StopCancelled
		}
		if session.Wait(s.opts.LoopInterval) || closed.Load() {
			return StopTargetClosed
		}
		if s.opts.StopRequested() {
			return StopKey
		}
		if !s.locator.Alive(target) {
			return StopTargetClosed
		}

		tex := s.slot.Take()
		if tex == nil {
			continue
		}
		if err := sink.Send(tex); err != nil {
			s.sendErrors.Add(1)
			s.log.Error().Err(err).Msg("Send failed")
		} else {
			s.sent.Add(1)
		}
		device.Flush()
		tex.Release()
	}
}

// Stats returns the sender's counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Sent:       s.sent.Load(),
		SendErrors: s.sendErrors.Load(),
		Recreated:  s.recreated.Load(),
	}
}

// slotSink resizes the frame pool to follow the content and parks each
// frame's surface in the slot.
type slotSink struct {
	session   *capture.Session
	slot      *Slot
	recreated *atomic.Uint64

	mu   sync.Mutex
	last capture.Size
}

func (k *slotSink) Consume(frame capture.Frame) error {
	content := frame.ContentSize()

	k.mu.Lock()
	if content != k.last && content.Valid() {
		k.last = content
		if err := k.session.Recreate(content); err != nil {
			k.mu.Unlock()
			return fmt.Errorf("failed to recreate frame pool: %w", err)
		}
		k.recreated.Add(1)
	}
	k.mu.Unlock()

	tex, err := frame.Texture()
	if err != nil {
		return err
	}
	k.slot.Put(tex)
	return nil
}

package capture_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/capture/capturetest"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
)

type recordingSink struct {
	frames []capture.Frame
	err    error
}

func (r *recordingSink) Consume(f capture.Frame) error {
	r.frames = append(r.frames, f)
	return r.err
}

var target = window.Target{Handle: 42, Title: "Game", Process: "game.exe"}

func TestInitializeRejectsZeroSize(t *testing.T) {
	src := capturetest.NewSource(capture.Size{Width: 0, Height: 720})
	_, err := capture.Initialize(src, target)
	if !errors.Is(err, capture.ErrInvalidDimensions) {
		t.Fatalf("Initialize = %v, want ErrInvalidDimensions", err)
	}
	streams := src.Streams()
	if len(streams) != 1 || !streams[0].Released() {
		t.Fatal("stream not released after invalid dimensions")
	}
}

func TestInitializePropagatesOpenError(t *testing.T) {
	src := capturetest.NewSource(capture.Size{Width: 1, Height: 1})
	src.SetOpenErr(capture.ErrDeviceCreation)
	if _, err := capture.Initialize(src, target); !errors.Is(err, capture.ErrDeviceCreation) {
		t.Fatalf("Initialize = %v, want ErrDeviceCreation", err)
	}
}

func TestInitializePoolFailureReleasesStream(t *testing.T) {
	src := capturetest.NewSource(capture.Size{Width: 640, Height: 480})
	src.PoolErr = capture.ErrSessionInit
	if _, err := capture.Initialize(src, target); !errors.Is(err, capture.ErrSessionInit) {
		t.Fatalf("Initialize = %v, want ErrSessionInit", err)
	}
	if !src.Streams()[0].Released() {
		t.Fatal("stream not released after pool failure")
	}
}

func TestSessionDeliversFramesUntilDrained(t *testing.T) {
	size := capture.Size{Width: 1280, Height: 720}
	src := capturetest.NewSource(size)
	s, err := capture.Initialize(src, target)
	if err != nil {
		t.Fatal(err)
	}
	if s.Size() != size {
		t.Fatalf("Size = %v, want %v", s.Size(), size)
	}
	stream := src.Streams()[0]
	if stream.PoolSize() != size {
		t.Fatalf("pool size = %v, want %v", stream.PoolSize(), size)
	}

	sink := &recordingSink{}
	if err := s.Start(sink); err != nil {
		t.Fatal(err)
	}
	if !stream.Started() || !stream.Subscribed() {
		t.Fatal("stream not started and subscribed")
	}

	stream.Deliver(size)
	stream.Deliver(size)
	if len(sink.frames) != 2 {
		t.Fatalf("sink got %d frames, want 2", len(sink.frames))
	}
	for i, f := range stream.Frames() {
		if !f.Closed() {
			t.Fatalf("frame %d not closed after callback", i)
		}
	}

	s.Drain()
	stream.Deliver(size)
	if len(sink.frames) != 2 {
		t.Fatal("frame reached sink after Drain")
	}

	stats := s.Stats()
	if stats.Copied != 2 || stats.Dropped != 1 {
		t.Fatalf("Stats = %+v, want 2 copied 1 dropped", stats)
	}
}

func TestSessionSinkErrorCountsAsDropped(t *testing.T) {
	size := capture.Size{Width: 10, Height: 10}
	src := capturetest.NewSource(size)
	s, err := capture.Initialize(src, target)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(&recordingSink{err: errors.New("no")}); err != nil {
		t.Fatal(err)
	}
	src.Streams()[0].Deliver(size)
	if got := s.Stats(); got.Dropped != 1 || got.Copied != 0 {
		t.Fatalf("Stats = %+v, want 1 dropped", got)
	}
}

func TestSessionCloseIsIdempotentAndOrdered(t *testing.T) {
	src := capturetest.NewSource(capture.Size{Width: 10, Height: 10})
	s, err := capture.Initialize(src, target)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(&recordingSink{}); err != nil {
		t.Fatal(err)
	}
	stream := src.Streams()[0]

	s.Close()
	s.Close()
	if s.State() != capture.Destroyed {
		t.Fatalf("State = %v, want destroyed", s.State())
	}
	if stream.Subscribed() || !stream.Closed() || !stream.Released() {
		t.Fatal("Close did not unsubscribe, close and release the stream")
	}
	if stream.Deliver(capture.Size{Width: 10, Height: 10}) {
		t.Fatal("handler still registered after Close")
	}
}

func TestSessionItemClosed(t *testing.T) {
	src := capturetest.NewSource(capture.Size{Width: 10, Height: 10})
	s, err := capture.Initialize(src, target)
	if err != nil {
		t.Fatal(err)
	}
	called := make(chan struct{}, 1)
	s.OnClosed(func() { called <- struct{}{} })
	if err := s.Start(&recordingSink{}); err != nil {
		t.Fatal(err)
	}

	if s.Wait(5 * time.Millisecond) {
		t.Fatal("Wait reported closed before the item closed")
	}
	src.Streams()[0].CloseItem()
	if !s.Wait(time.Second) || !s.ItemClosed() {
		t.Fatal("Wait did not report the closed item")
	}
	select {
	case <-called:
	default:
		t.Fatal("OnClosed callback not invoked")
	}
}

func TestSessionCursorAndRecreate(t *testing.T) {
	src := capturetest.NewSource(capture.Size{Width: 10, Height: 10})
	s, err := capture.Initialize(src, target)
	if err != nil {
		t.Fatal(err)
	}
	stream := src.Streams()[0]
	if err := s.SetCursorCapture(true); err != nil || !stream.Cursor() {
		t.Fatalf("SetCursorCapture: %v", err)
	}
	if err := s.Recreate(capture.Size{Width: 20, Height: 20}); err != nil {
		t.Fatal(err)
	}
	if got := stream.Recreated(); len(got) != 1 || got[0] != (capture.Size{Width: 20, Height: 20}) {
		t.Fatalf("Recreated = %v", got)
	}
}

func TestSessionReportsContentResize(t *testing.T) {
	size := capture.Size{Width: 640, Height: 480}
	src := capturetest.NewSource(size)
	s, err := capture.Initialize(src, target)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Start(&recordingSink{}); err != nil {
		t.Fatal(err)
	}
	stream := src.Streams()[0]

	stream.Deliver(size)
	stream.Deliver(capture.Size{})
	if _, ok := s.ContentResized(); ok {
		t.Fatal("ContentResized set for matching or empty frames")
	}

	stream.Deliver(capture.Size{Width: 800, Height: 600})
	stream.Deliver(capture.Size{Width: 1024, Height: 768})
	got, ok := s.ContentResized()
	if !ok || got != (capture.Size{Width: 1024, Height: 768}) {
		t.Fatalf("ContentResized = %s, %v, want 1024x768, true", got, ok)
	}
}

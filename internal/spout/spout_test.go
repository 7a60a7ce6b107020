package spout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/capture/capturetest"
)

func TestInfoLayout(t *testing.T) {
	b := make([]byte, InfoSize)
	Info{
		ShareHandle: 0xC0DE,
		Width:       1920,
		Height:      1080,
		Format:      FormatBGRA8,
		Usage:       0,
		Description: "C:\\game.exe",
		PartnerID:   7,
	}.MarshalTo(b)

	le := binary.LittleEndian
	if got := le.Uint32(b[0:]); got != 0xC0DE {
		t.Fatalf("shareHandle = 0x%x", got)
	}
	if le.Uint32(b[4:]) != 1920 || le.Uint32(b[8:]) != 1080 {
		t.Fatal("size not at offsets 4 and 8")
	}
	if le.Uint32(b[12:]) != 87 {
		t.Fatalf("format = %d, want 87", le.Uint32(b[12:]))
	}
	if le.Uint16(b[20:]) != 'C' || le.Uint16(b[22:]) != ':' {
		t.Fatal("description not UTF-16 at offset 20")
	}
	if le.Uint32(b[276:]) != 7 {
		t.Fatal("partnerId not at offset 276")
	}

	got, err := UnmarshalInfo(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "C:\\game.exe" || got.Width != 1920 {
		t.Fatalf("UnmarshalInfo = %+v", got)
	}
}

func TestInfoDescriptionTruncated(t *testing.T) {
	b := make([]byte, InfoSize)
	Info{Description: strings.Repeat("x", 300), PartnerID: 1}.MarshalTo(b)

	got, _ := UnmarshalInfo(b)
	if len(got.Description) != 127 {
		t.Fatalf("description length = %d, want 127", len(got.Description))
	}
	if got.PartnerID != 1 {
		t.Fatal("description overran partnerId")
	}
	if _, err := UnmarshalInfo(b[:InfoSize-1]); err == nil {
		t.Fatal("UnmarshalInfo accepted a short buffer")
	}
}

func TestRegistry(t *testing.T) {
	names := make([]byte, 3*NameSize)

	for _, n := range []string{"a", "b", "a"} {
		if err := Register(names, n); err != nil {
			t.Fatalf("Register(%q) = %v", n, err)
		}
	}
	if got := Names(names); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Names = %v, want [a b]", got)
	}

	if err := Register(names, "c"); err != nil {
		t.Fatal(err)
	}
	if err := Register(names, "d"); !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("Register into full registry = %v, want ErrRegistryFull", err)
	}

	if !Unregister(names, "a") || Unregister(names, "a") {
		t.Fatal("Unregister did not remove exactly once")
	}
	if err := Register(names, "d"); err != nil {
		t.Fatal(err)
	}
	if got := Names(names); !slices.Equal(got, []string{"d", "b", "c"}) {
		t.Fatalf("Names = %v, want freed slot reused", got)
	}
}

func TestRegistryRejectsBadNames(t *testing.T) {
	names := make([]byte, NameSize)
	for _, n := range []string{"", strings.Repeat("n", NameSize), "a\x00b"} {
		if err := Register(names, n); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Register(%q) = %v, want ErrInvalidName", n, err)
		}
	}
}

func TestActiveName(t *testing.T) {
	active := make([]byte, NameSize)
	SetActive(active, "first-longer-name")
	SetActive(active, "second")
	if got := Active(active); got != "second" {
		t.Fatalf("Active = %q, want second", got)
	}
}

type memHost struct {
	mu       sync.Mutex
	maps     map[string][]byte
	locks    map[string]*sync.Mutex
	lockErr  error
	mapErrOn string
}

func newMemHost() *memHost {
	return &memHost{maps: map[string][]byte{}, locks: map[string]*sync.Mutex{}}
}

type memMapping struct{ b []byte }

func (m memMapping) Bytes() []byte { return m.b }
func (m memMapping) Close() error  { return nil }

func (h *memHost) CreateMapping(name string, size int) (Memory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == h.mapErrOn {
		return nil, fmt.Errorf("mapping %s refused", name)
	}
	b, ok := h.maps[name]
	if !ok {
		b = make([]byte, size)
		h.maps[name] = b
	}
	return memMapping{b}, nil
}

type memLock struct {
	m   *sync.Mutex
	err error
}

func (l memLock) Lock() error {
	if l.err != nil {
		return l.err
	}
	l.m.Lock()
	return nil
}
func (l memLock) Unlock()      { l.m.Unlock() }
func (l memLock) Close() error { return nil }

func (h *memHost) CreateMutex(name string) (Locker, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.locks[name]
	if !ok {
		m = &sync.Mutex{}
		h.locks[name] = m
	}
	return memLock{m: m, err: h.lockErr}, nil
}

func TestSenderLifecycle(t *testing.T) {
	host := newMemHost()
	dev := capturetest.NewDevice()

	s, err := NewSender("GameCaptureWGC", dev, host)
	if err != nil {
		t.Fatal(err)
	}
	if got := Names(host.maps[SenderNamesMap]); !slices.Equal(got, []string{"GameCaptureWGC"}) {
		t.Fatalf("registry = %v", got)
	}
	if got := Active(host.maps[ActiveNameMap]); got != "GameCaptureWGC" {
		t.Fatalf("active = %q", got)
	}

	frame := dev.NewFrameTexture(capture.Size{Width: 640, Height: 480})
	if err := s.Send(frame); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(frame); err != nil {
		t.Fatal(err)
	}
	if n := len(dev.Textures()); n != 1 {
		t.Fatalf("%d sender textures for one size, want 1", n)
	}

	info, _ := UnmarshalInfo(host.maps["GameCaptureWGC"])
	first := dev.Textures()[0]
	if info.Width != 640 || info.Height != 480 || info.ShareHandle != uint32(first.Handle()) || info.Format != FormatBGRA8 {
		t.Fatalf("info = %+v", info)
	}

	bigger := dev.NewFrameTexture(capture.Size{Width: 1280, Height: 720})
	if err := s.Send(bigger); err != nil {
		t.Fatal(err)
	}
	if !first.Released() {
		t.Fatal("old sender texture not released on resize")
	}
	info, _ = UnmarshalInfo(host.maps["GameCaptureWGC"])
	if info.Width != 1280 || info.ShareHandle != uint32(dev.Textures()[1].Handle()) {
		t.Fatalf("info after resize = %+v", info)
	}

	for _, c := range dev.Copies() {
		if c.Dst.Size() != c.Src.Size() {
			t.Fatalf("copy %s into %s", c.Src.Size(), c.Dst.Size())
		}
	}
	if frame.Released() || bigger.Released() {
		t.Fatal("Send released the caller's texture")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if len(Names(host.maps[SenderNamesMap])) != 0 || Active(host.maps[ActiveNameMap]) != "" {
		t.Fatal("sender still registered after Close")
	}
	if !dev.Textures()[1].Released() {
		t.Fatal("sender texture not released on Close")
	}
	if err := s.Send(frame); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close = %v", err)
	}
}

func TestSenderCloseKeepsOtherActiveSender(t *testing.T) {
	host := newMemHost()
	a, err := NewSender("a", capturetest.NewDevice(), host)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewSender("b", capturetest.NewDevice(), host)
	if err != nil {
		t.Fatal(err)
	}

	a.Close()
	if got := Active(host.maps[ActiveNameMap]); got != "b" {
		t.Fatalf("active = %q, want b", got)
	}
	if got := Names(host.maps[SenderNamesMap]); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("registry = %v, want [b]", got)
	}
	b.Close()
}

func TestSenderSetupFailures(t *testing.T) {
	if _, err := NewSender("", capturetest.NewDevice(), newMemHost()); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("NewSender(\"\") = %v, want ErrInvalidName", err)
	}

	host := newMemHost()
	host.mapErrOn = ActiveNameMap
	if _, err := NewSender("x", capturetest.NewDevice(), host); err == nil {
		t.Fatal("NewSender succeeded without the active-name mapping")
	}

	host = newMemHost()
	host.lockErr = errors.New("timeout")
	if _, err := NewSender("x", capturetest.NewDevice(), host); err == nil {
		t.Fatal("NewSender succeeded without the registry lock")
	}
	if len(Names(host.maps[SenderNamesMap])) != 0 {
		t.Fatal("registered without holding the lock")
	}
}

func TestSendWaitsForAccessMutex(t *testing.T) {
	host := newMemHost()
	dev := capturetest.NewDevice()
	s, err := NewSender("guarded", dev, host)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	access, ok := host.locks["guarded_SpoutAccessMutex"]
	if !ok {
		t.Fatal("no guarded_SpoutAccessMutex created")
	}

	// A receiver holds the texture
	access.Lock()
	done := make(chan error, 1)
	go func() {
		done <- s.Send(dev.NewFrameTexture(capture.Size{Width: 320, Height: 240}))
	}()

	select {
	case err := <-done:
		t.Fatalf("Send returned %v while the access mutex was held", err)
	case <-time.After(50 * time.Millisecond):
	}
	if n := len(dev.Copies()); n != 0 {
		t.Fatalf("%d copies while the access mutex was held, want 0", n)
	}

	access.Unlock()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send still blocked after the access mutex was released")
	}
	if n := len(dev.Copies()); n != 1 {
		t.Fatalf("Copies = %d, want 1", n)
	}
}

func TestSenderRejectsEmptyTexture(t *testing.T) {
	dev := capturetest.NewDevice()
	s, err := NewSender("empty", dev, newMemHost())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Send(capturetest.NewTexture(99, capture.Size{})); !errors.Is(err, capture.ErrInvalidDimensions) {
		t.Fatalf("Send(0x0) = %v, want ErrInvalidDimensions", err)
	}
	if len(dev.Textures()) != 0 {
		t.Fatal("texture created for an empty frame")
	}
}

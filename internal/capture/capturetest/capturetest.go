// Package capturetest provides in-memory implementations of the capture
// interfaces for tests.
package capturetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
)

// Texture is a reference-counted fake texture.
type Texture struct {
	ID     int
	size   capture.Size
	handle uint64
	refs   atomic.Int32
	misuse atomic.Int32
}

// NewTexture returns a texture holding one reference.
func NewTexture(id int, size capture.Size) *Texture {
	t := &Texture{ID: id, size: size}
	t.refs.Store(1)
	return t
}

func (t *Texture) AddRef() {
	if t.refs.Add(1) <= 1 {
		t.misuse.Add(1)
	}
}

func (t *Texture) Release() {
	if t.refs.Add(-1) < 0 {
		t.misuse.Add(1)
	}
}

func (t *Texture) Size() capture.Size { return t.size }
func (t *Texture) Handle() uint64     { return t.handle }

// Refs returns the current reference count.
func (t *Texture) Refs() int { return int(t.refs.Load()) }

// Released reports whether every reference has been dropped.
func (t *Texture) Released() bool { return t.refs.Load() <= 0 }

// Misused reports whether the texture was resurrected or over-released.
func (t *Texture) Misused() bool { return t.misuse.Load() > 0 }

// Copy records one CopyResource call.
type Copy struct {
	Dst, Src *Texture
}

// Device records the textures it creates and the copies it performs.
type Device struct {
	mu         sync.Mutex
	nextID     int
	textures   []*Texture
	copies     []Copy
	flushes    int
	CreateErr  error
	OnCopy     func(dst, src *Texture)
	nextHandle uint64
}

// NewDevice returns an empty device.
func NewDevice() *Device {
	return &Device{nextHandle: 0x1000}
}

func (d *Device) CreateSharedTexture(size capture.Size) (capture.SharedTexture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CreateErr != nil {
		return nil, d.CreateErr
	}
	d.nextID++
	t := NewTexture(d.nextID, size)
	t.handle = d.nextHandle
	d.nextHandle += 0x10
	d.textures = append(d.textures, t)
	return t, nil
}

// NewFrameTexture creates a non-shared texture owned by the caller.
func (d *Device) NewFrameTexture(size capture.Size) *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return NewTexture(d.nextID, size)
}

func (d *Device) CopyResource(dst, src capture.Texture) error {
	dt, ok1 := dst.(*Texture)
	st, ok2 := src.(*Texture)
	if !ok1 || !ok2 {
		return errors.New("foreign texture")
	}
	if dt.Released() || st.Released() {
		return fmt.Errorf("copy involving released texture (dst %d, src %d)", dt.ID, st.ID)
	}
	if dt.size != st.size {
		return fmt.Errorf("size mismatch %s vs %s", dt.size, st.size)
	}
	if d.OnCopy != nil {
		d.OnCopy(dt, st)
	}
	d.mu.Lock()
	d.copies = append(d.copies, Copy{Dst: dt, Src: st})
	d.mu.Unlock()
	return nil
}

func (d *Device) Flush() {
	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
}

// Textures returns the shared textures created so far.
func (d *Device) Textures() []*Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Texture(nil), d.textures...)
}

// Copies returns the recorded copies.
func (d *Device) Copies() []Copy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Copy(nil), d.copies...)
}

// Flushes returns the number of Flush calls.
func (d *Device) Flushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

// Frame is a fake captured frame.
type Frame struct {
	tex     *Texture
	content capture.Size
	closed  atomic.Bool
}

// Texture returns a new reference to the frame surface.
func (f *Frame) Texture() (capture.Texture, error) {
	if f.closed.Load() {
		return nil, errors.New("frame closed")
	}
	f.tex.AddRef()
	return f.tex, nil
}

func (f *Frame) ContentSize() capture.Size { return f.content }

func (f *Frame) Close() {
	if f.closed.CompareAndSwap(false, true) {
		f.tex.Release()
	}
}

// Surface returns the frame's texture without taking a reference.
func (f *Frame) Surface() *Texture { return f.tex }

// Closed reports whether Close was called.
func (f *Frame) Closed() bool { return f.closed.Load() }

// Stream is a fake capture pipeline. Tests drive it with Deliver and
// CloseItem.
type Stream struct {
	device *Device
	size   capture.Size

	mu         sync.Mutex
	poolSize   capture.Size
	recreated  []capture.Size
	queue      []*Frame
	frames     []*Frame
	onFrame    func()
	onClosed   func()
	subscribed bool
	started    bool
	cursor     bool
	closedCh   chan struct{}
	closeOnce  sync.Once
	isClosed   bool
	isReleased bool

	PoolErr  error
	StartErr error
}

// NewStream returns a stream whose item has the given content size.
func NewStream(device *Device, size capture.Size) *Stream {
	return &Stream{device: device, size: size, closedCh: make(chan struct{})}
}

func (s *Stream) Device() capture.Device    { return s.device }
func (s *Stream) ContentSize() capture.Size { return s.size }

func (s *Stream) CreatePool(size capture.Size) error {
	if s.PoolErr != nil {
		return s.PoolErr
	}
	s.mu.Lock()
	s.poolSize = size
	s.mu.Unlock()
	return nil
}

func (s *Stream) Recreate(size capture.Size) error {
	s.mu.Lock()
	s.poolSize = size
	s.recreated = append(s.recreated, size)
	s.mu.Unlock()
	return nil
}

func (s *Stream) Subscribe(onFrame, onClosed func()) error {
	s.mu.Lock()
	s.onFrame, s.onClosed, s.subscribed = onFrame, onClosed, true
	s.mu.Unlock()
	return nil
}

func (s *Stream) Unsubscribe() {
	s.mu.Lock()
	s.onFrame, s.onClosed, s.subscribed = nil, nil, false
	s.mu.Unlock()
}

func (s *Stream) SetCursorCapture(enabled bool) error {
	s.mu.Lock()
	s.cursor = enabled
	s.mu.Unlock()
	return nil
}

func (s *Stream) Start() error {
	if s.StartErr != nil {
		return s.StartErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *Stream) TryGetNextFrame() (capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, nil
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f, nil
}

// Deliver queues a frame with the given content size, sized like the pool,
// and invokes the frame handler on the calling goroutine. It reports whether
// a handler was registered.
func (s *Stream) Deliver(content capture.Size) bool {
	s.mu.Lock()
	f := &Frame{tex: s.device.NewFrameTexture(s.poolSize), content: content}
	s.queue = append(s.queue, f)
	s.frames = append(s.frames, f)
	onFrame := s.onFrame
	s.mu.Unlock()

	if onFrame == nil {
		return false
	}
	onFrame()
	return true
}

// CloseItem simulates the OS closing the capture item.
func (s *Stream) CloseItem() {
	s.closeOnce.Do(func() {
		close(s.closedCh)
		s.mu.Lock()
		onClosed := s.onClosed
		s.mu.Unlock()
		if onClosed != nil {
			onClosed()
		}
	})
}

func (s *Stream) Pump(timeout time.Duration) bool {
	select {
	case <-s.closedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Stream) Close() {
	s.mu.Lock()
	s.isClosed = true
	s.mu.Unlock()
}

func (s *Stream) Release() {
	s.mu.Lock()
	s.isReleased = true
	s.mu.Unlock()
}

// Frames returns every frame delivered so far.
func (s *Stream) Frames() []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Frame(nil), s.frames...)
}

// Recreated returns the sizes passed to Recreate.
func (s *Stream) Recreated() []capture.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capture.Size(nil), s.recreated...)
}

// PoolSize returns the current frame pool size.
func (s *Stream) PoolSize() capture.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolSize
}

// Subscribed reports whether handlers are registered.
func (s *Stream) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// Started reports whether Start was called.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Cursor reports the last cursor capture setting.
func (s *Stream) Cursor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// Released reports whether Release was called.
func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isReleased
}

// Source opens fake streams. Item sizes come from Sizes, keyed by window
// handle, falling back to DefaultSize.
type Source struct {
	mu          sync.Mutex
	sizes       map[window.Handle]capture.Size
	DefaultSize capture.Size
	OpenErr     error
	PoolErr     error
	streams     []*Stream
	opened      chan *Stream
}

// NewSource returns a source producing items of defaultSize.
func NewSource(defaultSize capture.Size) *Source {
	return &Source{
		sizes:       make(map[window.Handle]capture.Size),
		DefaultSize: defaultSize,
		opened:      make(chan *Stream, 64),
	}
}

// SetSize sets the item size reported for a window handle.
func (s *Source) SetSize(h window.Handle, size capture.Size) {
	s.mu.Lock()
	s.sizes[h] = size
	s.mu.Unlock()
}

// SetOpenErr makes subsequent Open calls fail with err.
func (s *Source) SetOpenErr(err error) {
	s.mu.Lock()
	s.OpenErr = err
	s.mu.Unlock()
}

func (s *Source) Open(target window.Target) (capture.Stream, error) {
	s.mu.Lock()
	if s.OpenErr != nil {
		err := s.OpenErr
		s.mu.Unlock()
		return nil, err
	}
	size, ok := s.sizes[target.Handle]
	if !ok {
		size = s.DefaultSize
	}
	st := NewStream(NewDevice(), size)
	st.PoolErr = s.PoolErr
	s.streams = append(s.streams, st)
	s.mu.Unlock()

	select {
	case s.opened <- st:
	default:
	}
	return st, nil
}

// Streams returns every stream opened so far.
func (s *Source) Streams() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Stream(nil), s.streams...)
}

// Opened delivers each stream as it is opened.
func (s *Source) Opened() <-chan *Stream {
	return s.opened
}

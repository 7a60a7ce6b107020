//go:build windows

package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	ole "github.com/go-ole/go-ole"
	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

const (
	classGraphicsCaptureItem = "Windows.Graphics.Capture.GraphicsCaptureItem"
	classFramePool           = "Windows.Graphics.Capture.Direct3D11CaptureFramePool"

	roInitMultithreaded = 1
	sFalse              = 1
	rpcEChangedMode     = 0x80010106

	framePoolBuffers = 2

	monitorDefaultToPrimary = 1
)

// WinRT vtable slots. IInspectable occupies 0-5.
const (
	interopCreateForWindow  = 3 // IGraphicsCaptureItemInterop
	interopCreateForMonitor = 4

	itemGetSize      = 7 // IGraphicsCaptureItem
	itemAddClosed    = 8
	itemRemoveClosed = 9

	poolStaticsCreateFreeThreaded = 6 // IDirect3D11CaptureFramePoolStatics2

	poolRecreate             = 6 // IDirect3D11CaptureFramePool
	poolTryGetNextFrame      = 7
	poolAddFrameArrived      = 8
	poolRemoveFrameArrived   = 9
	poolCreateCaptureSession = 10

	sessionStartCapture = 6 // IGraphicsCaptureSession

	session2PutCursorEnabled = 7 // IGraphicsCaptureSession2

	closableClose = 6 // IClosable

	frameGetSurface     = 6 // IDirect3D11CaptureFrame
	frameGetContentSize = 8

	dxgiAccessGetInterface = 3 // IDirect3DDxgiInterfaceAccess
)

var (
	iidGraphicsCaptureItemInterop = ole.NewGUID("{3628E81B-3CAC-4C60-B7F4-23CE0E0C3356}")
	iidGraphicsCaptureItem        = ole.NewGUID("{79C3F95B-31F7-4EC2-A464-632EF5D30760}")
	iidFramePoolStatics2          = ole.NewGUID("{589B103F-6BBC-5DF5-A991-02E28B3B66D5}")
	iidGraphicsCaptureSession2    = ole.NewGUID("{2C39AE40-7D2E-5044-804E-8B6799D4CF9E}")
	iidClosable                   = ole.NewGUID("{30D5A829-7FA4-4026-83BB-D75BAE4EA99E}")
	iidDxgiInterfaceAccess        = ole.NewGUID("{A9B3D012-3DF2-4EE3-B8D1-8695F457D3C1}")
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procMonitorFromWindow         = user32.NewProc("MonitorFromWindow")
	procGetDesktopWindow          = user32.NewProc("GetDesktopWindow")
	procMsgWaitForMultipleObjects = user32.NewProc("MsgWaitForMultipleObjects")
	procPeekMessageW              = user32.NewProc("PeekMessageW")
	procTranslateMessage          = user32.NewProc("TranslateMessage")
	procDispatchMessageW          = user32.NewProc("DispatchMessageW")
)

// WGCSource opens Windows.Graphics.Capture streams.
type WGCSource struct {
	log *zerolog.Logger
}

// NewSource returns the capture source for this platform.
func NewSource() (Source, error) {
	if err := d3d11DLL.Load(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSupported, err)
	}
	return &WGCSource{log: logger.WithComponent("capture")}, nil
}

func roInitialize() error {
	err := ole.RoInitialize(roInitMultithreaded)
	if err == nil {
		return nil
	}
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		switch oleErr.Code() {
		case sFalse, rpcEChangedMode:
			// Already initialized on this thread
			return nil
		}
	}
	return err
}

// Open creates a hardware device and the capture item for target.
func (s *WGCSource) Open(target window.Target) (Stream, error) {
	if err := roInitialize(); err != nil {
		return nil, fmt.Errorf("%w: RoInitialize: %v", ErrDeviceCreation, err)
	}

	device, err := newD3DDevice()
	if err != nil {
		return nil, err
	}
	rtDevice, err := device.winrtDevice()
	if err != nil {
		device.release()
		return nil, err
	}

	item, err := createCaptureItem(target)
	if err != nil {
		comRelease(rtDevice)
		device.release()
		return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
	}

	var size uint64
	if _, err := comCall(item, itemGetSize, uintptr(unsafe.Pointer(&size))); err != nil {
		comRelease(item)
		comRelease(rtDevice)
		device.release()
		return nil, fmt.Errorf("%w: get_Size: %v", ErrSessionInit, err)
	}

	return &wgcStream{
		device:   device,
		rtDevice: rtDevice,
		item:     item,
		size:     unpackSize(size),
		log:      s.log,
	}, nil
}

func createCaptureItem(target window.Target) (uintptr, error) {
	factory, err := ole.RoGetActivationFactory(classGraphicsCaptureItem, iidGraphicsCaptureItemInterop)
	if err != nil {
		return 0, fmt.Errorf("activation factory: %w", err)
	}
	defer factory.Release()
	interop := uintptr(unsafe.Pointer(factory))

	var item uintptr
	if target.Desktop {
		desktop, _, _ := procGetDesktopWindow.Call()
		monitor, _, _ := procMonitorFromWindow.Call(desktop, monitorDefaultToPrimary)
		_, err = comCall(interop, interopCreateForMonitor,
			monitor,
			uintptr(unsafe.Pointer(iidGraphicsCaptureItem)),
			uintptr(unsafe.Pointer(&item)),
		)
	} else {
		_, err = comCall(interop, interopCreateForWindow,
			uintptr(target.Handle),
			uintptr(unsafe.Pointer(iidGraphicsCaptureItem)),
			uintptr(unsafe.Pointer(&item)),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("create capture item: %w", err)
	}
	return item, nil
}

// wgcStream owns one capture item and everything created for it.
type wgcStream struct {
	device   *d3dDevice
	rtDevice uintptr
	item     uintptr
	pool     uintptr
	session  uintptr
	size     Size
	log      *zerolog.Logger

	mu             sync.Mutex
	closedEvent    windows.Handle
	frameDelegate  *eventDelegate
	closedDelegate *eventDelegate
	frameToken     uint64
	closedToken    uint64
}

func (s *wgcStream) Device() Device    { return s.device }
func (s *wgcStream) ContentSize() Size { return s.size }

func (s *wgcStream) CreatePool(size Size) error {
	factory, err := ole.RoGetActivationFactory(classFramePool, iidFramePoolStatics2)
	if err != nil {
		return fmt.Errorf("%w: frame pool factory: %v", ErrSessionInit, err)
	}
	defer factory.Release()

	args := []uintptr{s.rtDevice, dxgiFormatB8G8R8A8, framePoolBuffers}
	args = append(args, valueArgs(packSize(size))...)
	args = append(args, uintptr(unsafe.Pointer(&s.pool)))
	if _, err := comCall(uintptr(unsafe.Pointer(factory)), poolStaticsCreateFreeThreaded, args...); err != nil {
		return fmt.Errorf("%w: CreateFreeThreaded: %v", ErrSessionInit, err)
	}

	if _, err := comCall(s.pool, poolCreateCaptureSession, s.item, uintptr(unsafe.Pointer(&s.session))); err != nil {
		closeAndRelease(s.pool)
		s.pool = 0
		return fmt.Errorf("%w: CreateCaptureSession: %v", ErrSessionInit, err)
	}
	return nil
}

func (s *wgcStream) Recreate(size Size) error {
	args := []uintptr{s.rtDevice, dxgiFormatB8G8R8A8, framePoolBuffers}
	args = append(args, valueArgs(packSize(size))...)
	if _, err := comCall(s.pool, poolRecreate, args...); err != nil {
		return fmt.Errorf("frame pool Recreate %s: %w", size, err)
	}
	return nil
}

func (s *wgcStream) Subscribe(onFrame, onClosed func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return fmt.Errorf("CreateEvent: %w", err)
	}
	s.closedEvent = event

	s.closedDelegate = newEventDelegate(iidItemClosedHandler, func() {
		windows.SetEvent(event)
		onClosed()
	})
	if _, err := comCall(s.item, itemAddClosed, s.closedDelegate.ptr(), uintptr(unsafe.Pointer(&s.closedToken))); err != nil {
		s.unsubscribeLocked()
		return fmt.Errorf("add_Closed: %w", err)
	}

	s.frameDelegate = newEventDelegate(iidFrameArrivedHandler, onFrame)
	if _, err := comCall(s.pool, poolAddFrameArrived, s.frameDelegate.ptr(), uintptr(unsafe.Pointer(&s.frameToken))); err != nil {
		s.unsubscribeLocked()
		return fmt.Errorf("add_FrameArrived: %w", err)
	}
	return nil
}

func (s *wgcStream) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
}

func (s *wgcStream) unsubscribeLocked() {
	if s.frameDelegate != nil {
		if s.frameToken != 0 {
			comCall(s.pool, poolRemoveFrameArrived, valueArgs(s.frameToken)...)
		}
		delegateRelease(s.frameDelegate.ptr())
		s.frameDelegate, s.frameToken = nil, 0
	}
	if s.closedDelegate != nil {
		if s.closedToken != 0 {
			comCall(s.item, itemRemoveClosed, valueArgs(s.closedToken)...)
		}
		delegateRelease(s.closedDelegate.ptr())
		s.closedDelegate, s.closedToken = nil, 0
	}
}

func (s *wgcStream) SetCursorCapture(enabled bool) error {
	session2, err := queryInterface(s.session, iidGraphicsCaptureSession2)
	if err != nil {
		// Cursor control needs Windows 10 2004+
		return err
	}
	defer comRelease(session2)

	var flag uintptr
	if enabled {
		flag = 1
	}
	_, err = comCall(session2, session2PutCursorEnabled, flag)
	return err
}

func (s *wgcStream) Start() error {
	if _, err := comCall(s.session, sessionStartCapture); err != nil {
		return fmt.Errorf("StartCapture: %w", err)
	}
	return nil
}

func (s *wgcStream) TryGetNextFrame() (Frame, error) {
	var frame uintptr
	if _, err := comCall(s.pool, poolTryGetNextFrame, uintptr(unsafe.Pointer(&frame))); err != nil {
		return nil, err
	}
	if frame == 0 {
		return nil, nil
	}
	return &wgcFrame{ptr: frame}, nil
}

func (s *wgcStream) Pump(timeout time.Duration) bool {
	s.mu.Lock()
	event := s.closedEvent
	s.mu.Unlock()
	return pumpMessages(event, timeout)
}

// Close stops the capture session, then the frame pool.
func (s *wgcStream) Close() {
	closeAndRelease(s.session)
	closeAndRelease(s.pool)
	s.session, s.pool = 0, 0
}

func (s *wgcStream) Release() {
	comRelease(s.item)
	comRelease(s.rtDevice)
	s.device.release()
	s.item, s.rtDevice = 0, 0

	s.mu.Lock()
	if s.closedEvent != 0 {
		windows.CloseHandle(s.closedEvent)
		s.closedEvent = 0
	}
	s.mu.Unlock()
}

// closeAndRelease calls IClosable::Close on a WinRT object and drops the
// reference.
func closeAndRelease(obj uintptr) {
	if obj == 0 {
		return
	}
	if closable, err := queryInterface(obj, iidClosable); err == nil {
		comCall(closable, closableClose)
		comRelease(closable)
	}
	comRelease(obj)
}

// wgcFrame is an IDirect3D11CaptureFrame.
type wgcFrame struct {
	ptr uintptr
}

func (f *wgcFrame) Texture() (Texture, error) {
	var surface uintptr
	if _, err := comCall(f.ptr, frameGetSurface, uintptr(unsafe.Pointer(&surface))); err != nil {
		return nil, fmt.Errorf("get_Surface: %w", err)
	}
	defer comRelease(surface)

	access, err := queryInterface(surface, iidDxgiInterfaceAccess)
	if err != nil {
		return nil, err
	}
	defer comRelease(access)

	var tex uintptr
	if _, err := comCall(access, dxgiAccessGetInterface,
		uintptr(unsafe.Pointer(iidID3D11Texture2D)),
		uintptr(unsafe.Pointer(&tex)),
	); err != nil {
		return nil, fmt.Errorf("GetInterface ID3D11Texture2D: %w", err)
	}
	return wrapTexture(tex), nil
}

func (f *wgcFrame) ContentSize() Size {
	var size uint64
	if _, err := comCall(f.ptr, frameGetContentSize, uintptr(unsafe.Pointer(&size))); err != nil {
		return Size{}
	}
	return unpackSize(size)
}

func (f *wgcFrame) Close() {
	closeAndRelease(f.ptr)
	f.ptr = 0
}

const (
	waitObject0 = 0
	qsAllInput  = 0x04FF
	pmRemove    = 0x0001
)

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
	Private uint32
}

// pumpMessages dispatches this thread's window messages until event is
// signaled or timeout elapses. It reports whether event was signaled.
func pumpMessages(event windows.Handle, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}

		var r uintptr
		if event != 0 {
			handles := [1]windows.Handle{event}
			r, _, _ = procMsgWaitForMultipleObjects.Call(1, uintptr(unsafe.Pointer(&handles[0])), 0, uintptr(remaining.Milliseconds()), qsAllInput)
		} else {
			r, _, _ = procMsgWaitForMultipleObjects.Call(0, 0, 0, uintptr(remaining.Milliseconds()), qsAllInput)
		}

		switch {
		case event != 0 && r == waitObject0:
			return true
		case (event != 0 && r == waitObject0+1) || (event == 0 && r == waitObject0):
			dispatchPending()
			if time.Now().After(deadline) {
				return false
			}
		default:
			// Timeout or failure
			return false
		}
	}
}

func dispatchPending() {
	var m msg
	for {
		r, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmRemove)
		if r == 0 {
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

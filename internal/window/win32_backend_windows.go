//go:build windows

package window

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procIsWindow                 = user32.NewProc("IsWindow")
	procIsIconic                 = user32.NewProc("IsIconic")
	procGetParent                = user32.NewProc("GetParent")
	procGetClientRect            = user32.NewProc("GetClientRect")
	procShowWindow               = user32.NewProc("ShowWindow")
	procGetWindowLongW           = user32.NewProc("GetWindowLongW")
	procSetWindowLongW           = user32.NewProc("SetWindowLongW")
	procGetWindowLongPtrW        = user32.NewProc("GetWindowLongPtrW")
	procSetWindowLongPtrW        = user32.NewProc("SetWindowLongPtrW")
	procSetWindowPos             = user32.NewProc("SetWindowPos")
)

const (
	gwlStyle = ^uintptr(15) // GWL_STYLE (-16)

	swRestore = 9

	swpNoSize        = 0x0001
	swpNoMove        = 0x0002
	swpNoZOrder      = 0x0004
	swpFrameChanged  = 0x0020
	swpNoActivate    = 0x0010
	reframeFlags     = swpNoMove | swpNoSize | swpNoZOrder | swpFrameChanged | swpNoActivate
	maxWindowTextLen = 512
)

type rect struct {
	Left, Top, Right, Bottom int32
}

// enumWindowsProc appends each HWND to the *[]Handle passed as lParam.
var enumWindowsProc = syscall.NewCallback(func(hwnd, lparam uintptr) uintptr {
	list := (*[]Handle)(unsafe.Pointer(lparam))
	*list = append(*list, Handle(hwnd))
	return 1
})

// Win32Backend implements Backend with user32.
type Win32Backend struct{}

// NewBackend returns the window backend for this platform.
func NewBackend() (Backend, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("failed to load user32: %w", err)
	}
	return &Win32Backend{}, nil
}

func (b *Win32Backend) Name() string { return "win32" }

// ListWindows returns all top-level windows in EnumWindows order.
func (b *Win32Backend) ListWindows() ([]Info, error) {
	var handles []Handle
	r, _, err := procEnumWindows.Call(enumWindowsProc, uintptr(unsafe.Pointer(&handles)))
	if r == 0 {
		return nil, fmt.Errorf("EnumWindows failed: %w", err)
	}

	infos := make([]Info, 0, len(handles))
	for _, h := range handles {
		var pid uint32
		procGetWindowThreadProcessId.Call(uintptr(h), uintptr(unsafe.Pointer(&pid)))
		visible, _, _ := procIsWindowVisible.Call(uintptr(h))
		parent, _, _ := procGetParent.Call(uintptr(h))
		iconic, _, _ := procIsIconic.Call(uintptr(h))

		infos = append(infos, Info{
			Handle:    h,
			PID:       int(pid),
			Title:     windowText(h),
			Visible:   visible != 0,
			HasParent: parent != 0,
			Minimized: iconic != 0,
		})
	}
	return infos, nil
}

func windowText(h Handle) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(h))
	if n == 0 {
		return ""
	}
	if n > maxWindowTextLen {
		n = maxWindowTextLen
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func (b *Win32Backend) IsWindow(h Handle) bool {
	r, _, _ := procIsWindow.Call(uintptr(h))
	return r != 0
}

func (b *Win32Backend) IsMinimized(h Handle) bool {
	r, _, _ := procIsIconic.Call(uintptr(h))
	return r != 0
}

func (b *Win32Backend) ClientSize(h Handle) (Size, error) {
	var rc rect
	r, _, err := procGetClientRect.Call(uintptr(h), uintptr(unsafe.Pointer(&rc)))
	if r == 0 {
		return Size{}, fmt.Errorf("GetClientRect failed: %w", err)
	}
	return Size{Width: int(rc.Right - rc.Left), Height: int(rc.Bottom - rc.Top)}, nil
}

func (b *Win32Backend) Restore(h Handle) error {
	procShowWindow.Call(uintptr(h), swRestore)
	return nil
}

func (b *Win32Backend) Style(h Handle) (uint32, error) {
	get := procGetWindowLongPtrW
	if unsafe.Sizeof(uintptr(0)) == 4 {
		get = procGetWindowLongW
	}
	r, _, err := get.Call(uintptr(h), gwlStyle)
	if r == 0 {
		return 0, fmt.Errorf("GetWindowLong failed: %w", err)
	}
	return uint32(r), nil
}

// SetStyle writes GWL_STYLE and forces a frame recalculation so the new
// decorations take effect without moving or resizing the window.
func (b *Win32Backend) SetStyle(h Handle, style uint32) error {
	set := procSetWindowLongPtrW
	if unsafe.Sizeof(uintptr(0)) == 4 {
		set = procSetWindowLongW
	}
	// A zero return is ambiguous (previous style may have been 0); rely on
	// the error code only when one is set.
	if r, _, err := set.Call(uintptr(h), gwlStyle, uintptr(style)); r == 0 && err != windows.ERROR_SUCCESS {
		return fmt.Errorf("SetWindowLong failed: %w", err)
	}
	if r, _, err := procSetWindowPos.Call(uintptr(h), 0, 0, 0, 0, 0, reframeFlags); r == 0 {
		return fmt.Errorf("SetWindowPos failed: %w", err)
	}
	return nil
}

//go:build windows

package capture

import (
	"fmt"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// IUnknown vtable slots
const (
	vtblQueryInterface = 0
	vtblAddRef         = 1
	vtblRelease        = 2
)

func vtableFn(obj uintptr, idx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// comCall invokes an HRESULT-returning COM method at the given vtable slot.
func comCall(obj uintptr, idx int, args ...uintptr) (uintptr, error) {
	all := make([]uintptr, 0, 1+len(args))
	all = append(all, obj)
	all = append(all, args...)
	ret, _, _ := syscall.SyscallN(vtableFn(obj, idx), all...)
	if int32(ret) < 0 {
		return ret, fmt.Errorf("COM vtable[%d] HRESULT 0x%08X", idx, uint32(ret))
	}
	return ret, nil
}

// comCallVoid invokes a COM method that returns nothing.
func comCallVoid(obj uintptr, idx int, args ...uintptr) {
	all := make([]uintptr, 0, 1+len(args))
	all = append(all, obj)
	all = append(all, args...)
	syscall.SyscallN(vtableFn(obj, idx), all...)
}

func comAddRef(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(vtableFn(obj, vtblAddRef), obj)
	}
}

// comRelease calls IUnknown::Release.
func comRelease(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(vtableFn(obj, vtblRelease), obj)
	}
}

// queryInterface returns a new reference to obj as iid.
func queryInterface(obj uintptr, iid *ole.GUID) (uintptr, error) {
	var out uintptr
	if _, err := comCall(obj, vtblQueryInterface,
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)),
	); err != nil {
		return 0, fmt.Errorf("QueryInterface %s: %w", iid, err)
	}
	return out, nil
}

// valueArgs spreads a by-value 8-byte struct (SizeInt32, EventRegistrationToken)
// over the argument words the platform ABI uses for it.
func valueArgs(v uint64) []uintptr {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return []uintptr{uintptr(v)}
	}
	return []uintptr{uintptr(uint32(v)), uintptr(uint32(v >> 32))}
}

func packSize(s Size) uint64 {
	return uint64(s.Width) | uint64(s.Height)<<32
}

func unpackSize(v uint64) Size {
	w, h := int32(v), int32(v>>32)
	if w < 0 || h < 0 {
		return Size{}
	}
	return Size{Width: uint32(w), Height: uint32(h)}
}

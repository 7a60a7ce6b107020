//go:build windows

package capture

import (
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

const (
	eNoInterface = 0x80004002
	ePointer     = 0x80004003
)

var (
	iidIUnknown     = ole.NewGUID("{00000000-0000-0000-C000-000000000046}")
	iidIAgileObject = ole.NewGUID("{94EA2B94-E9CC-49E0-C0FF-EE64CA8F5B90}")

	// TypedEventHandler<Direct3D11CaptureFramePool, Object>
	iidFrameArrivedHandler = ole.NewGUID("{51A947F7-79CF-5A3E-A3A5-1289CFA6DFE8}")
	// TypedEventHandler<GraphicsCaptureItem, Object>
	iidItemClosedHandler = ole.NewGUID("{E9C610C0-A68C-5BD9-8021-8589346EEEE2}")
)

// delegateVtbl is the IUnknown + Invoke layout shared by every
// TypedEventHandler instantiation.
type delegateVtbl struct {
	queryInterface uintptr
	addRef         uintptr
	release        uintptr
	invoke         uintptr
}

// eventDelegate is a COM object implemented in Go. Its first field is the
// vtable pointer, so a *eventDelegate is a valid interface pointer.
type eventDelegate struct {
	vtbl   *delegateVtbl
	refs   atomic.Int32
	iid    *ole.GUID
	invoke func()
}

var (
	delegateVtable = &delegateVtbl{
		queryInterface: syscall.NewCallback(delegateQueryInterface),
		addRef:         syscall.NewCallback(delegateAddRef),
		release:        syscall.NewCallback(delegateRelease),
		invoke:         syscall.NewCallback(delegateInvoke),
	}

	// liveDelegates keeps delegates reachable while the OS holds references.
	liveDelegates sync.Map
)

func newEventDelegate(iid *ole.GUID, invoke func()) *eventDelegate {
	d := &eventDelegate{vtbl: delegateVtable, iid: iid, invoke: invoke}
	d.refs.Store(1)
	liveDelegates.Store(uintptr(unsafe.Pointer(d)), d)
	return d
}

func (d *eventDelegate) ptr() uintptr {
	return uintptr(unsafe.Pointer(d))
}

func lookupDelegate(this uintptr) *eventDelegate {
	v, ok := liveDelegates.Load(this)
	if !ok {
		return nil
	}
	return v.(*eventDelegate)
}

func delegateQueryInterface(this, riid, out uintptr) uintptr {
	if out == 0 {
		return ePointer
	}
	ppv := (*uintptr)(unsafe.Pointer(out))
	d := lookupDelegate(this)
	iid := (*ole.GUID)(unsafe.Pointer(riid))
	if d == nil || !(ole.IsEqualGUID(iid, iidIUnknown) ||
		ole.IsEqualGUID(iid, iidIAgileObject) ||
		ole.IsEqualGUID(iid, d.iid)) {
		*ppv = 0
		return eNoInterface
	}
	d.refs.Add(1)
	*ppv = this
	return 0
}

func delegateAddRef(this uintptr) uintptr {
	d := lookupDelegate(this)
	if d == nil {
		return 0
	}
	return uintptr(d.refs.Add(1))
}

func delegateRelease(this uintptr) uintptr {
	d := lookupDelegate(this)
	if d == nil {
		return 0
	}
	n := d.refs.Add(-1)
	if n <= 0 {
		liveDelegates.Delete(this)
		return 0
	}
	return uintptr(n)
}

func delegateInvoke(this, sender, args uintptr) uintptr {
	if d := lookupDelegate(this); d != nil && d.invoke != nil {
		d.invoke()
	}
	return 0
}

//go:build windows

package output

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var procOpenFileMappingW = windows.NewLazySystemDLL("kernel32.dll").NewProc("OpenFileMappingW")

// Mapping is a named, page-file backed shared memory section.
type Mapping struct {
	name   string
	handle windows.Handle
	addr   uintptr
	size   int
}

// CreateMapping creates (or opens, if another process already created it) a
// named read-write mapping of size bytes.
func CreateMapping(name string, size int) (*Mapping, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMappingCreation, err)
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), namePtr)
	if h == 0 {
		return nil, fmt.Errorf("%w: CreateFileMapping %q: %v", ErrMappingCreation, name, err)
	}
	return mapView(name, h, size, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE)
}

// OpenMapping opens an existing named mapping for reading.
func OpenMapping(name string, size int) (*Mapping, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	r, _, err := procOpenFileMappingW.Call(windows.FILE_MAP_READ, 0, uintptr(unsafe.Pointer(namePtr)))
	if r == 0 {
		return nil, fmt.Errorf("OpenFileMapping %q: %w", name, err)
	}
	h := windows.Handle(r)
	return mapView(name, h, size, windows.FILE_MAP_READ)
}

func mapView(name string, h windows.Handle, size int, access uint32) (*Mapping, error) {
	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if addr == 0 {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("%w: MapViewOfFile %q: %v", ErrMappingCreation, name, err)
	}
	return &Mapping{name: name, handle: h, addr: addr, size: size}, nil
}

// Bytes returns the mapped view. It is invalid after Close.
func (m *Mapping) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(m.addr)), m.size)
}

// Name returns the mapping name.
func (m *Mapping) Name() string { return m.name }

// Close unmaps the view and closes the section handle.
func (m *Mapping) Close() error {
	if m.addr == 0 {
		return nil
	}
	err := windows.UnmapViewOfFile(m.addr)
	windows.CloseHandle(m.handle)
	m.addr, m.handle = 0, 0
	return err
}

// SharedMemoryChannel publishes the header through a named mapping and
// signals liveness with the manual-reset event "<name>_ready".
type SharedMemoryChannel struct {
	mu      sync.Mutex
	mapping *Mapping
	ready   windows.Handle
}

// OpenSharedMemory creates the channel consumers open by name.
func OpenSharedMemory(name string) (Channel, error) {
	m, err := CreateMapping(name, HeaderSize)
	if err != nil {
		return nil, err
	}

	eventName, err := windows.UTF16PtrFromString(name + "_ready")
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("%w: %v", ErrMappingCreation, err)
	}
	ready, err := windows.CreateEvent(nil, 1, 0, eventName)
	if ready == 0 {
		m.Close()
		return nil, fmt.Errorf("%w: CreateEvent %s_ready: %v", ErrMappingCreation, name, err)
	}

	c := &SharedMemoryChannel{mapping: m, ready: ready}
	c.Clear()
	return c, nil
}

func (c *SharedMemoryChannel) Name() string { return c.mapping.Name() }

// Publish writes the size and target first and the handle last, so a
// consumer never sees a handle next to a stale size.
func (c *SharedMemoryChannel) Publish(h Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping.addr == 0 {
		return ErrClosed
	}

	var rec [HeaderSize]byte
	h.MarshalTo(rec[:])
	view := c.mapping.Bytes()
	copy(view[0:8], rec[0:8])
	copy(view[16:24], rec[16:24])
	copy(view[8:16], rec[8:16])
	return windows.SetEvent(c.ready)
}

// Clear zeroes the handle field and resets the ready event.
func (c *SharedMemoryChannel) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping.addr == 0 {
		return ErrClosed
	}
	view := c.mapping.Bytes()
	for i := 8; i < 16; i++ {
		view[i] = 0
	}
	return windows.ResetEvent(c.ready)
}

func (c *SharedMemoryChannel) Read() (Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping.addr == 0 {
		return Header{}, ErrClosed
	}
	return UnmarshalHeader(c.mapping.Bytes())
}

// Close releases the event and the mapping. Later calls do nothing.
func (c *SharedMemoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping.addr == 0 {
		return nil
	}
	windows.CloseHandle(c.ready)
	c.ready = 0
	return c.mapping.Close()
}

// ReadSharedMemory reads the record another process publishes under name.
func ReadSharedMemory(name string) (Header, bool, error) {
	m, err := OpenMapping(name, HeaderSize)
	if err != nil {
		return Header{}, false, err
	}
	defer m.Close()

	h, err := UnmarshalHeader(m.Bytes())
	if err != nil {
		return Header{}, false, err
	}
	return h, eventSignaled(name + "_ready"), nil
}

func eventSignaled(name string) bool {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return false
	}
	h, err := windows.OpenEvent(windows.SYNCHRONIZE, false, namePtr)
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	r, _ := windows.WaitForSingleObject(h, 0)
	return r == windows.WAIT_OBJECT_0
}

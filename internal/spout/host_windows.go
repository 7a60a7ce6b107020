//go:build windows

package spout

import (
	"fmt"

	"github.com/bryanchriswhite/GraphicsCapture/internal/output"
	"golang.org/x/sys/windows"
)

const mutexTimeout = 67 // ms, a little over four frames at 60 Hz

// Win32Host creates page-file mappings and named mutexes.
type Win32Host struct{}

// NewHost returns the platform host.
func NewHost() (Host, error) {
	return Win32Host{}, nil
}

func (Win32Host) CreateMapping(name string, size int) (Memory, error) {
	m, err := output.CreateMapping(name, size)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (Win32Host) CreateMutex(name string) (Locker, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateMutex(nil, false, namePtr)
	if h == 0 {
		return nil, fmt.Errorf("CreateMutex %q: %w", name, err)
	}
	return &namedMutex{name: name, handle: h}, nil
}

type namedMutex struct {
	name   string
	handle windows.Handle
}

func (m *namedMutex) Lock() error {
	ev, err := windows.WaitForSingleObject(m.handle, mutexTimeout)
	if err != nil {
		return fmt.Errorf("WaitForSingleObject %q: %w", m.name, err)
	}
	switch ev {
	case windows.WAIT_OBJECT_0, windows.WAIT_ABANDONED:
		return nil
	default:
		return fmt.Errorf("timed out waiting for %q", m.name)
	}
}

func (m *namedMutex) Unlock() {
	windows.ReleaseMutex(m.handle)
}

func (m *namedMutex) Close() error {
	return windows.CloseHandle(m.handle)
}

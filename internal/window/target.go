package window

import (
	"fmt"
	"image"
)

// Target is the window (or the whole primary display) being captured. It is
// re-resolved every time the orchestrator re-enters acquisition.
type Target struct {
	Handle  Handle          `json:"handle"`
	PID     int             `json:"pid"`
	Title   string          `json:"title"`
	Process string          `json:"process"`
	Desktop bool            `json:"desktop"`
	Bounds  image.Rectangle `json:"bounds"`
}

// Identity is the value published to consumers in the channel's target
// field: the window handle, or 0 for the desktop.
func (t Target) Identity() uint64 {
	if t.Desktop {
		return 0
	}
	return uint64(t.Handle)
}

func (t Target) String() string {
	if t.Desktop {
		return fmt.Sprintf("desktop %dx%d", t.Bounds.Dx(), t.Bounds.Dy())
	}
	return fmt.Sprintf("%q (%s, pid %d, hwnd 0x%x)", t.Title, t.Process, t.PID, uintptr(t.Handle))
}

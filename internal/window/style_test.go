package window_test

import (
	"testing"

	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window/windowtest"
)

const (
	overlappedWindow uint32 = 0x00CF0000 // WS_OVERLAPPEDWINDOW
	visible          uint32 = 0x10000000 // WS_VISIBLE
)

func current(b *windowtest.Backend, h window.Handle) uint32 {
	s, _ := b.Style(h)
	return s
}

func TestBorderlessStyle(t *testing.T) {
	got := window.BorderlessStyle(overlappedWindow | visible)
	want := window.StylePopup | visible
	if got != want {
		t.Fatalf("BorderlessStyle = 0x%08x, want 0x%08x", got, want)
	}
	if window.BorderlessStyle(got) != got {
		t.Fatal("BorderlessStyle is not idempotent")
	}
}

func TestStyleGuardApplyAndRevert(t *testing.T) {
	b := windowtest.NewBackend(window.Info{Handle: 1, Visible: true})
	b.SetInitialStyle(1, overlappedWindow)
	g := window.NewStyleGuard(b)

	if err := g.Apply(window.Target{Handle: 1}); err != nil {
		t.Fatal(err)
	}
	if got := current(b, 1); got != window.BorderlessStyle(overlappedWindow) {
		t.Fatalf("style after Apply = 0x%08x", got)
	}

	// Re-applying must not record the borderless style as the original
	if err := g.Apply(window.Target{Handle: 1}); err != nil {
		t.Fatal(err)
	}
	g.Revert()
	if got := current(b, 1); got != overlappedWindow {
		t.Fatalf("style after Revert = 0x%08x, want 0x%08x", got, overlappedWindow)
	}

	writes := len(b.StyleHistory(1))
	g.Revert()
	if len(b.StyleHistory(1)) != writes {
		t.Fatal("second Revert touched the window")
	}
}

func TestStyleGuardSwitchingWindowsRevertsPrevious(t *testing.T) {
	b := windowtest.NewBackend(window.Info{Handle: 1, Visible: true}, window.Info{Handle: 2, Visible: true})
	b.SetInitialStyle(1, overlappedWindow)
	b.SetInitialStyle(2, overlappedWindow|visible)
	g := window.NewStyleGuard(b)

	if err := g.Apply(window.Target{Handle: 1}); err != nil {
		t.Fatal(err)
	}
	if err := g.Apply(window.Target{Handle: 2}); err != nil {
		t.Fatal(err)
	}
	if got := current(b, 1); got != overlappedWindow {
		t.Fatalf("window 1 not restored: 0x%08x", got)
	}
	if got := current(b, 2); got != window.BorderlessStyle(overlappedWindow|visible) {
		t.Fatalf("window 2 not borderless: 0x%08x", got)
	}
}

func TestStyleGuardSkipsDesktopAndDeadWindows(t *testing.T) {
	b := windowtest.NewBackend(window.Info{Handle: 3, Visible: true})
	b.SetInitialStyle(3, overlappedWindow)
	g := window.NewStyleGuard(b)

	if err := g.Apply(window.Target{Desktop: true}); err != nil {
		t.Fatal(err)
	}

	if err := g.Apply(window.Target{Handle: 3}); err != nil {
		t.Fatal(err)
	}
	b.Destroy(3)
	writes := len(b.StyleHistory(3))
	g.Revert()
	if len(b.StyleHistory(3)) != writes {
		t.Fatal("Revert wrote the style of a destroyed window")
	}
}

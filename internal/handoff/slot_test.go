package handoff

import (
	"sync"
	"testing"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/capture/capturetest"
)

func TestSlotKeepsNewest(t *testing.T) {
	var s Slot
	if s.Ready() || s.Take() != nil {
		t.Fatal("empty slot reports a texture")
	}

	size := capture.Size{Width: 4, Height: 4}
	a := capturetest.NewTexture(1, size)
	b := capturetest.NewTexture(2, size)
	s.Put(a)
	s.Put(b)

	if !a.Released() {
		t.Fatal("replaced texture not released")
	}
	if !s.Ready() {
		t.Fatal("Ready = false after Put")
	}

	got := s.Take()
	if got != b {
		t.Fatalf("Take = %v, want newest texture", got)
	}
	if b.Released() {
		t.Fatal("taken texture released by the slot")
	}
	if s.Ready() || s.Take() != nil {
		t.Fatal("slot not empty after Take")
	}
	got.Release()

	if a.Misused() || b.Misused() {
		t.Fatal("reference counting misused")
	}
}

func TestSlotRelease(t *testing.T) {
	var s Slot
	tex := capturetest.NewTexture(1, capture.Size{Width: 1, Height: 1})
	s.Put(tex)
	s.Release()
	if !tex.Released() || s.Ready() {
		t.Fatal("Release left the texture in the slot")
	}
	s.Release()
	if tex.Misused() {
		t.Fatal("second Release over-released")
	}
}

func TestSlotConcurrentPutTake(t *testing.T) {
	var s Slot
	size := capture.Size{Width: 2, Height: 2}
	const n = 1000

	textures := make([]*capturetest.Texture, n)
	for i := range textures {
		textures[i] = capturetest.NewTexture(i, size)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, tex := range textures {
			s.Put(tex)
		}
	}()

	taken := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		if tex := s.Take(); tex != nil {
			if tex.(*capturetest.Texture).Released() {
				t.Fatal("took a released texture")
			}
			tex.Release()
			taken++
		}
		select {
		case <-done:
			s.Release()
			if taken > n {
				t.Fatalf("took %d textures from %d puts", taken, n)
			}
			for _, tex := range textures {
				if !tex.Released() || tex.Misused() {
					t.Fatalf("texture %d refs = %d, misused = %v", tex.ID, tex.Refs(), tex.Misused())
				}
			}
			return
		default:
		}
	}
}

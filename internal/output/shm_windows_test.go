//go:build windows

package output

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestSharedMemoryChannelRoundTrip(t *testing.T) {
	name := fmt.Sprintf("GraphicsCaptureTest_%d", os.Getpid())
	ch, err := OpenSharedMemory(name)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	want := Header{Width: 1280, Height: 720, Handle: 0xBEEF, Target: 0x42}
	if err := ch.Publish(want); err != nil {
		t.Fatal(err)
	}
	got, ready, err := ReadSharedMemory(name)
	if err != nil {
		t.Fatal(err)
	}
	if got != want || !ready {
		t.Fatalf("ReadSharedMemory = %+v, %v, want %+v, true", got, ready, want)
	}

	if err := ch.Clear(); err != nil {
		t.Fatal(err)
	}
	got, ready, _ = ReadSharedMemory(name)
	if got.Published() || ready || got.Width != 1280 {
		t.Fatalf("after Clear = %+v, ready %v", got, ready)
	}
}

func TestSharedMemoryChannelCloseTwice(t *testing.T) {
	ch, err := OpenSharedMemory(fmt.Sprintf("GraphicsCaptureClose_%d", os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close = %v, want nil", err)
	}
	if c := ch.(*SharedMemoryChannel); c.ready != 0 {
		t.Fatal("ready event handle kept after Close")
	}
	if err := ch.Publish(Header{Handle: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close = %v, want ErrClosed", err)
	}
}

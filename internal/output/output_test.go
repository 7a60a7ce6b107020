package output

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderLayout(t *testing.T) {
	h := Header{Width: 0x11223344, Height: 0x55667788, Handle: 0x0102030405060708, Target: 0xA1A2A3A4A5A6A7A8}
	var b [HeaderSize]byte
	h.MarshalTo(b[:])

	want := []byte{
		0x44, 0x33, 0x22, 0x11, // width @0
		0x88, 0x77, 0x66, 0x55, // height @4
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, // handle @8
		0xA8, 0xA7, 0xA6, 0xA5, 0xA4, 0xA3, 0xA2, 0xA1, // target @16
	}
	if !bytes.Equal(b[:], want) {
		t.Fatalf("MarshalTo = % x, want % x", b, want)
	}

	got, err := UnmarshalHeader(b[:])
	if err != nil || got != h {
		t.Fatalf("UnmarshalHeader = %+v, %v; want %+v", got, err, h)
	}
}

func TestUnmarshalHeaderShort(t *testing.T) {
	if _, err := UnmarshalHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Fatal("UnmarshalHeader of short buffer succeeded")
	}
}

func TestMemoryChannelClearKeepsSize(t *testing.T) {
	c := NewMemoryChannel("test")
	if c.Name() != "test" {
		t.Fatalf("Name = %q", c.Name())
	}
	h := Header{Width: 1920, Height: 1080, Handle: 0x42, Target: 7}
	if err := c.Publish(h); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Read(); got != h || !got.Published() {
		t.Fatalf("Read = %+v, want %+v", got, h)
	}

	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	got, _ := c.Read()
	if got.Published() || got.Width != 1920 || got.Target != 7 {
		t.Fatalf("after Clear Read = %+v, want zero handle only", got)
	}
	if n := len(c.History()); n != 2 {
		t.Fatalf("history length = %d, want 2", n)
	}

	c.Close()
	if err := c.Publish(h); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close = %v, want ErrClosed", err)
	}
}

// Package spout shares textures with Spout receivers: a shareable texture,
// a sender-info mapping named after the sender and an entry in the
// system-wide sender registry.
package spout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

var (
	ErrNotSupported = errors.New("spout is not supported on this platform")
	ErrInvalidName  = errors.New("invalid sender name")
	ErrRegistryFull = errors.New("sender registry full")
	ErrClosed       = errors.New("sender closed")
)

const (
	// InfoSize is the size of the sender-info record.
	InfoSize = 280

	// NameSize is the fixed slot size of a name in the registry mappings.
	NameSize = 256

	// MaxSenders is the default capacity of the sender registry.
	MaxSenders = 10

	SenderNamesMap = "SpoutSenderNames"
	ActiveNameMap  = "ActiveSenderName"

	// FormatBGRA8 is DXGI_FORMAT_B8G8R8A8_UNORM.
	FormatBGRA8 = 87

	descriptionLen = 128
)

// Info is the record a receiver reads to open a sender's texture.
type Info struct {
	ShareHandle uint32
	Width       uint32
	Height      uint32
	Format      uint32
	Usage       uint32
	Description string
	PartnerID   uint32
}

// MarshalTo writes i into b, which must hold InfoSize bytes. The
// description is truncated to 127 UTF-16 units.
func (i Info) MarshalTo(b []byte) {
	_ = b[InfoSize-1]
	le := binary.LittleEndian
	le.PutUint32(b[0:4], i.ShareHandle)
	le.PutUint32(b[4:8], i.Width)
	le.PutUint32(b[8:12], i.Height)
	le.PutUint32(b[12:16], i.Format)
	le.PutUint32(b[16:20], i.Usage)

	desc := utf16.Encode([]rune(i.Description))
	if len(desc) > descriptionLen-1 {
		desc = desc[:descriptionLen-1]
	}
	for n := 0; n < descriptionLen; n++ {
		var c uint16
		if n < len(desc) {
			c = desc[n]
		}
		le.PutUint16(b[20+2*n:], c)
	}

	le.PutUint32(b[276:280], i.PartnerID)
}

// UnmarshalInfo decodes a record written by MarshalTo.
func UnmarshalInfo(b []byte) (Info, error) {
	if len(b) < InfoSize {
		return Info{}, fmt.Errorf("sender info needs %d bytes, got %d", InfoSize, len(b))
	}
	le := binary.LittleEndian

	desc := make([]uint16, 0, descriptionLen)
	for n := 0; n < descriptionLen; n++ {
		c := le.Uint16(b[20+2*n:])
		if c == 0 {
			break
		}
		desc = append(desc, c)
	}

	return Info{
		ShareHandle: le.Uint32(b[0:4]),
		Width:       le.Uint32(b[4:8]),
		Height:      le.Uint32(b[8:12]),
		Format:      le.Uint32(b[12:16]),
		Usage:       le.Uint32(b[16:20]),
		Description: string(utf16.Decode(desc)),
		PartnerID:   le.Uint32(b[276:280]),
	}, nil
}

// AccessMutexName is the mutex receivers take before reading the texture of
// the sender called name.
func AccessMutexName(name string) string {
	return name + "_SpoutAccessMutex"
}

// ValidName reports whether name fits a registry slot.
func ValidName(name string) error {
	if name == "" || len(name) >= NameSize || bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func readName(slot []byte) string {
	if i := bytes.IndexByte(slot, 0); i >= 0 {
		slot = slot[:i]
	}
	return string(slot)
}

func writeName(slot []byte, name string) {
	clear(slot)
	copy(slot, name)
}

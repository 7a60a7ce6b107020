package output

import "sync"

// MemoryChannel is an in-process Channel. It keeps the raw record so
// readers see exactly the bytes a shared-memory consumer would.
type MemoryChannel struct {
	name string

	mu      sync.Mutex
	buf     [HeaderSize]byte
	history []Header
	closed  bool
}

// NewMemoryChannel returns an empty channel.
func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Name() string { return c.name }

func (c *MemoryChannel) Publish(h Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	h.MarshalTo(c.buf[:])
	c.history = append(c.history, h)
	return nil
}

func (c *MemoryChannel) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	h, _ := UnmarshalHeader(c.buf[:])
	h.Handle = 0
	h.MarshalTo(c.buf[:])
	c.history = append(c.history, h)
	return nil
}

func (c *MemoryChannel) Read() (Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return UnmarshalHeader(c.buf[:])
}

// History returns every record written, in order.
func (c *MemoryChannel) History() []Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Header(nil), c.history...)
}

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

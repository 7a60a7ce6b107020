package output

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/rs/zerolog"
)

// Publisher owns the shared texture for one capture session and keeps the
// channel pointing at it.
type Publisher struct {
	device  capture.Device
	texture capture.SharedTexture
	channel Channel
	header  Header
	log     *zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a shared texture of size on device and publishes its
// handle. The texture is never resized; a new size needs a new Publisher.
func NewPublisher(device capture.Device, size capture.Size, target window.Target, channel Channel) (*Publisher, error) {
	log := logger.WithComponent("output")

	texture, err := device.CreateSharedTexture(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared texture: %w", err)
	}

	header := Header{
		Width:  size.Width,
		Height: size.Height,
		Handle: texture.Handle(),
		Target: target.Identity(),
	}
	if err := channel.Publish(header); err != nil {
		texture.Release()
		return nil, fmt.Errorf("failed to publish shared texture: %w", err)
	}

	log.Info().
		Str("channel", channel.Name()).
		Uint32("width", header.Width).
		Uint32("height", header.Height).
		Str("handle", fmt.Sprintf("0x%x", header.Handle)).
		Msg("Shared texture published")

	return &Publisher{
		device:  device,
		texture: texture,
		channel: channel,
		header:  header,
		log:     log,
	}, nil
}

// Header returns the record this publisher wrote.
func (p *Publisher) Header() Header {
	return p.header
}

// Consume copies frame into the shared texture. Frames whose content size
// differs from the texture are dropped.
func (p *Publisher) Consume(frame capture.Frame) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	size := capture.Size{Width: p.header.Width, Height: p.header.Height}
	if content := frame.ContentSize(); content != size {
		return fmt.Errorf("frame size %s does not match shared texture %s", content, size)
	}

	tex, err := frame.Texture()
	if err != nil {
		return err
	}
	defer tex.Release()

	if tex.Size() != size {
		return fmt.Errorf("frame surface %s does not match shared texture %s", tex.Size(), size)
	}
	return p.device.CopyResource(p.texture, tex)
}

// Close clears the channel, then releases the texture. It is safe to call
// more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.channel.Clear()
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to clear channel")
	}
	p.texture.Release()

	p.log.Debug().Str("channel", p.channel.Name()).Msg("Shared texture withdrawn")
	return err
}

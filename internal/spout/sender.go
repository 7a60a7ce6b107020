package spout

import (
	"fmt"
	"os"
	"sync"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/rs/zerolog"
)

// Memory is a named shared memory view.
type Memory interface {
	Bytes() []byte
	Close() error
}

// Locker is a named, cross-process mutex.
type Locker interface {
	Lock() error
	Unlock()
	Close() error
}

// Host provides the named OS objects a sender is built from.
type Host interface {
	CreateMapping(name string, size int) (Memory, error)
	CreateMutex(name string) (Locker, error)
}

// Sender publishes textures under one sender name.
type Sender struct {
	name   string
	device capture.Device
	host   Host
	log    *zerolog.Logger

	info     Memory
	names    Memory
	active   Memory
	namesMu  Locker
	activeMu Locker
	// access guards the shared texture against receivers reading it
	access Locker

	mu      sync.Mutex
	texture capture.SharedTexture
	closed  bool
}

// NewSender registers name and prepares its info mapping. No texture exists
// until the first Send.
func NewSender(name string, device capture.Device, host Host) (*Sender, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}

	s := &Sender{
		name:   name,
		device: device,
		host:   host,
		log:    logger.WithComponent("spout"),
	}
	if err := s.open(); err != nil {
		s.closeHandles()
		return nil, err
	}

	if err := s.withLock(s.namesMu, func() error { return Register(s.names.Bytes(), name) }); err != nil {
		s.closeHandles()
		return nil, fmt.Errorf("failed to register sender %q: %w", name, err)
	}
	if err := s.withLock(s.activeMu, func() error {
		SetActive(s.active.Bytes(), name)
		return nil
	}); err != nil {
		s.log.Warn().Err(err).Msg("Could not set active sender")
	}

	s.log.Info().Str("sender", name).Msg("Spout sender registered")
	return s, nil
}

func (s *Sender) open() error {
	var err error
	if s.info, err = s.host.CreateMapping(s.name, InfoSize); err != nil {
		return fmt.Errorf("sender info mapping: %w", err)
	}
	if s.names, err = s.host.CreateMapping(SenderNamesMap, MaxSenders*NameSize); err != nil {
		return fmt.Errorf("sender names mapping: %w", err)
	}
	if s.active, err = s.host.CreateMapping(ActiveNameMap, NameSize); err != nil {
		return fmt.Errorf("active sender mapping: %w", err)
	}
	if s.namesMu, err = s.host.CreateMutex(SenderNamesMap + "_mutex"); err != nil {
		return fmt.Errorf("sender names mutex: %w", err)
	}
	if s.activeMu, err = s.host.CreateMutex(ActiveNameMap + "_mutex"); err != nil {
		return fmt.Errorf("active sender mutex: %w", err)
	}
	if s.access, err = s.host.CreateMutex(AccessMutexName(s.name)); err != nil {
		return fmt.Errorf("sender access mutex: %w", err)
	}
	return nil
}

func (s *Sender) withLock(l Locker, fn func() error) error {
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// Name returns the sender name.
func (s *Sender) Name() string {
	return s.name
}

// Send copies tex into the sender's shared texture, re-creating it first
// when the size changed. The access mutex is held for the whole update. The
// caller keeps its reference to tex.
func (s *Sender) Send(tex capture.Texture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	return s.withLock(s.access, func() error {
		size := tex.Size()
		if s.texture == nil || s.texture.Size() != size {
			if err := s.resize(size); err != nil {
				return err
			}
		}
		return s.device.CopyResource(s.texture, tex)
	})
}

func (s *Sender) resize(size capture.Size) error {
	if !size.Valid() {
		return fmt.Errorf("%w: %s", capture.ErrInvalidDimensions, size)
	}

	texture, err := s.device.CreateSharedTexture(size)
	if err != nil {
		return fmt.Errorf("failed to create sender texture: %w", err)
	}
	if s.texture != nil {
		s.texture.Release()
	}
	s.texture = texture

	exe, _ := os.Executable()
	Info{
		// Legacy DXGI shared handles fit in 32 bits
		ShareHandle: uint32(texture.Handle()),
		Width:       size.Width,
		Height:      size.Height,
		Format:      FormatBGRA8,
		Description: exe,
	}.MarshalTo(s.info.Bytes())

	s.log.Info().
		Str("sender", s.name).
		Str("size", size.String()).
		Str("handle", fmt.Sprintf("0x%x", texture.Handle())).
		Msg("Sender texture created")
	return nil
}

// Close unregisters the sender and releases its texture. It is safe to call
// more than once.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.withLock(s.namesMu, func() error {
		Unregister(s.names.Bytes(), s.name)
		return nil
	})
	if lerr := s.withLock(s.activeMu, func() error {
		if Active(s.active.Bytes()) == s.name {
			SetActive(s.active.Bytes(), "")
		}
		return nil
	}); err == nil {
		err = lerr
	}

	clear(s.info.Bytes())
	if s.texture != nil {
		s.texture.Release()
		s.texture = nil
	}
	s.closeHandles()

	s.log.Info().Str("sender", s.name).Msg("Spout sender released")
	return err
}

func (s *Sender) closeHandles() {
	for _, c := range []interface{ Close() error }{s.info, s.names, s.active, s.namesMu, s.activeMu, s.access} {
		if c != nil {
			c.Close()
		}
	}
}

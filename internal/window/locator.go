package window

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/kbinani/screenshot"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultRetryInterval is how long Wait sleeps between failed lookups.
const DefaultRetryInterval = 2 * time.Second

// ProcessResolver maps a PID to the image file name of its process.
type ProcessResolver interface {
	ProcessName(pid int) (string, error)
}

// SystemProcesses resolves process names through gopsutil.
type SystemProcesses struct{}

// ProcessName returns the executable image name (e.g. "game.exe").
func (SystemProcesses) ProcessName(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	name, err := p.Name()
	if err != nil {
		return "", fmt.Errorf("failed to read name of process %d: %w", pid, err)
	}
	return name, nil
}

// Locator resolves a user-supplied executable name or title to a Target.
type Locator struct {
	backend   Backend
	processes ProcessResolver
	log       *zerolog.Logger

	// DisplayBounds reports the primary display rectangle
	DisplayBounds func() image.Rectangle

	// RetryInterval is the pause between lookups in Wait
	RetryInterval time.Duration

	// SkipMinimized makes Wait treat an iconic window as not yet available
	SkipMinimized bool
}

// NewLocator creates a locator over the given backend. A nil resolver uses
// SystemProcesses.
func NewLocator(backend Backend, processes ProcessResolver) *Locator {
	if processes == nil {
		processes = SystemProcesses{}
	}
	return &Locator{
		backend:       backend,
		processes:     processes,
		DisplayBounds: primaryDisplayBounds,
		log:           logger.WithComponent("window"),
		RetryInterval: DefaultRetryInterval,
	}
}

// Backend returns the window system backend the locator queries.
func (l *Locator) Backend() Backend {
	return l.backend
}

func primaryDisplayBounds() image.Rectangle {
	if screenshot.NumActiveDisplays() == 0 {
		return image.Rectangle{}
	}
	return screenshot.GetDisplayBounds(0)
}

// Matches reports whether a window owned by processName with the given title
// is selected by query: a case-insensitive match on the image file name, or
// an exact title match.
func Matches(query, processName, title string) bool {
	if query == "" {
		return false
	}
	if processName != "" && strings.EqualFold(filepath.Base(processName), query) {
		return true
	}
	return title == query
}

// List returns every visible, parentless top-level window with its owning
// process name.
func (l *Locator) List() ([]Target, error) {
	infos, err := l.backend.ListWindows()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate windows: %w", err)
	}

	names := make(map[int]string)
	targets := make([]Target, 0, len(infos))
	for _, info := range infos {
		if !info.Visible || info.HasParent {
			continue
		}
		targets = append(targets, Target{
			Handle:  info.Handle,
			PID:     info.PID,
			Title:   info.Title,
			Process: l.processName(names, info.PID),
		})
	}
	return targets, nil
}

// Find returns the first window, in enumeration order, that matches query.
func (l *Locator) Find(query string) (Target, error) {
	targets, err := l.List()
	if err != nil {
		return Target{}, err
	}
	for _, t := range targets {
		if Matches(query, t.Process, t.Title) {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %q", ErrTargetNotFound, query)
}

// Wait polls Find every RetryInterval until a match appears or ctx is done.
func (l *Locator) Wait(ctx context.Context, query string) (Target, error) {
	for {
		t, err := l.Find(query)
		if err == nil && l.SkipMinimized && l.backend.IsMinimized(t.Handle) {
			err = fmt.Errorf("%w: %q is minimized", ErrTargetNotFound, query)
		}
		if err == nil {
			l.log.Info().Str("target", t.String()).Msg("Target window found")
			return t, nil
		}

		l.log.Info().
			Err(err).
			Dur("retry_in", l.RetryInterval).
			Msg("Target window not found, retrying")

		select {
		case <-ctx.Done():
			return Target{}, ctx.Err()
		case <-time.After(l.RetryInterval):
		}
	}
}

// Desktop returns the whole-primary-display target.
func (l *Locator) Desktop() Target {
	return Target{
		Desktop: true,
		Title:   "Desktop",
		Bounds:  l.DisplayBounds(),
	}
}

// Alive reports whether the target still exists. The desktop never goes away.
func (l *Locator) Alive(t Target) bool {
	if t.Desktop {
		return true
	}
	return l.backend.IsWindow(t.Handle)
}

// ClientSize returns the target's current client-area size.
func (l *Locator) ClientSize(t Target) (Size, error) {
	if t.Desktop {
		b := l.DisplayBounds()
		return Size{Width: b.Dx(), Height: b.Dy()}, nil
	}
	return l.backend.ClientSize(t.Handle)
}

// Restore un-minimizes a window target. Other targets are left alone.
func (l *Locator) Restore(t Target) error {
	if t.Desktop || !l.backend.IsMinimized(t.Handle) {
		return nil
	}
	l.log.Info().Str("target", t.String()).Msg("Restoring minimized window")
	return l.backend.Restore(t.Handle)
}

func (l *Locator) processName(cache map[int]string, pid int) string {
	if name, ok := cache[pid]; ok {
		return name
	}
	name, err := l.processes.ProcessName(pid)
	if err != nil {
		// Protected processes can't be opened; they can still match by title
		l.log.Debug().Err(err).Int("pid", pid).Msg("Could not resolve process name")
		name = ""
	}
	cache[pid] = name
	return name
}

package orchestrator

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/output"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures what is captured and how often the orchestrator
// retries and polls.
type Options struct {
	// Query is the executable name or window title to capture
	Query string

	// Desktop captures the whole primary display instead of a window
	Desktop bool

	// Borderless strips the target window's frame while it is captured
	Borderless bool

	// Cursor draws the cursor into captured frames
	Cursor bool

	InitRetryDelay time.Duration
	PollInterval   time.Duration
}

// Orchestrator keeps exactly one target captured into the shared texture
// channel, re-acquiring and re-initializing as the target comes, goes and
// changes size.
type Orchestrator struct {
	locator *window.Locator
	style   *window.StyleGuard
	source  capture.Source
	channel output.Channel
	opts    Options
	log     *zerolog.Logger

	mu        sync.RWMutex
	status    Status
	current   *run
	listeners []chan Event
}

// run is one initialized capture of one target.
type run struct {
	id        string
	target    window.Target
	session   *capture.Session
	publisher *output.Publisher
}

// New creates an orchestrator. Nothing happens until Run.
func New(locator *window.Locator, style *window.StyleGuard, source capture.Source, channel output.Channel, opts Options) *Orchestrator {
	return &Orchestrator{
		locator: locator,
		style:   style,
		source:  source,
		channel: channel,
		opts:    opts,
		log:     logger.WithComponent("orchestrator"),
		status: Status{
			State:   StateIdle,
			Since:   time.Now(),
			Channel: channel.Name(),
		},
	}
}

// Run drives the state machine until ctx is cancelled. It owns the calling
// goroutine's OS thread for the message pump.
func (o *Orchestrator) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	o.log.Info().
		Str("target", o.opts.Query).
		Bool("desktop", o.opts.Desktop).
		Str("channel", o.channel.Name()).
		Msg("Capture orchestrator started")

	defer o.shutdown()

	for {
		if ctx.Err() != nil {
			return nil
		}

		o.setState(StateAcquiringTarget, "")
		target, err := o.acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		id := uuid.New().String()
		o.setState(StateInitializing, id)
		r, err := o.initialize(id, target)
		if err != nil {
			o.bump(func(c *Counters) { c.InitFailures++ })
			o.log.Error().
				Err(err).
				Str("run_id", id).
				Bool("invalid_dimensions", errors.Is(err, capture.ErrInvalidDimensions)).
				Dur("retry_in", o.opts.InitRetryDelay).
				Msg("Capture initialization failed")
			o.style.Revert()
			if !sleep(ctx, o.opts.InitRetryDelay) {
				return nil
			}
			continue
		}

		o.mu.Lock()
		o.current = r
		o.status.Target = &r.target
		o.status.Header = r.publisher.Header()
		o.mu.Unlock()
		o.setState(StateCapturing, id)

		next := o.capture(ctx, r)
		if next != StateShuttingDown {
			o.setState(next, id)
		}
		o.teardown(r)

		switch next {
		case StateShuttingDown:
			return nil
		case StateTargetLost:
			o.bump(func(c *Counters) { c.TargetLosses++ })
			o.style.Revert()
		case StateReinitializePending:
			o.bump(func(c *Counters) { c.Reinitializations++ })
		}
	}
}

func (o *Orchestrator) acquire(ctx context.Context) (window.Target, error) {
	if o.opts.Desktop {
		return o.locator.Desktop(), nil
	}

	target, err := o.locator.Wait(ctx, o.opts.Query)
	if err != nil {
		return window.Target{}, err
	}
	if o.opts.Borderless {
		if err := o.style.Apply(target); err != nil {
			o.log.Warn().Err(err).Msg("Could not make target borderless")
		}
	}
	return target, nil
}

func (o *Orchestrator) initialize(id string, target window.Target) (*run, error) {
	session, err := capture.Initialize(o.source, target)
	if err != nil {
		return nil, err
	}

	if err := session.SetCursorCapture(o.opts.Cursor); err != nil {
		o.log.Debug().Err(err).Msg("Cursor capture setting not applied")
	}

	publisher, err := output.NewPublisher(session.Device(), session.Size(), target, o.channel)
	if err != nil {
		session.Close()
		return nil, err
	}

	if err := session.Start(publisher); err != nil {
		session.Close()
		publisher.Close()
		return nil, err
	}

	o.log.Info().
		Str("run_id", id).
		Str("target", target.String()).
		Str("size", session.Size().String()).
		Msg("Capturing")

	return &run{id: id, target: target, session: session, publisher: publisher}, nil
}

// capture watches the running session and returns the state to move to.
func (o *Orchestrator) capture(ctx context.Context, r *run) State {
	var baseline window.Size
	checkSize := !r.target.Desktop
	if checkSize {
		size, err := o.locator.ClientSize(r.target)
		if err != nil {
			o.log.Debug().Err(err).Msg("Could not read baseline client size")
			checkSize = false
		}
		baseline = size
	}

	for {
		if ctx.Err() != nil {
			return StateShuttingDown
		}

		// The item can change size without the client rect moving, and the
		// desktop has no client rect at all
		if size, ok := r.session.ContentResized(); ok {
			o.log.Info().
				Str("run_id", r.id).
				Str("old_size", r.session.Size().String()).
				Str("size", size.String()).
				Msg("Capture content resized, reinitializing")
			r.session.Drain()
			return StateReinitializePending
		}

		if !r.target.Desktop {
			if !o.locator.Alive(r.target) {
				o.log.Info().Str("run_id", r.id).Msg("Target window disappeared")
				return StateTargetLost
			}
			if checkSize {
				if size, err := o.locator.ClientSize(r.target); err == nil && size != baseline {
					o.log.Info().
						Str("run_id", r.id).
						Int("old_width", baseline.Width).
						Int("old_height", baseline.Height).
						Int("width", size.Width).
						Int("height", size.Height).
						Msg("Target resized, reinitializing")
					// Stop frames reaching the old texture before anything
					// is torn down
					r.session.Drain()
					return StateReinitializePending
				}
			}
		}

		if r.session.Wait(o.opts.PollInterval) {
			o.log.Info().Str("run_id", r.id).Msg("Capture item closed")
			return StateTargetLost
		}
	}
}

func (o *Orchestrator) teardown(r *run) {
	r.session.Close()
	if err := r.publisher.Close(); err != nil {
		o.log.Warn().Err(err).Str("run_id", r.id).Msg("Failed to withdraw shared texture")
	}

	stats := r.session.Stats()
	o.mu.Lock()
	o.current = nil
	o.status.Counters.FramesCopied += stats.Copied
	o.status.Counters.FramesDropped += stats.Dropped
	o.status.Target = nil
	o.status.Header.Handle = 0
	o.mu.Unlock()
}

func (o *Orchestrator) shutdown() {
	o.setState(StateShuttingDown, "")

	o.mu.RLock()
	r := o.current
	o.mu.RUnlock()
	if r != nil {
		o.teardown(r)
	}

	o.style.Revert()
	if err := o.channel.Clear(); err != nil && !errors.Is(err, output.ErrClosed) {
		o.log.Warn().Err(err).Msg("Failed to clear channel")
	}

	o.setState(StateStopped, "")
	o.log.Info().Msg("Capture orchestrator stopped")
}

// Status returns a snapshot of the current state and counters.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := o.status
	if s.Target != nil {
		t := *s.Target
		s.Target = &t
	}
	if o.current != nil {
		stats := o.current.session.Stats()
		s.Counters.FramesCopied += stats.Copied
		s.Counters.FramesDropped += stats.Dropped
	}
	return s
}

func (o *Orchestrator) setState(state State, runID string) {
	o.mu.Lock()
	if o.status.State == state && o.status.RunID == runID {
		o.mu.Unlock()
		return
	}
	o.status.State = state
	o.status.RunID = runID
	o.status.Since = time.Now()
	ev := Event{State: state, RunID: runID, Time: o.status.Since}
	o.mu.Unlock()

	o.log.Debug().Str("state", string(state)).Str("run_id", runID).Msg("State changed")
	o.notifyListeners(ev)
}

func (o *Orchestrator) bump(fn func(*Counters)) {
	o.mu.Lock()
	fn(&o.status.Counters)
	o.mu.Unlock()
}

// Subscribe adds a listener for state changes
func (o *Orchestrator) Subscribe() chan Event {
	ch := make(chan Event, 16)
	o.mu.Lock()
	o.listeners = append(o.listeners, ch)
	o.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (o *Orchestrator) Unsubscribe(ch chan Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, listener := range o.listeners {
		if listener == ch {
			o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (o *Orchestrator) notifyListeners(ev Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, listener := range o.listeners {
		select {
		case listener <- ev:
		default:
			// Skip if channel is full
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package inject starts a target process suspended, loads the capture hook
// module into it and waits for it to exit.
package inject

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/output"
	"github.com/rs/zerolog"
)

var (
	ErrRemoteInjection = errors.New("remote injection failed")
	ErrProcessCreation = errors.New("process creation failed")
	ErrModuleNotFound  = errors.New("hook module not found")
	ErrNotSupported    = errors.New("process injection is not supported on this platform")
)

// Process is a started child process.
type Process interface {
	PID() int
	Resume() error
	Terminate(exitCode uint32) error
	// Wait blocks until the process exits or ctx is done.
	Wait(ctx context.Context) (exitCode uint32, err error)
	Close() error
}

// Spawner starts processes with their main thread suspended.
type Spawner interface {
	StartSuspended(path string, env []string) (Process, error)
}

// Loader loads a module into a suspended process.
type Loader interface {
	Inject(p Process, modulePath string) error
}

// ChannelOpener creates the named channel the hook module publishes into.
type ChannelOpener func(name string) (output.Channel, error)

// Options describes one launch.
type Options struct {
	// Target is the executable to start
	Target string

	// MemName names the shared-memory channel handed to the hook
	MemName string

	// Module is the hook module. Relative paths resolve against the
	// launcher's executable directory.
	Module string

	LogPath    string
	EnvMemName string
	EnvLogPath string
}

// Launcher runs the hook-mode sequence.
type Launcher struct {
	spawner Spawner
	loader  Loader
	open    ChannelOpener
	log     *zerolog.Logger

	// ExeDir is the directory relative module paths resolve against
	ExeDir string
}

// NewLauncher creates a launcher. ExeDir defaults to the directory of the
// running executable.
func NewLauncher(spawner Spawner, loader Loader, open ChannelOpener) *Launcher {
	dir := "."
	if exe, err := os.Executable(); err == nil {
		dir = filepath.Dir(exe)
	}
	return &Launcher{
		spawner: spawner,
		loader:  loader,
		open:    open,
		log:     logger.WithComponent("inject"),
		ExeDir:  dir,
	}
}

// ResolveModule returns the absolute path of module, resolving relative
// paths against exeDir, and checks that it exists.
func ResolveModule(exeDir, module string) (string, error) {
	path := module
	if !filepath.IsAbs(path) {
		path = filepath.Join(exeDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", module, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrModuleNotFound, abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrModuleNotFound, abs)
	}
	return abs, nil
}

// moduleLoaded reports whether modulePath is among the loaded module paths.
// Windows paths compare case-insensitively.
func moduleLoaded(loaded []string, modulePath string) bool {
	want := filepath.Clean(modulePath)
	for _, path := range loaded {
		if strings.EqualFold(filepath.Clean(path), want) {
			return true
		}
	}
	return false
}

// Environment returns base with key=value entries for the channel name and
// log path, replacing any existing entries with the same keys.
func Environment(base []string, opts Options) []string {
	set := map[string]string{
		opts.EnvMemName: opts.MemName,
		opts.EnvLogPath: opts.LogPath,
	}

	env := make([]string, 0, len(base)+len(set))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := set[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	for _, key := range []string{opts.EnvMemName, opts.EnvLogPath} {
		if key != "" {
			env = append(env, key+"="+set[key])
		}
	}
	return env
}

// Run starts the target suspended, injects the hook module, resumes the
// target and waits for it to exit. It returns the target's exit code. If
// injection fails the target is terminated without ever running. When ctx
// is cancelled Run stops waiting and leaves the target running.
func (l *Launcher) Run(ctx context.Context, opts Options) (uint32, error) {
	module, err := ResolveModule(l.ExeDir, opts.Module)
	if err != nil {
		return 0, err
	}

	l.log.Info().Str("target", opts.Target).Msg("Hook mode activated")

	channel, err := l.open(opts.MemName)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := channel.Close(); err != nil {
			l.log.Warn().Err(err).Msg("Failed to close channel")
		}
	}()
	l.log.Info().Str("channel", channel.Name()).Msg("Shared memory channel created")

	l.log.Info().Str("target", opts.Target).Msg("Launching target process suspended")
	proc, err := l.spawner.StartSuspended(opts.Target, Environment(os.Environ(), opts))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrProcessCreation, opts.Target, err)
	}
	defer proc.Close()

	log := l.log.With().Int("pid", proc.PID()).Logger()

	log.Info().Str("module", module).Msg("Injecting hook module")
	if err := l.loader.Inject(proc, module); err != nil {
		l.terminate(&log, proc)
		return 0, fmt.Errorf("%w: %v", ErrRemoteInjection, err)
	}

	log.Info().Msg("Hook module loaded, resuming target")
	if err := proc.Resume(); err != nil {
		l.terminate(&log, proc)
		return 0, fmt.Errorf("failed to resume target: %w", err)
	}

	log.Info().Msg("Waiting for target process to exit")
	code, err := proc.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("Stopped waiting for target")
			return 0, nil
		}
		return 0, fmt.Errorf("failed waiting for target: %w", err)
	}

	log.Info().Uint32("exit_code", code).Msg("Target process exited")
	return code, nil
}

func (l *Launcher) terminate(log *zerolog.Logger, proc Process) {
	if err := proc.Terminate(1); err != nil {
		log.Error().Err(err).Msg("Failed to terminate target")
		return
	}
	log.Warn().Msg("Target terminated")
}

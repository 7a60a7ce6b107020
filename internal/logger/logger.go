package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultLogName is the file written next to the executable when no log
// file is configured.
const DefaultLogName = "GraphicsCapture.log"

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	mu      sync.Mutex
	logFile *os.File
)

func init() {
	// Stdout only until Init is called
	Logger = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = Logger
}

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// ParseLevel maps a configured level name to a zerolog level, falling back
// to info for anything unrecognized.
func ParseLevel(level string) zerolog.Level {
	switch LogLevel(strings.ToLower(level)) {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel, "warning":
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init configures the global logger. Every event goes to stdout and, when
// logPath is non-empty, to logPath as well. The file is truncated so each
// run starts with a fresh log.
func Init(level string, pretty bool, logPath string) error {
	zerolog.SetGlobalLevel(ParseLevel(level))

	var console io.Writer = os.Stdout
	if pretty {
		console = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	mu.Lock()
	defer mu.Unlock()

	closeFileLocked()

	output := console
	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		output = zerolog.MultiLevelWriter(console, f)
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	log.Logger = Logger
	return nil
}

// DefaultPath returns the log file location used when none is configured:
// DefaultLogName in the directory holding the running executable.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultLogName
	}
	return filepath.Join(filepath.Dir(exe), DefaultLogName)
}

// Close flushes and closes the log file, if any. Stdout logging continues.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := closeFileLocked()
	Logger = Logger.Output(os.Stdout)
	log.Logger = Logger
	return err
}

func closeFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// WithComponent returns a logger with a component field set
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWritesAndTruncatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "capture.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stale contents from a previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Init("info", false, path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	WithComponent("test").Info().Msg("hello from the test")
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if strings.Contains(text, "stale contents") {
		t.Fatalf("log file was not truncated: %q", text)
	}
	if !strings.Contains(text, "hello from the test") || !strings.Contains(text, `"component":"test"`) {
		t.Fatalf("log file missing event: %q", text)
	}
}

func TestCloseWithoutFile(t *testing.T) {
	if err := Init("debug", false, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("Close = %v, want nil", err)
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestDefaultPath(t *testing.T) {
	if got := filepath.Base(DefaultPath()); got != DefaultLogName {
		t.Fatalf("DefaultPath base = %q, want %q", got, DefaultLogName)
	}
}

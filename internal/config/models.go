package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"gopkg.in/yaml.v3"
)

// CaptureConfig tunes the capture engine's retry and polling cadence.
type CaptureConfig struct {
	RetryInterval  time.Duration `json:"retry_interval" yaml:"retry_interval"`
	InitRetryDelay time.Duration `json:"init_retry_delay" yaml:"init_retry_delay"`
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval"`
	Borderless     bool          `json:"borderless" yaml:"borderless"`
	Cursor         bool          `json:"cursor" yaml:"cursor"`
}

// HookConfig describes the module injected in hook mode and the environment
// variables used to hand it the channel name and log path.
type HookConfig struct {
	Module     string `json:"module" yaml:"module"`
	EnvMemName string `json:"env_memname" yaml:"env_memname"`
	EnvLogPath string `json:"env_logpath" yaml:"env_logpath"`
}

// HandoffConfig configures the texture-sharing sender.
type HandoffConfig struct {
	SenderName   string        `json:"sender_name" yaml:"sender_name"`
	LoopInterval time.Duration `json:"loop_interval" yaml:"loop_interval"`
}

// StatusConfig configures the read-only status API. An empty address
// disables it.
type StatusConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Config represents the application configuration
type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	LogFile  string        `json:"log_file" yaml:"log_file"`
	Capture  CaptureConfig `json:"capture" yaml:"capture"`
	Hook     HookConfig    `json:"hook" yaml:"hook"`
	Handoff  HandoffConfig `json:"handoff" yaml:"handoff"`
	Status   StatusConfig  `json:"status" yaml:"status"`
}

// Validate reports the first setting that cannot be used as-is.
func (c *Config) Validate() error {
	switch {
	case c.Capture.RetryInterval <= 0:
		return errors.New("capture.retry_interval must be positive")
	case c.Capture.InitRetryDelay <= 0:
		return errors.New("capture.init_retry_delay must be positive")
	case c.Capture.PollInterval <= 0:
		return errors.New("capture.poll_interval must be positive")
	case c.Handoff.LoopInterval <= 0:
		return errors.New("handoff.loop_interval must be positive")
	case c.Hook.Module == "":
		return errors.New("hook.module must be set")
	case c.Hook.EnvMemName == "" || c.Hook.EnvLogPath == "":
		return errors.New("hook.env_memname and hook.env_logpath must be set")
	case c.Handoff.SenderName == "":
		return errors.New("handoff.sender_name must be set")
	}
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			RetryInterval:  2 * time.Second,
			InitRetryDelay: time.Second,
			PollInterval:   time.Second,
			Borderless:     true,
			Cursor:         true,
		},
		Hook: HookConfig{
			Module:     "CaptureHook.dll",
			EnvMemName: "CAPTURE_MEMNAME",
			EnvLogPath: "CAPTURE_LOGPATH",
		},
		Handoff: HandoffConfig{
			SenderName:   "GameCaptureWGC",
			LoopInterval: time.Millisecond,
		},
	}
}

// Manager handles configuration loading and saving
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "graphicscapture", "config.yaml"), nil
}

// NewManager creates a new configuration manager. A missing file is created
// with Defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("log_level", m.config.LogLevel).
		Msg("Config loaded")

	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Fields absent from the file keep their default values
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Path returns the file backing this manager.
func (m *Manager) Path() string {
	return m.configPath
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update replaces the configuration and persists it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

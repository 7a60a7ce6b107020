package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/GraphicsCapture/internal/api"
	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/config"
	"github.com/bryanchriswhite/GraphicsCapture/internal/inject"
	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/orchestrator"
	"github.com/bryanchriswhite/GraphicsCapture/internal/output"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	captureTarget  string
	captureMemName string
	captureHook    bool
	captureDesktop bool

	rootCmd = &cobra.Command{
		Use:   "graphicscapture",
		Short: "GraphicsCapture - share a window's GPU frames with another process",
		Long: `GraphicsCapture captures a window (or the primary display) with
Windows.Graphics.Capture and republishes every frame as a shared D3D11
texture. The texture handle and size are written to a small named
shared-memory record that a renderer in another process polls.

Modes:
  • Capture engine (default): keep one target captured, re-acquiring it
    when it closes and re-initializing when it is resized
  • Hook mode (--hook): start the target suspended and load the capture
    hook module into it
  • Hand-off (send): stream a window to a Spout receiver`,
		Example: `  # Capture a game by executable name
  graphicscapture --target game.exe --memname GameTex

  # Capture the whole primary display
  graphicscapture --desktop --memname DesktopTex

  # Launch a game with the capture hook loaded
  graphicscapture --hook --target "C:\Games\game.exe" --memname GameTex`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE:          runCapture,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the user config dir/graphicscapture/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file, truncated at start (default is GraphicsCapture.log next to the executable)")

	rootCmd.Flags().StringVar(&captureTarget, "target", "", "executable name or window title to capture (executable path in hook mode)")
	rootCmd.Flags().StringVar(&captureMemName, "memname", "", "name of the shared-memory channel")
	rootCmd.Flags().BoolVar(&captureHook, "hook", false, "launch --target suspended and inject the hook module")
	rootCmd.Flags().BoolVar(&captureDesktop, "desktop", false, "capture the entire primary display")
	rootCmd.Flags().String("status-addr", "", "serve the status API on this address (e.g. 127.0.0.1:8787)")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("status_addr", rootCmd.Flags().Lookup("status-addr"))
}

// initConfig lets GRAPHICSCAPTURE_LOG_LEVEL and friends stand in for flags.
func initConfig() {
	viper.SetEnvPrefix("graphicscapture")
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("log_file"); v != "" {
		cfg.LogFile = v
	}
	if v := viper.GetString("status_addr"); v != "" {
		cfg.Status.Addr = v
	}
	if cfg.LogFile == "" {
		cfg.LogFile = logger.DefaultPath()
	}
	return configMgr, cfg, nil
}

// setup loads the configuration and starts file logging.
func setup() (*config.Manager, *config.Config, error) {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.LogLevel, false, cfg.LogFile); err != nil {
		return nil, nil, err
	}
	logger.Logger.Info().
		Str("config", configMgr.Path()).
		Str("log_file", cfg.LogFile).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")
	return configMgr, cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func validateCaptureFlags() error {
	switch {
	case captureMemName == "":
		return errors.New("--memname is required")
	case captureHook && captureDesktop:
		return errors.New("--hook cannot be combined with --desktop")
	case captureTarget != "" && captureDesktop:
		return errors.New("--target and --desktop are mutually exclusive")
	case captureTarget == "" && !captureDesktop:
		return errors.New("one of --target or --desktop is required")
	}
	return nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	if err := validateCaptureFlags(); err != nil {
		cmd.Usage()
		return err
	}

	configMgr, cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext()
	defer stop()

	if captureHook {
		return runHook(ctx, cfg)
	}
	return runEngine(ctx, configMgr, cfg)
}

func runHook(ctx context.Context, cfg *config.Config) error {
	spawner, err := inject.NewSpawner()
	if err != nil {
		return err
	}
	loader, err := inject.NewLoader()
	if err != nil {
		return err
	}

	launcher := inject.NewLauncher(spawner, loader, output.OpenSharedMemory)
	code, err := launcher.Run(ctx, inject.Options{
		Target:     captureTarget,
		MemName:    captureMemName,
		Module:     cfg.Hook.Module,
		LogPath:    cfg.LogFile,
		EnvMemName: cfg.Hook.EnvMemName,
		EnvLogPath: cfg.Hook.EnvLogPath,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Hook mode failed")
		return err
	}
	logger.Logger.Info().Uint32("exit_code", code).Msg("Loader finished")
	return nil
}

func runEngine(ctx context.Context, configMgr *config.Manager, cfg *config.Config) error {
	if captureDesktop {
		logger.Logger.Info().Msg("Desktop capture mode activated")
	} else {
		logger.Logger.Info().Str("target", captureTarget).Msg("Standard capture mode activated")
	}

	backend, err := window.NewBackend()
	if err != nil {
		return err
	}
	locator := window.NewLocator(backend, nil)
	locator.RetryInterval = cfg.Capture.RetryInterval
	locator.SkipMinimized = true

	source, err := capture.NewSource()
	if err != nil {
		return err
	}

	channel, err := output.OpenSharedMemory(captureMemName)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Could not create shared memory channel")
		return err
	}
	defer channel.Close()

	orch := orchestrator.New(locator, window.NewStyleGuard(backend), source, channel, orchestrator.Options{
		Query:          captureTarget,
		Desktop:        captureDesktop,
		Borderless:     cfg.Capture.Borderless,
		Cursor:         cfg.Capture.Cursor,
		InitRetryDelay: cfg.Capture.InitRetryDelay,
		PollInterval:   cfg.Capture.PollInterval,
	})

	if cfg.Status.Addr != "" {
		server := api.NewServer(orch, locator, configMgr)
		go func() {
			if err := server.Start(ctx, cfg.Status.Addr); err != nil {
				logger.Logger.Error().Err(err).Msg("Status API stopped")
			}
		}()
	}

	return orch.Run(ctx)
}

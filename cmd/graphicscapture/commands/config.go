package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bryanchriswhite/GraphicsCapture/internal/config"
	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage GraphicsCapture configuration",
	Long:  `View and manage GraphicsCapture configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current GraphicsCapture configuration.`,
	Example: `  # Show configuration as YAML (default)
  graphicscapture config show

  # Show configuration as JSON
  graphicscapture config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value.`,
	Example: `  # Keep window decorations while capturing
  graphicscapture config set capture.borderless false

  # Set log level
  graphicscapture config set log_level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		return printJSON(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

// setConfigValue applies one KEY VALUE pair to cfg.
func setConfigValue(cfg *config.Config, key, value string) error {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %s", key, value)
		}
		return b, nil
	}

	switch key {
	case "log_level":
		switch logger.LogLevel(value) {
		case logger.DebugLevel, logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel:
		default:
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		cfg.LogLevel = value
	case "log_file":
		cfg.LogFile = value
	case "capture.borderless":
		b, err := parseBool()
		if err != nil {
			return err
		}
		cfg.Capture.Borderless = b
	case "capture.cursor":
		b, err := parseBool()
		if err != nil {
			return err
		}
		cfg.Capture.Cursor = b
	case "hook.module":
		cfg.Hook.Module = value
	case "handoff.sender_name":
		cfg.Handoff.SenderName = value
	case "status.addr":
		cfg.Status.Addr = value
	default:
		return fmt.Errorf("unknown or read-only key: %s", key)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := configMgr.Update(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✓ Set %s = %s\n", key, value)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.Path())
	return nil
}

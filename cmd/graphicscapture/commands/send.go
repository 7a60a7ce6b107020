package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/GraphicsCapture/internal/capture"
	"github.com/bryanchriswhite/GraphicsCapture/internal/handoff"
	"github.com/bryanchriswhite/GraphicsCapture/internal/logger"
	"github.com/bryanchriswhite/GraphicsCapture/internal/spout"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
	"github.com/spf13/cobra"
)

var (
	sendNoCursor bool
	sendName     string
)

var sendCmd = &cobra.Command{
	Use:   "send [window title or executable]",
	Short: "Stream a window to a Spout receiver",
	Long: `Capture one window and share its newest frame as a Spout sender.
The window is looked up once; if it is not found the command exits. Press
END or Ctrl+C to stop. When the window is not given it is asked for on
standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendNoCursor, "no-cursor", false, "do not draw the mouse cursor into frames")
	sendCmd.Flags().StringVar(&sendName, "sender", "", "Spout sender name (default from config)")
}

func promptQuery() (string, error) {
	fmt.Print("Window title or executable to capture: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read window name: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runSend(cmd *cobra.Command, args []string) error {
	_, cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	var query string
	if len(args) == 1 {
		query = args[0]
	} else if query, err = promptQuery(); err != nil {
		return err
	}
	if query == "" {
		return errors.New("no window given")
	}

	name := sendName
	if name == "" {
		name = cfg.Handoff.SenderName
	}

	backend, err := window.NewBackend()
	if err != nil {
		return err
	}
	source, err := capture.NewSource()
	if err != nil {
		return err
	}
	host, err := spout.NewHost()
	if err != nil {
		return err
	}

	newSink := func(device capture.Device) (handoff.TextureSink, error) {
		s, err := spout.NewSender(name, device, host)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	sender := handoff.NewSender(window.NewLocator(backend, nil), source, newSink, handoff.Options{
		Query:        query,
		Cursor:       !sendNoCursor,
		LoopInterval: cfg.Handoff.LoopInterval,
	})

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("Sharing %q as Spout sender %q. Press END to stop.\n", query, name)
	reason, err := sender.Run(ctx)
	if err != nil {
		if errors.Is(err, window.ErrTargetNotFound) {
			return fmt.Errorf("window %q not found", query)
		}
		return err
	}

	fmt.Printf("Stopped (%s) after %d frames\n", reason, sender.Stats().Sent)
	return nil
}

package commands

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/GraphicsCapture/internal/output"
	"github.com/spf13/cobra"
)

var (
	inspectMemName string
	inspectFormat  string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show what a running engine publishes",
	Long: `Open a shared-memory channel read-only and print the texture record it
currently holds, the way a consumer would see it.`,
	Example: `  graphicscapture inspect --memname GameTex
  graphicscapture inspect --memname GameTex --format json`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectMemName, "memname", "", "name of the shared-memory channel")
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "output format (table or json)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	if inspectMemName == "" {
		return errors.New("--memname is required")
	}

	h, ready, err := output.ReadSharedMemory(inspectMemName)
	if err != nil {
		return fmt.Errorf("failed to open channel %q: %w", inspectMemName, err)
	}

	if inspectFormat == "json" {
		return printJSON(struct {
			Channel string        `json:"channel"`
			Ready   bool          `json:"ready"`
			Header  output.Header `json:"header"`
		}{inspectMemName, ready, h})
	}

	fmt.Printf("Channel:  %s\n", inspectMemName)
	fmt.Printf("Ready:    %t\n", ready)
	if !h.Published() {
		fmt.Println("Texture:  none")
		return nil
	}
	fmt.Printf("Texture:  0x%x\n", h.Handle)
	fmt.Printf("Size:     %dx%d\n", h.Width, h.Height)
	fmt.Printf("Target:   0x%x\n", h.Target)
	return nil
}

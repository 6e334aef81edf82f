package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"alcyxob/present-coach/internal/analysis"
	"alcyxob/present-coach/internal/output"
)

func NewAnalyzeCmd(deps *Dependencies) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Compute the free metrics of a WAV recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(deps.Out)

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			waveform, err := analysis.DecodeWAV(file)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			features := analysis.Analyze(waveform)
			if raw {
				f.Features(features, waveform.Duration())
			}
			f.Metrics(analysis.Classify(features))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Also print the underlying measurements")

	return cmd
}

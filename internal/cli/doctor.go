package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"alcyxob/present-coach/internal/capture"
	"alcyxob/present-coach/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(deps.Out)
			ok := true

			if err := capture.CheckFFmpeg(); err != nil {
				f.SetupCheck("ffmpeg", false, "not found. Install ffmpeg or rehearse with --audio-file")
				ok = false
			} else {
				f.SetupCheck("ffmpeg", true, "installed")
			}
			f.SetupCheck("Audio input", true, deps.Config.AudioFormat+" "+deps.Config.AudioInput)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := deps.API.Ping(ctx); err != nil {
				f.SetupCheck("Submission server", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Submission server", true, deps.Config.ServerURL)
			}

			if deps.Config.PriceID != "" {
				f.SetupCheck("Checkout price", true, deps.Config.PriceID)
			} else {
				f.SetupCheck("Checkout price", false, "not set. Set PRESENTCOACH_PRICE_ID or add price_id to config")
				ok = false
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to rehearse!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

package cli

import (
	"io"

	"github.com/spf13/cobra"

	"alcyxob/present-coach/internal/client"
	"alcyxob/present-coach/internal/config"
	"alcyxob/present-coach/internal/version"
)

type Dependencies struct {
	Config *config.ClientConfig
	API    *client.API
	In     io.Reader
	Out    io.Writer
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rehearse",
		Short:         "Rehearse a presentation and submit it for review",
		Long:          "A CLI tool that records a presentation rehearsal against a slide deck, tracks time per slide, reports free delivery metrics, and submits the rehearsal for a paid review.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewSessionCmd(deps))
	rootCmd.AddCommand(NewAnalyzeCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"alcyxob/present-coach/internal/capture"
	"alcyxob/present-coach/internal/client"
	"alcyxob/present-coach/internal/output"
	"alcyxob/present-coach/internal/recording"
	"alcyxob/present-coach/internal/session"
)

func NewSessionCmd(deps *Dependencies) *cobra.Command {
	var (
		slides    string
		pages     int
		name      string
		audioFile string
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start an interactive rehearsal",
		Long:  "Start an interactive rehearsal shell. Attach slides, record, move through the slides, then check out and upload for review.\nRecords from the microphone through ffmpeg, or replays a WAV file with --audio-file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			f := output.NewFormatter(deps.Out)

			var device recording.CaptureDevice
			if audioFile != "" {
				device = capture.NewFileDevice(audioFile)
			} else {
				mic := capture.NewFFmpegDevice(deps.Config.AudioFormat, deps.Config.AudioInput)
				mic.SampleRate = deps.Config.SampleRate
				device = mic
			}

			sess := session.New(device)
			defer sess.Close()

			checkout := &client.LinkCheckout{
				BaseURL: deps.Config.CheckoutURL,
				PriceID: deps.Config.PriceID,
				Out:     deps.Out,
			}
			shell := NewShell(sess, client.NewCoordinator(deps.API, sess, checkout), f)

			if name != "" {
				sess.SetPresenterName(name)
			}
			if slides != "" {
				if err := shell.AttachSlides(slides, pages); err != nil {
					return err
				}
			}

			go sess.Watch(ctx, session.DefaultWatchInterval, readinessNotifier(f))

			f.Info("Type 'help' for commands.")
			return shell.Run(ctx, deps.In)
		},
	}

	cmd.Flags().StringVarP(&slides, "slides", "s", "", "PDF slide deck to attach")
	cmd.Flags().IntVar(&pages, "pages", 0, "Page count when it cannot be read from the PDF")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Presenter name")
	cmd.Flags().StringVar(&audioFile, "audio-file", "", "Replay a WAV file instead of recording the microphone")

	return cmd
}

// readinessNotifier announces each time the session becomes ready for
// checkout.
func readinessNotifier(f *output.Formatter) func(session.Readiness) {
	ready := false
	return func(r session.Readiness) {
		if r.Complete() && !ready {
			f.Success("Ready for a paid review. Set your name and run 'checkout'.")
		}
		ready = r.Complete()
	}
}

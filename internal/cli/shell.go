package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"alcyxob/present-coach/internal/client"
	"alcyxob/present-coach/internal/output"
	"alcyxob/present-coach/internal/recording"
	"alcyxob/present-coach/internal/session"
)

// ErrQuit is returned by Exec when the presenter leaves the shell.
var ErrQuit = errors.New("quit")

const shellHelp = `Commands:
  slides <file.pdf> [pages]   attach the slide deck
  name <presenter name>       set the presenter name
  start | pause | resume | stop
  next | prev | goto <page>   move through the slides
  audience | close            open or close the audience view
  status                      recorder, slide and readiness state
  timings                     time spent per slide
  checkout [name]             register the submission and open checkout
  email <address>             email entered during checkout
  paid <transactionId> [email]
  upload                      upload slides, audio and metrics
  quit
`

// Shell is the interactive rehearsal loop.
type Shell struct {
	sess  *session.Session
	coord *client.Coordinator
	f     *output.Formatter

	uploaded  bool
	quitArmed bool
}

func NewShell(sess *session.Session, coord *client.Coordinator, f *output.Formatter) *Shell {
	return &Shell{sess: sess, coord: coord, f: f}
}

// Run executes commands read from in until quit, EOF, or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.f.Prompt()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.f.Writer())
			if s.unsaved() {
				s.f.Warning("Interrupted. The rehearsal was not submitted and is discarded.")
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := s.Exec(ctx, line)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				s.f.Error(errorMessage(err))
			}
			s.f.Prompt()
		}
	}
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	if cmd != "quit" && cmd != "exit" {
		s.quitArmed = false
	}

	switch cmd {
	case "help", "?":
		fmt.Fprint(s.f.Writer(), shellHelp)
		return nil
	case "slides":
		return s.slides(args)
	case "name":
		s.sess.SetPresenterName(strings.Join(args, " "))
		s.f.Info("Presenter: " + s.sess.PresenterName())
		return nil
	case "start":
		return s.start(ctx)
	case "pause":
		return s.pause()
	case "resume":
		return s.resume()
	case "stop":
		return s.stop()
	case "next":
		return s.move(s.sess.Tracker().NextPage())
	case "prev":
		return s.move(s.sess.Tracker().PrevPage())
	case "goto":
		if len(args) != 1 {
			return fmt.Errorf("usage: goto <page>")
		}
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid page %q", args[0])
		}
		return s.move(s.sess.Tracker().GoTo(page))
	case "audience":
		s.sess.Tracker().OpenAudience()
		s.showSlide()
		return nil
	case "close":
		s.sess.Tracker().CloseAudience()
		s.showSlide()
		return nil
	case "status":
		s.status()
		return nil
	case "timings":
		if !s.sess.Tracker().Attached() {
			return fmt.Errorf("no slides attached")
		}
		s.f.Timings(s.sess.Tracker().Summary())
		return nil
	case "checkout":
		return s.checkout(ctx, strings.Join(args, " "))
	case "email":
		if len(args) != 1 {
			return fmt.Errorf("usage: email <address>")
		}
		s.coord.CaptureCheckoutEmail(args[0])
		s.f.Info("Checkout email: " + args[0])
		return nil
	case "paid":
		return s.paid(ctx, args)
	case "upload":
		return s.upload(ctx)
	case "quit", "exit":
		return s.quit()
	}
	return fmt.Errorf("unknown command %q, type 'help'", cmd)
}

// AttachSlides reads and attaches a PDF deck. pages of zero means count
// them from the document.
func (s *Shell) AttachSlides(path string, pages int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	deck, err := session.NewSlideDeck(path, data, pages)
	if err != nil {
		return err
	}
	if err := s.sess.AttachSlides(deck); err != nil {
		return err
	}
	s.uploaded = false
	s.f.SlidesAttached(deck.Name, deck.Pages)
	s.showSlide()
	return nil
}

func (s *Shell) slides(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: slides <file.pdf> [pages]")
	}
	pages := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid page count %q", args[1])
		}
		pages = n
	}
	return s.AttachSlides(args[0], pages)
}

func (s *Shell) start(ctx context.Context) error {
	if err := s.sess.Recorder().Start(ctx); err != nil {
		return err
	}
	s.uploaded = false
	s.f.RecordingStarted()
	return nil
}

func (s *Shell) pause() error {
	if err := s.sess.Recorder().Pause(); err != nil {
		return err
	}
	s.f.RecordingPaused(s.sess.Recorder().Elapsed())
	return nil
}

func (s *Shell) resume() error {
	if err := s.sess.Recorder().Resume(); err != nil {
		return err
	}
	s.f.RecordingResumed()
	return nil
}

func (s *Shell) stop() error {
	result, err := s.sess.Recorder().Stop()
	if result == nil {
		return err
	}
	s.f.RecordingStopped(result.Elapsed)
	if err != nil {
		s.f.Warning(fmt.Sprintf("No free metrics: %v", err))
	} else if result.Metrics != nil {
		s.f.Metrics(*result.Metrics)
	}
	if s.sess.Tracker().Attached() {
		s.f.Timings(s.sess.Tracker().Summary())
	}
	return nil
}

func (s *Shell) move(moved bool, err error) error {
	if err != nil {
		return err
	}
	if !moved {
		s.f.Info("Already there")
		return nil
	}
	s.showSlide()
	return nil
}

func (s *Shell) showSlide() {
	t := s.sess.Tracker()
	if !t.Attached() {
		return
	}
	s.f.Slide(t.CurrentPage(), t.Pages(), t.AudienceOpen())
}

func (s *Shell) status() {
	t := s.sess.Tracker()
	r := s.sess.Recorder()
	s.f.Status(r.State().String(), r.Elapsed(), t.CurrentPage(), t.Pages(), t.AudienceOpen())
	s.f.Readiness(s.sess.Readiness(), s.sess.PresenterName())
	if p, ok := s.sess.Payment(); ok {
		s.f.Info("Paid: transaction " + p.TransactionID)
	} else if id := s.sess.SubmissionID(); id != "" {
		s.f.Info("Awaiting payment for submission " + id)
	}
}

func (s *Shell) checkout(ctx context.Context, name string) error {
	id, err := s.coord.BeginCheckout(ctx, name)
	if err != nil {
		return err
	}
	s.f.CheckoutStarted(id)
	s.f.Info("After paying, run: paid <transactionId> [email]")
	return nil
}

func (s *Shell) paid(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: paid <transactionId> [email]")
	}
	res := client.PaymentResult{TransactionID: args[0]}
	if len(args) == 2 {
		res.Email = args[1]
	}
	report, err := s.coord.CompletePayment(ctx, res)
	if err != nil {
		return err
	}
	s.f.PaymentRecorded(report)
	return nil
}

func (s *Shell) upload(ctx context.Context) error {
	report, err := s.coord.UploadAssets(ctx)
	if err != nil {
		return err
	}
	s.f.UploadReport(report)
	if report.Success() {
		s.uploaded = true
	}
	return nil
}

func (s *Shell) quit() error {
	if s.unsaved() && !s.quitArmed {
		s.quitArmed = true
		s.f.Warning("This rehearsal has not been submitted. Type quit again to discard it.")
		return nil
	}
	return ErrQuit
}

func (s *Shell) unsaved() bool {
	return !s.uploaded && s.sess.HasUnsavedWork()
}

// errorMessage maps errors to presenter-facing text.
func errorMessage(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, session.ErrNameMissing), errors.Is(err, session.ErrPrerequisitesIncomplete):
		return session.Message(err)
	case errors.Is(err, recording.ErrDeviceUnavailable):
		return "Could not access the microphone: " + err.Error()
	case errors.As(err, &apiErr) && apiErr.IsRetryLater():
		return "Payment is not confirmed yet. Try 'upload' again in a moment."
	case errors.As(err, &apiErr) && apiErr.IsForbidden():
		return "The transaction id does not match this submission."
	case errors.As(err, &apiErr) && apiErr.IsNotFound():
		return "The server does not know this submission. Run 'checkout' again."
	}
	return err.Error()
}

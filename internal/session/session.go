// Package session holds the state of one rehearsal: the attached slides, the
// recording controller, the slide timing tracker and the payment hand-off.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"alcyxob/present-coach/internal/analysis"
	"alcyxob/present-coach/internal/recording"
	"alcyxob/present-coach/internal/timing"
)

// ErrRecordingInProgress is returned when slides are replaced mid-recording.
var ErrRecordingInProgress = errors.New("stop the recording before replacing the slides")

// Payment is what the checkout reported on completion.
type Payment struct {
	SubmissionID  string
	TransactionID string
	Email         string
}

type options struct {
	clock        func() time.Time
	tickInterval time.Duration
	decoder      recording.Decoder
}

// Option configures a Session.
type Option func(*options)

// WithClock sets the time source shared by the recorder and the tracker.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithTickInterval sets the timing flush cadence; zero disables the loop.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) { o.tickInterval = d }
}

// WithDecoder sets how finished clips are decoded for analysis.
func WithDecoder(d recording.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// Session is the context object shared by the recorder, the tracker, the
// readiness gate and the upload coordinator. The recorder owns recording
// state, the tracker owns timing state; Session owns everything else.
type Session struct {
	recorder *recording.Controller
	tracker  *timing.Tracker

	mu            sync.Mutex
	deck          *SlideDeck
	presenterName string
	submissionID  string
	checkoutEmail string
	payment       *Payment
}

// New creates an empty session recording from device.
func New(device recording.CaptureDevice, opts ...Option) *Session {
	o := options{
		clock:        time.Now,
		tickInterval: timing.DefaultTickInterval,
		decoder:      recording.DecodeWAVClip,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{}
	s.tracker = timing.NewTracker(timing.WithClock(o.clock), timing.WithTickInterval(o.tickInterval))
	s.recorder = recording.NewController(device, s.SlidesAttached,
		recording.WithClock(o.clock),
		recording.WithDecoder(o.decoder),
	)
	s.recorder.Subscribe(s.tracker)
	return s
}

// Recorder returns the recording controller.
func (s *Session) Recorder() *recording.Controller { return s.recorder }

// Tracker returns the slide timing tracker.
func (s *Session) Tracker() *timing.Tracker { return s.tracker }

// AttachSlides makes deck the session's presentation and restarts slide
// tracking on page 1.
func (s *Session) AttachSlides(deck SlideDeck) error {
	if s.recorder.State() != recording.StateIdle {
		return ErrRecordingInProgress
	}
	if err := s.tracker.AttachDeck(deck.Pages); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deck = &deck
	return nil
}

// SlidesAttached reports whether a deck is attached.
func (s *Session) SlidesAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck != nil
}

// Slides returns the attached deck, or nil.
func (s *Session) Slides() *SlideDeck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck
}

// SetPresenterName stores the trimmed name.
func (s *Session) SetPresenterName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presenterName = strings.TrimSpace(name)
}

// PresenterName returns the presenter's name.
func (s *Session) PresenterName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenterName
}

// LastRecording returns the last completed recording, or nil.
func (s *Session) LastRecording() *recording.Result {
	return s.recorder.Last()
}

// Metrics returns the free metrics of the last recording, or nil.
func (s *Session) Metrics() *analysis.FreeAudioMetrics {
	if last := s.recorder.Last(); last != nil {
		return last.Metrics
	}
	return nil
}

// Readiness derives the checkout prerequisites.
func (s *Session) Readiness() Readiness {
	last := s.recorder.Last()
	return Readiness{
		SlidesAttached: s.SlidesAttached(),
		AudioRecorded:  last != nil && !last.Clip.Empty(),
		MetricsReady:   last != nil && last.Metrics != nil,
	}
}

// CheckReady evaluates the checkout gate for the current state.
func (s *Session) CheckReady() error {
	return Evaluate(s.Readiness(), s.PresenterName())
}

// HasUnsavedWork reports whether leaving now would lose something: slides
// attached, a recording started or finished, or accrued slide time.
func (s *Session) HasUnsavedWork() bool {
	return s.SlidesAttached() ||
		s.recorder.State() != recording.StateIdle ||
		s.recorder.Last() != nil ||
		s.tracker.HasData()
}

// BeginSubmission records the id of the submission being checked out. Any
// earlier payment is forgotten.
func (s *Session) BeginSubmission(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissionID = id
	s.checkoutEmail = ""
	s.payment = nil
}

// SubmissionID returns the current submission id.
func (s *Session) SubmissionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissionID
}

// CaptureCheckoutEmail remembers an email typed into the checkout before
// payment completes.
func (s *Session) CaptureCheckoutEmail(email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkoutEmail = email
}

// CheckoutEmail returns the captured checkout email.
func (s *Session) CheckoutEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkoutEmail
}

// RecordPayment stores the completed payment. An empty submission id falls
// back to the current submission, an empty email to the checkout email.
func (s *Session) RecordPayment(p Payment) Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.SubmissionID == "" {
		p.SubmissionID = s.submissionID
	}
	if p.Email == "" {
		p.Email = s.checkoutEmail
	}
	s.payment = &p
	return p
}

// Payment returns the completed payment, if any.
func (s *Session) Payment() (Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment == nil {
		return Payment{}, false
	}
	return *s.payment, true
}

// Close stops an active recording and the timing loop.
func (s *Session) Close() {
	if s.recorder.State() != recording.StateIdle {
		_, _ = s.recorder.Stop()
	}
	s.tracker.Close()
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"alcyxob/present-coach/internal/analysis"
	"alcyxob/present-coach/internal/observability/logging"
	"alcyxob/present-coach/internal/session"
	"alcyxob/present-coach/internal/timing"
)

// Content types the server signs the upload URLs for.
const (
	SlidesContentType  = "application/pdf"
	AudioContentType   = "audio/webm"
	MetricsContentType = "application/json"
)

// Artifact categories, in the order they are checked.
const (
	ArtifactSlides  = "slides"
	ArtifactAudio   = "audio"
	ArtifactMetrics = "metrics"
	ArtifactTiming  = "timing"
)

var (
	ErrNoSubmission    = errors.New("no submission started, begin checkout first")
	ErrNotPaid         = errors.New("payment not completed")
	ErrNoTransactionID = errors.New("payment result carries no transaction id")
)

// MissingArtifactError names the first local artifact an upload lacks.
type MissingArtifactError struct {
	Category string
}

func (e *MissingArtifactError) Error() string {
	switch e.Category {
	case ArtifactSlides:
		return "slides missing: attach a PDF first"
	case ArtifactAudio:
		return "audio missing: complete a recording first"
	case ArtifactMetrics:
		return "free metrics missing: the last recording was not analyzed"
	case ArtifactTiming:
		return "slide timing missing: record with the slides attached"
	}
	return "missing " + e.Category
}

// CheckoutRequest is the pass-through metadata handed to the checkout.
type CheckoutRequest struct {
	SubmissionID  string
	PresenterName string
}

// Checkout opens the payment provider's checkout for a submission.
type Checkout interface {
	Open(ctx context.Context, req CheckoutRequest) error
}

// PaymentResult is what the checkout reports when payment completes.
type PaymentResult struct {
	SubmissionID  string // optional, defaults to the current submission
	TransactionID string
	Email         string // optional, defaults to an email captured earlier
}

// PaymentReport describes the follow-up of a completed payment. A failed
// email patch does not fail the payment.
type PaymentReport struct {
	Payment         session.Payment
	EmailPatched    bool
	EmailAlreadySet bool
	EmailErr        error
}

// MetricsBundle is the metrics.json document uploaded with a submission.
type MetricsBundle struct {
	SubmissionID     string                    `json:"submissionId"`
	TransactionID    string                    `json:"transactionId"`
	PresenterName    string                    `json:"presenterName"`
	Email            string                    `json:"email"`
	FreeAudioMetrics analysis.FreeAudioMetrics `json:"freeAudioMetrics"`
	SlideTimings     timing.Timings            `json:"slideTimings"`
	CreatedAtClient  time.Time                 `json:"createdAtClient"`
}

// ArtifactStatus is the outcome of one upload.
type ArtifactStatus struct {
	Path string
	Err  error
}

func (s ArtifactStatus) OK() bool { return s.Err == nil }

// UploadReport is the outcome of an upload batch.
type UploadReport struct {
	Targets *UploadTargets
	Slides  ArtifactStatus
	Audio   ArtifactStatus
	Metrics ArtifactStatus
}

// Success reports whether all three uploads succeeded.
func (r *UploadReport) Success() bool {
	return r.Slides.OK() && r.Audio.OK() && r.Metrics.OK()
}

// Err joins the failed uploads, or returns nil.
func (r *UploadReport) Err() error {
	var errs []error
	for _, s := range []struct {
		name string
		st   ArtifactStatus
	}{{ArtifactSlides, r.Slides}, {ArtifactAudio, r.Audio}, {ArtifactMetrics, r.Metrics}} {
		if s.st.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, s.st.Err))
		}
	}
	return errors.Join(errs...)
}

// Coordinator drives checkout, payment follow-up and asset upload for a
// session.
type Coordinator struct {
	api      *API
	session  *session.Session
	checkout Checkout
	clock    func() time.Time
	newID    func() string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorClock sets the clock used for createdAtClient.
func WithCoordinatorClock(clock func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clock }
}

// WithIDGenerator sets how submission ids are generated.
func WithIDGenerator(newID func() string) CoordinatorOption {
	return func(c *Coordinator) { c.newID = newID }
}

func NewCoordinator(api *API, sess *session.Session, checkout Checkout, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		api:      api,
		session:  sess,
		checkout: checkout,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginCheckout checks the readiness gate, registers a new submission and
// opens the checkout for it. It returns the submission id.
func (c *Coordinator) BeginCheckout(ctx context.Context, presenterName string) (string, error) {
	if name := strings.TrimSpace(presenterName); name != "" {
		c.session.SetPresenterName(name)
	}
	if err := c.session.CheckReady(); err != nil {
		return "", err
	}

	id := c.newID()
	name := c.session.PresenterName()
	if err := c.api.CreateSubmission(ctx, id, name); err != nil {
		return "", err
	}
	c.session.BeginSubmission(id)

	logger := logging.WithSubmission(id, "")
	logger.Info().Msg("submission created, opening checkout")

	if err := c.checkout.Open(ctx, CheckoutRequest{SubmissionID: id, PresenterName: name}); err != nil {
		return id, fmt.Errorf("open checkout: %w", err)
	}
	return id, nil
}

// CaptureCheckoutEmail remembers an email the checkout reported before
// completion.
func (c *Coordinator) CaptureCheckoutEmail(email string) {
	c.session.CaptureCheckoutEmail(email)
}

// CompletePayment records the completed payment and, when an email is
// known, attaches it to the submission. Only a missing transaction id or
// submission is an error.
func (c *Coordinator) CompletePayment(ctx context.Context, res PaymentResult) (*PaymentReport, error) {
	res.TransactionID = strings.TrimSpace(res.TransactionID)
	if res.TransactionID == "" {
		return nil, ErrNoTransactionID
	}
	if res.SubmissionID == "" && c.session.SubmissionID() == "" {
		return nil, ErrNoSubmission
	}

	p := c.session.RecordPayment(session.Payment{
		SubmissionID:  strings.TrimSpace(res.SubmissionID),
		TransactionID: res.TransactionID,
		Email:         strings.TrimSpace(res.Email),
	})
	report := &PaymentReport{Payment: p}
	if p.Email == "" {
		return report, nil
	}

	logger := logging.WithSubmission(p.SubmissionID, p.TransactionID)
	alreadySet, err := c.api.PatchEmail(ctx, p.SubmissionID, p.TransactionID, p.Email)
	if err != nil {
		logger.Warn().Err(err).Msg("email patch failed")
		report.EmailErr = err
		return report, nil
	}
	report.EmailPatched = true
	report.EmailAlreadySet = alreadySet
	return report, nil
}

type localArtifacts struct {
	slides  []byte
	audio   []byte
	metrics analysis.FreeAudioMetrics
	timings timing.Timings
}

// collect gathers everything an upload needs, or names what is missing.
func (c *Coordinator) collect() (*localArtifacts, error) {
	deck := c.session.Slides()
	if deck == nil || len(deck.Data) == 0 {
		return nil, &MissingArtifactError{Category: ArtifactSlides}
	}
	last := c.session.LastRecording()
	if last == nil || last.Clip.Empty() {
		return nil, &MissingArtifactError{Category: ArtifactAudio}
	}
	if last.Metrics == nil {
		return nil, &MissingArtifactError{Category: ArtifactMetrics}
	}
	tracker := c.session.Tracker()
	if !tracker.Attached() || !tracker.Recorded() {
		return nil, &MissingArtifactError{Category: ArtifactTiming}
	}
	return &localArtifacts{
		slides:  deck.Data,
		audio:   last.Clip.Data,
		metrics: *last.Metrics,
		timings: tracker.Snapshot(),
	}, nil
}

// UploadAssets uploads the slides, the recording and the metrics bundle of
// a paid submission. Nothing is requested from the server unless every
// artifact is present locally. The three uploads run concurrently and do
// not cancel each other; failures are reported, not retried.
func (c *Coordinator) UploadAssets(ctx context.Context) (*UploadReport, error) {
	local, err := c.collect()
	if err != nil {
		return nil, err
	}
	p, ok := c.session.Payment()
	if !ok {
		return nil, ErrNotPaid
	}

	name := c.session.PresenterName()
	targets, err := c.api.GetUploadURLs(ctx, p.SubmissionID, p.TransactionID, name)
	if err != nil {
		return nil, err
	}

	bundle, err := json.Marshal(MetricsBundle{
		SubmissionID:     p.SubmissionID,
		TransactionID:    p.TransactionID,
		PresenterName:    name,
		Email:            p.Email,
		FreeAudioMetrics: local.metrics,
		SlideTimings:     local.timings,
		CreatedAtClient:  c.clock().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode metrics bundle: %w", err)
	}

	report := &UploadReport{
		Targets: targets,
		Slides:  ArtifactStatus{Path: targets.SlidesPath},
		Audio:   ArtifactStatus{Path: targets.AudioPath},
		Metrics: ArtifactStatus{Path: targets.MetricsPath},
	}

	var g errgroup.Group
	put := func(st *ArtifactStatus, url, contentType string, data []byte) {
		g.Go(func() error {
			st.Err = c.api.Put(ctx, url, contentType, data)
			return nil
		})
	}
	put(&report.Slides, targets.SlidesURL, SlidesContentType, local.slides)
	put(&report.Audio, targets.AudioURL, AudioContentType, local.audio)
	put(&report.Metrics, targets.MetricsURL, MetricsContentType, bundle)
	_ = g.Wait()

	logger := logging.WithSubmission(p.SubmissionID, p.TransactionID)
	if report.Success() {
		logger.Info().Msg("assets uploaded")
	} else {
		logger.Warn().Err(report.Err()).Msg("asset upload incomplete")
	}
	return report, nil
}

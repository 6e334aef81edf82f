package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"alcyxob/present-coach/internal/domain"
	"alcyxob/present-coach/internal/events"
	"alcyxob/present-coach/internal/observability/logging"
	"alcyxob/present-coach/internal/observability/metrics"
	"alcyxob/present-coach/internal/repository"
	"alcyxob/present-coach/internal/storage"
)

// --- Error Definitions ---
var (
	ErrMissingSubmissionID = errors.New("missing submissionId")
	ErrMissingFields       = errors.New("missing required fields")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrSubmissionNotFound  = errors.New("submission not found")
	// ErrNotYetPaid means no payment confirmation has bound a transaction yet;
	// the caller may retry later.
	ErrNotYetPaid          = errors.New("submission missing transactionId")
	ErrTransactionMismatch = errors.New("transactionId mismatch")
	ErrEmailAlreadySet     = errors.New("email already set")
)

// Upload object names and their content types.
const (
	SlidesObject  = "slides.pdf"
	AudioObject   = "audio.webm"
	MetricsObject = "metrics.json"

	SlidesContentType  = "application/pdf"
	AudioContentType   = "audio/webm"
	MetricsContentType = "application/json"
)

// WebhookResult describes what a payment event did.
type WebhookResult struct {
	Ignored    bool
	Duplicate  bool
	Submission *domain.Submission
}

// UploadTargets is the response to a successful signed URL request.
type UploadTargets struct {
	SubmissionID  string `json:"submissionId"`
	TransactionID string `json:"transactionId"`
	SlidesURL     string `json:"slidesUrl"`
	AudioURL      string `json:"audioUrl"`
	MetricsURL    string `json:"metricsUrl"`
	SlidesPath    string `json:"slidesPath"`
	AudioPath     string `json:"audioPath"`
	MetricsPath   string `json:"metricsPath"`
}

// Notifier receives paid submissions.
type Notifier interface {
	PublishPaid(ctx context.Context, event events.SubmissionPaid) error
}

// SubmissionService implements the server half of the payment and upload
// handshake.
type SubmissionService interface {
	CreateSubmission(ctx context.Context, submissionID, presenterName string) error
	HandlePaymentEvent(ctx context.Context, body map[string]any) (*WebhookResult, error)
	PatchEmail(ctx context.Context, submissionID, transactionID, email string) error
	PrepareUploads(ctx context.Context, submissionID, transactionID, presenterName string) (*UploadTargets, error)
	SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Option configures the submission service.
type Option func(*submissionService)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *submissionService) { s.clock = clock }
}

// WithUploadURLExpiry sets the lifetime of issued upload URLs.
func WithUploadURLExpiry(d time.Duration) Option {
	return func(s *submissionService) {
		if d > 0 {
			s.urlExpiry = d
		}
	}
}

// WithDedupeTTL sets how long a confirmed transaction is remembered for
// suppressing repeated notifications.
func WithDedupeTTL(d time.Duration) Option {
	return func(s *submissionService) {
		if d > 0 {
			s.confirmed = cache.New(d, 2*d)
		}
	}
}

// --- Service Implementation ---

type submissionService struct {
	repo      repository.SubmissionRepository
	storage   storage.FileStorage
	notifier  Notifier
	confirmed *cache.Cache
	metrics   *metrics.Metrics
	clock     func() time.Time
	urlExpiry time.Duration
}

// NewSubmissionService creates a new instance of submissionService.
// notifier may be nil.
func NewSubmissionService(
	repo repository.SubmissionRepository,
	fileStorage storage.FileStorage,
	notifier Notifier,
	opts ...Option,
) SubmissionService {
	s := &submissionService{
		repo:      repo,
		storage:   fileStorage,
		notifier:  notifier,
		confirmed: cache.New(10*time.Minute, 20*time.Minute),
		metrics:   metrics.DefaultMetrics,
		clock:     time.Now,
		urlExpiry: storage.DefaultPresignedURLExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSubmission records a pending submission before checkout opens.
func (s *submissionService) CreateSubmission(ctx context.Context, submissionID, presenterName string) error {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return ErrMissingSubmissionID
	}

	if err := s.repo.Create(ctx, submissionID, strings.TrimSpace(presenterName)); err != nil {
		return fmt.Errorf("create submission %s: %w", submissionID, err)
	}
	s.metrics.SubmissionsCreated.Inc()
	return nil
}

// HandlePaymentEvent applies a payment provider event. Only completed
// transactions change state. A missing email never blocks confirmation; the
// submission is flagged instead.
func (s *submissionService) HandlePaymentEvent(ctx context.Context, body map[string]any) (*WebhookResult, error) {
	ev := ParsePaymentEvent(body)
	if ev.EventType != EventTransactionCompleted {
		s.metrics.RecordWebhook("ignored")
		return &WebhookResult{Ignored: true}, nil
	}

	if ev.SubmissionID == "" {
		s.metrics.RecordWebhook("invalid")
		return nil, ErrMissingSubmissionID
	}

	logger := logging.WithSubmission(ev.SubmissionID, ev.TransactionID)
	if ev.Email == "" {
		logger.Warn().Msg("payment event carries no email, confirming anyway")
	}
	if ev.TransactionID == "" {
		logger.Warn().Msg("payment event carries no transaction id")
	}

	sub, err := s.repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
		SubmissionID:  ev.SubmissionID,
		TransactionID: ev.TransactionID,
		Email:         ev.Email,
		PresenterName: ev.PresenterName,
		EventType:     ev.EventType,
	})
	if err != nil {
		s.metrics.RecordWebhook("error")
		return nil, err
	}

	if ev.TransactionID != "" && sub.TransactionID != ev.TransactionID {
		// the submission is already bound to another payment
		logger.Warn().Str("boundTransactionId", sub.TransactionID).Msg("payment event for a different transaction ignored")
	}

	dedupeKey := ev.SubmissionID + "/" + sub.TransactionID
	duplicate := s.confirmed.Add(dedupeKey, struct{}{}, cache.DefaultExpiration) != nil

	s.metrics.RecordWebhook("ok")
	s.metrics.RecordPaymentConfirmed(sub.EmailMissing, duplicate)

	if !duplicate && s.notifier != nil {
		paidAt := s.clock().UTC()
		if sub.PaidAt != nil {
			paidAt = *sub.PaidAt
		}
		err := s.notifier.PublishPaid(ctx, events.SubmissionPaid{
			SubmissionID:  sub.SubmissionID,
			TransactionID: sub.TransactionID,
			Email:         sub.Email,
			EmailMissing:  sub.EmailMissing,
			PresenterName: sub.PresenterName,
			PaidAt:        paidAt,
		})
		if err != nil {
			// let a provider retry publish again
			s.confirmed.Delete(dedupeKey)
			logger.Error().Err(err).Msg("publish paid submission failed")
		}
	}

	logger.Info().
		Bool("emailMissing", sub.EmailMissing).
		Bool("duplicate", duplicate).
		Msg("payment confirmed")

	return &WebhookResult{Duplicate: duplicate, Submission: sub}, nil
}

// authorize loads the submission and checks the presented transaction id
// against the stored one.
func (s *submissionService) authorize(ctx context.Context, submissionID, transactionID string) (*domain.Submission, error) {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordRejection("not_found")
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if sub.TransactionID == "" {
		s.metrics.RecordRejection("not_paid")
		return nil, ErrNotYetPaid
	}
	if sub.TransactionID != transactionID {
		s.metrics.RecordRejection("transaction_mismatch")
		logger := logging.WithSubmission(submissionID, transactionID)
		logger.Warn().Msg("transactionId mismatch")
		return nil, ErrTransactionMismatch
	}
	return sub, nil
}

// PatchEmail sets the email captured by the client, once.
func (s *submissionService) PatchEmail(ctx context.Context, submissionID, transactionID, email string) error {
	submissionID = strings.TrimSpace(submissionID)
	transactionID = strings.TrimSpace(transactionID)
	email = strings.TrimSpace(email)
	if submissionID == "" || transactionID == "" || email == "" {
		return ErrMissingFields
	}
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}

	sub, err := s.authorize(ctx, submissionID, transactionID)
	if err != nil {
		s.metrics.EmailPatches.WithLabelValues("rejected").Inc()
		return err
	}
	if sub.Email != "" {
		s.metrics.EmailPatches.WithLabelValues("already_set").Inc()
		return ErrEmailAlreadySet
	}

	err = s.repo.SetEmail(ctx, submissionID, email, domain.EmailSourceFrontendPatch)
	switch {
	case errors.Is(err, repository.ErrEmailAlreadySet):
		// lost a race with the webhook or another patch
		s.metrics.EmailPatches.WithLabelValues("already_set").Inc()
		return ErrEmailAlreadySet
	case errors.Is(err, repository.ErrNotFound):
		return ErrSubmissionNotFound
	case err != nil:
		return fmt.Errorf("set email for %s: %w", submissionID, err)
	}

	s.metrics.EmailPatches.WithLabelValues("ok").Inc()
	logger := logging.WithSubmission(submissionID, transactionID)
	logger.Info().Msg("email patched")
	return nil
}

// ObjectPath returns the storage key of one upload artifact. Ids are escaped
// so each stays a single key segment.
func ObjectPath(submissionID, transactionID, object string) string {
	return fmt.Sprintf("submissions/%s/transactions/%s/%s",
		url.PathEscape(submissionID), url.PathEscape(transactionID), object)
}

// PrepareUploads issues the three signed upload URLs for a paid submission
// and records their object paths under assets[transactionId]. Nothing is
// recorded if any URL cannot be issued.
func (s *submissionService) PrepareUploads(ctx context.Context, submissionID, transactionID, presenterName string) (*UploadTargets, error) {
	submissionID = strings.TrimSpace(submissionID)
	transactionID = strings.TrimSpace(transactionID)
	if submissionID == "" || transactionID == "" {
		return nil, ErrMissingFields
	}

	if _, err := s.authorize(ctx, submissionID, transactionID); err != nil {
		s.metrics.UploadURLRequests.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if name := strings.TrimSpace(presenterName); name != "" {
		if err := s.repo.SetPresenterName(ctx, submissionID, name); err != nil {
			return nil, fmt.Errorf("set presenter name for %s: %w", submissionID, err)
		}
	}

	targets := &UploadTargets{
		SubmissionID:  submissionID,
		TransactionID: transactionID,
		SlidesPath:    ObjectPath(submissionID, transactionID, SlidesObject),
		AudioPath:     ObjectPath(submissionID, transactionID, AudioObject),
		MetricsPath:   ObjectPath(submissionID, transactionID, MetricsObject),
	}

	g, gctx := errgroup.WithContext(ctx)
	sign := func(dst *string, path, contentType string) {
		g.Go(func() error {
			u, err := s.storage.GeneratePresignedUploadURL(gctx, path, contentType, s.urlExpiry)
			if err != nil {
				return err
			}
			*dst = u
			return nil
		})
	}
	sign(&targets.SlidesURL, targets.SlidesPath, SlidesContentType)
	sign(&targets.AudioURL, targets.AudioPath, AudioContentType)
	sign(&targets.MetricsURL, targets.MetricsPath, MetricsContentType)
	if err := g.Wait(); err != nil {
		s.metrics.UploadURLRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("sign upload urls for %s: %w", submissionID, err)
	}

	assets := domain.AssetSet{
		SlidesPath:  targets.SlidesPath,
		AudioPath:   targets.AudioPath,
		MetricsPath: targets.MetricsPath,
		PreparedAt:  s.clock().UTC(),
	}
	if err := s.repo.PutAssets(ctx, submissionID, transactionID, assets); err != nil {
		s.metrics.UploadURLRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("record assets for %s: %w", submissionID, err)
	}

	s.metrics.UploadURLRequests.WithLabelValues("ok").Inc()
	logger := logging.WithSubmission(submissionID, transactionID)
	logger.Info().Msg("upload urls issued")
	return targets, nil
}

// SweepStalePending deletes submissions that stayed pending payment for
// longer than olderThan.
func (s *submissionService) SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock().Add(-olderThan)
	n, err := s.repo.DeleteStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale pending submissions: %w", err)
	}
	s.metrics.StaleSubmissionsDeleted.Add(float64(n))
	return n, nil
}

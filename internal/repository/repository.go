package repository

import (
	"context"
	"time"

	"alcyxob/present-coach/internal/domain"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
	// ErrEmailAlreadySet means the submission already had an email; the
	// stored value is unchanged.
	ErrEmailAlreadySet = RepositoryError("email already set")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// SubmissionRepository defines the interface for interacting with submissions.
// Every write is a merge: fields a method does not own are left untouched.
type SubmissionRepository interface {
	// Create upserts a pending submission. An existing submission keeps its
	// status and payment fields; only a non-empty presenter name is merged.
	Create(ctx context.Context, submissionID, presenterName string) error
	GetByID(ctx context.Context, submissionID string) (*domain.Submission, error)

	// ConfirmPayment marks the submission paid, creating it if needed. The
	// transaction id, the email and the presenter name are only written when
	// not already set.
	// Returns the submission after the write.
	ConfirmPayment(ctx context.Context, p domain.PaymentConfirmation) (*domain.Submission, error)

	// SetEmail writes the email iff none is stored. Returns ErrEmailAlreadySet
	// otherwise.
	SetEmail(ctx context.Context, submissionID, email, source string) error

	SetPresenterName(ctx context.Context, submissionID, presenterName string) error
	PutAssets(ctx context.Context, submissionID, transactionID string, assets domain.AssetSet) error

	// DeleteStalePending removes submissions still pending payment that were
	// created before cutoff. Returns the number removed.
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

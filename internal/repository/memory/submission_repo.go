// Package memory is an in-process SubmissionRepository for local runs and
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"alcyxob/present-coach/internal/domain"
	"alcyxob/present-coach/internal/repository"
)

type submissionRepository struct {
	mu    sync.RWMutex
	docs  map[string]*domain.Submission
	clock func() time.Time
}

// NewSubmissionRepository creates an empty repository.
func NewSubmissionRepository() repository.SubmissionRepository {
	return NewSubmissionRepositoryWithClock(time.Now)
}

// NewSubmissionRepositoryWithClock creates an empty repository that stamps
// documents with clock.
func NewSubmissionRepositoryWithClock(clock func() time.Time) repository.SubmissionRepository {
	return &submissionRepository{
		docs:  make(map[string]*domain.Submission),
		clock: clock,
	}
}

func (r *submissionRepository) now() time.Time {
	return r.clock().UTC()
}

func (r *submissionRepository) Create(ctx context.Context, submissionID, presenterName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[submissionID]
	if !ok {
		doc = &domain.Submission{
			SubmissionID: submissionID,
			Status:       domain.StatusPendingPayment,
			CreatedAt:    r.now(),
		}
		r.docs[submissionID] = doc
	}
	if presenterName != "" {
		doc.PresenterName = presenterName
	}
	return nil
}

func (r *submissionRepository) GetByID(ctx context.Context, submissionID string) (*domain.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[submissionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(doc), nil
}

func (r *submissionRepository) ConfirmPayment(ctx context.Context, p domain.PaymentConfirmation) (*domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	doc, ok := r.docs[p.SubmissionID]
	if !ok {
		doc = &domain.Submission{SubmissionID: p.SubmissionID, CreatedAt: now}
		r.docs[p.SubmissionID] = doc
	}

	doc.Paid = true
	doc.Status = domain.StatusPaid
	doc.RawEventType = p.EventType
	if doc.PaidAt == nil {
		doc.PaidAt = &now
	}
	if doc.TransactionID == "" {
		doc.TransactionID = p.TransactionID
	}
	if doc.Email == "" {
		doc.Email = p.Email
	}
	if doc.PresenterName == "" {
		doc.PresenterName = p.PresenterName
	}
	doc.EmailMissing = doc.Email == ""

	return clone(doc), nil
}

func (r *submissionRepository) SetEmail(ctx context.Context, submissionID, email, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[submissionID]
	if !ok {
		return repository.ErrNotFound
	}
	if doc.Email != "" {
		return repository.ErrEmailAlreadySet
	}

	now := r.now()
	doc.Email = email
	doc.EmailMissing = false
	doc.EmailSource = source
	doc.EmailPatchedAt = &now
	return nil
}

func (r *submissionRepository) SetPresenterName(ctx context.Context, submissionID, presenterName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[submissionID]
	if !ok {
		return repository.ErrNotFound
	}
	doc.PresenterName = presenterName
	return nil
}

func (r *submissionRepository) PutAssets(ctx context.Context, submissionID, transactionID string, assets domain.AssetSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[submissionID]
	if !ok {
		return repository.ErrNotFound
	}
	if doc.Assets == nil {
		doc.Assets = make(map[string]domain.AssetSet)
	}
	doc.Assets[transactionID] = assets
	return nil
}

func (r *submissionRepository) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, doc := range r.docs {
		if doc.Status == domain.StatusPendingPayment && !doc.Paid && doc.CreatedAt.Before(cutoff) {
			delete(r.docs, id)
			n++
		}
	}
	return n, nil
}

func clone(doc *domain.Submission) *domain.Submission {
	out := *doc
	out.Assets = maps.Clone(doc.Assets)
	return &out
}

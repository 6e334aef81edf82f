package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/present-coach/internal/domain"
	"alcyxob/present-coach/internal/repository"
)

func TestSubmissionRepository_CreateMerges(t *testing.T) {
	repo := NewSubmissionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "sub1", ""))
	require.NoError(t, repo.Create(ctx, "sub1", "Ada"))
	require.NoError(t, repo.Create(ctx, "sub1", ""))

	sub, err := repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", sub.PresenterName)
	assert.Equal(t, domain.StatusPendingPayment, sub.Status)
}

func TestSubmissionRepository_GetByIDNotFound(t *testing.T) {
	_, err := NewSubmissionRepository().GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubmissionRepository_ConfirmPaymentWriteOnce(t *testing.T) {
	repo := NewSubmissionRepository()
	ctx := context.Background()

	sub, err := repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
		SubmissionID: "sub1", TransactionID: "txn1", EventType: "transaction.completed",
	})
	require.NoError(t, err)
	assert.True(t, sub.Paid)
	assert.True(t, sub.EmailMissing)

	sub, err = repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
		SubmissionID: "sub1", TransactionID: "txn2", Email: "a@b.com", EventType: "transaction.completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn1", sub.TransactionID)
	assert.Equal(t, "a@b.com", sub.Email)
	assert.False(t, sub.EmailMissing)
}

func TestSubmissionRepository_SetEmail(t *testing.T) {
	repo := NewSubmissionRepository()
	ctx := context.Background()

	assert.ErrorIs(t, repo.SetEmail(ctx, "sub1", "a@b.com", "x"), repository.ErrNotFound)

	require.NoError(t, repo.Create(ctx, "sub1", ""))
	require.NoError(t, repo.SetEmail(ctx, "sub1", "a@b.com", domain.EmailSourceFrontendPatch))
	assert.ErrorIs(t, repo.SetEmail(ctx, "sub1", "c@d.com", domain.EmailSourceFrontendPatch), repository.ErrEmailAlreadySet)

	sub, err := repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", sub.Email)
}

func TestSubmissionRepository_ReturnsCopies(t *testing.T) {
	repo := NewSubmissionRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, "sub1", ""))
	require.NoError(t, repo.PutAssets(ctx, "sub1", "txn1", domain.AssetSet{SlidesPath: "a"}))

	sub, err := repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	sub.Assets["txn1"] = domain.AssetSet{SlidesPath: "changed"}
	sub.Email = "changed@b.com"

	again, err := repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Assets["txn1"].SlidesPath)
	assert.Empty(t, again.Email)
}

func TestSubmissionRepository_DeleteStalePending(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewSubmissionRepositoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "old", ""))
	_, err := repo.ConfirmPayment(ctx, domain.PaymentConfirmation{SubmissionID: "paid", TransactionID: "t"})
	require.NoError(t, err)
	now = now.Add(time.Hour)
	require.NoError(t, repo.Create(ctx, "new", ""))

	n, err := repo.DeleteStalePending(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByID(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByID(ctx, "new")
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, "paid")
	assert.NoError(t, err)
}

func TestSubmissionRepository_ConfirmPaymentMergesPresenterName(t *testing.T) {
	repo := NewSubmissionRepository()
	ctx := context.Background()

	sub, err := repo.ConfirmPayment(ctx, domain.PaymentConfirmation{SubmissionID: "sub1", TransactionID: "txn1", PresenterName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", sub.PresenterName)

	sub, err = repo.ConfirmPayment(ctx, domain.PaymentConfirmation{SubmissionID: "sub1", TransactionID: "txn1", PresenterName: "Mallory"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", sub.PresenterName)
}

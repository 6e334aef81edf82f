package mongo

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"alcyxob/present-coach/internal/domain"
	"alcyxob/present-coach/internal/repository"
)

// Set PRESENTCOACH_TEST_MONGO_URI (e.g. mongodb://localhost:27017) to run
// these against a real server. Each test uses its own database.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("PRESENTCOACH_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PRESENTCOACH_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	client, err := ConnectDB(ctx, uri, 5*time.Second)
	require.NoError(t, err)

	db := client.Database(fmt.Sprintf("present_coach_test_%d", time.Now().UnixNano()))
	require.NoError(t, EnsureSubmissionIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = DisconnectDB(client)
	})
	return db
}

func TestMongoSubmissionRepository_ConfirmPaymentFirstWriteWins(t *testing.T) {
	repo := NewMongoSubmissionRepository(testDatabase(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "sub1", ""))

	sub, err := repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
		SubmissionID: "sub1", TransactionID: "txn1", PresenterName: "Ada", EventType: "transaction.completed",
	})
	require.NoError(t, err)
	assert.True(t, sub.Paid)
	assert.Equal(t, domain.StatusPaid, sub.Status)
	assert.True(t, sub.EmailMissing)
	assert.NotNil(t, sub.PaidAt)

	sub, err = repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
		SubmissionID: "sub1", TransactionID: "txn2", Email: "a@b.com", PresenterName: "Mallory", EventType: "transaction.completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn1", sub.TransactionID)
	assert.Equal(t, "a@b.com", sub.Email)
	assert.Equal(t, "Ada", sub.PresenterName)
	assert.False(t, sub.EmailMissing)

	sub, err = repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
		SubmissionID: "sub1", TransactionID: "txn1", Email: "other@b.com", EventType: "transaction.completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", sub.Email)
}

func TestMongoSubmissionRepository_ConfirmPaymentConcurrent(t *testing.T) {
	repo := NewMongoSubmissionRepository(testDatabase(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
				SubmissionID:  "sub1",
				TransactionID: fmt.Sprintf("txn%d", i),
				EventType:     "transaction.completed",
			})
		}(i)
	}
	wg.Wait()

	sub, err := repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	bound := sub.TransactionID
	require.NotEmpty(t, bound)

	for i := 0; i < 3; i++ {
		sub, err = repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
			SubmissionID: "sub1", TransactionID: "late", EventType: "transaction.completed",
		})
		require.NoError(t, err)
		assert.Equal(t, bound, sub.TransactionID)
	}
}

func TestMongoSubmissionRepository_ValuesAreLiterals(t *testing.T) {
	repo := NewMongoSubmissionRepository(testDatabase(t))
	ctx := context.Background()

	sub, err := repo.ConfirmPayment(ctx, domain.PaymentConfirmation{
		SubmissionID: "sub1", TransactionID: "$paid", Email: "$status@b.com", PresenterName: "$$NOW",
		EventType: "transaction.completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "$paid", sub.TransactionID)
	assert.Equal(t, "$status@b.com", sub.Email)
	assert.Equal(t, "$$NOW", sub.PresenterName)

	assets := domain.AssetSet{SlidesPath: "a", AudioPath: "b", MetricsPath: "c", PreparedAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, repo.PutAssets(ctx, "sub1", "$paid", assets))
	require.NoError(t, repo.PutAssets(ctx, "sub1", "txn.with.dots", assets))

	sub, err = repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, assets, sub.Assets["$paid"])
	assert.Equal(t, assets, sub.Assets["txn.with.dots"])
	assert.Len(t, sub.Assets, 2)
}

func TestMongoSubmissionRepository_SetEmailWriteOnce(t *testing.T) {
	repo := NewMongoSubmissionRepository(testDatabase(t))
	ctx := context.Background()

	assert.ErrorIs(t, repo.SetEmail(ctx, "ghost", "a@b.com", domain.EmailSourceFrontendPatch), repository.ErrNotFound)

	require.NoError(t, repo.Create(ctx, "sub1", "Ada"))
	require.NoError(t, repo.SetEmail(ctx, "sub1", "a@b.com", domain.EmailSourceFrontendPatch))
	assert.ErrorIs(t, repo.SetEmail(ctx, "sub1", "b@b.com", domain.EmailSourceFrontendPatch), repository.ErrEmailAlreadySet)

	sub, err := repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", sub.Email)
	assert.Equal(t, domain.EmailSourceFrontendPatch, sub.EmailSource)
}

func TestMongoSubmissionRepository_CreateDoesNotDowngrade(t *testing.T) {
	repo := NewMongoSubmissionRepository(testDatabase(t))
	ctx := context.Background()

	_, err := repo.ConfirmPayment(ctx, domain.PaymentConfirmation{SubmissionID: "sub1", TransactionID: "txn1"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, "sub1", "Ada"))

	sub, err := repo.GetByID(ctx, "sub1")
	require.NoError(t, err)
	assert.True(t, sub.Paid)
	assert.Equal(t, domain.StatusPaid, sub.Status)
	assert.Equal(t, "txn1", sub.TransactionID)

	n, err := repo.DeleteStalePending(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMongoSubmissionRepository_ConfirmPaymentFillsBlankPresenterName(t *testing.T) {
	repo := NewMongoSubmissionRepository(testDatabase(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "sub1", ""))
	sub, err := repo.ConfirmPayment(ctx, domain.PaymentConfirmation{SubmissionID: "sub1", TransactionID: "txn1", PresenterName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", sub.PresenterName)
}

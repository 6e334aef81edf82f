package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alcyxob/present-coach/internal/domain"
	"alcyxob/present-coach/internal/repository"
)

const submissionCollectionName = "submissions"

// mongoSubmissionRepository implements repository.SubmissionRepository
type mongoSubmissionRepository struct {
	collection *mongo.Collection
}

// NewMongoSubmissionRepository creates a new Submission repository backed by MongoDB.
func NewMongoSubmissionRepository(db *mongo.Database) repository.SubmissionRepository {
	return &mongoSubmissionRepository{
		collection: db.Collection(submissionCollectionName),
	}
}

// Create upserts a pending submission without touching payment state.
func (r *mongoSubmissionRepository) Create(ctx context.Context, submissionID, presenterName string) error {
	update := bson.M{
		"$setOnInsert": bson.M{
			"status":       domain.StatusPendingPayment,
			"paid":         false,
			"emailMissing": false,
			"createdAt":    time.Now().UTC(),
		},
	}
	if presenterName != "" {
		update["$set"] = bson.M{"presenterName": presenterName}
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": submissionID}, update, options.Update().SetUpsert(true))
	return err
}

// GetByID retrieves a submission by its id.
func (r *mongoSubmissionRepository) GetByID(ctx context.Context, submissionID string) (*domain.Submission, error) {
	var sub domain.Submission
	err := r.collection.FindOne(ctx, bson.M{"_id": submissionID}).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// ConfirmPayment runs as a single pipeline update so first-write-wins holds
// for transactionId and email under concurrent webhook deliveries. Event
// values enter the pipeline as literals.
func (r *mongoSubmissionRepository) ConfirmPayment(ctx context.Context, p domain.PaymentConfirmation) (*domain.Submission, error) {
	var emailValue any = false
	if p.Email != "" {
		emailValue = literal(p.Email)
	}

	set := bson.D{
		{Key: "paid", Value: true},
		{Key: "status", Value: literal(domain.StatusPaid)},
		{Key: "rawEventType", Value: literal(p.EventType)},
		{Key: "createdAt", Value: ifNull("$createdAt", "$$NOW")},
		{Key: "paidAt", Value: ifNull("$paidAt", "$$NOW")},
		// true iff neither the stored document nor this event has an email
		{Key: "emailMissing", Value: bson.D{{Key: "$not", Value: bson.A{ifNull("$email", emailValue)}}}},
	}
	if p.TransactionID != "" {
		set = append(set, bson.E{Key: "transactionId", Value: ifNull("$transactionId", literal(p.TransactionID))})
	}
	if p.Email != "" {
		set = append(set, bson.E{Key: "email", Value: ifNull("$email", literal(p.Email))})
	}
	if p.PresenterName != "" {
		unset := bson.D{{Key: "$eq", Value: bson.A{ifNull("$presenterName", ""), ""}}}
		set = append(set, bson.E{Key: "presenterName", Value: bson.D{{Key: "$cond", Value: bson.A{
			unset, literal(p.PresenterName), "$presenterName",
		}}}})
	}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var sub domain.Submission
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": p.SubmissionID}, pipeline, opts).Decode(&sub)
	if err != nil {
		return nil, fmt.Errorf("confirm payment for %s: %w", p.SubmissionID, err)
	}
	return &sub, nil
}

// SetEmail writes the email only if none is stored.
func (r *mongoSubmissionRepository) SetEmail(ctx context.Context, submissionID, email, source string) error {
	filter := bson.M{
		"_id": submissionID,
		"$or": bson.A{
			bson.M{"email": bson.M{"$exists": false}},
			bson.M{"email": nil},
			bson.M{"email": ""},
		},
	}
	update := bson.M{"$set": bson.M{
		"email":          email,
		"emailMissing":   false,
		"emailSource":    source,
		"emailPatchedAt": time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": submissionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrEmailAlreadySet
}

// SetPresenterName overwrites the presenter name.
func (r *mongoSubmissionRepository) SetPresenterName(ctx context.Context, submissionID, presenterName string) error {
	return r.setFields(ctx, submissionID, bson.M{"presenterName": presenterName})
}

// PutAssets stores the object paths for one transaction under
// assets[transactionID]. $setField takes the key as a value, so dots and a
// leading $ in the transaction id are not read as a path.
func (r *mongoSubmissionRepository) PutAssets(ctx context.Context, submissionID, transactionID string, assets domain.AssetSet) error {
	setField := bson.D{{Key: "$setField", Value: bson.D{
		{Key: "field", Value: literal(transactionID)},
		{Key: "input", Value: ifNull("$assets", bson.D{})},
		{Key: "value", Value: literal(assets)},
	}}}
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.D{{Key: "assets", Value: setField}}}}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": submissionID}, pipeline)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoSubmissionRepository) setFields(ctx context.Context, submissionID string, fields bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": submissionID}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteStalePending removes abandoned checkouts.
func (r *mongoSubmissionRepository) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status":    domain.StatusPendingPayment,
		"paid":      bson.M{"$ne": true},
		"createdAt": bson.M{"$lt": cutoff},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func ifNull(field string, fallback any) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{field, fallback}}}
}

func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

// EnsureSubmissionIndexes creates necessary indexes for the submissions collection.
func EnsureSubmissionIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			// stale pending sweep
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index(),
		},
		{
			// lookups by payment transaction
			Keys:    bson.D{{Key: "transactionId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := db.Collection(submissionCollectionName).Indexes().CreateMany(ctx, indexes)
	return err
}

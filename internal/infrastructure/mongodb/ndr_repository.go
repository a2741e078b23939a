package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lms-platform/shipping-core/internal/domain"
	pkgmongo "github.com/lms-platform/shipping-core/pkg/mongodb"
)

// NDRCollection is the collection NDR records are stored in
const NDRCollection = "ndr_records"

var openNDRStatuses = bson.A{domain.NDRActionRequired, domain.NDRActionRequested}

// NDRRepository implements domain.NDRRepository
type NDRRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
	events     *eventWriter
}

// NewNDRRepository creates a new NDRRepository
func NewNDRRepository(db *mongo.Database) *NDRRepository {
	repo := &NDRRepository{
		collection: db.Collection(NDRCollection),
		db:         db,
		events:     newEventWriter(db),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *NDRRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		// at most one open record per AWB
		{
			Keys: bson.D{{Key: "awb", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": openNDRStatuses},
			}),
		},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save stores the record and its pending events with the same version check as shipments
func (r *NDRRepository) Save(ctx context.Context, record *domain.NDRRecord) error {
	var stored *domain.NDRRecord
	err := pkgmongo.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		var err error
		stored, err = writeNDR(sessCtx, r.collection, r.events, record)
		return err
	})
	if err != nil {
		return err
	}
	committedNDR(record, stored)
	return nil
}

// writeNDR inserts or version-checks and replaces record inside the caller's
// transaction. It returns the stored document; record itself is untouched
// until the transaction commits.
func writeNDR(sessCtx mongo.SessionContext, collection *mongo.Collection, events *eventWriter, record *domain.NDRRecord) (*domain.NDRRecord, error) {
	expected := record.Version
	doc := *record
	doc.Version = expected + 1
	doc.UpdatedAt = pkgmongo.Now()

	if expected == 0 {
		doc.ID = primitive.NewObjectID()
		if _, err := collection.InsertOne(sessCtx, &doc); err != nil {
			if pkgmongo.IsDuplicateKey(err) {
				return nil, domain.ErrConcurrentModification
			}
			return nil, fmt.Errorf("failed to insert ndr record: %w", err)
		}
	} else {
		res, err := collection.ReplaceOne(sessCtx, bson.M{"_id": record.ID, "version": expected}, &doc)
		if err != nil {
			return nil, fmt.Errorf("failed to update ndr record: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, domain.ErrConcurrentModification
		}
	}

	if err := events.write(sessCtx, record.AWB, "NDR", record.DomainEvents); err != nil {
		return nil, err
	}
	return &doc, nil
}

func committedNDR(record, stored *domain.NDRRecord) {
	record.ID = stored.ID
	record.Version = stored.Version
	record.UpdatedAt = stored.UpdatedAt
	record.DomainEvents = nil
}

// FindOpenByAWB returns the unresolved record of an AWB, if any
func (r *NDRRepository) FindOpenByAWB(ctx context.Context, awb string) (*domain.NDRRecord, error) {
	var record domain.NDRRecord
	err := r.collection.FindOne(ctx, bson.M{
		"awb":    awb,
		"status": bson.M{"$in": openNDRStatuses},
	}).Decode(&record)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ndr record: %w", err)
	}
	return &record, nil
}

// FindByUser pages a user's records, newest first. An empty status matches all.
func (r *NDRRepository) FindByUser(ctx context.Context, userID string, status domain.NDRStatus, limit, offset int) ([]*domain.NDRRecord, error) {
	filter := bson.M{"userId": userID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find ndr records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*domain.NDRRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode ndr records: %w", err)
	}
	return records, nil
}

// CountOpenByUser counts unresolved records per user
func (r *NDRRepository) CountOpenByUser(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": bson.M{"$in": openNDRStatuses}}}},
		{{Key: "$group", Value: bson.M{"_id": "$userId", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate open ndrs: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		UserID string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode open ndr counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.UserID] = row.Count
	}
	return counts, nil
}

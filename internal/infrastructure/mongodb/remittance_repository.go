package mongodb

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/money"
	pkgmongo "github.com/lms-platform/shipping-core/pkg/mongodb"
)

// RemittanceCollection is the collection payout requests are stored in
const RemittanceCollection = "remittance_requests"

// RemittanceRepository implements domain.RemittanceRepository
type RemittanceRepository struct {
	collection *mongo.Collection
	orders     *mongo.Collection
	db         *mongo.Database
	events     *eventWriter
}

// NewRemittanceRepository creates a new RemittanceRepository
func NewRemittanceRepository(db *mongo.Database) *RemittanceRepository {
	repo := &RemittanceRepository{
		collection: db.Collection(RemittanceCollection),
		orders:     db.Collection(OrderCollection),
		db:         db,
		events:     newEventWriter(db),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *RemittanceRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "requestId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Create stores a new pending request
func (r *RemittanceRepository) Create(ctx context.Context, req *domain.RemittanceRequest) error {
	doc := *req
	doc.Version = 1

	err := pkgmongo.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.InsertOne(sessCtx, &doc); err != nil {
			return fmt.Errorf("failed to insert remittance request: %w", err)
		}
		return r.events.write(sessCtx, req.RequestID, "Remittance", req.DomainEvents)
	})
	if err != nil {
		return err
	}

	req.Version = doc.Version
	req.DomainEvents = nil
	return nil
}

// FindByID finds a request by its ID
func (r *RemittanceRepository) FindByID(ctx context.Context, requestID string) (*domain.RemittanceRequest, error) {
	var req domain.RemittanceRequest
	err := r.collection.FindOne(ctx, bson.M{"requestId": requestID}).Decode(&req)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find remittance request: %w", err)
	}
	return &req, nil
}

// SumPending totals the requested amount of undecided requests
func (r *RemittanceRepository) SumPending(ctx context.Context, userID string) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID, "status": domain.RemittanceRequestPending}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "amount": bson.M{"$sum": "$requestedAmount"}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to aggregate pending remittances: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Amount money.Amount `bson:"amount"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode pending remittances: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Amount.Decimal, nil
}

// Decide stores an approval or rejection. Approved orders move to remitted in
// the same transaction; if any of them was already remitted nothing is written.
func (r *RemittanceRepository) Decide(ctx context.Context, req *domain.RemittanceRequest) error {
	expected := req.Version
	doc := *req
	doc.Version = expected + 1

	err := pkgmongo.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		res, err := r.collection.ReplaceOne(sessCtx, bson.M{
			"requestId": req.RequestID,
			"version":   expected,
			"status":    domain.RemittanceRequestPending,
		}, &doc)
		if err != nil {
			return fmt.Errorf("failed to update remittance request: %w", err)
		}
		if res.MatchedCount == 0 {
			return domain.ErrConcurrentModification
		}

		if req.Status == domain.RemittanceRequestApproved && len(req.OrderIDs) > 0 {
			upd, err := r.orders.UpdateMany(sessCtx, bson.M{
				"userId":           req.UserID,
				"orderId":          bson.M{"$in": req.OrderIDs},
				"remittanceStatus": domain.RemittancePending,
			}, bson.M{"$set": bson.M{
				"remittanceStatus": domain.RemittanceRemitted,
				"remittanceId":     req.RequestID,
				"updatedAt":        pkgmongo.Now(),
			}})
			if err != nil {
				return fmt.Errorf("failed to mark orders remitted: %w", err)
			}
			if upd.ModifiedCount != int64(len(req.OrderIDs)) {
				return domain.ErrConcurrentModification
			}
		}

		return r.events.write(sessCtx, req.RequestID, "Remittance", req.DomainEvents)
	})
	if err != nil {
		return err
	}

	req.Version = doc.Version
	req.DomainEvents = nil
	return nil
}

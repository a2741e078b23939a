package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lms-platform/shipping-core/internal/domain"
	pkgmongo "github.com/lms-platform/shipping-core/pkg/mongodb"
	"github.com/lms-platform/shipping-core/pkg/outbox"
)

// ShipmentCollection is the collection shipments are stored in
const ShipmentCollection = "shipments"

// ShipmentRepository implements domain.ShipmentRepository
type ShipmentRepository struct {
	collection *mongo.Collection
	ndrs       *mongo.Collection
	orders     *mongo.Collection
	db         *mongo.Database
	events     *eventWriter
}

// NewShipmentRepository creates a new ShipmentRepository
func NewShipmentRepository(db *mongo.Database) *ShipmentRepository {
	repo := &ShipmentRepository{
		collection: db.Collection(ShipmentCollection),
		ndrs:       db.Collection(NDRCollection),
		orders:     db.Collection(OrderCollection),
		db:         db,
		events:     newEventWriter(db),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *ShipmentRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "shipmentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "awbNumber", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastTrackedAt", Value: 1}}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)

	_ = r.events.outbox.EnsureIndexes(ctx)
}

// Save stores the shipment and its pending events in one transaction. A
// shipment with Version 0 is inserted; any other is replaced only if the
// stored version still matches.
func (r *ShipmentRepository) Save(ctx context.Context, shipment *domain.Shipment) error {
	var stored *domain.Shipment
	err := pkgmongo.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		var err error
		stored, err = r.write(sessCtx, shipment)
		return err
	})
	if err != nil {
		return err
	}
	committedShipment(shipment, stored)
	return nil
}

// SaveTracked writes the NDR record, the order mirror and the shipment in
// one transaction. The shipment goes last so its lastTrackedAt only moves
// once everything the snapshot implies is stored.
func (r *ShipmentRepository) SaveTracked(ctx context.Context, update *domain.TrackingUpdate) error {
	var (
		stored    *domain.Shipment
		storedNDR *domain.NDRRecord
	)
	shipment := update.Shipment

	err := pkgmongo.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		var err error
		if update.NDR != nil {
			if storedNDR, err = writeNDR(sessCtx, r.ndrs, r.events, update.NDR); err != nil {
				return err
			}
		}
		if update.OrderStatus != "" {
			if err := mirrorOrderStatus(sessCtx, r.orders, shipment.OrderIDs, update.OrderStatus, shipment.DeliveredAt); err != nil {
				return err
			}
		}
		stored, err = r.write(sessCtx, shipment)
		return err
	})
	if err != nil {
		return err
	}

	committedShipment(shipment, stored)
	if storedNDR != nil {
		committedNDR(update.NDR, storedNDR)
	}
	return nil
}

func (r *ShipmentRepository) write(sessCtx mongo.SessionContext, shipment *domain.Shipment) (*domain.Shipment, error) {
	expected := shipment.Version
	doc := *shipment
	doc.Version = expected + 1
	doc.UpdatedAt = pkgmongo.Now()

	if expected == 0 {
		if _, err := r.collection.InsertOne(sessCtx, &doc); err != nil {
			if pkgmongo.IsDuplicateKey(err) {
				return nil, domain.ErrConcurrentModification
			}
			return nil, fmt.Errorf("failed to insert shipment: %w", err)
		}
	} else {
		res, err := r.collection.ReplaceOne(sessCtx, bson.M{"shipmentId": shipment.ShipmentID, "version": expected}, &doc)
		if err != nil {
			return nil, fmt.Errorf("failed to update shipment: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, domain.ErrConcurrentModification
		}
	}

	if err := r.events.write(sessCtx, shipment.ShipmentID, "Shipment", shipment.GetDomainEvents()); err != nil {
		return nil, err
	}
	return &doc, nil
}

func committedShipment(shipment, stored *domain.Shipment) {
	shipment.Version = stored.Version
	shipment.UpdatedAt = stored.UpdatedAt
	shipment.ClearDomainEvents()
}

// FindByID finds a shipment by its ID
func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	return r.findOne(ctx, bson.M{"shipmentId": shipmentID})
}

// FindByAWB finds a shipment by its air waybill number
func (r *ShipmentRepository) FindByAWB(ctx context.Context, awb string) (*domain.Shipment, error) {
	return r.findOne(ctx, bson.M{"awbNumber": awb})
}

func (r *ShipmentRepository) findOne(ctx context.Context, filter bson.M) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := r.collection.FindOne(ctx, filter).Decode(&shipment)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find shipment: %w", err)
	}
	return &shipment, nil
}

// FindByUser pages a user's shipments, newest first. An empty status matches all.
func (r *ShipmentRepository) FindByUser(ctx context.Context, userID string, status domain.ShipmentStatus, limit, offset int) ([]*domain.Shipment, error) {
	filter := bson.M{"userId": userID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	return r.find(ctx, filter, opts)
}

// FindTrackable returns shipped shipments, least recently tracked first
func (r *ShipmentRepository) FindTrackable(ctx context.Context, limit int) ([]*domain.Shipment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "lastTrackedAt", Value: 1}, {Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	return r.find(ctx, bson.M{"status": domain.ShipmentStatusShipped}, opts)
}

func (r *ShipmentRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Shipment, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find shipments: %w", err)
	}
	defer cursor.Close(ctx)

	shipments := []*domain.Shipment{}
	if err := cursor.All(ctx, &shipments); err != nil {
		return nil, fmt.Errorf("failed to decode shipments: %w", err)
	}
	return shipments, nil
}

// CountByUserAndStatus groups every shipment by owner and status
func (r *ShipmentRepository) CountByUserAndStatus(ctx context.Context) ([]domain.StatusCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"userId": "$userId", "status": "$status"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate shipment counts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID struct {
			UserID string                `bson:"userId"`
			Status domain.ShipmentStatus `bson:"status"`
		} `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode shipment counts: %w", err)
	}

	counts := make([]domain.StatusCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, domain.StatusCount{UserID: row.ID.UserID, Status: row.ID.Status, Count: row.Count})
	}
	return counts, nil
}

// OutboxRepository returns the outbox the repository writes to
func (r *ShipmentRepository) OutboxRepository() outbox.Repository {
	return r.events.Outbox()
}

package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lms-platform/shipping-core/internal/domain"
	pkgmongo "github.com/lms-platform/shipping-core/pkg/mongodb"
)

// WarehouseCollection is the collection warehouses are stored in
const WarehouseCollection = "warehouses"

// WarehouseRepository implements domain.WarehouseRepository
type WarehouseRepository struct {
	collection *mongo.Collection
}

// NewWarehouseRepository creates a new WarehouseRepository
func NewWarehouseRepository(db *mongo.Database) *WarehouseRepository {
	repo := &WarehouseRepository{collection: db.Collection(WarehouseCollection)}
	repo.collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "warehouseId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return repo
}

// FindByID returns a warehouse owned by userID, or nil
func (r *WarehouseRepository) FindByID(ctx context.Context, userID, warehouseID string) (*domain.Warehouse, error) {
	var wh domain.Warehouse
	err := r.collection.FindOne(ctx, bson.M{"userId": userID, "warehouseId": warehouseID}).Decode(&wh)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find warehouse: %w", err)
	}
	return &wh, nil
}

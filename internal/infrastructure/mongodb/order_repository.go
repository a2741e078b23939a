package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/money"
	pkgmongo "github.com/lms-platform/shipping-core/pkg/mongodb"
)

// OrderCollection is the collection orders are stored in
const OrderCollection = "orders"

// OrderRepository implements domain.OrderRepository
type OrderRepository struct {
	collection *mongo.Collection
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	repo := &OrderRepository{collection: db.Collection(OrderCollection)}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *OrderRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "shipmentId", Value: 1}}},
		{Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "orderType", Value: 1},
			{Key: "status", Value: 1},
			{Key: "remittanceStatus", Value: 1},
		}},
	}
	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts an order
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = pkgmongo.Now()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"orderId": order.OrderID}
	update := bson.M{"$set": order}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// FindByID finds an order by its ID
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&order)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

// FindByIDs returns the listed orders owned by userID. Unknown or foreign ids are absent from the result.
func (r *OrderRepository) FindByIDs(ctx context.Context, userID string, orderIDs []string) ([]*domain.Order, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"userId":  userID,
		"orderId": bson.M{"$in": orderIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []*domain.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// ClaimTTL bounds how long an unfinished booking holds an order. A claim
// older than this is treated as abandoned.
const ClaimTTL = 15 * time.Minute

// Claim reserves an unshipped order for shipmentID. An expired claim left by
// a crashed booking may be taken over.
func (r *OrderRepository) Claim(ctx context.Context, orderID, shipmentID string) (bool, error) {
	now := pkgmongo.Now()
	filter := bson.M{
		"orderId": orderID,
		"shipped": bson.M{"$ne": true},
		"$or": bson.A{
			bson.M{"claimedBy": bson.M{"$exists": false}},
			bson.M{"claimedBy": ""},
			bson.M{"claimedAt": bson.M{"$lt": now.Add(-ClaimTTL)}},
		},
	}
	update := bson.M{"$set": bson.M{"claimedBy": shipmentID, "claimedAt": now}}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to claim order: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// Release drops the claim shipmentID holds on the order
func (r *OrderRepository) Release(ctx context.Context, orderID, shipmentID string) error {
	filter := bson.M{"orderId": orderID, "claimedBy": shipmentID}
	update := bson.M{"$unset": bson.M{"claimedBy": "", "claimedAt": ""}}

	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to release order claim: %w", err)
	}
	return nil
}

// MarkShipped binds the order to the shipment holding its claim
func (r *OrderRepository) MarkShipped(ctx context.Context, orderID, shipmentID, awb string) error {
	filter := bson.M{
		"orderId":   orderID,
		"shipped":   bson.M{"$ne": true},
		"claimedBy": shipmentID,
	}
	update := bson.M{
		"$set": bson.M{
			"shipped":    true,
			"shipmentId": shipmentID,
			"awb":        awb,
			"status":     domain.OrderStatusShipped,
			"updatedAt":  pkgmongo.Now(),
		},
		"$unset": bson.M{"claimedBy": "", "claimedAt": ""},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark order shipped: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// UpdateStatus mirrors a shipment status onto its orders
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus, deliveredAt *time.Time) error {
	return mirrorOrderStatus(ctx, r.collection, orderIDs, status, deliveredAt)
}

func mirrorOrderStatus(ctx context.Context, collection *mongo.Collection, orderIDs []string, status domain.OrderStatus, deliveredAt *time.Time) error {
	set := bson.M{
		"status":    status,
		"updatedAt": pkgmongo.Now(),
	}
	if deliveredAt != nil {
		set["deliveredAt"] = deliveredAt.UTC()
	}

	if _, err := collection.UpdateMany(ctx, bson.M{"orderId": bson.M{"$in": orderIDs}}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func remittableFilter(userID string) bson.M {
	return bson.M{
		"userId":    userID,
		"orderType": domain.OrderTypeCOD,
		"status":    domain.OrderStatusDelivered,
	}
}

// RemittanceTotals sums the collectable value of delivered COD orders by remittance status
func (r *OrderRepository) RemittanceTotals(ctx context.Context, userID string) (map[domain.RemittanceStatus]domain.RemittanceTotal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: remittableFilter(userID)}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$remittanceStatus",
			"amount": bson.M{"$sum": "$collectableValue"},
			"count":  bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate remittance totals: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status domain.RemittanceStatus `bson:"_id"`
		Amount money.Amount            `bson:"amount"`
		Count  int                     `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode remittance totals: %w", err)
	}

	totals := make(map[domain.RemittanceStatus]domain.RemittanceTotal, len(rows))
	for _, row := range rows {
		totals[row.Status] = domain.RemittanceTotal{Amount: row.Amount.Decimal, Count: row.Count}
	}
	return totals, nil
}

// FindRemittable lists delivered, unremitted COD orders oldest delivery first
func (r *OrderRepository) FindRemittable(ctx context.Context, userID string) ([]domain.RemittableOrder, error) {
	filter := remittableFilter(userID)
	filter["remittanceStatus"] = domain.RemittancePending

	opts := options.Find().
		SetSort(bson.D{{Key: "deliveredAt", Value: 1}, {Key: "orderId", Value: 1}}).
		SetProjection(bson.M{"orderId": 1, "collectableValue": 1, "deliveredAt": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find remittable orders: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		OrderID          string       `bson:"orderId"`
		CollectableValue money.Amount `bson:"collectableValue"`
		DeliveredAt      *time.Time   `bson:"deliveredAt"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode remittable orders: %w", err)
	}

	orders := make([]domain.RemittableOrder, 0, len(rows))
	for _, row := range rows {
		o := domain.RemittableOrder{OrderID: row.OrderID, CollectableValue: row.CollectableValue.Decimal}
		if row.DeliveredAt != nil {
			o.DeliveredAt = *row.DeliveredAt
		}
		orders = append(orders, o)
	}
	return orders, nil
}

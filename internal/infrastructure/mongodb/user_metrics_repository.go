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

// UserMetricsCollection is the collection recomputed summaries are stored in
const UserMetricsCollection = "user_metrics"

// UserMetricsRepository implements domain.UserMetricsRepository
type UserMetricsRepository struct {
	collection *mongo.Collection
}

// NewUserMetricsRepository creates a new UserMetricsRepository
func NewUserMetricsRepository(db *mongo.Database) *UserMetricsRepository {
	repo := &UserMetricsRepository{collection: db.Collection(UserMetricsCollection)}
	repo.collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return repo
}

// Upsert replaces the user's summary
func (r *UserMetricsRepository) Upsert(ctx context.Context, metrics *domain.UserMetrics) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"userId": metrics.UserID}, metrics, opts); err != nil {
		return fmt.Errorf("failed to upsert user metrics: %w", err)
	}
	return nil
}

// FindByUser returns the last computed summary, or nil
func (r *UserMetricsRepository) FindByUser(ctx context.Context, userID string) (*domain.UserMetrics, error) {
	var m domain.UserMetrics
	err := r.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&m)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user metrics: %w", err)
	}
	return &m, nil
}

package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
	"github.com/lms-platform/shipping-core/pkg/outbox"
)

func TestOutboxRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save find mark", func(mt *mtest.T) {
		repo := NewOutboxRepository(mt.DB)
		ctx := context.Background()
		ns := mt.DB.Name() + "." + DefaultCollectionName

		ev := cloudevents.NewEventFactory(cloudevents.SourceWallet).
			CreateEvent(ctx, cloudevents.WalletDebited, "wallet/u-1", map[string]string{"userId": "u-1"})
		rec, err := outbox.NewRecord("u-1", "Wallet", "lms.wallet.events", ev)
		require.NoError(t, err)

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.SaveAll(ctx, []*outbox.Record{rec}))

		require.NoError(t, repo.SaveAll(ctx, nil))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: rec.ID},
			{Key: "eventType", Value: cloudevents.WalletDebited},
			{Key: "topic", Value: "lms.wallet.events"},
			{Key: "retryCount", Value: 0},
			{Key: "maxRetries", Value: 10},
		}))
		records, err := repo.FindUnpublished(ctx, 50)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, rec.ID, records[0].ID)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(t, repo.MarkPublished(ctx, rec.ID))

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		assert.Error(t, repo.IncrementRetry(ctx, "missing", "boom"))

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 4}))
		deleted, err := repo.DeletePublished(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(4), deleted)
	})
}

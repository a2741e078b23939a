package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/money"
)

func dec128(t *testing.T, s string) primitive.Decimal128 {
	t.Helper()
	d, err := primitive.ParseDecimal128(s)
	require.NoError(t, err)
	return d
}

func TestRepositoryConstructors(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("shipment", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(), // shipments indexes
			mtest.CreateSuccessResponse(), // outbox indexes
		)
		require.NotNil(t, NewShipmentRepository(mt.DB))
	})

	mt.Run("order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NotNil(t, NewOrderRepository(mt.DB))
	})

	mt.Run("ndr", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NotNil(t, NewNDRRepository(mt.DB))
	})

	mt.Run("wallet", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(), // users index
			mtest.CreateSuccessResponse(), // transactions indexes
		)
		require.NotNil(t, NewWalletRepository(mt.DB))
	})

	mt.Run("remittance", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NotNil(t, NewRemittanceRepository(mt.DB))
	})

	mt.Run("warehouse and metrics", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())
		require.NotNil(t, NewWarehouseRepository(mt.DB))
		require.NotNil(t, NewUserMetricsRepository(mt.DB))
	})
}

func TestShipmentRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("find and aggregate", func(mt *mtest.T) {
		coll := mt.DB.Collection(ShipmentCollection)
		repo := &ShipmentRepository{collection: coll, db: mt.DB, events: newEventWriter(mt.DB)}
		ctx := context.Background()
		ns := coll.Database().Name() + "." + coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "shipmentId", Value: "SHP-1"},
			{Key: "awbNumber", Value: "AWB-1"},
			{Key: "status", Value: "shipped"},
			{Key: "version", Value: int64(3)},
			{Key: "partnerDetails", Value: bson.D{
				{Key: "carrierName", Value: "delhivery"},
				{Key: "charges", Value: bson.D{{Key: "totalCharge", Value: dec128(t, "95.00")}}},
			}},
		}))
		shipment, err := repo.FindByAWB(ctx, "AWB-1")
		require.NoError(t, err)
		require.NotNil(t, shipment)
		assert.Equal(t, "SHP-1", shipment.ShipmentID)
		assert.Equal(t, domain.ShipmentStatusShipped, shipment.Status)
		assert.Equal(t, int64(3), shipment.Version)
		assert.Equal(t, "95.00", shipment.PartnerDetails.Charges.TotalCharge.String())

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		missing, err := repo.FindByID(ctx, "SHP-404")
		require.NoError(t, err)
		assert.Nil(t, missing)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "shipmentId", Value: "SHP-2"}, {Key: "status", Value: "shipped"}},
			bson.D{{Key: "shipmentId", Value: "SHP-3"}, {Key: "status", Value: "shipped"}},
		))
		trackable, err := repo.FindTrackable(ctx, 50)
		require.NoError(t, err)
		require.Len(t, trackable, 2)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		list, err := repo.FindByUser(ctx, "user-1", "", 20, 0)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: bson.D{{Key: "userId", Value: "user-1"}, {Key: "status", Value: "delivered"}}},
				{Key: "count", Value: int64(6)},
			},
			bson.D{
				{Key: "_id", Value: bson.D{{Key: "userId", Value: "user-1"}, {Key: "status", Value: "rto"}}},
				{Key: "count", Value: int64(2)},
			},
		))
		counts, err := repo.CountByUserAndStatus(ctx)
		require.NoError(t, err)
		require.Len(t, counts, 2)
		assert.Equal(t, domain.StatusCount{UserID: "user-1", Status: domain.ShipmentStatusDelivered, Count: 6}, counts[0])
	})
}

func TestOrderRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("updates", func(mt *mtest.T) {
		repo := &OrderRepository{collection: mt.DB.Collection(OrderCollection)}
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(t, repo.Save(ctx, &domain.Order{OrderID: "ORD-1", UserID: "user-1"}))

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(t, repo.MarkShipped(ctx, "ORD-1", "SHP-1", "AWB-1"))

		delivered := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}, bson.E{Key: "nModified", Value: 2}))
		require.NoError(t, repo.UpdateStatus(ctx, []string{"ORD-1", "ORD-2"}, domain.OrderStatusDelivered, &delivered))
	})

	mt.Run("claims", func(mt *mtest.T) {
		repo := &OrderRepository{collection: mt.DB.Collection(OrderCollection)}
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		claimed, err := repo.Claim(ctx, "ORD-1", "SHP-1")
		require.NoError(t, err)
		assert.True(t, claimed)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		claimed, err = repo.Claim(ctx, "ORD-1", "SHP-2")
		require.NoError(t, err)
		assert.False(t, claimed, "a live claim blocks a second batch")

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		err = repo.MarkShipped(ctx, "ORD-1", "SHP-2", "AWB-2")
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(t, repo.Release(ctx, "ORD-1", "SHP-1"))
	})

	mt.Run("remittance reads", func(mt *mtest.T) {
		coll := mt.DB.Collection(OrderCollection)
		repo := &OrderRepository{collection: coll}
		ctx := context.Background()
		ns := coll.Database().Name() + "." + coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "pending"}, {Key: "amount", Value: dec128(t, "1000.00")}, {Key: "count", Value: int32(3)}},
			bson.D{{Key: "_id", Value: "remitted"}, {Key: "amount", Value: dec128(t, "500.00")}, {Key: "count", Value: int32(1)}},
		))
		totals, err := repo.RemittanceTotals(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, totals[domain.RemittancePending].Amount.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, 3, totals[domain.RemittancePending].Count)
		assert.Equal(t, 1, totals[domain.RemittanceRemitted].Count)

		first := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "orderId", Value: "ORD-1"}, {Key: "collectableValue", Value: dec128(t, "400")}, {Key: "deliveredAt", Value: first}},
			bson.D{{Key: "orderId", Value: "ORD-2"}, {Key: "collectableValue", Value: dec128(t, "350")}},
		))
		orders, err := repo.FindRemittable(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "ORD-1", orders[0].OrderID)
		assert.True(t, orders[0].CollectableValue.Equal(decimal.NewFromInt(400)))
		assert.True(t, orders[0].DeliveredAt.Equal(first))
		assert.True(t, orders[1].DeliveredAt.IsZero())
	})
}

func TestNDRRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("reads", func(mt *mtest.T) {
		coll := mt.DB.Collection(NDRCollection)
		repo := &NDRRepository{collection: coll, db: mt.DB, events: newEventWriter(mt.DB)}
		ctx := context.Background()
		ns := coll.Database().Name() + "." + coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "awb", Value: "AWB-1"},
			{Key: "status", Value: string(domain.NDRActionRequired)},
			{Key: "attempts", Value: 3},
		}))
		record, err := repo.FindOpenByAWB(ctx, "AWB-1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, 3, record.Attempts)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		record, err = repo.FindOpenByAWB(ctx, "AWB-2")
		require.NoError(t, err)
		assert.Nil(t, record)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "user-1"}, {Key: "count", Value: int64(2)}},
			bson.D{{Key: "_id", Value: "user-2"}, {Key: "count", Value: int64(1)}},
		))
		counts, err := repo.CountOpenByUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"user-1": 2, "user-2": 1}, counts)
	})
}

func TestWalletRepository_GetUser(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes balance", func(mt *mtest.T) {
		coll := mt.DB.Collection(UserCollection)
		repo := &WalletRepository{users: coll, transactions: mt.DB.Collection(TransactionCollection), db: mt.DB}
		ns := coll.Database().Name() + "." + coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "userId", Value: "user-1"},
			{Key: "customerType", Value: "gold"},
			{Key: "walletBalance", Value: dec128(t, "1250.50")},
		}))
		user, err := repo.GetUser(context.Background(), "user-1")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "gold", user.CustomerType)
		assert.Equal(t, "1250.50", user.WalletBalance.String())

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		user, err = repo.GetUser(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

func TestRemittanceRepository_SumPending(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sums open requests", func(mt *mtest.T) {
		coll := mt.DB.Collection(RemittanceCollection)
		repo := &RemittanceRepository{collection: coll, orders: mt.DB.Collection(OrderCollection), db: mt.DB}
		ns := coll.Database().Name() + "." + coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: nil},
			{Key: "amount", Value: dec128(t, "300.00")},
		}))
		sum, err := repo.SumPending(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, sum.Equal(decimal.NewFromInt(300)))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		sum, err = repo.SumPending(context.Background(), "user-2")
		require.NoError(t, err)
		assert.True(t, sum.IsZero())
	})
}

func TestUserMetricsRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert and find", func(mt *mtest.T) {
		coll := mt.DB.Collection(UserMetricsCollection)
		repo := &UserMetricsRepository{collection: coll}
		ns := coll.Database().Name() + "." + coll.Name()
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		err := repo.Upsert(ctx, &domain.UserMetrics{UserID: "user-1", TotalShipments: 10, UnremittedCOD: money.Zero()})
		require.NoError(t, err)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "userId", Value: "user-1"},
			{Key: "totalShipments", Value: int64(10)},
			{Key: "deliveredPercent", Value: 60.0},
		}))
		m, err := repo.FindByUser(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, int64(10), m.TotalShipments)
		assert.Equal(t, 60.0, m.DeliveredPercent)
	})
}

func TestWarehouseRepository_FindByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("scoped to owner", func(mt *mtest.T) {
		coll := mt.DB.Collection(WarehouseCollection)
		repo := &WarehouseRepository{collection: coll}
		ns := coll.Database().Name() + "." + coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "warehouseId", Value: "WH-1"},
			{Key: "userId", Value: "user-1"},
			{Key: "pincode", Value: "110001"},
		}))
		wh, err := repo.FindByID(context.Background(), "user-1", "WH-1")
		require.NoError(t, err)
		require.NotNil(t, wh)
		assert.Equal(t, "110001", wh.Pincode)
	})
}

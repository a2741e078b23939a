package application

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

func actorCtx(userID, role string) context.Context {
	return tenant.ToContext(context.Background(), &tenant.Context{UserID: userID, Role: role})
}

type fakeOrderRepo struct {
	saveFn             func(context.Context, *domain.Order) error
	findByIDFn         func(context.Context, string) (*domain.Order, error)
	findByIDsFn        func(context.Context, string, []string) ([]*domain.Order, error)
	claimFn            func(context.Context, string, string) (bool, error)
	releaseFn          func(context.Context, string, string) error
	markShippedFn      func(context.Context, string, string, string) error
	updateStatusFn     func(context.Context, []string, domain.OrderStatus, *time.Time) error
	remittanceTotalsFn func(context.Context, string) (map[domain.RemittanceStatus]domain.RemittanceTotal, error)
	findRemittableFn   func(context.Context, string) ([]domain.RemittableOrder, error)
}

func (f *fakeOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, order)
	}
	return nil
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, orderID)
	}
	return nil, nil
}

func (f *fakeOrderRepo) FindByIDs(ctx context.Context, userID string, orderIDs []string) ([]*domain.Order, error) {
	if f.findByIDsFn != nil {
		return f.findByIDsFn(ctx, userID, orderIDs)
	}
	return nil, nil
}

func (f *fakeOrderRepo) Claim(ctx context.Context, orderID, shipmentID string) (bool, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, orderID, shipmentID)
	}
	return true, nil
}

func (f *fakeOrderRepo) Release(ctx context.Context, orderID, shipmentID string) error {
	if f.releaseFn != nil {
		return f.releaseFn(ctx, orderID, shipmentID)
	}
	return nil
}

func (f *fakeOrderRepo) MarkShipped(ctx context.Context, orderID, shipmentID, awb string) error {
	if f.markShippedFn != nil {
		return f.markShippedFn(ctx, orderID, shipmentID, awb)
	}
	return nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus, deliveredAt *time.Time) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, orderIDs, status, deliveredAt)
	}
	return nil
}

func (f *fakeOrderRepo) RemittanceTotals(ctx context.Context, userID string) (map[domain.RemittanceStatus]domain.RemittanceTotal, error) {
	if f.remittanceTotalsFn != nil {
		return f.remittanceTotalsFn(ctx, userID)
	}
	return map[domain.RemittanceStatus]domain.RemittanceTotal{}, nil
}

func (f *fakeOrderRepo) FindRemittable(ctx context.Context, userID string) ([]domain.RemittableOrder, error) {
	if f.findRemittableFn != nil {
		return f.findRemittableFn(ctx, userID)
	}
	return nil, nil
}

type fakeShipmentRepo struct {
	saveFn          func(context.Context, *domain.Shipment) error
	findByIDFn      func(context.Context, string) (*domain.Shipment, error)
	findByAWBFn     func(context.Context, string) (*domain.Shipment, error)
	findByUserFn    func(context.Context, string, domain.ShipmentStatus, int, int) ([]*domain.Shipment, error)
	saveTrackedFn   func(context.Context, *domain.TrackingUpdate) error
	findTrackableFn func(context.Context, int) ([]*domain.Shipment, error)
	countFn         func(context.Context) ([]domain.StatusCount, error)

	mu    sync.Mutex
	saved []*domain.Shipment
}

func (f *fakeShipmentRepo) Save(ctx context.Context, shipment *domain.Shipment) error {
	if f.saveFn != nil {
		if err := f.saveFn(ctx, shipment); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.saved = append(f.saved, shipment)
	f.mu.Unlock()
	return nil
}

func (f *fakeShipmentRepo) SaveTracked(ctx context.Context, update *domain.TrackingUpdate) error {
	if f.saveFn != nil {
		if err := f.saveFn(ctx, update.Shipment); err != nil {
			return err
		}
	}
	if f.saveTrackedFn != nil {
		if err := f.saveTrackedFn(ctx, update); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.saved = append(f.saved, update.Shipment)
	f.mu.Unlock()
	return nil
}

func (f *fakeShipmentRepo) FindByID(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, shipmentID)
	}
	return nil, nil
}

func (f *fakeShipmentRepo) FindByAWB(ctx context.Context, awb string) (*domain.Shipment, error) {
	if f.findByAWBFn != nil {
		return f.findByAWBFn(ctx, awb)
	}
	return nil, nil
}

func (f *fakeShipmentRepo) FindByUser(ctx context.Context, userID string, status domain.ShipmentStatus, limit, offset int) ([]*domain.Shipment, error) {
	if f.findByUserFn != nil {
		return f.findByUserFn(ctx, userID, status, limit, offset)
	}
	return nil, nil
}

func (f *fakeShipmentRepo) FindTrackable(ctx context.Context, limit int) ([]*domain.Shipment, error) {
	if f.findTrackableFn != nil {
		return f.findTrackableFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeShipmentRepo) CountByUserAndStatus(ctx context.Context) ([]domain.StatusCount, error) {
	if f.countFn != nil {
		return f.countFn(ctx)
	}
	return nil, nil
}

func (f *fakeShipmentRepo) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeNDRRepo struct {
	saveFn          func(context.Context, *domain.NDRRecord) error
	findOpenByAWBFn func(context.Context, string) (*domain.NDRRecord, error)
	findByUserFn    func(context.Context, string, domain.NDRStatus, int, int) ([]*domain.NDRRecord, error)
	countOpenFn     func(context.Context) (map[string]int64, error)

	saved []*domain.NDRRecord
}

func (f *fakeNDRRepo) Save(ctx context.Context, record *domain.NDRRecord) error {
	if f.saveFn != nil {
		if err := f.saveFn(ctx, record); err != nil {
			return err
		}
	}
	f.saved = append(f.saved, record)
	return nil
}

func (f *fakeNDRRepo) FindOpenByAWB(ctx context.Context, awb string) (*domain.NDRRecord, error) {
	if f.findOpenByAWBFn != nil {
		return f.findOpenByAWBFn(ctx, awb)
	}
	return nil, nil
}

func (f *fakeNDRRepo) FindByUser(ctx context.Context, userID string, status domain.NDRStatus, limit, offset int) ([]*domain.NDRRecord, error) {
	if f.findByUserFn != nil {
		return f.findByUserFn(ctx, userID, status, limit, offset)
	}
	return nil, nil
}

func (f *fakeNDRRepo) CountOpenByUser(ctx context.Context) (map[string]int64, error) {
	if f.countOpenFn != nil {
		return f.countOpenFn(ctx)
	}
	return map[string]int64{}, nil
}

type fakeWalletRepo struct {
	getUserFn func(context.Context, string) (*domain.User, error)
	debitFn   func(context.Context, *domain.Transaction) error
	creditFn  func(context.Context, *domain.Transaction) error

	debits  []*domain.Transaction
	credits []*domain.Transaction
}

func (f *fakeWalletRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if f.getUserFn != nil {
		return f.getUserFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeWalletRepo) Debit(ctx context.Context, tx *domain.Transaction) error {
	if f.debitFn != nil {
		if err := f.debitFn(ctx, tx); err != nil {
			return err
		}
	}
	f.debits = append(f.debits, tx)
	return nil
}

func (f *fakeWalletRepo) Credit(ctx context.Context, tx *domain.Transaction) error {
	if f.creditFn != nil {
		if err := f.creditFn(ctx, tx); err != nil {
			return err
		}
	}
	f.credits = append(f.credits, tx)
	return nil
}

type fakeRemittanceRepo struct {
	createFn     func(context.Context, *domain.RemittanceRequest) error
	findByIDFn   func(context.Context, string) (*domain.RemittanceRequest, error)
	sumPendingFn func(context.Context, string) (decimal.Decimal, error)
	decideFn     func(context.Context, *domain.RemittanceRequest) error
}

func (f *fakeRemittanceRepo) Create(ctx context.Context, req *domain.RemittanceRequest) error {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return nil
}

func (f *fakeRemittanceRepo) FindByID(ctx context.Context, requestID string) (*domain.RemittanceRequest, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, requestID)
	}
	return nil, nil
}

func (f *fakeRemittanceRepo) SumPending(ctx context.Context, userID string) (decimal.Decimal, error) {
	if f.sumPendingFn != nil {
		return f.sumPendingFn(ctx, userID)
	}
	return decimal.Zero, nil
}

func (f *fakeRemittanceRepo) Decide(ctx context.Context, req *domain.RemittanceRequest) error {
	if f.decideFn != nil {
		return f.decideFn(ctx, req)
	}
	return nil
}

type fakeWarehouseRepo struct {
	warehouses map[string]*domain.Warehouse
}

func (f *fakeWarehouseRepo) FindByID(_ context.Context, userID, warehouseID string) (*domain.Warehouse, error) {
	wh := f.warehouses[warehouseID]
	if wh == nil || wh.UserID != userID {
		return nil, nil
	}
	return wh, nil
}

type fakeUserMetricsRepo struct {
	upserted map[string]*domain.UserMetrics
	upsertFn func(context.Context, *domain.UserMetrics) error
}

func (f *fakeUserMetricsRepo) Upsert(ctx context.Context, m *domain.UserMetrics) error {
	if f.upsertFn != nil {
		if err := f.upsertFn(ctx, m); err != nil {
			return err
		}
	}
	if f.upserted == nil {
		f.upserted = make(map[string]*domain.UserMetrics)
	}
	f.upserted[m.UserID] = m
	return nil
}

func (f *fakeUserMetricsRepo) FindByUser(_ context.Context, userID string) (*domain.UserMetrics, error) {
	return f.upserted[userID], nil
}

type fakeCarrier struct {
	name     string
	quoteFn  func(context.Context, domain.QuoteRequest) (*domain.ChargeBreakdown, error)
	trackFn  func(context.Context, string) (*domain.ShipmentStatusSnapshot, error)
	ndrFn    func(context.Context, string, domain.NDRAction, domain.NDRActionData) (*domain.ActionResult, error)
	bookFn   func(context.Context, domain.BookingRequest) (*domain.BookingResult, error)
	cancelFn func(context.Context, string) error

	mu        sync.Mutex
	ndrCalls  int
	bookings  []domain.BookingRequest
	cancelled []string
}

func (f *fakeCarrier) Name() string { return f.name }

func (f *fakeCarrier) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.ChargeBreakdown, error) {
	if f.quoteFn != nil {
		return f.quoteFn(ctx, req)
	}
	return nil, nil
}

func (f *fakeCarrier) Track(ctx context.Context, awb string) (*domain.ShipmentStatusSnapshot, error) {
	if f.trackFn != nil {
		return f.trackFn(ctx, awb)
	}
	return nil, nil
}

func (f *fakeCarrier) SubmitNDRAction(ctx context.Context, awb string, action domain.NDRAction, data domain.NDRActionData) (*domain.ActionResult, error) {
	f.mu.Lock()
	f.ndrCalls++
	f.mu.Unlock()
	if f.ndrFn != nil {
		return f.ndrFn(ctx, awb, action, data)
	}
	return &domain.ActionResult{Accepted: true}, nil
}

func (f *fakeCarrier) Book(ctx context.Context, req domain.BookingRequest) (*domain.BookingResult, error) {
	f.mu.Lock()
	f.bookings = append(f.bookings, req)
	f.mu.Unlock()
	if f.bookFn != nil {
		return f.bookFn(ctx, req)
	}
	return &domain.BookingResult{AWB: "AWB-" + req.ShipmentID, BookedAt: time.Now().UTC()}, nil
}

func (f *fakeCarrier) Cancel(ctx context.Context, awb string) error {
	if f.cancelFn != nil {
		if err := f.cancelFn(ctx, awb); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.cancelled = append(f.cancelled, awb)
	f.mu.Unlock()
	return nil
}

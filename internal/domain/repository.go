package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRepository defines order persistence
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, orderID string) (*Order, error)
	FindByIDs(ctx context.Context, userID string, orderIDs []string) ([]*Order, error)

	// Claim reserves an unshipped order for shipmentID before any money moves.
	// It reports false when another shipment holds a live claim or the order
	// is already shipped.
	Claim(ctx context.Context, orderID, shipmentID string) (bool, error)

	// Release drops the claim of shipmentID, if it still holds one
	Release(ctx context.Context, orderID, shipmentID string) error

	// MarkShipped binds a claimed order to its shipment. It fails with
	// ErrConcurrentModification when shipmentID no longer holds the claim.
	MarkShipped(ctx context.Context, orderID, shipmentID, awb string) error

	// UpdateStatus mirrors a shipment status onto its orders
	UpdateStatus(ctx context.Context, orderIDs []string, status OrderStatus, deliveredAt *time.Time) error

	// RemittanceTotals sums delivered COD collectable value by remittance status
	RemittanceTotals(ctx context.Context, userID string) (map[RemittanceStatus]RemittanceTotal, error)

	// FindRemittable lists delivered, unremitted COD orders oldest first
	FindRemittable(ctx context.Context, userID string) ([]RemittableOrder, error)
}

// RemittanceTotal is an amount and order count
type RemittanceTotal struct {
	Amount decimal.Decimal
	Count  int
}

// ShipmentRepository defines shipment persistence. Save stores pending
// domain events in the same transaction and fails with
// ErrConcurrentModification when the stored version moved on.
type ShipmentRepository interface {
	Save(ctx context.Context, shipment *Shipment) error
	FindByID(ctx context.Context, shipmentID string) (*Shipment, error)
	FindByAWB(ctx context.Context, awb string) (*Shipment, error)
	FindByUser(ctx context.Context, userID string, status ShipmentStatus, limit, offset int) ([]*Shipment, error)

	// SaveTracked applies one tracking result atomically: the shipment, the
	// NDR record it raised or updated and the mirrored order status. When any
	// part fails nothing is stored, so the next sweep applies the snapshot again.
	SaveTracked(ctx context.Context, update *TrackingUpdate) error

	// FindTrackable lists shipped shipments for the tracking sweep
	FindTrackable(ctx context.Context, limit int) ([]*Shipment, error)

	// CountByUserAndStatus groups all shipments for metrics recomputation
	CountByUserAndStatus(ctx context.Context) ([]StatusCount, error)
}

// TrackingUpdate is everything one applied carrier snapshot changes
type TrackingUpdate struct {
	Shipment *Shipment
	NDR      *NDRRecord

	// OrderStatus is mirrored onto the shipment's orders when set
	OrderStatus OrderStatus
}

// NDRRepository defines NDR persistence
type NDRRepository interface {
	Save(ctx context.Context, record *NDRRecord) error
	FindOpenByAWB(ctx context.Context, awb string) (*NDRRecord, error)
	FindByUser(ctx context.Context, userID string, status NDRStatus, limit, offset int) ([]*NDRRecord, error)
	CountOpenByUser(ctx context.Context) (map[string]int64, error)
}

// WalletRepository owns the balance. Debit and Credit apply the movement and
// write the ledger entry in one transaction.
type WalletRepository interface {
	GetUser(ctx context.Context, userID string) (*User, error)

	// Debit subtracts tx.Amount only if the balance covers it, else returns
	// *InsufficientWalletBalanceError and changes nothing.
	Debit(ctx context.Context, tx *Transaction) error

	Credit(ctx context.Context, tx *Transaction) error
}

// RemittanceRepository defines remittance persistence
type RemittanceRepository interface {
	Create(ctx context.Context, req *RemittanceRequest) error
	FindByID(ctx context.Context, requestID string) (*RemittanceRequest, error)
	SumPending(ctx context.Context, userID string) (decimal.Decimal, error)

	// Decide stores a decision. An approval flips req.OrderIDs to remitted in
	// the same transaction and fails if any of them is no longer pending.
	Decide(ctx context.Context, req *RemittanceRequest) error
}

// WarehouseRepository reads warehouse collaborator records
type WarehouseRepository interface {
	FindByID(ctx context.Context, userID, warehouseID string) (*Warehouse, error)
}

// UserMetricsRepository stores recomputed summaries
type UserMetricsRepository interface {
	Upsert(ctx context.Context, metrics *UserMetrics) error
	FindByUser(ctx context.Context, userID string) (*UserMetrics, error)
}

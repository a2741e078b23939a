package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CarrierAdapter is the port every carrier integration implements. Adapters
// translate carrier payloads at their boundary; nothing carrier-specific
// crosses this interface.
type CarrierAdapter interface {
	// Name returns the carrier code, e.g. "delhivery"
	Name() string

	// Quote prices one consignment. A nil breakdown with a nil error means the
	// carrier cannot quote this request.
	Quote(ctx context.Context, req QuoteRequest) (*ChargeBreakdown, error)

	// Track returns the latest status for an AWB, or nil when the carrier has none
	Track(ctx context.Context, awb string) (*ShipmentStatusSnapshot, error)

	// SubmitNDRAction forwards a shipper decision for a failed delivery
	SubmitNDRAction(ctx context.Context, awb string, action NDRAction, data NDRActionData) (*ActionResult, error)

	// Book registers a consignment and returns the carrier-assigned AWB
	Book(ctx context.Context, req BookingRequest) (*BookingResult, error)

	// Cancel withdraws a booked consignment. A refusal is an error.
	Cancel(ctx context.Context, awb string) error
}

// ServiceQuoter is implemented by adapters that price every service they
// offer from a single carrier call. The rate comparison uses it instead of
// Quote when no service is named.
type ServiceQuoter interface {
	QuoteServices(ctx context.Context, req QuoteRequest) ([]ChargeBreakdown, error)
}

// QuoteRequest is the carrier-neutral input of a live quote
type QuoteRequest struct {
	OriginPincode      string
	DestinationPincode string
	ChargeableWeightKg decimal.Decimal
	OrderType          OrderType
	CollectableValue   decimal.Decimal
	DeclaredValue      decimal.Decimal
	ServiceType        string
	Reverse            bool
}

// BookingRequest carries what a carrier needs to create a consignment
type BookingRequest struct {
	ShipmentID  string
	ServiceType string
	Order       *Order
	Pickup      *Warehouse
	Return      *Warehouse
	WeightKg    decimal.Decimal
	Reverse     bool
}

// BookingResult is the carrier's acknowledgement
type BookingResult struct {
	AWB       string
	Reference string
	BookedAt  time.Time
}

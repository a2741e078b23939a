package domain

import (
	"github.com/lms-platform/shipping-core/pkg/money"
)

// SourceKind tells where a charge came from
type SourceKind string

const (
	SourceInternalRateCard SourceKind = "internal-ratecard"
	SourceLiveCarrierAPI   SourceKind = "live-carrier-api"
)

// Direction selects the slab set of a rate card
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionRTO     Direction = "rto"
	DirectionReverse Direction = "dto"
)

// OrderType is the payment mode of an order
type OrderType string

const (
	OrderTypeCOD     OrderType = "COD"
	OrderTypePrepaid OrderType = "PREPAID"
)

// IsValid reports whether t is a known payment mode
func (t OrderType) IsValid() bool {
	return t == OrderTypeCOD || t == OrderTypePrepaid
}

// ChargeBreakdown is the canonical price of shipping one consignment with
// one carrier service. Amounts are unrounded until rendered or settled.
type ChargeBreakdown struct {
	CarrierName   string       `json:"carrierName" bson:"carrierName"`
	ServiceType   string       `json:"serviceType" bson:"serviceType"`
	Zone          string       `json:"zone,omitempty" bson:"zone,omitempty"`
	ChargedWeight float64      `json:"chargedWeightKg,omitempty" bson:"chargedWeightKg,omitempty"`
	FreightCharge money.Amount `json:"freightCharge" bson:"freightCharge"`
	CODCharge     money.Amount `json:"codCharge" bson:"codCharge"`
	FuelSurcharge money.Amount `json:"fuelSurcharge" bson:"fuelSurcharge"`
	TotalCharge   money.Amount `json:"totalCharge" bson:"totalCharge"`
	SourceKind    SourceKind   `json:"sourceKind" bson:"sourceKind"`
}

// Settled returns the total as it is debited from a wallet
func (c ChargeBreakdown) Settled() money.Amount {
	return money.New(money.Settle(c.TotalCharge.Decimal))
}

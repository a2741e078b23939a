package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/internal/pricing"
	"github.com/lms-platform/shipping-core/pkg/money"
)

// RateQuery is a request to compare carrier prices for one consignment
type RateQuery struct {
	OriginPincode      string          `json:"originPincode" binding:"required,pincode"`
	DestinationPincode string          `json:"destinationPincode" binding:"required,pincode"`
	WeightKg           float64         `json:"weightKg" binding:"required,gt=0"`
	LengthCm           float64         `json:"lengthCm" binding:"gte=0"`
	BreadthCm          float64         `json:"breadthCm" binding:"gte=0"`
	HeightCm           float64         `json:"heightCm" binding:"gte=0"`
	OrderType          string          `json:"orderType" binding:"required,oneof=COD PREPAID"`
	CollectableValue   decimal.Decimal `json:"collectableValue"`
	DeclaredValue      decimal.Decimal `json:"declaredValue"`
	Direction          string          `json:"direction,omitempty" binding:"omitempty,oneof=forward rto dto"`
}

func (q RateQuery) direction() domain.Direction {
	if q.Direction == "" {
		return domain.DirectionForward
	}
	return domain.Direction(q.Direction)
}

func (q RateQuery) volumetricKg() decimal.Decimal {
	return pricing.VolumetricWeight(
		decimal.NewFromFloat(q.LengthCm),
		decimal.NewFromFloat(q.BreadthCm),
		decimal.NewFromFloat(q.HeightCm),
	)
}

func (q RateQuery) toPricingQuery() pricing.Query {
	return pricing.Query{
		OriginPincode:      q.OriginPincode,
		DestinationPincode: q.DestinationPincode,
		ActualWeightKg:     decimal.NewFromFloat(q.WeightKg),
		VolumetricWeightKg: q.volumetricKg(),
		OrderType:          domain.OrderType(q.OrderType),
		CollectableValue:   q.CollectableValue,
		DeclaredValue:      q.DeclaredValue,
		Direction:          q.direction(),
	}
}

// RateQueryForOrder builds the rate query that prices shipping an order from a warehouse
func RateQueryForOrder(o *domain.Order, pickup *domain.Warehouse, dir domain.Direction) RateQuery {
	q := RateQuery{
		OriginPincode:    pickup.Pincode,
		WeightKg:         o.ActualWeightKg,
		LengthCm:         o.Dimensions.LengthCm,
		BreadthCm:        o.Dimensions.BreadthCm,
		HeightCm:         o.Dimensions.HeightCm,
		OrderType:        string(o.OrderType),
		CollectableValue: o.CollectableValue.Decimal,
		DeclaredValue:    o.DeclaredValue.Decimal,
		Direction:        string(dir),
	}
	if o.Consignee != nil {
		q.DestinationPincode = o.Consignee.Pincode
	}
	if dir == domain.DirectionReverse {
		// returns are picked up from the consignee and collect nothing
		q.OriginPincode, q.DestinationPincode = q.DestinationPincode, q.OriginPincode
		q.OrderType = string(domain.OrderTypePrepaid)
		q.CollectableValue = decimal.Zero
	}
	return q
}

// RateResult is the comparison list of an aggregation, cheapest first
type RateResult struct {
	Tier         string                   `json:"tier"`
	TableVersion string                   `json:"tableVersion"`
	Quotes       []domain.ChargeBreakdown `json:"quotes"`
	Unavailable  []string                 `json:"unavailable,omitempty"`
}

// CreateOrderCommand registers an order for the acting user
type CreateOrderCommand struct {
	OrderID          string            `json:"orderId" binding:"required"`
	OrderType        string            `json:"orderType" binding:"required,oneof=COD PREPAID"`
	CollectableValue decimal.Decimal   `json:"collectableValue"`
	DeclaredValue    decimal.Decimal   `json:"declaredValue"`
	WeightKg         float64           `json:"weightKg" binding:"required,gt=0"`
	Dimensions       domain.Dimensions `json:"dimensions"`
	Consignee        *domain.Consignee `json:"consignee"`
}

// CreateForwardShipmentsCommand ships a batch of orders with one carrier service
type CreateForwardShipmentsCommand struct {
	OrderIDs          []string `json:"orderIds" binding:"required,min=1,max=100,dive,required"`
	PickupWarehouseID string   `json:"pickupWarehouseId" binding:"required"`
	RTOWarehouseID    string   `json:"rtoWarehouseId" binding:"required"`
	CarrierName       string   `json:"carrierName" binding:"required,carrier"`
	ServiceType       string   `json:"serviceType" binding:"required"`
}

// CreateReverseShipmentCommand books a customer return of a delivered order
type CreateReverseShipmentCommand struct {
	OrderID           string `json:"orderId" binding:"required"`
	ReturnWarehouseID string `json:"returnWarehouseId" binding:"required"`
	CarrierName       string `json:"carrierName" binding:"required,carrier"`
	ServiceType       string `json:"serviceType" binding:"required"`
}

// OrderFailure reports why one order of a batch was not shipped
type OrderFailure struct {
	OrderID string            `json:"orderId"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// CreateShipmentsResult is the outcome of a batch. A batch is partial when
// Failed is non-empty alongside created shipments.
type CreateShipmentsResult struct {
	Shipments     []*domain.Shipment `json:"shipments"`
	Failed        []OrderFailure     `json:"failed,omitempty"`
	TransactionID string             `json:"transactionId,omitempty"`
	Debited       money.Amount       `json:"debited"`
	Refunded      money.Amount       `json:"refunded"`
}

// Partial reports whether some orders failed while others shipped
func (r *CreateShipmentsResult) Partial() bool {
	return len(r.Failed) > 0 && len(r.Shipments) > 0
}

// CancelShipmentCommand cancels a shipment that has no carrier outcome yet
type CancelShipmentCommand struct {
	Remarks string `json:"remarks"`
}

// PromoteToRTCCommand closes a returned shipment
type PromoteToRTCCommand struct {
	Remarks string `json:"remarks"`
}

// ListShipmentsQuery pages a user's shipments
type ListShipmentsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending shipped delivered rto rtc lost cancelled"`
	Limit  int    `form:"limit" binding:"gte=0,lte=200"`
	Offset int    `form:"offset" binding:"gte=0"`
}

// ListNDRQuery pages a user's NDR records
type ListNDRQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=actionRequired actionRequested delivered rto"`
	Limit  int    `form:"limit" binding:"gte=0,lte=200"`
	Offset int    `form:"offset" binding:"gte=0"`
}

// NDRActionCommand is a shipper decision for a failed delivery
type NDRActionCommand struct {
	Action        string     `json:"action" binding:"required,oneof=reattempt change_address change_phone rto"`
	Address       string     `json:"address,omitempty"`
	Pincode       string     `json:"pincode,omitempty" binding:"omitempty,pincode"`
	Phone         string     `json:"phone,omitempty" binding:"omitempty,min=10,max=15"`
	ReattemptDate *time.Time `json:"reattemptDate,omitempty"`
	Remarks       string     `json:"remarks,omitempty"`
}

func (c NDRActionCommand) data() domain.NDRActionData {
	return domain.NDRActionData{
		Address:       c.Address,
		Pincode:       c.Pincode,
		Phone:         c.Phone,
		ReattemptDate: c.ReattemptDate,
		Remarks:       c.Remarks,
	}
}

// CreateRemittanceCommand asks for a COD payout. Operators may raise it on
// behalf of a seller by naming UserID.
type CreateRemittanceCommand struct {
	Amount decimal.Decimal `json:"amount"`
	UserID string          `json:"userId,omitempty"`
}

// RejectRemittanceCommand declines a payout request
type RejectRemittanceCommand struct {
	Remarks string `json:"remarks" binding:"required"`
}

// WalletDTO is the balance view of a user
type WalletDTO struct {
	UserID       string       `json:"userId"`
	CustomerType string       `json:"customerType"`
	Balance      money.Amount `json:"balance"`
}

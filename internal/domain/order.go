package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lms-platform/shipping-core/pkg/money"
	"github.com/lms-platform/shipping-core/pkg/validation"
)

// OrderStatus mirrors the status of the shipment an order is bound to
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusRTO       OrderStatus = "rto"
	OrderStatusRTC       OrderStatus = "rtc"
	OrderStatusLost      OrderStatus = "lost"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// RemittanceStatus tracks whether a delivered COD order has been paid out
type RemittanceStatus string

const (
	RemittancePending  RemittanceStatus = "pending"
	RemittanceRemitted RemittanceStatus = "remitted"
)

// Consignee is the delivery party of an order
type Consignee struct {
	Name    string `bson:"name" json:"name" validate:"required"`
	Phone   string `bson:"phone" json:"phone" validate:"required,min=10,max=15"`
	Address string `bson:"address" json:"address" validate:"required"`
	City    string `bson:"city" json:"city" validate:"required"`
	State   string `bson:"state" json:"state" validate:"required"`
	Pincode string `bson:"pincode" json:"pincode" validate:"required,pincode"`
}

// Dimensions in centimetres
type Dimensions struct {
	LengthCm  float64 `bson:"lengthCm" json:"lengthCm" validate:"gte=0"`
	BreadthCm float64 `bson:"breadthCm" json:"breadthCm" validate:"gte=0"`
	HeightCm  float64 `bson:"heightCm" json:"heightCm" validate:"gte=0"`
}

// Order is one consignment item set owned by the placing user
type Order struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	OrderID          string             `bson:"orderId" json:"orderId" validate:"required"`
	UserID           string             `bson:"userId" json:"userId" validate:"required"`
	OrderType        OrderType          `bson:"orderType" json:"orderType" validate:"required,oneof=COD PREPAID"`
	CollectableValue money.Amount       `bson:"collectableValue" json:"collectableValue"`
	DeclaredValue    money.Amount       `bson:"declaredValue" json:"declaredValue"`
	ActualWeightKg   float64            `bson:"actualWeightKg" json:"actualWeightKg" validate:"gt=0"`
	Dimensions       Dimensions         `bson:"dimensions" json:"dimensions"`
	Consignee        *Consignee         `bson:"consignee,omitempty" json:"consignee,omitempty" validate:"required"`
	Status           OrderStatus        `bson:"status" json:"status"`
	RemittanceStatus RemittanceStatus   `bson:"remittanceStatus" json:"remittanceStatus"`
	Shipped          bool               `bson:"shipped" json:"shipped"`
	ShipmentID       string             `bson:"shipmentId,omitempty" json:"shipmentId,omitempty"`
	AWB              string             `bson:"awb,omitempty" json:"awb,omitempty"`
	ClaimedBy        string             `bson:"claimedBy,omitempty" json:"-"`
	ClaimedAt        *time.Time         `bson:"claimedAt,omitempty" json:"-"`
	DeliveredAt      *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewOrder creates an order after checking the value invariants. COD orders
// must collect a positive amount no larger than the declared value; prepaid
// orders collect nothing.
func NewOrder(orderID, userID string, orderType OrderType, collectable, declared decimal.Decimal, weightKg float64, dims Dimensions, consignee *Consignee) (*Order, error) {
	now := time.Now().UTC()
	o := &Order{
		OrderID:          orderID,
		UserID:           userID,
		OrderType:        orderType,
		CollectableValue: money.New(collectable),
		DeclaredValue:    money.New(declared),
		ActualWeightKg:   weightKg,
		Dimensions:       dims,
		Consignee:        consignee,
		Status:           OrderStatusNew,
		RemittanceStatus: RemittancePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks mandatory delivery fields and the value invariants.
// It returns *OrderValidationError listing every offending field.
func (o *Order) Validate() error {
	fields := validation.Fields(validation.Struct(o))

	if o.DeclaredValue.IsNegative() {
		fields["declaredValue"] = "must not be negative"
	}
	switch o.OrderType {
	case OrderTypePrepaid:
		if !o.CollectableValue.IsZero() {
			fields["collectableValue"] = "must be 0 for PREPAID orders"
		}
	case OrderTypeCOD:
		if !o.CollectableValue.IsPositive() {
			fields["collectableValue"] = "must be greater than 0 for COD orders"
		} else if o.CollectableValue.GreaterThan(o.DeclaredValue.Decimal) {
			fields["collectableValue"] = "must not exceed declaredValue"
		}
	}

	if len(fields) > 0 {
		return &OrderValidationError{OrderID: o.OrderID, Fields: fields}
	}
	return nil
}

// VolumetricWeightKg is L x B x H / 5000
func (o *Order) VolumetricWeightKg() float64 {
	d := o.Dimensions
	return d.LengthCm * d.BreadthCm * d.HeightCm / 5000
}

// IsCOD reports whether the order collects cash on delivery
func (o *Order) IsCOD() bool {
	return o.OrderType == OrderTypeCOD
}

// MarkShipped binds the order to a shipment
func (o *Order) MarkShipped(shipmentID, awb string) {
	o.Shipped = true
	o.ShipmentID = shipmentID
	o.AWB = awb
	o.Status = OrderStatusShipped
	o.UpdatedAt = time.Now().UTC()
}

// OrderStatusFor maps a shipment status onto the mirrored order status
func OrderStatusFor(s ShipmentStatus) OrderStatus {
	switch s {
	case ShipmentStatusShipped:
		return OrderStatusShipped
	case ShipmentStatusDelivered:
		return OrderStatusDelivered
	case ShipmentStatusRTO:
		return OrderStatusRTO
	case ShipmentStatusRTC:
		return OrderStatusRTC
	case ShipmentStatusLost:
		return OrderStatusLost
	case ShipmentStatusCancelled:
		return OrderStatusCancelled
	default:
		return OrderStatusNew
	}
}

// Warehouse is a pickup or return location of a user
type Warehouse struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	WarehouseID string             `bson:"warehouseId" json:"warehouseId"`
	UserID      string             `bson:"userId" json:"userId"`
	Name        string             `bson:"name" json:"name"`
	ContactName string             `bson:"contactName" json:"contactName"`
	Phone       string             `bson:"phone" json:"phone"`
	Address     string             `bson:"address" json:"address"`
	City        string             `bson:"city" json:"city"`
	State       string             `bson:"state" json:"state"`
	Pincode     string             `bson:"pincode" json:"pincode"`
}

package domain

import (
	"time"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// ShipmentCreatedEvent is published when a shipment is created
type ShipmentCreatedEvent struct {
	ShipmentID string    `json:"shipmentId"`
	UserID     string    `json:"userId"`
	OrderIDs   []string  `json:"orderIds"`
	Carrier    string    `json:"carrier"`
	Service    string    `json:"serviceType"`
	Reverse    bool      `json:"reverse"`
	Total      string    `json:"totalCharge"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e *ShipmentCreatedEvent) EventType() string     { return cloudevents.ShipmentCreated }
func (e *ShipmentCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// ShipmentStatusChangedEvent is published on every lifecycle transition
type ShipmentStatusChangedEvent struct {
	ShipmentID string    `json:"shipmentId"`
	UserID     string    `json:"userId"`
	AWB        string    `json:"awb,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Remarks    string    `json:"remarks,omitempty"`
	ChangedAt  time.Time `json:"changedAt"`
}

func (e *ShipmentStatusChangedEvent) EventType() string {
	switch ShipmentStatus(e.To) {
	case ShipmentStatusShipped:
		return cloudevents.ShipmentShipped
	case ShipmentStatusDelivered:
		return cloudevents.ShipmentDelivered
	case ShipmentStatusRTO:
		return cloudevents.ShipmentRTO
	case ShipmentStatusRTC:
		return cloudevents.ShipmentRTC
	case ShipmentStatusLost:
		return cloudevents.ShipmentLost
	default:
		return cloudevents.ShipmentCancelled
	}
}
func (e *ShipmentStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// NDREvent is published when an NDR is raised, actioned or resolved
type NDREvent struct {
	Type          string    `json:"-"`
	AWB           string    `json:"awb"`
	ShipmentID    string    `json:"shipmentId"`
	UserID        string    `json:"userId"`
	Courier       string    `json:"courier"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	Action        string    `json:"action,omitempty"`
	Attempts      int       `json:"attempts"`
	At            time.Time `json:"at"`
}

func (e *NDREvent) EventType() string     { return e.Type }
func (e *NDREvent) OccurredAt() time.Time { return e.At }

// WalletMovedEvent is published for every debit and refund
type WalletMovedEvent struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Kind          string    `json:"kind"`
	Amount        string    `json:"amount"`
	ShipmentIDs   []string  `json:"shipmentIds,omitempty"`
	OrderIDs      []string  `json:"orderIds,omitempty"`
	At            time.Time `json:"at"`
}

func (e *WalletMovedEvent) EventType() string {
	if e.Kind == string(TransactionRefund) {
		return cloudevents.WalletRefunded
	}
	return cloudevents.WalletDebited
}
func (e *WalletMovedEvent) OccurredAt() time.Time { return e.At }

// RemittanceEvent is published when a remittance request is created or decided
type RemittanceEvent struct {
	Type            string    `json:"-"`
	RequestID       string    `json:"requestId"`
	UserID          string    `json:"userId"`
	RequestedAmount string    `json:"requestedAmount"`
	PaidAmount      string    `json:"paidAmount,omitempty"`
	OrderIDs        []string  `json:"orderIds,omitempty"`
	ActorID         string    `json:"actorId,omitempty"`
	At              time.Time `json:"at"`
}

func (e *RemittanceEvent) EventType() string     { return e.Type }
func (e *RemittanceEvent) OccurredAt() time.Time { return e.At }

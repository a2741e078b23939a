package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lms-platform/shipping-core/pkg/tenant"
)

// ShipmentStatus represents the status of a shipment
type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusShipped   ShipmentStatus = "shipped"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusRTO       ShipmentStatus = "rto"
	ShipmentStatusRTC       ShipmentStatus = "rtc"
	ShipmentStatusLost      ShipmentStatus = "lost"
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
)

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusPending: {ShipmentStatusShipped, ShipmentStatusCancelled},
	ShipmentStatusShipped: {ShipmentStatusDelivered, ShipmentStatusRTO, ShipmentStatusLost, ShipmentStatusCancelled},
	ShipmentStatusRTO:     {ShipmentStatusRTC},
}

// CanTransitionTo reports whether the state machine allows s -> to
func (s ShipmentStatus) CanTransitionTo(to ShipmentStatus) bool {
	for _, next := range shipmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s ShipmentStatus) IsTerminal() bool {
	return len(shipmentTransitions[s]) == 0
}

// IsValid reports whether s is a known status
func (s ShipmentStatus) IsValid() bool {
	switch s {
	case ShipmentStatusPending, ShipmentStatusShipped, ShipmentStatusDelivered,
		ShipmentStatusRTO, ShipmentStatusRTC, ShipmentStatusLost, ShipmentStatusCancelled:
		return true
	}
	return false
}

// PartnerDetails is the carrier selection with the charge frozen at creation
type PartnerDetails struct {
	CarrierName string          `bson:"carrierName" json:"carrierName"`
	ServiceType string          `bson:"serviceType" json:"serviceType"`
	Charges     ChargeBreakdown `bson:"charges" json:"charges"`
}

// StatusEvent is one entry of the append-only audit trail
type StatusEvent struct {
	Status    string    `bson:"status" json:"status"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Location  string    `bson:"location,omitempty" json:"location,omitempty"`
	Remarks   string    `bson:"remarks,omitempty" json:"remarks,omitempty"`
}

// Shipment is one physical consignment, forward or reverse
type Shipment struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ShipmentID        string             `bson:"shipmentId" json:"shipmentId"`
	UserID            string             `bson:"userId" json:"userId"`
	AWB               string             `bson:"awbNumber,omitempty" json:"awbNumber,omitempty"`
	OrderIDs          []string           `bson:"orderIds" json:"orderIds"`
	PartnerDetails    PartnerDetails     `bson:"partnerDetails" json:"partnerDetails"`
	Status            ShipmentStatus     `bson:"status" json:"status"`
	Reverse           bool               `bson:"reverse" json:"reverse"`
	PickupWarehouseID string             `bson:"pickupWarehouseId" json:"pickupWarehouseId"`
	RTOWarehouseID    string             `bson:"rtoWarehouseId,omitempty" json:"rtoWarehouseId,omitempty"`
	TransactionID     string             `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	Events            []StatusEvent      `bson:"events" json:"events"`
	FailedAttempts    int                `bson:"failedAttempts" json:"failedAttempts"`
	LastTrackedAt     *time.Time         `bson:"lastTrackedAt,omitempty" json:"lastTrackedAt,omitempty"`
	DeliveredAt       *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	Version           int64              `bson:"version" json:"version"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
	DomainEvents      []DomainEvent      `bson:"-" json:"-"`
}

// NewShipment creates a pending shipment with its charge frozen
func NewShipment(shipmentID, userID string, orderIDs []string, partner PartnerDetails, reverse bool, pickupWarehouseID, rtoWarehouseID string) *Shipment {
	now := time.Now().UTC()
	s := &Shipment{
		ShipmentID:        shipmentID,
		UserID:            userID,
		OrderIDs:          orderIDs,
		PartnerDetails:    partner,
		Status:            ShipmentStatusPending,
		Reverse:           reverse,
		PickupWarehouseID: pickupWarehouseID,
		RTOWarehouseID:    rtoWarehouseID,
		Events:            []StatusEvent{{Status: string(ShipmentStatusPending), Timestamp: now}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	s.AddDomainEvent(&ShipmentCreatedEvent{
		ShipmentID: shipmentID,
		UserID:     userID,
		OrderIDs:   orderIDs,
		Carrier:    partner.CarrierName,
		Service:    partner.ServiceType,
		Reverse:    reverse,
		Total:      partner.Charges.Settled().String(),
		CreatedAt:  now,
	})
	return s
}

func (s *Shipment) transition(to ShipmentStatus, at time.Time, location, remarks string) error {
	if !s.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{Entity: "shipment", From: string(s.Status), To: string(to)}
	}

	from := s.Status
	s.Status = to
	s.Events = append(s.Events, StatusEvent{Status: string(to), Timestamp: at, Location: location, Remarks: remarks})
	s.UpdatedAt = time.Now().UTC()

	s.AddDomainEvent(&ShipmentStatusChangedEvent{
		ShipmentID: s.ShipmentID,
		UserID:     s.UserID,
		AWB:        s.AWB,
		From:       string(from),
		To:         string(to),
		Remarks:    remarks,
		ChangedAt:  at,
	})
	return nil
}

// MarkShipped records the carrier booking. Only reachable from shipment creation.
func (s *Shipment) MarkShipped(awb string, at time.Time) error {
	if err := s.transition(ShipmentStatusShipped, at, "", "booked with "+s.PartnerDetails.CarrierName); err != nil {
		return err
	}
	s.AWB = awb
	return nil
}

// MarkDelivered closes the shipment as delivered
func (s *Shipment) MarkDelivered(at time.Time, location string) error {
	if err := s.transition(ShipmentStatusDelivered, at, location, ""); err != nil {
		return err
	}
	delivered := at
	s.DeliveredAt = &delivered
	return nil
}

// InitiateRTO sends the shipment back to origin
func (s *Shipment) InitiateRTO(at time.Time, location, remarks string) error {
	return s.transition(ShipmentStatusRTO, at, location, remarks)
}

// MarkLost closes the shipment as lost in transit
func (s *Shipment) MarkLost(at time.Time, remarks string) error {
	return s.transition(ShipmentStatusLost, at, "", remarks)
}

// Cancel cancels a shipment that has not reached a carrier outcome
func (s *Shipment) Cancel(at time.Time, remarks string) error {
	return s.transition(ShipmentStatusCancelled, at, "", remarks)
}

// PromoteToRTC resolves an RTO. Only operators may promote.
func (s *Shipment) PromoteToRTC(actor *tenant.Context, at time.Time, remarks string) error {
	if actor == nil || !actor.IsStaff() {
		role := ""
		if actor != nil {
			role = actor.Role
		}
		return &InvalidTransitionError{
			Entity: "shipment",
			From:   string(s.Status),
			To:     string(ShipmentStatusRTC),
			Reason: "role " + role + " may not promote to rtc",
		}
	}
	return s.transition(ShipmentStatusRTC, at, "", remarks)
}

// RecordScan appends an informational tracking event without changing status
func (s *Shipment) RecordScan(status string, at time.Time, location, remarks string) {
	s.Events = append(s.Events, StatusEvent{Status: status, Timestamp: at, Location: location, Remarks: remarks})
	s.UpdatedAt = time.Now().UTC()
}

// IsNewSnapshot reports whether a carrier snapshot taken at ts has not been applied yet
func (s *Shipment) IsNewSnapshot(ts time.Time) bool {
	return s.LastTrackedAt == nil || ts.After(*s.LastTrackedAt)
}

// MarkTracked records the timestamp of the last applied carrier snapshot
func (s *Shipment) MarkTracked(ts time.Time, failedAttempts int) {
	tracked := ts
	s.LastTrackedAt = &tracked
	if failedAttempts > s.FailedAttempts {
		s.FailedAttempts = failedAttempts
	}
}

// AddDomainEvent adds a domain event
func (s *Shipment) AddDomainEvent(event DomainEvent) {
	s.DomainEvents = append(s.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (s *Shipment) ClearDomainEvents() {
	s.DomainEvents = nil
}

// GetDomainEvents returns all domain events
func (s *Shipment) GetDomainEvents() []DomainEvent {
	return s.DomainEvents
}

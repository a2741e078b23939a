package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
)

// NDRStatus is the resolution state of a non-delivery report
type NDRStatus string

const (
	NDRActionRequired  NDRStatus = "actionRequired"
	NDRActionRequested NDRStatus = "actionRequested"
	NDRDelivered       NDRStatus = "delivered"
	NDRReturned        NDRStatus = "rto"
)

// IsTerminal reports whether the NDR is resolved
func (s NDRStatus) IsTerminal() bool {
	return s == NDRDelivered || s == NDRReturned
}

// FailureReason is the closed set of delivery failure causes
type FailureReason string

const (
	FailureCustomerUnavailable FailureReason = "customer_unavailable"
	FailureAddressIssue        FailureReason = "address_issue"
	FailureRefused             FailureReason = "refused"
	FailureCODNotReady         FailureReason = "cod_not_ready"
	FailureOutOfDeliveryArea   FailureReason = "out_of_delivery_area"
	FailureRescheduled         FailureReason = "rescheduled"
	FailureOther               FailureReason = "other"
)

// NDRAction is what the shipper asks the carrier to do
type NDRAction string

const (
	NDRActionReattempt     NDRAction = "reattempt"
	NDRActionChangeAddress NDRAction = "change_address"
	NDRActionChangePhone   NDRAction = "change_phone"
	NDRActionReturn        NDRAction = "rto"
)

// IsValid reports whether a is a known action
func (a NDRAction) IsValid() bool {
	switch a {
	case NDRActionReattempt, NDRActionChangeAddress, NDRActionChangePhone, NDRActionReturn:
		return true
	}
	return false
}

// NDRActionData carries the inputs an action needs
type NDRActionData struct {
	Address       string     `bson:"address,omitempty" json:"address,omitempty"`
	Pincode       string     `bson:"pincode,omitempty" json:"pincode,omitempty"`
	Phone         string     `bson:"phone,omitempty" json:"phone,omitempty"`
	ReattemptDate *time.Time `bson:"reattemptDate,omitempty" json:"reattemptDate,omitempty"`
	Remarks       string     `bson:"remarks,omitempty" json:"remarks,omitempty"`
}

// ActionResult is the carrier's answer to an NDR action
type ActionResult struct {
	Accepted  bool   `bson:"accepted" json:"accepted"`
	Reference string `bson:"reference,omitempty" json:"reference,omitempty"`
	Message   string `bson:"message,omitempty" json:"message,omitempty"`
}

// NDRActionEntry records one submitted action
type NDRActionEntry struct {
	Action      NDRAction     `bson:"action" json:"action"`
	Data        NDRActionData `bson:"data" json:"data"`
	ActorID     string        `bson:"actorId" json:"actorId"`
	Result      ActionResult  `bson:"result" json:"result"`
	RequestedAt time.Time     `bson:"requestedAt" json:"requestedAt"`
}

// NDRRecord tracks the failed delivery attempts of one AWB
type NDRRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AWB           string             `bson:"awb" json:"awb"`
	ShipmentID    string             `bson:"shipmentId" json:"shipmentId"`
	UserID        string             `bson:"userId" json:"userId"`
	Courier       string             `bson:"courier" json:"courier"`
	Status        NDRStatus          `bson:"status" json:"status"`
	FailureReason FailureReason      `bson:"failureReason" json:"failureReason"`
	Reasons       string             `bson:"reasons,omitempty" json:"reasons,omitempty"`
	Attempts      int                `bson:"attempts" json:"attempts"`
	Actions       []NDRActionEntry   `bson:"actions" json:"actions"`
	Version       int64              `bson:"version" json:"version"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
	DomainEvents  []DomainEvent      `bson:"-" json:"-"`
}

// NewNDRRecord raises an NDR for a shipment the carrier failed to deliver
func NewNDRRecord(s *Shipment, reason FailureReason, remarks string, attempts int, at time.Time) *NDRRecord {
	if reason == "" {
		reason = FailureOther
	}
	r := &NDRRecord{
		AWB:           s.AWB,
		ShipmentID:    s.ShipmentID,
		UserID:        s.UserID,
		Courier:       s.PartnerDetails.CarrierName,
		Status:        NDRActionRequired,
		FailureReason: reason,
		Reasons:       remarks,
		Attempts:      attempts,
		Actions:       []NDRActionEntry{},
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	r.addEvent(cloudevents.NDRRaised, "", at)
	return r
}

// RequestAction records an accepted action submission
func (r *NDRRecord) RequestAction(action NDRAction, data NDRActionData, actorID string, result ActionResult, at time.Time) error {
	if r.Status != NDRActionRequired {
		return &InvalidTransitionError{Entity: "ndr", From: string(r.Status), To: string(NDRActionRequested)}
	}

	r.Actions = append(r.Actions, NDRActionEntry{
		Action:      action,
		Data:        data,
		ActorID:     actorID,
		Result:      result,
		RequestedAt: at,
	})
	r.Status = NDRActionRequested
	r.UpdatedAt = at
	r.addEvent(cloudevents.NDRActionRequested, string(action), at)
	return nil
}

// Resolve closes the NDR once the shipment is delivered or returned
func (r *NDRRecord) Resolve(to NDRStatus, at time.Time) error {
	if r.Status.IsTerminal() || !to.IsTerminal() {
		return &InvalidTransitionError{Entity: "ndr", From: string(r.Status), To: string(to)}
	}

	r.Status = to
	r.UpdatedAt = at
	r.addEvent(cloudevents.NDRResolved, "", at)
	return nil
}

// UpdateAttempts records a later carrier report for an open NDR
func (r *NDRRecord) UpdateAttempts(attempts int, reason FailureReason, remarks string, at time.Time) {
	if attempts > r.Attempts {
		r.Attempts = attempts
	}
	if reason != "" {
		r.FailureReason = reason
	}
	if remarks != "" {
		r.Reasons = remarks
	}
	r.UpdatedAt = at
}

func (r *NDRRecord) addEvent(eventType, action string, at time.Time) {
	r.DomainEvents = append(r.DomainEvents, &NDREvent{
		Type:          eventType,
		AWB:           r.AWB,
		ShipmentID:    r.ShipmentID,
		UserID:        r.UserID,
		Courier:       r.Courier,
		Status:        string(r.Status),
		FailureReason: string(r.FailureReason),
		Action:        action,
		Attempts:      r.Attempts,
		At:            at,
	})
}

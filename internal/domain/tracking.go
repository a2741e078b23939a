package domain

import "time"

// TrackingStatus is the carrier-neutral delivery state reported by a tracking call
type TrackingStatus string

const (
	TrackingBooked      TrackingStatus = "booked"
	TrackingInTransit   TrackingStatus = "in_transit"
	TrackingUndelivered TrackingStatus = "undelivered"
	TrackingDelivered   TrackingStatus = "delivered"
	TrackingRTO         TrackingStatus = "rto"
	TrackingLost        TrackingStatus = "lost"
	TrackingCancelled   TrackingStatus = "cancelled"
)

// TrackingScan is one carrier scan
type TrackingScan struct {
	Status    string    `json:"status"`
	Location  string    `json:"location,omitempty"`
	Remarks   string    `json:"remarks,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ShipmentStatusSnapshot is the canonical result of a tracking call
type ShipmentStatusSnapshot struct {
	AWB            string         `json:"awb"`
	Carrier        string         `json:"carrier"`
	Status         TrackingStatus `json:"status"`
	CarrierStatus  string         `json:"carrierStatus"`
	Location       string         `json:"location,omitempty"`
	Remarks        string         `json:"remarks,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	FailedAttempts int            `json:"failedAttempts"`
	FailureReason  FailureReason  `json:"failureReason,omitempty"`
	Scans          []TrackingScan `json:"scans,omitempty"`
}

// TrackingDecision is what a sweep should do with one snapshot
type TrackingDecision string

const (
	DecisionNone      TrackingDecision = "none"
	DecisionDeliver   TrackingDecision = "deliver"
	DecisionRTO       TrackingDecision = "rto"
	DecisionLost      TrackingDecision = "lost"
	DecisionCancel    TrackingDecision = "cancel"
	DecisionRaiseNDR  TrackingDecision = "raise_ndr"
	DecisionUpdateNDR TrackingDecision = "update_ndr"
)

// TrackingPolicy holds the failed-attempt thresholds for undelivered shipments.
// RTOAfterAttempts triggers RTO when the carrier reports exactly that many
// failures; NDRAfterAttempts raises an NDR at or above its count. Zero disables a rule.
type TrackingPolicy struct {
	RTOAfterAttempts int
	NDRAfterAttempts int
}

// DefaultTrackingPolicy returns RTO after the first failure and NDR from the third
func DefaultTrackingPolicy() TrackingPolicy {
	return TrackingPolicy{RTOAfterAttempts: 1, NDRAfterAttempts: 3}
}

// Decide maps a snapshot of a shipped shipment onto an action. ndr is the
// open record for the AWB, or nil.
func (p TrackingPolicy) Decide(status ShipmentStatus, snap *ShipmentStatusSnapshot, ndr *NDRRecord) TrackingDecision {
	if status != ShipmentStatusShipped {
		return DecisionNone
	}

	switch snap.Status {
	case TrackingDelivered:
		return DecisionDeliver
	case TrackingRTO:
		return DecisionRTO
	case TrackingLost:
		return DecisionLost
	case TrackingCancelled:
		return DecisionCancel
	case TrackingUndelivered:
		return p.decideUndelivered(snap.FailedAttempts, ndr)
	}
	return DecisionNone
}

func (p TrackingPolicy) decideUndelivered(attempts int, ndr *NDRRecord) TrackingDecision {
	if ndr != nil && !ndr.Status.IsTerminal() {
		return DecisionUpdateNDR
	}
	if p.NDRAfterAttempts > 0 && attempts >= p.NDRAfterAttempts {
		return DecisionRaiseNDR
	}
	if p.RTOAfterAttempts > 0 && attempts == p.RTOAfterAttempts {
		return DecisionRTO
	}
	return DecisionNone
}

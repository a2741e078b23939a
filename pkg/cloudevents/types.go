package cloudevents

import (
	"time"
)

// Event types published by shipping-core
const (
	// Shipment lifecycle
	ShipmentCreated   = "lms.shipping.shipment-created"
	ShipmentShipped   = "lms.shipping.shipment-shipped"
	ShipmentDelivered = "lms.shipping.shipment-delivered"
	ShipmentRTO       = "lms.shipping.rto-initiated"
	ShipmentRTC       = "lms.shipping.rtc-promoted"
	ShipmentLost      = "lms.shipping.shipment-lost"
	ShipmentCancelled = "lms.shipping.shipment-cancelled"

	// Non-delivery reports
	NDRRaised          = "lms.ndr.raised"
	NDRActionRequested = "lms.ndr.action-requested"
	NDRResolved        = "lms.ndr.resolved"

	// Wallet movements
	WalletDebited  = "lms.wallet.debited"
	WalletRefunded = "lms.wallet.refunded"

	// COD remittance
	RemittanceRequested = "lms.remittance.requested"
	RemittanceApproved  = "lms.remittance.approved"
	RemittanceRejected  = "lms.remittance.rejected"
)

// Event sources
const (
	SourceShipping   = "/lms/shipping-core/shipments"
	SourceTracking   = "/lms/shipping-core/tracking"
	SourceWallet     = "/lms/shipping-core/wallet"
	SourceRemittance = "/lms/shipping-core/remittance"
)

// Extension attribute names
const (
	ExtCorrelationID = "lmscorrelationid"
	ExtUserID        = "lmsuserid"
	ExtAWB           = "lmsawb"
)

// Event is a CloudEvents v1.0 structured-mode envelope
type Event struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"lmscorrelationid,omitempty"`
	UserID        string `json:"lmsuserid,omitempty"`
	AWB           string `json:"lmsawb,omitempty"`
}

// WithCorrelation sets the correlation extension and returns the event
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// WithUser sets the owning user extension and returns the event
func (e *Event) WithUser(userID string) *Event {
	e.UserID = userID
	return e
}

// WithAWB sets the air waybill extension and returns the event
func (e *Event) WithAWB(awb string) *Event {
	e.AWB = awb
	return e
}

// Extensions returns the populated extension attributes keyed by their CloudEvents name
func (e *Event) Extensions() map[string]string {
	ext := make(map[string]string, 3)
	if e.CorrelationID != "" {
		ext[ExtCorrelationID] = e.CorrelationID
	}
	if e.UserID != "" {
		ext[ExtUserID] = e.UserID
	}
	if e.AWB != "" {
		ext[ExtAWB] = e.AWB
	}
	return ext
}

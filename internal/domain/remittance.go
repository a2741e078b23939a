package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/pkg/cloudevents"
	"github.com/lms-platform/shipping-core/pkg/money"
)

// RemittanceRequestStatus is the decision state of a payout request
type RemittanceRequestStatus string

const (
	RemittanceRequestPending  RemittanceRequestStatus = "Pending"
	RemittanceRequestApproved RemittanceRequestStatus = "Approved"
	RemittanceRequestRejected RemittanceRequestStatus = "Rejected"
)

// RemittanceRequest is a payout of collected COD to a user
type RemittanceRequest struct {
	RequestID       string                  `bson:"requestId" json:"requestId"`
	UserID          string                  `bson:"userId" json:"userId"`
	RequestedAmount money.Amount            `bson:"requestedAmount" json:"requestedAmount"`
	PaidAmount      money.Amount            `bson:"paidAmount" json:"paidAmount"`
	Status          RemittanceRequestStatus `bson:"status" json:"status"`
	OrderIDs        []string                `bson:"orderIds,omitempty" json:"orderIds,omitempty"`
	RequestedBy     string                  `bson:"requestedBy" json:"requestedBy"`
	DecidedBy       string                  `bson:"decidedBy,omitempty" json:"decidedBy,omitempty"`
	Remarks         string                  `bson:"remarks,omitempty" json:"remarks,omitempty"`
	Version         int64                   `bson:"version" json:"version"`
	CreatedAt       time.Time               `bson:"createdAt" json:"createdAt"`
	DecidedAt       *time.Time              `bson:"decidedAt,omitempty" json:"decidedAt,omitempty"`
	DomainEvents    []DomainEvent           `bson:"-" json:"-"`
}

// RemittanceEligibility sums a user's delivered COD collections by remittance status
type RemittanceEligibility struct {
	UserID           string       `json:"userId"`
	UnremittedAmount money.Amount `json:"unremittedAmount"`
	UnremittedOrders int          `json:"unremittedOrders"`
	RemittedAmount   money.Amount `json:"remittedAmount"`
	RemittedOrders   int          `json:"remittedOrders"`
	OpenRequests     money.Amount `json:"openRequestAmount"`
}

// Available is what a new request may still ask for
func (e RemittanceEligibility) Available() decimal.Decimal {
	avail := e.UnremittedAmount.Sub(e.OpenRequests.Decimal)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// NewRemittanceRequest creates a pending request, rejecting amounts above the eligible total
func NewRemittanceRequest(userID, actorID string, amount decimal.Decimal, eligibility RemittanceEligibility) (*RemittanceRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(eligibility.Available()) {
		return nil, &RemittanceExceedsEligibleError{Requested: amount, Eligible: eligibility.Available()}
	}

	now := time.Now().UTC()
	r := &RemittanceRequest{
		RequestID:       uuid.New().String(),
		UserID:          userID,
		RequestedAmount: money.New(money.Settle(amount)),
		PaidAmount:      money.Zero(),
		Status:          RemittanceRequestPending,
		RequestedBy:     actorID,
		CreatedAt:       now,
	}
	r.addEvent(cloudevents.RemittanceRequested, now)
	return r, nil
}

// Approve pays out the given orders. The caller persists the request and flips
// the orders to remitted in one transaction.
func (r *RemittanceRequest) Approve(actorID string, orderIDs []string, paid decimal.Decimal, at time.Time) error {
	if r.Status != RemittanceRequestPending {
		return &InvalidTransitionError{Entity: "remittance", From: string(r.Status), To: string(RemittanceRequestApproved)}
	}

	r.Status = RemittanceRequestApproved
	r.OrderIDs = orderIDs
	r.PaidAmount = money.New(money.Settle(paid))
	r.DecidedBy = actorID
	r.DecidedAt = &at
	r.addEvent(cloudevents.RemittanceApproved, at)
	return nil
}

// Reject declines the request
func (r *RemittanceRequest) Reject(actorID, remarks string, at time.Time) error {
	if r.Status != RemittanceRequestPending {
		return &InvalidTransitionError{Entity: "remittance", From: string(r.Status), To: string(RemittanceRequestRejected)}
	}

	r.Status = RemittanceRequestRejected
	r.DecidedBy = actorID
	r.Remarks = remarks
	r.DecidedAt = &at
	r.addEvent(cloudevents.RemittanceRejected, at)
	return nil
}

func (r *RemittanceRequest) addEvent(eventType string, at time.Time) {
	r.DomainEvents = append(r.DomainEvents, &RemittanceEvent{
		Type:            eventType,
		RequestID:       r.RequestID,
		UserID:          r.UserID,
		RequestedAmount: r.RequestedAmount.String(),
		PaidAmount:      r.PaidAmount.String(),
		OrderIDs:        r.OrderIDs,
		ActorID:         r.DecidedBy,
		At:              at,
	})
}

// RemittableOrder is a delivered COD order not yet paid out
type RemittableOrder struct {
	OrderID          string
	CollectableValue decimal.Decimal
	DeliveredAt      time.Time
}

// SelectForPayout picks orders oldest first while their running total stays
// within amount. It returns the chosen ids and their sum.
func SelectForPayout(orders []RemittableOrder, amount decimal.Decimal) ([]string, decimal.Decimal) {
	ids := make([]string, 0, len(orders))
	sum := decimal.Zero
	for _, o := range orders {
		next := sum.Add(o.CollectableValue)
		if next.GreaterThan(amount) {
			break
		}
		ids = append(ids, o.OrderID)
		sum = next
	}
	return ids, sum
}

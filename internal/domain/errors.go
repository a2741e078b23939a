package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrShipmentNotFound       = errors.New("shipment not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrNDRNotFound            = errors.New("ndr record not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrWarehouseNotFound      = errors.New("warehouse not found")
	ErrRemittanceNotFound     = errors.New("remittance request not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrCarrierNotFound        = errors.New("carrier not registered")
	ErrNoPricing              = errors.New("no pricing available for selection")
	ErrInvalidAmount          = errors.New("amount must be positive")
)

// UnknownTierError means no rate table exists for the customer tier
type UnknownTierError struct {
	Tier string
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown customer tier %q", e.Tier)
}

// UnclassifiableZoneError means the carrier cannot quote this lane. It is a
// per-carrier failure, never fatal for a whole rate request.
type UnclassifiableZoneError struct {
	Origin      string
	Destination string
	Reason      string
}

func (e *UnclassifiableZoneError) Error() string {
	return fmt.Sprintf("cannot classify zone for %s -> %s: %s", e.Origin, e.Destination, e.Reason)
}

// WeightOutOfRangeError means the weight exceeds the last bounded slab
type WeightOutOfRangeError struct {
	WeightKg decimal.Decimal
	MaxKg    decimal.Decimal
}

func (e *WeightOutOfRangeError) Error() string {
	return fmt.Sprintf("chargeable weight %skg exceeds rate card maximum %skg", e.WeightKg, e.MaxKg)
}

// InsufficientWalletBalanceError means the batch total exceeds the wallet balance. Nothing was debited.
type InsufficientWalletBalanceError struct {
	UserID    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientWalletBalanceError) Error() string {
	if e.Available.IsZero() && e.Required.IsZero() {
		return "insufficient wallet balance"
	}
	return fmt.Sprintf("insufficient wallet balance: required %s, available %s", e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// InvalidTransitionError means the requested status change is not allowed
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// CarrierRejectedError means the carrier answered but refused the request
type CarrierRejectedError struct {
	Carrier   string
	Operation string
	AWB       string
	Reason    string
}

func (e *CarrierRejectedError) Error() string {
	return fmt.Sprintf("%s refused to %s %s: %s", e.Carrier, e.Operation, e.AWB, e.Reason)
}

// RemittanceExceedsEligibleError means the requested payout is above the unremitted COD total
type RemittanceExceedsEligibleError struct {
	Requested decimal.Decimal
	Eligible  decimal.Decimal
}

func (e *RemittanceExceedsEligibleError) Error() string {
	return fmt.Sprintf("requested remittance %s exceeds eligible amount %s", e.Requested.StringFixed(2), e.Eligible.StringFixed(2))
}

// OrderValidationError lists invalid or missing fields of one order
type OrderValidationError struct {
	OrderID string
	Fields  map[string]string
}

func (e *OrderValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return fmt.Sprintf("order %s is invalid: %s", e.OrderID, strings.Join(parts, "; "))
}

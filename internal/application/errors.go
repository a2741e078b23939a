package application

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/resilience"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

// Error codes specific to shipping
const (
	CodeUnknownTier        = "UNKNOWN_CUSTOMER_TIER"
	CodeUnclassifiableZone = "UNCLASSIFIABLE_ZONE"
	CodeWeightOutOfRange   = "WEIGHT_OUT_OF_RANGE"
	CodeNoPricing          = "NO_PRICING"
	CodeRemittanceExceeds  = "REMITTANCE_EXCEEDS_ELIGIBLE"
	CodeOrderInvalid       = "ORDER_INVALID"
	CodeOrderShipped       = "ORDER_ALREADY_SHIPPED"
	CodeBookingFailed      = "CARRIER_BOOKING_FAILED"
	CodeCarrierRejected    = "CARRIER_REJECTED"
	CodeNothingToRemit     = "NOTHING_TO_REMIT"
)

// ToAppError maps domain errors onto API errors. Errors that already are
// AppErrors pass through; anything unknown becomes an internal error.
func ToAppError(err error) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	var (
		tierErr       *domain.UnknownTierError
		zoneErr       *domain.UnclassifiableZoneError
		weightErr     *domain.WeightOutOfRangeError
		balanceErr    *domain.InsufficientWalletBalanceError
		transitionErr *domain.InvalidTransitionError
		remitErr      *domain.RemittanceExceedsEligibleError
		orderErr      *domain.OrderValidationError
		carrierErr    *domain.CarrierRejectedError
	)

	switch {
	case stderrors.As(err, &tierErr):
		return errors.ErrBusinessRule(CodeUnknownTier, err.Error()).Wrap(err)
	case stderrors.As(err, &zoneErr):
		return errors.ErrBusinessRule(CodeUnclassifiableZone, err.Error()).Wrap(err)
	case stderrors.As(err, &weightErr):
		return errors.ErrBusinessRule(CodeWeightOutOfRange, err.Error()).
			WithDetail("maxKg", weightErr.MaxKg.String()).Wrap(err)
	case stderrors.As(err, &balanceErr):
		return errors.ErrBusinessRule(errors.CodeInsufficientBalance, err.Error()).
			WithDetail("required", balanceErr.Required.StringFixed(2)).
			WithDetail("available", balanceErr.Available.StringFixed(2)).Wrap(err)
	case stderrors.As(err, &transitionErr):
		return errors.NewAppError(errors.CodeInvalidTransition, err.Error(), http.StatusConflict).Wrap(err)
	case stderrors.As(err, &remitErr):
		return errors.ErrBusinessRule(CodeRemittanceExceeds, err.Error()).
			WithDetail("eligible", remitErr.Eligible.StringFixed(2)).Wrap(err)
	case stderrors.As(err, &orderErr):
		return errors.ErrValidationWithFields(err.Error(), orderErr.Fields).Wrap(err)
	case stderrors.As(err, &carrierErr):
		return errors.ErrBusinessRule(CodeCarrierRejected, err.Error()).
			WithDetail("carrier", carrierErr.Carrier).Wrap(err)
	}

	switch {
	case stderrors.Is(err, domain.ErrShipmentNotFound):
		return errors.ErrNotFound("shipment").Wrap(err)
	case stderrors.Is(err, domain.ErrOrderNotFound):
		return errors.ErrNotFound("order").Wrap(err)
	case stderrors.Is(err, domain.ErrNDRNotFound):
		return errors.ErrNotFound("ndr record").Wrap(err)
	case stderrors.Is(err, domain.ErrUserNotFound):
		return errors.ErrNotFound("user").Wrap(err)
	case stderrors.Is(err, domain.ErrWarehouseNotFound):
		return errors.ErrNotFound("warehouse").Wrap(err)
	case stderrors.Is(err, domain.ErrRemittanceNotFound):
		return errors.ErrNotFound("remittance request").Wrap(err)
	case stderrors.Is(err, domain.ErrCarrierNotFound):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrNoPricing):
		return errors.ErrBusinessRule(CodeNoPricing, err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrInvalidAmount):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrConcurrentModification):
		return errors.ErrConflict(err.Error()).Wrap(err)
	case stderrors.Is(err, tenant.ErrMissingActor), stderrors.Is(err, tenant.ErrMissingUserID):
		return errors.ErrUnauthorized(err.Error()).Wrap(err)
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return errors.ErrServiceUnavailable("carrier").Wrap(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout("carrier call").Wrap(err)
	}

	return errors.FromError(err)
}

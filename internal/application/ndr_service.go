package application

import (
	"context"
	"fmt"
	"time"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

// NDRService lists non-delivery reports and forwards shipper decisions to carriers
type NDRService struct {
	ndrs     domain.NDRRepository
	carriers CarrierDirectory
	logger   *logging.Logger
}

// NewNDRService creates a new NDRService
func NewNDRService(ndrs domain.NDRRepository, carriers CarrierDirectory, logger *logging.Logger) *NDRService {
	return &NDRService{
		ndrs:     ndrs,
		carriers: carriers,
		logger:   logger.WithComponent("ndr-service"),
	}
}

// List pages the acting user's NDR records
func (s *NDRService) List(ctx context.Context, query ListNDRQuery) ([]*domain.NDRRecord, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	records, err := s.ndrs.FindByUser(ctx, actor.UserID, domain.NDRStatus(query.Status), limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ndr records: %w", err)
	}
	return records, nil
}

// SubmitAction sends a shipper decision for the open NDR of an AWB. The
// carrier call is made once; a failed or rejected submission leaves the
// record awaiting action.
func (s *NDRService) SubmitAction(ctx context.Context, awb string, cmd NDRActionCommand) (*domain.NDRRecord, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	action := domain.NDRAction(cmd.Action)
	if !action.IsValid() {
		return nil, errors.ErrValidation(fmt.Sprintf("unknown ndr action %q", cmd.Action))
	}
	if err := validateActionData(action, cmd); err != nil {
		return nil, err
	}

	record, err := s.ndrs.FindOpenByAWB(ctx, awb)
	if err != nil {
		return nil, fmt.Errorf("failed to load ndr record: %w", err)
	}
	if record == nil || (record.UserID != actor.UserID && !actor.IsStaff()) {
		return nil, domain.ErrNDRNotFound
	}
	if record.Status != domain.NDRActionRequired {
		return nil, &domain.InvalidTransitionError{
			Entity: "ndr",
			From:   string(record.Status),
			To:     string(domain.NDRActionRequested),
			Reason: "an action was already requested",
		}
	}

	adapter, err := s.carriers.Get(record.Courier)
	if err != nil {
		return nil, err
	}

	data := cmd.data()
	result, err := adapter.SubmitNDRAction(ctx, awb, action, data)
	if err != nil {
		s.logger.WithError(err).Warn("NDR action submission failed", "awb", awb, "carrier", record.Courier, "action", action)
		return nil, errors.ErrServiceUnavailable(record.Courier).Wrap(err)
	}
	if !result.Accepted {
		return nil, errors.ErrBusinessRule(CodeCarrierRejected, fmt.Sprintf("%s rejected the %s action: %s", record.Courier, action, result.Message))
	}

	if err := record.RequestAction(action, data, actor.UserID, *result, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.ndrs.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save ndr record: %w", err)
	}

	s.logger.Event(ctx, "ndr_action_requested", map[string]any{
		"awb":       awb,
		"carrier":   record.Courier,
		"action":    string(action),
		"reference": result.Reference,
	})
	return record, nil
}

func validateActionData(action domain.NDRAction, cmd NDRActionCommand) error {
	switch action {
	case domain.NDRActionChangeAddress:
		if cmd.Address == "" {
			return errors.ErrValidationWithFields("address is required", map[string]string{"address": "is required for change_address"})
		}
	case domain.NDRActionChangePhone:
		if cmd.Phone == "" {
			return errors.ErrValidationWithFields("phone is required", map[string]string{"phone": "is required for change_phone"})
		}
	}
	return nil
}

package application

import (
	"context"
	"fmt"
	"time"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
	"github.com/lms-platform/shipping-core/pkg/money"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

// RemittanceService pays collected COD back to users
type RemittanceService struct {
	orders      domain.OrderRepository
	remittances domain.RemittanceRepository
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewRemittanceService creates a new RemittanceService
func NewRemittanceService(
	orders domain.OrderRepository,
	remittances domain.RemittanceRepository,
	logger *logging.Logger,
	m *metrics.Metrics,
) *RemittanceService {
	return &RemittanceService{
		orders:      orders,
		remittances: remittances,
		logger:      logger.WithComponent("remittance-service"),
		metrics:     m,
	}
}

// Eligibility sums a user's delivered COD orders by remittance status
func (s *RemittanceService) Eligibility(ctx context.Context, userID string) (*domain.RemittanceEligibility, error) {
	totals, err := s.orders.RemittanceTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum remittable orders: %w", err)
	}
	open, err := s.remittances.SumPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum open remittance requests: %w", err)
	}

	pending := totals[domain.RemittancePending]
	remitted := totals[domain.RemittanceRemitted]
	return &domain.RemittanceEligibility{
		UserID:           userID,
		UnremittedAmount: money.New(pending.Amount),
		UnremittedOrders: pending.Count,
		RemittedAmount:   money.New(remitted.Amount),
		RemittedOrders:   remitted.Count,
		OpenRequests:     money.New(open),
	}, nil
}

// CreateRequest asks for a payout of unremitted COD. The payee is the acting
// user unless an operator names another one.
func (s *RemittanceService) CreateRequest(ctx context.Context, cmd CreateRemittanceCommand) (*domain.RemittanceRequest, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	payee := actor.UserID
	if cmd.UserID != "" && cmd.UserID != actor.UserID {
		if !actor.IsStaff() {
			return nil, errors.ErrForbidden("only operators may request a payout for another user")
		}
		payee = cmd.UserID
	}

	eligibility, err := s.Eligibility(ctx, payee)
	if err != nil {
		return nil, err
	}

	req, err := domain.NewRemittanceRequest(payee, actor.UserID, cmd.Amount, *eligibility)
	if err != nil {
		return nil, err
	}
	if err := s.remittances.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save remittance request: %w", err)
	}

	s.logger.Event(ctx, "remittance_requested", map[string]any{
		"requestId":   req.RequestID,
		"userId":      req.UserID,
		"requestedBy": req.RequestedBy,
		"amount":      req.RequestedAmount.String(),
	})
	return req, nil
}

// Approve pays out the oldest delivered COD orders that fit in the requested
// amount and flips them to remitted together with the decision
func (s *RemittanceService) Approve(ctx context.Context, requestID string) (*domain.RemittanceRequest, error) {
	actor, req, err := s.loadForDecision(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RemittanceRequestPending {
		return nil, &domain.InvalidTransitionError{Entity: "remittance", From: string(req.Status), To: string(domain.RemittanceRequestApproved)}
	}

	orders, err := s.orders.FindRemittable(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load remittable orders: %w", err)
	}
	orderIDs, paid := domain.SelectForPayout(orders, req.RequestedAmount.Decimal)
	if len(orderIDs) == 0 {
		return nil, errors.ErrBusinessRule(CodeNothingToRemit, "no delivered COD order fits within the requested amount")
	}

	if err := req.Approve(actor.UserID, orderIDs, paid, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.remittances.Decide(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to store remittance approval: %w", err)
	}

	s.metrics.RecordRemittanceDecision(string(domain.RemittanceRequestApproved))
	s.logger.Audit(ctx, "remittance_approve", "remittance", req.RequestID, actor.UserID, map[string]any{
		"userId":    req.UserID,
		"requested": req.RequestedAmount.String(),
		"paid":      req.PaidAmount.String(),
		"orders":    len(orderIDs),
	})
	return req, nil
}

// Reject declines a pending payout request
func (s *RemittanceService) Reject(ctx context.Context, requestID string, cmd RejectRemittanceCommand) (*domain.RemittanceRequest, error) {
	actor, req, err := s.loadForDecision(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := req.Reject(actor.UserID, cmd.Remarks, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.remittances.Decide(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to store remittance rejection: %w", err)
	}

	s.metrics.RecordRemittanceDecision(string(domain.RemittanceRequestRejected))
	s.logger.Audit(ctx, "remittance_reject", "remittance", req.RequestID, actor.UserID, map[string]any{
		"userId":  req.UserID,
		"remarks": cmd.Remarks,
	})
	return req, nil
}

func (s *RemittanceService) loadForDecision(ctx context.Context, requestID string) (*tenant.Context, *domain.RemittanceRequest, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsStaff() {
		return nil, nil, errors.ErrForbidden("only operators may decide remittance requests")
	}

	req, err := s.remittances.FindByID(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load remittance request: %w", err)
	}
	if req == nil {
		return nil, nil, domain.ErrRemittanceNotFound
	}
	return actor, req, nil
}

package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

// RecomputeResult summarises one metrics recomputation
type RecomputeResult struct {
	Users  int `json:"users"`
	Failed int `json:"failed"`
}

// UserMetricsService maintains the dashboard summary of every user
type UserMetricsService struct {
	shipments domain.ShipmentRepository
	ndrs      domain.NDRRepository
	orders    domain.OrderRepository
	store     domain.UserMetricsRepository
	logger    *logging.Logger
}

// NewUserMetricsService creates a new UserMetricsService
func NewUserMetricsService(
	shipments domain.ShipmentRepository,
	ndrs domain.NDRRepository,
	orders domain.OrderRepository,
	store domain.UserMetricsRepository,
	logger *logging.Logger,
) *UserMetricsService {
	return &UserMetricsService{
		shipments: shipments,
		ndrs:      ndrs,
		orders:    orders,
		store:     store,
		logger:    logger.WithComponent("user-metrics"),
	}
}

// RecomputeAll rebuilds the summary of every user that has shipments or open
// NDRs. Upserts make concurrent or repeated runs safe.
func (s *UserMetricsService) RecomputeAll(ctx context.Context) (*RecomputeResult, error) {
	start := time.Now()

	counts, err := s.shipments.CountByUserAndStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count shipments: %w", err)
	}
	openNDRs, err := s.ndrs.CountOpenByUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count open ndrs: %w", err)
	}

	byUser := make(map[string][]domain.StatusCount)
	for _, c := range counts {
		byUser[c.UserID] = append(byUser[c.UserID], c)
	}
	for userID := range openNDRs {
		if _, ok := byUser[userID]; !ok {
			byUser[userID] = nil
		}
	}

	users := make([]string, 0, len(byUser))
	for userID := range byUser {
		users = append(users, userID)
	}
	sort.Strings(users)

	result := &RecomputeResult{}
	for _, userID := range users {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := s.recompute(ctx, userID, byUser[userID], openNDRs[userID]); err != nil {
			result.Failed++
			s.logger.WithError(err).Warn("Failed to recompute user metrics", "userId", userID)
			continue
		}
		result.Users++
	}

	s.logger.Performance(ctx, "recompute_user_metrics", time.Since(start), result.Failed == 0, map[string]any{
		"users":  result.Users,
		"failed": result.Failed,
	})
	return result, nil
}

func (s *UserMetricsService) recompute(ctx context.Context, userID string, counts []domain.StatusCount, openNDRs int64) error {
	totals, err := s.orders.RemittanceTotals(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to sum remittance totals: %w", err)
	}
	m := domain.NewUserMetrics(userID, counts, openNDRs, totals[domain.RemittancePending].Amount, time.Now().UTC())
	return s.store.Upsert(ctx, m)
}

// Get returns the last computed summary of the acting user
func (s *UserMetricsService) Get(ctx context.Context) (*domain.UserMetrics, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	m, err := s.store.FindByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user metrics: %w", err)
	}
	if m == nil {
		return nil, errors.ErrNotFound("user metrics")
	}
	return m, nil
}

// WalletService reads wallet balances
type WalletService struct {
	wallet domain.WalletRepository
}

// NewWalletService creates a new WalletService
func NewWalletService(wallet domain.WalletRepository) *WalletService {
	return &WalletService{wallet: wallet}
}

// GetBalance returns the acting user's wallet
func (s *WalletService) GetBalance(ctx context.Context) (*WalletDTO, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.wallet.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return &WalletDTO{UserID: user.UserID, CustomerType: user.CustomerType, Balance: user.WalletBalance}, nil
}

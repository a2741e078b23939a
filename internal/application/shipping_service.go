package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
	"github.com/lms-platform/shipping-core/pkg/money"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

const defaultPageSize = 20

// ShippingService creates shipments and moves money for them
type ShippingService struct {
	orders     domain.OrderRepository
	shipments  domain.ShipmentRepository
	wallet     domain.WalletRepository
	warehouses domain.WarehouseRepository
	rates      *RateService
	carriers   CarrierDirectory
	logger     *logging.Logger
	metrics    *metrics.Metrics
	newID      func() string
}

// NewShippingService creates a new ShippingService
func NewShippingService(
	orders domain.OrderRepository,
	shipments domain.ShipmentRepository,
	wallet domain.WalletRepository,
	warehouses domain.WarehouseRepository,
	rates *RateService,
	carriers CarrierDirectory,
	logger *logging.Logger,
	m *metrics.Metrics,
) *ShippingService {
	return &ShippingService{
		orders:     orders,
		shipments:  shipments,
		wallet:     wallet,
		warehouses: warehouses,
		rates:      rates,
		carriers:   carriers,
		logger:     logger.WithComponent("shipping-service"),
		metrics:    m,
		newID:      func() string { return "SHP-" + uuid.New().String() },
	}
}

// CreateOrder registers an order owned by the acting user
func (s *ShippingService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if existing != nil {
		return nil, errors.ErrConflict(fmt.Sprintf("order %s already exists", cmd.OrderID))
	}

	order, err := domain.NewOrder(
		cmd.OrderID,
		actor.UserID,
		domain.OrderType(cmd.OrderType),
		cmd.CollectableValue,
		cmd.DeclaredValue,
		cmd.WeightKg,
		cmd.Dimensions,
		cmd.Consignee,
	)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.Info("Order created", "orderId", order.OrderID, "userId", actor.UserID, "orderType", order.OrderType)
	return order, nil
}

type plannedShipment struct {
	shipmentID string
	order      *domain.Order
	charge     domain.ChargeBreakdown
}

// CreateForwardShipments ships every valid order of the batch with the
// selected carrier service. Invalid orders are reported and skipped. The
// batch total is debited once; orders whose booking fails afterwards are
// refunded individually.
func (s *ShippingService) CreateForwardShipments(ctx context.Context, cmd CreateForwardShipmentsCommand) (*CreateShipmentsResult, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	pickup, err := s.getWarehouse(ctx, actor.UserID, cmd.PickupWarehouseID)
	if err != nil {
		return nil, err
	}
	rto, err := s.getWarehouse(ctx, actor.UserID, cmd.RTOWarehouseID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.carriers.Get(cmd.CarrierName)
	if err != nil {
		return nil, err
	}

	orderIDs := dedupe(cmd.OrderIDs)
	found, err := s.orders.FindByIDs(ctx, actor.UserID, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	byID := make(map[string]*domain.Order, len(found))
	for _, o := range found {
		byID[o.OrderID] = o
	}

	result := &CreateShipmentsResult{
		Shipments: []*domain.Shipment{},
		Debited:   money.Zero(),
		Refunded:  money.Zero(),
	}

	var planned []plannedShipment
	for _, id := range orderIDs {
		order := byID[id]
		if order == nil {
			result.Failed = append(result.Failed, OrderFailure{OrderID: id, Code: errors.CodeNotFound, Message: "order not found"})
			continue
		}
		if order.Shipped {
			result.Failed = append(result.Failed, OrderFailure{
				OrderID: id,
				Code:    CodeOrderShipped,
				Message: fmt.Sprintf("order is already bound to shipment %s", order.ShipmentID),
			})
			continue
		}
		if err := order.Validate(); err != nil {
			result.Failed = append(result.Failed, orderFailure(id, err))
			continue
		}

		charge, err := s.rates.QuoteFor(ctx, RateQueryForOrder(order, pickup, domain.DirectionForward), user.CustomerType, cmd.CarrierName, cmd.ServiceType)
		if err != nil {
			result.Failed = append(result.Failed, orderFailure(id, err))
			continue
		}
		planned = append(planned, plannedShipment{shipmentID: s.newID(), order: order, charge: *charge})
	}

	planned = s.claimOrders(ctx, planned, result)
	if len(planned) == 0 {
		s.logger.Warn("No order in batch can be shipped", "userId", actor.UserID, "failed", len(result.Failed))
		return result, nil
	}

	tx, err := s.debitBatch(ctx, actor, planned)
	if err != nil {
		s.releaseClaims(ctx, planned)
		return nil, err
	}
	result.TransactionID = tx.TransactionID
	result.Debited = tx.Amount

	var refund []plannedShipment
	for _, p := range planned {
		shipment, err := s.bookShipment(ctx, adapter, p, pickup, rto, tx.TransactionID, false)
		if err != nil {
			s.logger.WithError(err).Error("Failed to create shipment after debit",
				"orderId", p.order.OrderID,
				"shipmentId", p.shipmentID,
				"transactionId", tx.TransactionID,
			)
			s.releaseClaims(ctx, []plannedShipment{p})
			result.Failed = append(result.Failed, orderFailure(p.order.OrderID, err))
			refund = append(refund, p)
			continue
		}

		if err := s.orders.MarkShipped(ctx, p.order.OrderID, shipment.ShipmentID, shipment.AWB); err != nil {
			if !stderrors.Is(err, domain.ErrConcurrentModification) {
				s.logger.WithError(err).Error("Failed to mark order shipped",
					"orderId", p.order.OrderID,
					"shipmentId", shipment.ShipmentID,
				)
				result.Shipments = append(result.Shipments, shipment)
				continue
			}
			if !s.unwindBooking(ctx, adapter, shipment) {
				result.Shipments = append(result.Shipments, shipment)
				continue
			}
			result.Failed = append(result.Failed, OrderFailure{
				OrderID: p.order.OrderID,
				Code:    CodeOrderShipped,
				Message: "order was shipped by another request",
			})
			refund = append(refund, p)
			continue
		}
		result.Shipments = append(result.Shipments, shipment)
	}

	if len(refund) > 0 {
		result.Refunded = s.refundFailed(ctx, actor, tx, refund)
	}

	s.logger.Info("Forward shipments created",
		"userId", actor.UserID,
		"carrier", cmd.CarrierName,
		"created", len(result.Shipments),
		"failed", len(result.Failed),
		"debited", result.Debited.String(),
		"refunded", result.Refunded.String(),
	)
	return result, nil
}

// claimOrders reserves every planned order for its shipment id. Orders held
// by a concurrent batch are reported as failures and dropped from the plan.
func (s *ShippingService) claimOrders(ctx context.Context, planned []plannedShipment, result *CreateShipmentsResult) []plannedShipment {
	claimed := planned[:0]
	for _, p := range planned {
		ok, err := s.orders.Claim(ctx, p.order.OrderID, p.shipmentID)
		if err != nil {
			result.Failed = append(result.Failed, orderFailure(p.order.OrderID, fmt.Errorf("failed to claim order: %w", err)))
			continue
		}
		if !ok {
			result.Failed = append(result.Failed, OrderFailure{
				OrderID: p.order.OrderID,
				Code:    CodeOrderShipped,
				Message: "order is being shipped by another request",
			})
			continue
		}
		claimed = append(claimed, p)
	}
	return claimed
}

func (s *ShippingService) releaseClaims(ctx context.Context, planned []plannedShipment) {
	for _, p := range planned {
		if err := s.orders.Release(ctx, p.order.OrderID, p.shipmentID); err != nil {
			s.logger.WithError(err).Warn("Failed to release order claim",
				"orderId", p.order.OrderID,
				"shipmentId", p.shipmentID,
			)
		}
	}
}

// unwindBooking cancels a shipment whose order was taken by another batch.
// It reports false when the carrier kept the booking, in which case the
// shipment stays live and nothing is refunded.
func (s *ShippingService) unwindBooking(ctx context.Context, adapter domain.CarrierAdapter, shipment *domain.Shipment) bool {
	if err := adapter.Cancel(ctx, shipment.AWB); err != nil {
		s.logger.WithError(err).Error("Failed to cancel duplicate booking with carrier",
			"shipmentId", shipment.ShipmentID,
			"awb", shipment.AWB,
		)
		return false
	}
	if err := shipment.Cancel(time.Now().UTC(), "order shipped by another request"); err != nil {
		s.logger.WithError(err).Error("Failed to cancel duplicate shipment", "shipmentId", shipment.ShipmentID)
		return false
	}
	if err := s.shipments.Save(ctx, shipment); err != nil {
		s.logger.WithError(err).Error("Failed to save cancelled duplicate shipment", "shipmentId", shipment.ShipmentID)
	}
	s.metrics.RecordShipmentTransition(string(domain.ShipmentStatusShipped), string(domain.ShipmentStatusCancelled))
	return true
}

func (s *ShippingService) debitBatch(ctx context.Context, actor *tenant.Context, planned []plannedShipment) (*domain.Transaction, error) {
	total := decimal.Zero
	orderIDs := make([]string, 0, len(planned))
	shipmentIDs := make([]string, 0, len(planned))
	for _, p := range planned {
		total = total.Add(p.charge.Settled().Decimal)
		orderIDs = append(orderIDs, p.order.OrderID)
		shipmentIDs = append(shipmentIDs, p.shipmentID)
	}

	tx, err := domain.NewTransaction(actor.UserID, domain.TransactionDebit, total, orderIDs, "forward-shipments",
		fmt.Sprintf("Shipping charges for %d orders", len(orderIDs)))
	if err != nil {
		return nil, err
	}
	tx.ShipmentIDs = shipmentIDs
	tx.ActorID = actor.UserID

	if err := s.wallet.Debit(ctx, tx); err != nil {
		s.metrics.RecordWalletMovement(string(domain.TransactionDebit), false, 0)
		var balanceErr *domain.InsufficientWalletBalanceError
		if stderrors.As(err, &balanceErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}

	amount, _ := tx.Amount.Float64()
	s.metrics.RecordWalletMovement(string(domain.TransactionDebit), true, amount)
	s.logger.Audit(ctx, "wallet_debit", "wallet", actor.UserID, actor.UserID, map[string]any{
		"transactionId": tx.TransactionID,
		"amount":        tx.Amount.String(),
		"orders":        len(orderIDs),
	})
	return tx, nil
}

// bookShipment obtains an AWB and persists the shipped shipment
func (s *ShippingService) bookShipment(
	ctx context.Context,
	adapter domain.CarrierAdapter,
	p plannedShipment,
	pickup, ret *domain.Warehouse,
	transactionID string,
	reverse bool,
) (*domain.Shipment, error) {
	booking, err := adapter.Book(ctx, domain.BookingRequest{
		ShipmentID:  p.shipmentID,
		ServiceType: p.charge.ServiceType,
		Order:       p.order,
		Pickup:      pickup,
		Return:      ret,
		WeightKg:    bookingWeight(p),
		Reverse:     reverse,
	})
	if err != nil {
		return nil, fmt.Errorf("carrier booking failed: %w", err)
	}

	partner := domain.PartnerDetails{
		CarrierName: adapter.Name(),
		ServiceType: p.charge.ServiceType,
		Charges:     p.charge,
	}
	shipment := domain.NewShipment(p.shipmentID, p.order.UserID, []string{p.order.OrderID}, partner, reverse, pickup.WarehouseID, ret.WarehouseID)
	shipment.TransactionID = transactionID
	if err := shipment.MarkShipped(booking.AWB, booking.BookedAt); err != nil {
		return nil, err
	}
	if err := s.shipments.Save(ctx, shipment); err != nil {
		return nil, fmt.Errorf("failed to save shipment: %w", err)
	}

	direction := string(domain.DirectionForward)
	if reverse {
		direction = string(domain.DirectionReverse)
	}
	s.metrics.RecordShipmentCreated(adapter.Name(), direction)
	s.metrics.RecordShipmentTransition(string(domain.ShipmentStatusPending), string(domain.ShipmentStatusShipped))
	return shipment, nil
}

// refundFailed credits back the charges of orders that were debited but not shipped
func (s *ShippingService) refundFailed(ctx context.Context, actor *tenant.Context, debit *domain.Transaction, failed []plannedShipment) money.Amount {
	total := decimal.Zero
	orderIDs := make([]string, 0, len(failed))
	for _, p := range failed {
		total = total.Add(p.charge.Settled().Decimal)
		orderIDs = append(orderIDs, p.order.OrderID)
	}

	tx, err := s.credit(ctx, actor, total, orderIDs, debit.TransactionID, "Refund for orders not shipped")
	if err != nil {
		s.logger.WithError(err).Error("Failed to refund unshipped orders",
			"userId", actor.UserID,
			"debitTransactionId", debit.TransactionID,
			"amount", money.New(total).String(),
		)
		return money.Zero()
	}
	return tx.Amount
}

func (s *ShippingService) credit(ctx context.Context, actor *tenant.Context, amount decimal.Decimal, orderIDs []string, reference, description string) (*domain.Transaction, error) {
	tx, err := domain.NewTransaction(actor.UserID, domain.TransactionRefund, amount, orderIDs, reference, description)
	if err != nil {
		return nil, err
	}
	tx.ActorID = actor.UserID

	if err := s.wallet.Credit(ctx, tx); err != nil {
		s.metrics.RecordWalletMovement(string(domain.TransactionRefund), false, 0)
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	rupees, _ := tx.Amount.Float64()
	s.metrics.RecordWalletMovement(string(domain.TransactionRefund), true, rupees)
	s.logger.Audit(ctx, "wallet_refund", "wallet", tx.UserID, actor.UserID, map[string]any{
		"transactionId": tx.TransactionID,
		"reference":     reference,
		"amount":        tx.Amount.String(),
	})
	return tx, nil
}

// CreateReverseShipment books the return of a delivered order to a warehouse
func (s *ShippingService) CreateReverseShipment(ctx context.Context, cmd CreateReverseShipmentCommand) (*domain.Shipment, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil || order.UserID != actor.UserID {
		return nil, domain.ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusDelivered {
		return nil, &domain.InvalidTransitionError{
			Entity: "order",
			From:   string(order.Status),
			To:     "return",
			Reason: "only delivered orders can be returned",
		}
	}
	warehouse, err := s.getWarehouse(ctx, actor.UserID, cmd.ReturnWarehouseID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.carriers.Get(cmd.CarrierName)
	if err != nil {
		return nil, err
	}

	charge, err := s.rates.QuoteFor(ctx, RateQueryForOrder(order, warehouse, domain.DirectionReverse), user.CustomerType, cmd.CarrierName, cmd.ServiceType)
	if err != nil {
		return nil, err
	}

	p := plannedShipment{shipmentID: s.newID(), order: order, charge: *charge}
	tx, err := s.debitBatch(ctx, actor, []plannedShipment{p})
	if err != nil {
		return nil, err
	}

	shipment, err := s.bookShipment(ctx, adapter, p, warehouse, warehouse, tx.TransactionID, true)
	if err != nil {
		s.refundFailed(ctx, actor, tx, []plannedShipment{p})
		return nil, err
	}

	s.logger.Info("Reverse shipment created", "shipmentId", shipment.ShipmentID, "orderId", order.OrderID, "awb", shipment.AWB)
	return shipment, nil
}

// CancelShipment cancels a pending or shipped shipment and refunds its frozen
// charge. A booked shipment is cancelled with its carrier first; a refusal
// leaves the shipment untouched.
func (s *ShippingService) CancelShipment(ctx context.Context, shipmentID string, cmd CancelShipmentCommand) (*domain.Shipment, error) {
	actor, shipment, err := s.loadForActor(ctx, shipmentID)
	if err != nil {
		return nil, err
	}

	from := shipment.Status
	if !from.CanTransitionTo(domain.ShipmentStatusCancelled) {
		return nil, &domain.InvalidTransitionError{Entity: "shipment", From: string(from), To: string(domain.ShipmentStatusCancelled)}
	}
	if from == domain.ShipmentStatusShipped && shipment.AWB != "" {
		adapter, err := s.carriers.Get(shipment.PartnerDetails.CarrierName)
		if err != nil {
			return nil, err
		}
		if err := adapter.Cancel(ctx, shipment.AWB); err != nil {
			s.logger.WithError(err).Warn("Carrier did not cancel shipment",
				"shipmentId", shipmentID,
				"awb", shipment.AWB,
				"carrier", adapter.Name(),
			)
			return nil, err
		}
	}

	if err := shipment.Cancel(time.Now().UTC(), cmd.Remarks); err != nil {
		return nil, err
	}
	if err := s.shipments.Save(ctx, shipment); err != nil {
		return nil, fmt.Errorf("failed to save shipment: %w", err)
	}
	s.metrics.RecordShipmentTransition(string(from), string(shipment.Status))

	if !shipment.Reverse {
		if err := s.orders.UpdateStatus(ctx, shipment.OrderIDs, domain.OrderStatusCancelled, nil); err != nil {
			s.logger.WithError(err).Error("Failed to mirror cancellation onto orders", "shipmentId", shipmentID)
		}
	}

	charge := shipment.PartnerDetails.Charges.Settled()
	if charge.IsPositive() {
		owner := &tenant.Context{UserID: shipment.UserID, Role: actor.Role}
		if _, err := s.credit(ctx, owner, charge.Decimal, shipment.OrderIDs, shipment.ShipmentID, "Refund for cancelled shipment "+shipment.ShipmentID); err != nil {
			s.logger.WithError(err).Error("Failed to refund cancelled shipment", "shipmentId", shipmentID)
		}
	}

	s.logger.Info("Shipment cancelled", "shipmentId", shipmentID, "actorId", actor.UserID)
	return shipment, nil
}

// PromoteToRTC closes a returned shipment. Only operators may promote.
func (s *ShippingService) PromoteToRTC(ctx context.Context, shipmentID string, cmd PromoteToRTCCommand) (*domain.Shipment, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipment: %w", err)
	}
	if shipment == nil {
		return nil, domain.ErrShipmentNotFound
	}

	if err := shipment.PromoteToRTC(actor, time.Now().UTC(), cmd.Remarks); err != nil {
		return nil, err
	}
	if err := s.shipments.Save(ctx, shipment); err != nil {
		return nil, fmt.Errorf("failed to save shipment: %w", err)
	}
	s.metrics.RecordShipmentTransition(string(domain.ShipmentStatusRTO), string(domain.ShipmentStatusRTC))

	if !shipment.Reverse {
		if err := s.orders.UpdateStatus(ctx, shipment.OrderIDs, domain.OrderStatusRTC, nil); err != nil {
			s.logger.WithError(err).Error("Failed to mirror rtc onto orders", "shipmentId", shipmentID)
		}
	}

	s.logger.Audit(ctx, "promote_rtc", "shipment", shipmentID, actor.UserID, map[string]any{
		"role":    actor.Role,
		"awb":     shipment.AWB,
		"remarks": cmd.Remarks,
	})
	return shipment, nil
}

// GetShipment returns a shipment visible to the acting user
func (s *ShippingService) GetShipment(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	_, shipment, err := s.loadForActor(ctx, shipmentID)
	return shipment, err
}

// ListShipments pages the acting user's shipments, optionally by status
func (s *ShippingService) ListShipments(ctx context.Context, query ListShipmentsQuery) ([]*domain.Shipment, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	shipments, err := s.shipments.FindByUser(ctx, actor.UserID, domain.ShipmentStatus(query.Status), limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	return shipments, nil
}

// loadForActor returns a shipment owned by the actor. Operators see every shipment.
func (s *ShippingService) loadForActor(ctx context.Context, shipmentID string) (*tenant.Context, *domain.Shipment, error) {
	actor, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load shipment: %w", err)
	}
	if shipment == nil || (shipment.UserID != actor.UserID && !actor.IsStaff()) {
		return nil, nil, domain.ErrShipmentNotFound
	}
	return actor, shipment, nil
}

func (s *ShippingService) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.wallet.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *ShippingService) getWarehouse(ctx context.Context, userID, warehouseID string) (*domain.Warehouse, error) {
	wh, err := s.warehouses.FindByID(ctx, userID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load warehouse: %w", err)
	}
	if wh == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrWarehouseNotFound, warehouseID)
	}
	return wh, nil
}

func orderFailure(orderID string, err error) OrderFailure {
	appErr := ToAppError(err)
	f := OrderFailure{OrderID: orderID, Code: appErr.Code, Message: err.Error()}

	var orderErr *domain.OrderValidationError
	if stderrors.As(err, &orderErr) {
		f.Code = CodeOrderInvalid
		f.Fields = orderErr.Fields
	}
	if appErr.Code == errors.CodeInternalError {
		f.Code = CodeBookingFailed
	}
	return f
}

func bookingWeight(p plannedShipment) decimal.Decimal {
	if p.charge.ChargedWeight > 0 {
		return decimal.NewFromFloat(p.charge.ChargedWeight)
	}
	actual := decimal.NewFromFloat(p.order.ActualWeightKg)
	return decimal.Max(actual, decimal.NewFromFloat(p.order.VolumetricWeightKg()))
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lms-platform/shipping-core/internal/application"
	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/middleware"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

// RateQuoter compares rates for a pricing tier
type RateQuoter interface {
	Aggregate(ctx context.Context, q application.RateQuery, tier string) (*application.RateResult, error)
}

// BalanceReader reads the acting user's account
type BalanceReader interface {
	GetBalance(ctx context.Context) (*application.WalletDTO, error)
}

// ShipmentManager is the shipment lifecycle surface
type ShipmentManager interface {
	CreateOrder(ctx context.Context, cmd application.CreateOrderCommand) (*domain.Order, error)
	CreateForwardShipments(ctx context.Context, cmd application.CreateForwardShipmentsCommand) (*application.CreateShipmentsResult, error)
	CreateReverseShipment(ctx context.Context, cmd application.CreateReverseShipmentCommand) (*domain.Shipment, error)
	CancelShipment(ctx context.Context, shipmentID string, cmd application.CancelShipmentCommand) (*domain.Shipment, error)
	PromoteToRTC(ctx context.Context, shipmentID string, cmd application.PromoteToRTCCommand) (*domain.Shipment, error)
	GetShipment(ctx context.Context, shipmentID string) (*domain.Shipment, error)
	ListShipments(ctx context.Context, query application.ListShipmentsQuery) ([]*domain.Shipment, error)
}

// ShippingHandler handles rate, order and shipment requests
type ShippingHandler struct {
	rates     RateQuoter
	accounts  BalanceReader
	shipments ShipmentManager
	logger    *logging.Logger
}

// NewShippingHandler creates a new ShippingHandler
func NewShippingHandler(rates RateQuoter, accounts BalanceReader, shipments ShipmentManager, logger *logging.Logger) *ShippingHandler {
	return &ShippingHandler{
		rates:     rates,
		accounts:  accounts,
		shipments: shipments,
		logger:    logger,
	}
}

// CompareRates handles POST /api/v1/rates. Operators may price for any tier with ?tier=.
func (h *ShippingHandler) CompareRates(c *gin.Context) {
	var q application.RateQuery
	if !bindBody(c, h.logger, &q) {
		return
	}

	ctx := c.Request.Context()
	tier := c.Query("tier")
	if tier == "" || !tenant.FromContextOptional(ctx).IsStaff() {
		account, err := h.accounts.GetBalance(ctx)
		if err != nil {
			fail(c, h.logger, err)
			return
		}
		tier = account.CustomerType
	}

	middleware.Annotate(c,
		attribute.String("rate.tier", tier),
		attribute.String("rate.origin", q.OriginPincode),
		attribute.String("rate.destination", q.DestinationPincode),
	)

	result, err := h.rates.Aggregate(ctx, q, tier)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CreateOrder handles POST /api/v1/orders
func (h *ShippingHandler) CreateOrder(c *gin.Context) {
	var cmd application.CreateOrderCommand
	if !bindBody(c, h.logger, &cmd) {
		return
	}

	order, err := h.shipments.CreateOrder(c.Request.Context(), cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// CreateForwardShipments handles POST /api/v1/shipments/forward. A batch where
// only some orders shipped answers 207; one where none did answers 422.
func (h *ShippingHandler) CreateForwardShipments(c *gin.Context) {
	var cmd application.CreateForwardShipmentsCommand
	if !bindBody(c, h.logger, &cmd) {
		return
	}

	middleware.Annotate(c,
		attribute.String("shipment.carrier", cmd.CarrierName),
		attribute.Int("orders.count", len(cmd.OrderIDs)),
	)

	result, err := h.shipments.CreateForwardShipments(c.Request.Context(), cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	switch {
	case result.Partial():
		status = http.StatusMultiStatus
	case len(result.Shipments) == 0:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"data": result})
}

// CreateReverseShipment handles POST /api/v1/shipments/reverse
func (h *ShippingHandler) CreateReverseShipment(c *gin.Context) {
	var cmd application.CreateReverseShipmentCommand
	if !bindBody(c, h.logger, &cmd) {
		return
	}

	shipment, err := h.shipments.CreateReverseShipment(c.Request.Context(), cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": shipment})
}

// GetShipment handles GET /api/v1/shipments/:shipmentId
func (h *ShippingHandler) GetShipment(c *gin.Context) {
	shipment, err := h.shipments.GetShipment(c.Request.Context(), c.Param("shipmentId"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": shipment})
}

// ListShipments handles GET /api/v1/shipments
func (h *ShippingHandler) ListShipments(c *gin.Context) {
	var query application.ListShipmentsQuery
	if !bindQuery(c, h.logger, &query) {
		return
	}

	shipments, err := h.shipments.ListShipments(c.Request.Context(), query)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": shipments, "count": len(shipments)})
}

// CancelShipment handles POST /api/v1/shipments/:shipmentId/cancel
func (h *ShippingHandler) CancelShipment(c *gin.Context) {
	var cmd application.CancelShipmentCommand
	if c.Request.ContentLength > 0 && !bindBody(c, h.logger, &cmd) {
		return
	}

	shipment, err := h.shipments.CancelShipment(c.Request.Context(), c.Param("shipmentId"), cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": shipment})
}

// PromoteToRTC handles POST /api/v1/shipments/:shipmentId/rtc
func (h *ShippingHandler) PromoteToRTC(c *gin.Context) {
	var cmd application.PromoteToRTCCommand
	if c.Request.ContentLength > 0 && !bindBody(c, h.logger, &cmd) {
		return
	}

	shipment, err := h.shipments.PromoteToRTC(c.Request.Context(), c.Param("shipmentId"), cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": shipment})
}

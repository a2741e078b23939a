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

// NDRManager lists and acts on failed deliveries
type NDRManager interface {
	List(ctx context.Context, query application.ListNDRQuery) ([]*domain.NDRRecord, error)
	SubmitAction(ctx context.Context, awb string, cmd application.NDRActionCommand) (*domain.NDRRecord, error)
}

// RemittanceManager handles COD payouts
type RemittanceManager interface {
	Eligibility(ctx context.Context, userID string) (*domain.RemittanceEligibility, error)
	CreateRequest(ctx context.Context, cmd application.CreateRemittanceCommand) (*domain.RemittanceRequest, error)
	Approve(ctx context.Context, requestID string) (*domain.RemittanceRequest, error)
	Reject(ctx context.Context, requestID string, cmd application.RejectRemittanceCommand) (*domain.RemittanceRequest, error)
}

// MetricsReader returns the acting user's dashboard summary
type MetricsReader interface {
	Get(ctx context.Context) (*domain.UserMetrics, error)
}

// OperationsHandler handles NDR, remittance, wallet and dashboard requests
type OperationsHandler struct {
	ndrs        NDRManager
	remittances RemittanceManager
	accounts    BalanceReader
	metrics     MetricsReader
	logger      *logging.Logger
}

// NewOperationsHandler creates a new OperationsHandler
func NewOperationsHandler(ndrs NDRManager, remittances RemittanceManager, accounts BalanceReader, metrics MetricsReader, logger *logging.Logger) *OperationsHandler {
	return &OperationsHandler{
		ndrs:        ndrs,
		remittances: remittances,
		accounts:    accounts,
		metrics:     metrics,
		logger:      logger,
	}
}

// ListNDR handles GET /api/v1/ndr
func (h *OperationsHandler) ListNDR(c *gin.Context) {
	var query application.ListNDRQuery
	if !bindQuery(c, h.logger, &query) {
		return
	}

	records, err := h.ndrs.List(c.Request.Context(), query)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records, "count": len(records)})
}

// SubmitNDRAction handles POST /api/v1/ndr/:awb/action
func (h *OperationsHandler) SubmitNDRAction(c *gin.Context) {
	var cmd application.NDRActionCommand
	if !bindBody(c, h.logger, &cmd) {
		return
	}

	awb := c.Param("awb")
	middleware.Annotate(c,
		attribute.String("ndr.awb", awb),
		attribute.String("ndr.action", cmd.Action),
	)

	record, err := h.ndrs.SubmitAction(c.Request.Context(), awb, cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// RemittanceEligibility handles GET /api/v1/remittance/eligibility. Operators
// may look at another user with ?userId=.
func (h *OperationsHandler) RemittanceEligibility(c *gin.Context) {
	actor, err := tenant.FromContext(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	userID := actor.UserID
	if other := c.Query("userId"); other != "" && actor.IsStaff() {
		userID = other
	}

	eligibility, err := h.remittances.Eligibility(c.Request.Context(), userID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"eligibility": eligibility,
		"available":   eligibility.Available().StringFixed(2),
	}})
}

// CreateRemittance handles POST /api/v1/remittance
func (h *OperationsHandler) CreateRemittance(c *gin.Context) {
	var cmd application.CreateRemittanceCommand
	if !bindBody(c, h.logger, &cmd) {
		return
	}

	req, err := h.remittances.CreateRequest(c.Request.Context(), cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": req})
}

// ApproveRemittance handles POST /api/v1/remittance/:requestId/approve
func (h *OperationsHandler) ApproveRemittance(c *gin.Context) {
	req, err := h.remittances.Approve(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": req})
}

// RejectRemittance handles POST /api/v1/remittance/:requestId/reject
func (h *OperationsHandler) RejectRemittance(c *gin.Context) {
	var cmd application.RejectRemittanceCommand
	if !bindBody(c, h.logger, &cmd) {
		return
	}

	req, err := h.remittances.Reject(c.Request.Context(), c.Param("requestId"), cmd)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": req})
}

// GetWallet handles GET /api/v1/wallet
func (h *OperationsHandler) GetWallet(c *gin.Context) {
	wallet, err := h.accounts.GetBalance(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": wallet})
}

// GetMyMetrics handles GET /api/v1/metrics/me
func (h *OperationsHandler) GetMyMetrics(c *gin.Context) {
	m, err := h.metrics.Get(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": m})
}

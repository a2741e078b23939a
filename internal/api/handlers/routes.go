package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/lms-platform/shipping-core/pkg/middleware"
)

// RegisterRoutes mounts the v1 API. Every route requires the gateway actor headers.
func RegisterRoutes(v1 *gin.RouterGroup, shipping *ShippingHandler, ops *OperationsHandler) {
	v1.Use(middleware.Actor())

	v1.POST("/rates", shipping.CompareRates)
	v1.POST("/orders", shipping.CreateOrder)

	shipments := v1.Group("/shipments")
	{
		shipments.GET("", shipping.ListShipments)
		shipments.POST("/forward", shipping.CreateForwardShipments)
		shipments.POST("/reverse", shipping.CreateReverseShipment)
		shipments.GET("/:shipmentId", shipping.GetShipment)
		shipments.POST("/:shipmentId/cancel", shipping.CancelShipment)
		shipments.POST("/:shipmentId/rtc", shipping.PromoteToRTC)
	}

	ndr := v1.Group("/ndr")
	{
		ndr.GET("", ops.ListNDR)
		ndr.POST("/:awb/action", ops.SubmitNDRAction)
	}

	remittance := v1.Group("/remittance")
	{
		remittance.GET("/eligibility", ops.RemittanceEligibility)
		remittance.POST("", ops.CreateRemittance)
		remittance.POST("/:requestId/approve", middleware.RequireStaff(), ops.ApproveRemittance)
		remittance.POST("/:requestId/reject", middleware.RequireStaff(), ops.RejectRemittance)
	}

	v1.GET("/wallet", ops.GetWallet)
	v1.GET("/metrics/me", ops.GetMyMetrics)
}

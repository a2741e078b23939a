package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/lms-platform/shipping-core/internal/application"
	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/middleware"
)

// fail renders err through the shared error mapping
func fail(c *gin.Context, logger *logging.Logger, err error) {
	middleware.RespondError(c, logger, application.ToAppError(err))
}

// bindQuery binds query parameters and reports validation failures
func bindQuery(c *gin.Context, logger *logging.Logger, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		middleware.RespondError(c, logger, errors.ErrBadRequest("invalid query: "+err.Error()))
		return false
	}
	return true
}

func bindBody(c *gin.Context, logger *logging.Logger, obj any) bool {
	if appErr := middleware.BindAndValidate(c, obj); appErr != nil {
		middleware.RespondError(c, logger, appErr)
		return false
	}
	return true
}

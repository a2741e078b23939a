package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/tenant"
)

// Actor reads the gateway identity headers into the request context.
// Requests without a valid actor are rejected with 401.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := &tenant.Context{
			UserID: c.GetHeader(tenant.HeaderUserID),
			Role:   c.GetHeader(tenant.HeaderUserRole),
		}
		if tc.Role == "" {
			tc.Role = tenant.RoleUser
		}

		if err := tc.Validate(); err != nil {
			AbortWithAppError(c, errors.ErrUnauthorized(err.Error()))
			return
		}

		ctx := tenant.ToContext(c.Request.Context(), tc)
		ctx = logging.ContextWithUserID(ctx, tc.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireStaff rejects actors that are not support, admin or superadmin
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenant.FromContextOptional(c.Request.Context())
		if !tc.IsStaff() {
			AbortWithAppError(c, errors.ErrForbidden("operator role required"))
			return
		}
		c.Next()
	}
}

package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lms-platform/shipping-core/pkg/errors"
	"github.com/lms-platform/shipping-core/pkg/logging"
)

// APIErrorResponse is the body of every non-2xx response
type APIErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
}

func errorBody(c *gin.Context, appErr *errors.AppError) APIErrorResponse {
	return APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	}
}

// ErrorHandler renders the last error a handler attached with c.Error,
// unless the handler already wrote a response
func ErrorHandler(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			RespondError(c, logger, c.Errors.Last().Err)
		}
	}
}

// RespondError logs err and writes it as an APIErrorResponse. Errors that
// are not AppErrors become INTERNAL_ERROR.
func RespondError(c *gin.Context, logger *logging.Logger, err error) {
	appErr := errors.FromError(err)

	level := slog.LevelWarn
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	l := logger.WithError(appErr.Err).WithFields(map[string]any{
		"code":   appErr.Code,
		"status": appErr.HTTPStatus,
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	})
	if len(appErr.Details) > 0 {
		l = l.WithFields(map[string]any{"details": appErr.Details})
	}
	ctx := c.Request.Context()
	l.WithContext(ctx).Log(ctx, level, appErr.Message)

	c.JSON(appErr.HTTPStatus, errorBody(c, appErr))
}

// AbortWithAppError stops the chain with appErr as the response
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, errorBody(c, appErr))
}

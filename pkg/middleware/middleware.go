// Package middleware is the gin middleware chain in front of the shipping
// API: ids, access logging, panics, CORS, errors, tracing and metrics.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lms-platform/shipping-core/pkg/logging"
)

// quietPaths are health and scrape endpoints kept out of logs, spans and request metrics
var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Config holds middleware configuration
type Config struct {
	Logger         *logging.Logger
	ServiceName    string
	EnableCORS     bool
	AllowOrigins   []string
	TrustedProxies []string
}

// DefaultConfig enables CORS and trusts no proxies
func DefaultConfig(serviceName string, logger *logging.Logger) *Config {
	return &Config{
		Logger:      logger,
		ServiceName: serviceName,
		EnableCORS:  true,
	}
}

// Setup installs the standard chain. Metrics and tracing are added by the
// caller since they need the process-wide collectors.
func Setup(router *gin.Engine, config *Config) {
	InitValidator()

	if len(config.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(config.TrustedProxies)
	}

	chain := []gin.HandlerFunc{
		Recovery(config.Logger),
		RequestID(),
		CorrelationID(),
		AccessLog(config.Logger),
	}
	if config.EnableCORS {
		chain = append(chain, CORS(config.AllowOrigins))
	}
	chain = append(chain, ContentType(), ErrorHandler(config.Logger))
	router.Use(chain...)

	router.NoRoute(routeError(http.StatusNotFound, "ROUTE_NOT_FOUND", "The requested resource was not found"))
	router.NoMethod(routeError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The request method is not supported for this resource"))
}

func routeError(status int, code, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(status, APIErrorResponse{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      c.Request.URL.Path,
		})
	}
}

// CORS admits the given browser origins, or any origin when none are
// listed. Credentials are only allowed for listed origins.
func CORS(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-Correlation-ID", "X-User-ID", "X-User-Role"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID", "X-Correlation-ID"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

// HealthCheck answers liveness checks
func HealthCheck(serviceName string) gin.HandlerFunc {
	return ReadinessCheck(serviceName, nil)
}

// ReadinessCheck answers 503 while check fails. A nil check always passes
// and reports "healthy".
func ReadinessCheck(serviceName string, check func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check == nil {
			c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
			return
		}
		if err := check(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "service": serviceName, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": serviceName})
	}
}

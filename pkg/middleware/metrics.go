package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lms-platform/shipping-core/pkg/metrics"
)

// MetricsMiddleware records request count, latency and in-flight requests
// labelled by route pattern, so /shipments/:id is one series
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		start := time.Now()
		defer func() {
			m.DecrementHTTPRequestsInFlight()
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
		}()

		c.Next()
	}
}

// MetricsEndpoint serves the Prometheus registry
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}

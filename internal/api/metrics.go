package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-alert-automation/internal/metrics"
)

// MetricsMiddleware records request latency by route template.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/pkg/metrics"
)

// Metrics 记录请求数与响应时间，path 使用路由模板避免标签基数膨胀
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPResponseTime.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

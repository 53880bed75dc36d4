package middleware

import (
	"time"

	"PGateway/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog logs one line per HTTP request. For the WebSocket endpoint the
// line is written when the upgrade handler returns.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	log = logger.Or(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			log.Warn("http request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Debug("http request", fields...)
	}
}

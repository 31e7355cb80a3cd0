package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gymhub/backend/internal/logger"
)

// RequestLogger logs one line per request. Server errors are logged at error level with
// the errors handlers attached to the gin context.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id, ok := GetUserID(c.Request.Context()); ok {
			fields = append(fields, zap.String("user_id", id))
		}
		if c.Writer.Status() >= 500 {
			if len(c.Errors) > 0 {
				fields = append(fields, zap.String("error", c.Errors.String()))
			}
			log.Error("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}

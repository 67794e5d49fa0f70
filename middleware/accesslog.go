package middleware

import (
	"time"

	"PRoom/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("rid", c.GetString(CtxRequestIDKey)),
		}
		if len(c.Errors) > 0 {
			logger.Warn("http request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Info("http request", fields...)
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Thompson6626/SRT-Transcriber/internal/apperr"
	"github.com/Thompson6626/SRT-Transcriber/internal/observability"
)

// requestID honors an incoming X-Request-ID or mints one, echoes it back and
// attaches a correlated logger to the request context.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(observability.RequestIDHeader)
		if id == "" {
			id = observability.NewCorrelationID()
		}
		c.Header(observability.RequestIDHeader, id)

		logger := observability.WithCorrelationID(id)
		c.Request = c.Request.WithContext(observability.ContextWithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger := observability.LoggerFromContext(c.Request.Context())
		event := logger.Info()
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}

func recoverPanic(c *gin.Context, recovered any) {
	logger := observability.LoggerFromContext(c.Request.Context())
	logger.Error().
		Interface("panic", recovered).
		Msg("Handler panicked")
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(apperr.KindInternal, "", "internal error"))
}

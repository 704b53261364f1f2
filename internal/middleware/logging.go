package middleware

import (
	"strconv"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LoggingMiddleware logs each request and records HTTP metrics.
func LoggingMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		var logEvent *zerolog.Event
		switch {
		case status >= 500:
			logEvent = logger.Error()
		case status >= 400:
			logEvent = logger.Warn()
		default:
			logEvent = logger.Info()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("bytes_written", c.Writer.Size())

		if actor := ActorFrom(c); actor.Authenticated() {
			logEvent.Str("user_id", actor.UserID.String())
		}
		if reqID := c.GetHeader("X-Request-ID"); reqID != "" {
			logEvent.Str("request_id", reqID)
		}
		logEvent.Msg("http request")

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())
	}
}

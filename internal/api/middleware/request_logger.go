package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yoockh/rehearse/internal/observe"
)

// RequestLogger logs one line per request and records its latency. met may
// be nil.
func RequestLogger(l logrus.FieldLogger, met *observe.Metrics) gin.HandlerFunc {
	if met == nil {
		met = observe.Noop()
	}
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Set("request_id", reqID)

		c.Next()

		lat := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		met.HTTPRequestDuration.Record(c.Request.Context(), lat.Seconds(), metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(status)),
		))

		userID, _ := c.Get("user_id")
		entry := l.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       route,
			"status":     status,
			"latency_ms": lat.Milliseconds(),
			"ip":         c.ClientIP(),
			"user_id":    userID,
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

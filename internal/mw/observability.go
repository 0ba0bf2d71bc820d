package mw

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"venue-backend/internal/logging"
	"venue-backend/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// Observability extracts W3C trace context, assigns a request id, stores a
// request-scoped logger in the request context and records HTTP metrics.
func Observability(base *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	base = logging.OrNop(base)
	prop := propagation.TraceContext{}

	return func(c *gin.Context) {
		start := time.Now()
		r := c.Request

		ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		sc := trace.SpanContextFromContext(ctx)

		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(requestIDHeader, rid)

		fields := []zap.Field{zap.String("request_id", rid)}
		if sc.IsValid() {
			fields = append(fields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
		reqLogger := base.With(fields...)
		c.Request = r.WithContext(logging.ContextWithLogger(ctx, reqLogger))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		m.HTTPRequest(r.Method, route, strconv.Itoa(status), elapsed.Seconds())

		logFields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			logFields = append(logFields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			reqLogger.Error("request failed", logFields...)
		case status >= 400:
			reqLogger.Info("request rejected", logFields...)
		default:
			reqLogger.Info("request served", logFields...)
		}
	}
}

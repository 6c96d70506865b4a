package middleware

import (
	"github.com/friendhub/server/plugin/hook"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"

	maxTraceIDLen = 128
)

// TraceID picks the request's trace id, echoes it in X-Trace-ID and stores it
// both on the gin context and, with the client IP, as hook.Meta on the
// request context so emitted events and audit rows carry it.
//
// Order of preference: a well-formed X-Trace-ID header, then the trace id of
// a W3C traceparent header, then a fresh UUID.
func TraceID() gin.HandlerFunc {
	w3c := propagation.TraceContext{}
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if !validTraceID(traceID) {
			traceID = ""
			ctx := w3c.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
			if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		ctx := hook.WithMeta(c.Request.Context(), hook.Meta{TraceID: traceID, IP: c.ClientIP()})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// validTraceID accepts up to 128 characters from [A-Za-z0-9._:-], which keeps
// caller-chosen ids safe to echo in headers and log lines.
func validTraceID(s string) bool {
	if s == "" || len(s) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_' || ch == '.' || ch == ':':
		default:
			return false
		}
	}
	return true
}

// GetTraceID retrieves the trace ID from the Gin context.
func GetTraceID(c *gin.Context) string {
	if v, exists := c.Get(TraceIDKey); exists {
		return v.(string)
	}
	return ""
}

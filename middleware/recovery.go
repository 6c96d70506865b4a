package middleware

import (
	"github.com/friendhub/server/api/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PanicObserver counts recovered panics per route.
type PanicObserver interface {
	RecordPanic(route string)
}

// Recovery turns a handler panic into the 500 envelope. The panic value,
// stack and request identity go to log; obs may be nil.
func Recovery(log *zap.Logger, obs PanicObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			log.Error("panic recovered",
				zap.Any("panic", r),
				zap.String("method", c.Request.Method),
				zap.String("route", route),
				zap.String("trace_id", GetTraceID(c)),
				zap.Int64("user_id", GetUserID(c)),
				zap.Stack("stack"),
			)
			if obs != nil {
				obs.RecordPanic(route)
			}
			// Headers already sent: the status cannot change, only stop the chain.
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.ServerError(c, "")
		}()
		c.Next()
	}
}

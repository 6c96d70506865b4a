package rest

import (
	"strconv"

	"github.com/friendhub/server/api/response"
	mw "github.com/friendhub/server/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// failInternal logs err with the request's trace id and answers 500 with a
// generic text. The cause never reaches the client.
func failInternal(c *gin.Context, log *zap.Logger, err error, errText string) {
	log.Error(errText,
		zap.Error(err),
		zap.String("trace_id", mw.GetTraceID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Int64("user_id", mw.GetUserID(c)),
	)
	_ = c.Error(err)
	response.ServerError(c, errText)
}

// requireUser returns the caller's id, answering 401 when the request is
// anonymous.
func requireUser(c *gin.Context) (int64, bool) {
	uid := mw.GetUserID(c)
	if uid == 0 {
		response.Unauthorized(c, "")
		return 0, false
	}
	return uid, true
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name, errText string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, errText)
		return 0, false
	}
	return id, true
}

// Package response renders the uniform JSON envelope every endpoint returns:
//
//	{"success": true,  "message": "...", "timestamp": "...", "code": 200, "data": ...}
//	{"success": false, "message": "...", "timestamp": "...", "code": 404, "error": "..."}
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Default messages, one per failure class.
const (
	MsgOK            = "ok"
	MsgFailed        = "request failed"
	MsgUnauthorized  = "authentication failed"
	MsgNotFound      = "resource not found"
	MsgBadRequest    = "invalid request"
	MsgServerError   = "internal server error"
	MsgUnavailable   = "service unavailable"
	ErrInternal      = "internal server error"
	ErrUnauthorized  = "unauthorized"
	ErrNotFoundText  = "the requested resource does not exist"
	ErrBadParameters = "invalid request parameters"
)

// TimeFormat is the envelope timestamp layout (ISO-8601, UTC, milliseconds).
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Success is the envelope for successful calls. Data is always present and
// may be null.
type Success struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
	Code      int         `json:"code"`
	Data      interface{} `json:"data"`
}

// Failure is the envelope for failed calls.
type Failure struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Code      int    `json:"code"`
	Error     string `json:"error"`
}

func now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, data interface{}, message string) {
	SuccessWithCode(c, http.StatusOK, data, message)
}

// SuccessWithCode writes a success envelope with an explicit status.
func SuccessWithCode(c *gin.Context, code int, data interface{}, message string) {
	if message == "" {
		message = MsgOK
	}
	c.JSON(code, Success{
		Success:   true,
		Message:   message,
		Timestamp: now(),
		Code:      code,
		Data:      data,
	})
}

// Error writes a failure envelope and aborts the handler chain.
func Error(c *gin.Context, code int, errText, message string) {
	if message == "" {
		message = MsgFailed
	}
	c.AbortWithStatusJSON(code, Failure{
		Success:   false,
		Message:   message,
		Timestamp: now(),
		Code:      code,
		Error:     errText,
	})
}

// BadRequest covers validation failures and business-rule conflicts.
func BadRequest(c *gin.Context, errText string) {
	if errText == "" {
		errText = ErrBadParameters
	}
	Error(c, http.StatusBadRequest, errText, MsgBadRequest)
}

// Unauthorized covers missing or invalid credentials.
func Unauthorized(c *gin.Context, errText string) {
	if errText == "" {
		errText = ErrUnauthorized
	}
	Error(c, http.StatusUnauthorized, errText, MsgUnauthorized)
}

// NotFound covers missing users, requests and friendships.
func NotFound(c *gin.Context, errText string) {
	if errText == "" {
		errText = ErrNotFoundText
	}
	Error(c, http.StatusNotFound, errText, MsgNotFound)
}

// ServerError hides the cause; callers log it before responding.
func ServerError(c *gin.Context, errText string) {
	if errText == "" {
		errText = ErrInternal
	}
	Error(c, http.StatusInternalServerError, errText, MsgServerError)
}

// Unavailable is used by the health probe when a dependency is down.
func Unavailable(c *gin.Context, errText string) {
	Error(c, http.StatusServiceUnavailable, errText, MsgUnavailable)
}

package rest

import (
	"context"
	"time"

	"github.com/friendhub/server/api/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler reports liveness and database reachability.
type HealthHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *gorm.DB, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, log: log}
}

// Check handles GET /health.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.log.Warn("health check: database unreachable", zap.Error(err))
		response.Unavailable(c, "database unreachable")
		return
	}
	response.OK(c, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(response.TimeFormat),
		"database":  "up",
	}, "")
}

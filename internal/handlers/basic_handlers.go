package handlers

import (
	"context"
	"net/http"
	"time"

	"transfer-backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PingHandler GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// HealthHandler reports database reachability
type HealthHandler struct {
	db        *gorm.DB
	transport string
}

// NewHealthHandler creates the handler
func NewHealthHandler(db *gorm.DB, transport string) *HealthHandler {
	return &HealthHandler{db: db, transport: transport}
}

// HealthCheckHandler GET /health
func (h *HealthHandler) HealthCheckHandler(c *gin.Context) {
	dbStatus := "healthy"
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.pingDB(ctx); err != nil {
		dbStatus = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}

	c.JSON(status, gin.H{
		"status":    http.StatusText(status),
		"service":   "transfer-backend",
		"database":  dbStatus,
		"feed":      h.transport,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

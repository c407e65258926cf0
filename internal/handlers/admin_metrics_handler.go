package handlers

import (
	"net/http"

	"transfer-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminMetricsHandler operator views of the watcher and ledger
type AdminMetricsHandler struct {
	watcher *services.ReceiptWatcher
	stats   *services.LedgerStatsCollector
	push    *services.WebSocketPushService
	subs    *services.WebSocketSubscriptionManager
}

// NewAdminMetricsHandler creates a new AdminMetricsHandler
func NewAdminMetricsHandler(watcher *services.ReceiptWatcher, stats *services.LedgerStatsCollector,
	push *services.WebSocketPushService, subs *services.WebSocketSubscriptionManager) *AdminMetricsHandler {
	return &AdminMetricsHandler{watcher: watcher, stats: stats, push: push, subs: subs}
}

// ListWatchersHandler submissions still waiting for a receipt
// GET /api/admin/watchers
func (h *AdminMetricsHandler) ListWatchersHandler(c *gin.Context) {
	inFlight := h.watcher.InFlight()
	c.JSON(http.StatusOK, gin.H{
		"watchers": inFlight,
		"total":    len(inFlight),
		"recorded": h.watcher.Recorded(),
	})
}

// CancelSessionWatchersHandler abandons a session's watchers without recording
// DELETE /api/admin/watchers/sessions/:id
func (h *AdminMetricsHandler) CancelSessionWatchersHandler(c *gin.Context) {
	id := c.Param("id")
	cancelled := h.watcher.CancelSession(id)
	logrus.WithFields(logrus.Fields{
		"session_id": id,
		"cancelled":  cancelled,
		"admin":      c.GetString("admin_username"),
	}).Warn("🛑 [Admin] session watchers cancelled")
	c.JSON(http.StatusOK, gin.H{"session_id": id, "cancelled": cancelled})
}

// StatsHandler ledger write counters and observer counts since start
// GET /api/admin/stats
func (h *AdminMetricsHandler) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ledger":                h.stats.Snapshot(),
		"websocket_connections": h.push.ConnectionCount(""),
		"feed_clients":          h.subs.ClientCount(),
		"watchers_in_flight":    len(h.watcher.InFlight()),
	})
}

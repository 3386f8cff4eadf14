package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"course-chat/internal/telemetry"
)

// SubscriberCounter reports open push subscriptions per room.
type SubscriberCounter interface {
	ClientCount(roomID string) int
}

// RegisterDebugRoutes wires debug-only endpoints when enabled.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, subscribers SubscriberCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), auditEvent(c, telemetry.LevelInfo, "audit test"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/rooms/:room_id/subscribers", func(c *gin.Context) {
		if subscribers == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub not configured"})
			return
		}
		roomID := c.Param("room_id")
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "subscribers": subscribers.ClientCount(roomID)})
	})
}

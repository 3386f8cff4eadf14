package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"course-chat/internal/middleware"
	"course-chat/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// auditEvent fills the request-scoped fields of an audit record.
func auditEvent(c *gin.Context, level, text string) telemetry.AuditEvent {
	return telemetry.AuditEvent{
		Level:     level,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserID:    c.GetString(middleware.UserIDKey),
		RoomID:    c.Param("room_id"),
	}
}

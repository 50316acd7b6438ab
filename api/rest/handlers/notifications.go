package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/services/notification"
)

const defaultHeartbeat = 25 * time.Second

type NotificationsHandler struct {
	hub       *notification.Hub
	heartbeat time.Duration
	log       logger.Logger
}

func NewNotificationsHandler(hub *notification.Hub, heartbeat time.Duration, log logger.Logger) *NotificationsHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &NotificationsHandler{hub: hub, heartbeat: heartbeat, log: log}
}

// Stream pushes the user's mail events as server-sent events until the client goes away
func (h *NotificationsHandler) Stream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		if userID == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId is required"})
			return
		}

		sub := h.hub.Subscribe(userID)
		defer h.hub.Unsubscribe(sub)
		h.log.Debugf("notification stream opened for user %s", userID)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		c.SSEvent("ready", gin.H{"userId": userID})
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-sub.C:
				if !ok {
					return false
				}
				c.SSEvent(event.Type.String(), event)
				return true
			case <-ticker.C:
				c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().UTC()})
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
		h.log.Debugf("notification stream closed for user %s", userID)
	}
}

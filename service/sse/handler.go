package sse

import (
	"net/http"
	"strconv"
	"time"

	"PSocial/logger"
	"PSocial/service/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var pingFrame = []byte(": ping\n\n")

// Handler GET /api/notification/sse?user_id=N
func Handler(h *Hub, heartbeat time.Duration) gin.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
		if err != nil || userID <= 0 {
			c.String(http.StatusBadRequest, "User ID is required for SSE connection")
			return
		}

		hd := c.Writer.Header()
		hd.Set("Content-Type", "text/event-stream")
		hd.Set("Cache-Control", "no-cache")
		hd.Set("Connection", "keep-alive")
		hd.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		client, err := h.Register(userID, c.Writer)
		if err != nil {
			logger.Warn("sse register failed", zap.Int64("userId", userID), zap.Error(err))
			return
		}
		logger.Debug("sse connected", zap.Int64("userId", userID))
		defer func() {
			h.Remove(client)
			metrics.SSEClosed()
			logger.Debug("sse disconnected", zap.Int64("userId", userID))
		}()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-client.Done():
				return
			case <-ticker.C:
				if err := client.write(pingFrame); err != nil {
					return
				}
			}
		}
	}
}

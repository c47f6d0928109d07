package handler

import (
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mis/internal/mis/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sseHeartbeatInterval = 30 * time.Second

// SSEHandler handles SSE connections
type SSEHandler struct {
	hub *sse.Hub
}

func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Stream pushes batch progress events. Without batch_id every batch is streamed.
// GET /api/v1/mis/events?batch_id=xxx
func (h *SSEHandler) Stream(c *gin.Context) {
	batchID := c.Query("batch_id")
	clientID := uuid.New().String()

	client := &sse.Client{
		ID:      clientID,
		BatchID: batchID,
		Events:  make(chan sse.Event, 64),
	}
	h.hub.Register(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString(fmt.Sprintf("event: connected\ndata: {\"client_id\":%q,\"batch_id\":%q}\n\n", clientID, batchID))
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			h.hub.Unregister(clientID)
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			c.Writer.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, event.Data))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}

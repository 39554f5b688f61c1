package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"traingrid/internal/service"
	"traingrid/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect cross-origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler streams scheduler events to websocket subscribers
type EventsHandler struct {
	hub *service.EventHub
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *service.EventHub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream upgrades the connection and subscribes it to the event feed.
// The subscription lives until the client disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "websocket upgrade failed: %v", err)
		return
	}

	h.hub.Subscribe(conn)

	// Drain reads to notice the peer closing. Events flow one way.
	go func() {
		defer h.hub.Unsubscribe(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Recent returns the buffered event history for clients that cannot hold
// a websocket open
func (h *EventsHandler) Recent(c *gin.Context) {
	events := h.hub.Recent()
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

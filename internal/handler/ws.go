package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fleettrack/internal/hub"
	"fleettrack/internal/model"
	"fleettrack/internal/service"
)

// WSHandler upgrades observer connections and hands them to the hub.
type WSHandler struct {
	hub      *hub.Hub
	trackers *service.TrackerService
	upgrader websocket.Upgrader
	nextID   atomic.Int64
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, trackers *service.TrackerService) *WSHandler {
	return &WSHandler{
		hub:      h,
		trackers: trackers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection, registers the client and sends a
// positions-batch snapshot of all active trackers as a welcome.
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	id := fmt.Sprintf("client-%d", h.nextID.Add(1))
	client := hub.NewClient(h.hub, conn, id)
	h.hub.Register(client)

	if snapshot := h.snapshot(c); snapshot != nil {
		client.TrySend(snapshot)
	}

	go client.WritePump()
	go client.ReadPump()
}

// snapshot builds the welcome payload. Returns nil when the tracker list
// cannot be read; the client still gets the live feed.
func (h *WSHandler) snapshot(c *gin.Context) []byte {
	trackers, err := h.trackers.ListActive(c.Request.Context())
	if err != nil {
		log.Printf("[WS] snapshot failed: %v", err)
		return nil
	}

	type entry struct {
		Identifier string                `json:"identifier"`
		Name       string                `json:"name"`
		State      model.TrackerSnapshot `json:"state"`
	}
	entries := make([]entry, 0, len(trackers))
	for i := range trackers {
		entries = append(entries, entry{
			Identifier: trackers[i].Identifier,
			Name:       trackers[i].Name,
			State:      trackers[i].Snapshot(),
		})
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type": hub.EventPositionsBatch,
		"data": entries,
	})
	if err != nil {
		return nil
	}
	return payload
}

// GetStats reports hub connection counts.
func (h *WSHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": h.hub.ClientCount()})
}

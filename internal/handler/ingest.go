package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/model"
	"fleettrack/internal/service"
)

// IngestHandler receives vendor webhook pushes.
type IngestHandler struct {
	ingest *service.IngestService
	poller *service.Poller
}

// NewIngestHandler creates a new ingest handler. poller may be nil when no
// external platform is configured.
func NewIngestHandler(ingest *service.IngestService, poller *service.Poller) *IngestHandler {
	return &IngestHandler{ingest: ingest, poller: poller}
}

// Ingest accepts a single position report.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var report model.PositionReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	result, err := h.ingest.Process(c.Request.Context(), &report)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"identifier": result.Identifier,
		"stored":     result.Stored,
		"alerts":     result.AlertCount,
	})
}

// IngestBatch accepts multiple reports and returns a per-item outcome.
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var reports []model.PositionReport
	if err := c.ShouldBindJSON(&reports); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if len(reports) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}

	results := h.ingest.ProcessBatch(c.Request.Context(), reports)
	c.JSON(http.StatusAccepted, gin.H{"results": results})
}

// Sync triggers one poll of the external platform.
func (h *IngestHandler) Sync(c *gin.Context) {
	if h.poller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no platform configured"})
		return
	}

	synced, failed, err := h.poller.SyncOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"synced": synced, "failed": failed})
}

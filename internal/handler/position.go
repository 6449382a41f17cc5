package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/model"
	"fleettrack/internal/service"
)

// PositionHandler serves current and historical positions.
type PositionHandler struct {
	trackers *service.TrackerService
	history  *service.HistoryService
}

// NewPositionHandler creates a new position handler.
func NewPositionHandler(trackers *service.TrackerService, history *service.HistoryService) *PositionHandler {
	return &PositionHandler{trackers: trackers, history: history}
}

// GetAllLatest returns the current state of every active tracker.
func (h *PositionHandler) GetAllLatest(c *gin.Context) {
	trackers, err := h.trackers.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	type latest struct {
		Identifier string                `json:"identifier"`
		Name       string                `json:"name"`
		State      model.TrackerSnapshot `json:"state"`
	}
	out := make([]latest, 0, len(trackers))
	for i := range trackers {
		out = append(out, latest{
			Identifier: trackers[i].Identifier,
			Name:       trackers[i].Name,
			State:      trackers[i].Snapshot(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": out, "count": len(out)})
}

// GetHistory returns raw history samples for a tracker in a time window.
func (h *PositionHandler) GetHistory(c *gin.Context) {
	tracker, err := h.trackers.Resolve(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		respondError(c, err)
		return
	}

	from, to, err := timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range: " + err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	positions, err := h.history.Query(c.Request.Context(), tracker.ID, from, to, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identifier": tracker.Identifier,
		"data":       positions,
		"count":      len(positions),
	})
}

// GetSimplifiedTrack returns a downsampled track capped at max_points.
func (h *PositionHandler) GetSimplifiedTrack(c *gin.Context) {
	tracker, err := h.trackers.Resolve(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		respondError(c, err)
		return
	}

	from, to, err := timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range: " + err.Error()})
		return
	}
	maxPoints, _ := strconv.Atoi(c.DefaultQuery("max_points", "500"))
	if maxPoints <= 0 {
		maxPoints = 500
	}

	positions, err := h.history.Simplify(c.Request.Context(), tracker.ID, from, to, maxPoints)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identifier": tracker.Identifier,
		"data":       positions,
		"count":      len(positions),
	})
}

// GetTravelStats returns aggregate travel statistics for a time window.
func (h *PositionHandler) GetTravelStats(c *gin.Context) {
	tracker, err := h.trackers.Resolve(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		respondError(c, err)
		return
	}

	from, to, err := timeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range: " + err.Error()})
		return
	}

	stats, err := h.history.TravelStatsFor(c.Request.Context(), tracker.ID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"identifier": tracker.Identifier, "stats": stats})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/model"
	"fleettrack/internal/service"
)

// TrackerHandler manages tracker registration.
type TrackerHandler struct {
	trackers *service.TrackerService
}

// NewTrackerHandler creates a new tracker handler.
func NewTrackerHandler(trackers *service.TrackerService) *TrackerHandler {
	return &TrackerHandler{trackers: trackers}
}

// Create registers a new tracker.
func (h *TrackerHandler) Create(c *gin.Context) {
	var tracker model.Tracker
	if err := c.ShouldBindJSON(&tracker); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tracker.ID = 0

	if err := h.trackers.Register(c.Request.Context(), &tracker); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tracker)
}

// List returns all active trackers.
func (h *TrackerHandler) List(c *gin.Context) {
	trackers, err := h.trackers.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": trackers, "count": len(trackers)})
}

// Get returns one tracker by hardware identifier.
func (h *TrackerHandler) Get(c *gin.Context) {
	tracker, err := h.trackers.Resolve(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tracker)
}

// Update modifies a tracker's configuration.
func (h *TrackerHandler) Update(c *gin.Context) {
	existing, err := h.trackers.Resolve(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Name           *string  `json:"name"`
		Active         *bool    `json:"active"`
		SpeedLimit     *float64 `json:"speed_limit"`
		GeofenceAlerts *bool    `json:"geofence_alerts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}
	if req.SpeedLimit != nil {
		existing.SpeedLimit = *req.SpeedLimit
	}
	if req.GeofenceAlerts != nil {
		existing.GeofenceAlerts = *req.GeofenceAlerts
	}

	if err := h.trackers.Register(c.Request.Context(), existing); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, existing)
}

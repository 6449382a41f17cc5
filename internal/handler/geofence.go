package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
	"fleettrack/internal/service"
)

// GeofenceHandler manages geofence regions and their assignments.
type GeofenceHandler struct {
	geofences *service.GeofenceService
}

// NewGeofenceHandler creates a new geofence handler.
func NewGeofenceHandler(geofences *service.GeofenceService) *GeofenceHandler {
	return &GeofenceHandler{geofences: geofences}
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// Create creates a new geofence.
func (h *GeofenceHandler) Create(c *gin.Context) {
	var geofence model.Geofence
	if err := c.ShouldBindJSON(&geofence); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.geofences.Create(c.Request.Context(), &geofence); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, geofence)
}

// List returns a paginated list of geofences.
func (h *GeofenceHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	geofences, total, err := h.geofences.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  geofences,
		"total": total,
		"page":  page,
	})
}

// Get returns a single geofence.
func (h *GeofenceHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	geofence, err := h.geofences.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, geofence)
}

// Update replaces a geofence's definition.
func (h *GeofenceHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	existing, err := h.geofences.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var geofence model.Geofence
	if err := c.ShouldBindJSON(&geofence); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	geofence.ID = existing.ID
	geofence.CreatedAt = existing.CreatedAt

	if err := h.geofences.Update(c.Request.Context(), &geofence); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, geofence)
}

// Delete removes a geofence.
func (h *GeofenceHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.geofences.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// AssignTrackers replaces a geofence's tracker assignment set.
func (h *GeofenceHandler) AssignTrackers(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		TrackerIDs []uint `json:"tracker_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.geofences.AssignTrackers(c.Request.Context(), id, req.TrackerIDs); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"assigned": len(req.TrackerIDs)})
}

// GetTrackers returns the IDs of trackers assigned to a geofence.
func (h *GeofenceHandler) GetTrackers(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	trackerIDs, err := h.geofences.AssignedTrackers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tracker_ids": trackerIDs})
}

// GetEvents returns the geofence's enter/exit event log.
func (h *GeofenceHandler) GetEvents(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	events, total, err := h.geofences.Events(c.Request.Context(), id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  events,
		"total": total,
		"page":  page,
	})
}

// CheckLocation tests whether a point falls inside a geofence.
func (h *GeofenceHandler) CheckLocation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Lat *float64 `json:"lat" binding:"required"`
		Lng *float64 `json:"lng" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	geofence, err := h.geofences.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	inside, err := h.geofences.Contains(geo.Point{Lat: *req.Lat, Lng: *req.Lng}, geofence)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"geofence_id": id, "inside": inside})
}

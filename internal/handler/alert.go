package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/model"
	"fleettrack/internal/service"
)

// AlertHandler serves the alert inbox.
type AlertHandler struct {
	alerts *service.AlertService
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(alerts *service.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// List returns a filtered, paginated alert listing.
func (h *AlertHandler) List(c *gin.Context) {
	var q model.AlertListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.alerts.List(c.Request.Context(), &q)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Get returns a single alert.
func (h *AlertHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	alert, err := h.alerts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// UpdateStatus advances an alert through its lifecycle.
func (h *AlertHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req model.UpdateAlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := c.GetString("user")
	alert, err := h.alerts.UpdateStatus(c.Request.Context(), id, req.Status, actor, req.ResolveNote)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// Stats returns alert counts grouped by kind, status and severity.
func (h *AlertHandler) Stats(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: " + err.Error()})
			return
		}
		from = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: " + err.Error()})
			return
		}
		to = &ts
	}

	stats, err := h.alerts.Stats(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Export downloads the filtered alerts as an XLSX workbook.
func (h *AlertHandler) Export(c *gin.Context) {
	var q model.AlertListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buf, err := h.alerts.ExportXLSX(c.Request.Context(), &q)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("alerts_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

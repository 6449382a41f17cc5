// Package handler exposes the HTTP surface: webhook ingestion, the query
// API and the WebSocket upgrade endpoint.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/service"
)

// respondError maps service errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrPrecondition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrExternalUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// timeRange parses optional from/to query parameters, defaulting to the
// last 24 hours.
func timeRange(c *gin.Context) (from, to time.Time, err error) {
	to = time.Now()
	from = to.Add(-24 * time.Hour)

	if raw := c.Query("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, err
		}
	}
	if raw := c.Query("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

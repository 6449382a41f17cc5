package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Position is one historical observation for a tracker. RecordedAt is the
// device's observation time, ReceivedAt the ingestion time.
type Position struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TrackerID  uint      `json:"tracker_id" gorm:"not null;index:idx_positions_tracker_time,priority:1"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Speed      float64   `json:"speed"`
	Heading    float64   `json:"heading"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Odometer   *float64  `json:"odometer,omitempty"`
	Online     bool      `json:"online"`
	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index:idx_positions_tracker_time,priority:2"`
	ReceivedAt time.Time `json:"received_at" gorm:"not null"`
}

// PositionReport is an inbound position report as pushed by a webhook or
// synthesized by the platform poller. Vendor payloads are not uniform, so
// the common fields accept several aliases.
type PositionReport struct {
	Identifier string `json:"identifier"`
	DeviceID   string `json:"device_id"`
	IMEI       string `json:"imei"`

	Lat       *float64 `json:"lat"`
	Latitude  *float64 `json:"latitude"`
	Lng       *float64 `json:"lng"`
	Lon       *float64 `json:"lon"`
	Longitude *float64 `json:"longitude"`

	Speed     *float64 `json:"speed"`
	Spd       *float64 `json:"spd"`
	Heading   *float64 `json:"heading"`
	Course    *float64 `json:"course"`
	Direction *float64 `json:"direction"`
	Altitude  *float64 `json:"altitude"`
	Odometer  *float64 `json:"odometer"`

	// Timestamp accepts an ISO8601 string or a unix epoch in seconds or
	// milliseconds.
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// DeviceIdentifier returns the first identifier alias present.
func (r *PositionReport) DeviceIdentifier() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.DeviceID != "":
		return r.DeviceID
	default:
		return r.IMEI
	}
}

// Coordinates returns the first lat/lng aliases present.
func (r *PositionReport) Coordinates() (lat, lng *float64) {
	lat = r.Lat
	if lat == nil {
		lat = r.Latitude
	}
	lng = r.Lng
	if lng == nil {
		lng = r.Lon
	}
	if lng == nil {
		lng = r.Longitude
	}
	return lat, lng
}

// SpeedValue returns the first speed alias present, or nil.
func (r *PositionReport) SpeedValue() *float64 {
	if r.Speed != nil {
		return r.Speed
	}
	return r.Spd
}

// HeadingValue returns the first heading alias present, or nil.
func (r *PositionReport) HeadingValue() *float64 {
	if r.Heading != nil {
		return r.Heading
	}
	if r.Course != nil {
		return r.Course
	}
	return r.Direction
}

// RecordedTime parses the report timestamp, falling back to now when the
// field is absent or unparseable.
func (r *PositionReport) RecordedTime(now time.Time) time.Time {
	if len(r.Timestamp) == 0 {
		return now
	}
	raw := strings.TrimSpace(string(r.Timestamp))
	if raw == "" || raw == "null" {
		return now
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(r.Timestamp, &s); err != nil {
			return now
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
			return ts.UTC()
		}
		return now
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if epoch > 1e12 { // milliseconds
			return time.UnixMilli(epoch)
		}
		return time.Unix(epoch, 0)
	}
	return now
}

// ReportResult is the per-item outcome of a batch ingestion.
type ReportResult struct {
	Identifier string `json:"identifier"`
	Status     string `json:"status"` // ok or error
	Error      string `json:"error,omitempty"`
}

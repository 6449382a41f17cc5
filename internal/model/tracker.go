package model

import (
	"time"

	"gorm.io/gorm"
)

// Tracker represents a GPS tracking device. The hardware identifier is the
// stable key every position report carries; it never changes after
// provisioning.
type Tracker struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Identifier     string         `json:"identifier" gorm:"uniqueIndex;size:32;not null"`
	Name           string         `json:"name" gorm:"size:100"`
	VehicleID      *uint          `json:"vehicle_id"`
	Vehicle        *Vehicle       `json:"vehicle,omitempty"`
	Active         bool           `json:"active" gorm:"default:true"`
	LastLat        *float64       `json:"last_lat"`
	LastLng        *float64       `json:"last_lng"`
	LastSpeed      *float64       `json:"last_speed"`
	LastHeading    *float64       `json:"last_heading"`
	LastSeenAt     *time.Time     `json:"last_seen_at"`
	Online         bool           `json:"online" gorm:"default:false"`
	SpeedLimit     float64        `json:"speed_limit"` // km/h, 0 disables overspeed alerts
	GeofenceAlerts bool           `json:"geofence_alerts" gorm:"default:false"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

// Vehicle is the fleet asset a tracker may be mounted in. Managed by fleet
// administration; carried here only for the 1:1 tracker binding.
type Vehicle struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	PlateNumber string         `json:"plate_number" gorm:"uniqueIndex;size:20"`
	Type        string         `json:"type" gorm:"size:50"`
	Brand       string         `json:"brand" gorm:"size:50"`
	Model       string         `json:"model" gorm:"size:50"`
	Active      bool           `json:"active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// TrackerSnapshot captures the mutable part of a tracker's state at a point
// in time, used to diff before/after a position was applied.
type TrackerSnapshot struct {
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	Speed      *float64   `json:"speed"`
	Heading    *float64   `json:"heading"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

// Snapshot returns a copy of the tracker's current mutable state.
func (t *Tracker) Snapshot() TrackerSnapshot {
	return TrackerSnapshot{
		Lat:        t.LastLat,
		Lng:        t.LastLng,
		Speed:      t.LastSpeed,
		Heading:    t.LastHeading,
		Online:     t.Online,
		LastSeenAt: t.LastSeenAt,
	}
}

// TrackerShadow is the real-time state of a tracker cached in Redis.
type TrackerShadow struct {
	Identifier string  `json:"identifier"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Speed      float64 `json:"spd"`
	Heading    float64 `json:"dir"`
	Online     bool    `json:"online"`
	Timestamp  int64   `json:"ts"`
}

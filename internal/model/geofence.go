package model

import (
	"time"

	"gorm.io/gorm"
)

// Geofence kinds.
const (
	GeofenceKindCircle  = "circle"
	GeofenceKindPolygon = "polygon"
)

// Geofence alert modes.
const (
	AlertModeEnter = "enter"
	AlertModeExit  = "exit"
	AlertModeBoth  = "both"
)

// Geofence represents a named virtual zone used to detect vehicle
// entry/exit.
type Geofence struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"size:100;not null"`
	Description string         `json:"description"`
	Kind        string         `json:"kind" gorm:"size:20;not null"`              // circle, polygon
	Coordinates JSONMap        `json:"coordinates" gorm:"type:jsonb;not null"`
	AlertMode   string         `json:"alert_mode" gorm:"size:20;default:both"` // enter, exit, both
	Active      bool           `json:"active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// GeofenceTracker is the explicit association between a geofence and a
// tracker. All access goes through the geofence directory; there is no lazy
// relation traversal.
type GeofenceTracker struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	GeofenceID uint      `json:"geofence_id" gorm:"not null;uniqueIndex:idx_geofence_trackers,priority:1"`
	TrackerID  uint      `json:"tracker_id" gorm:"not null;uniqueIndex:idx_geofence_trackers,priority:2"`
	CreatedAt  time.Time `json:"created_at"`
}

// GeofenceEvent is a persisted entry/exit transition.
type GeofenceEvent struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	GeofenceID  uint      `json:"geofence_id" gorm:"not null;index"`
	TrackerID   uint      `json:"tracker_id" gorm:"not null;index"`
	EventType   string    `json:"event_type" gorm:"size:20;not null"` // enter, exit
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Speed       float64   `json:"speed"`
	TriggeredAt time.Time `json:"triggered_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// CircleCoordinates is the JSONB payload for circle geofences.
//
//	{"center": {"lat": 39.9042, "lng": 116.4074}, "radius": 1000}
type CircleCoordinates struct {
	Center struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"center"`
	Radius float64 `json:"radius"` // meters
}

// PolygonCoordinates is the JSONB payload for polygon geofences. The ring
// is implicitly closed.
//
//	{"points": [{"lat": ..., "lng": ...}, ...]}
type PolygonCoordinates struct {
	Points []struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"points"`
}

// JSONMap is a helper type for JSONB fields.
type JSONMap map[string]interface{}

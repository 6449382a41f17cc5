package service

import "time"

// Broadcaster is the realtime fan-out surface the services publish into.
// Publishing is fire-and-forget; implementations must never block the
// caller on slow subscribers.
type Broadcaster interface {
	PublishPosition(identifier string, data interface{})
	PublishTrackerStatus(identifier string, data interface{})
	PublishAlert(identifier string, data interface{})
	PublishGeofence(geofenceID uint, identifier string, data interface{})
	PublishSyncStatus(data interface{})
}

// PositionEvent is the position-update payload.
type PositionEvent struct {
	Identifier string    `json:"identifier"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Speed      float64   `json:"speed"`
	Heading    float64   `json:"heading"`
	Online     bool      `json:"online"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StatusEvent is the tracker-status payload.
type StatusEvent struct {
	Identifier string    `json:"identifier"`
	Online     bool      `json:"online"`
	At         time.Time `json:"at"`
}

// GeofenceTransitionEvent is the geofence-event payload.
type GeofenceTransitionEvent struct {
	Identifier   string    `json:"identifier"`
	GeofenceID   uint      `json:"geofence_id"`
	GeofenceName string    `json:"geofence_name"`
	EventType    string    `json:"event_type"` // enter, exit
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	At           time.Time `json:"at"`
}

// SyncStatusEvent is the aggregate outcome of one poller batch.
type SyncStatusEvent struct {
	Platform string    `json:"platform"`
	Synced   int       `json:"synced"`
	Failed   int       `json:"failed"`
	At       time.Time `json:"at"`
}

// NopBroadcaster discards every event. Used when no hub is wired.
type NopBroadcaster struct{}

func (NopBroadcaster) PublishPosition(string, interface{})       {}
func (NopBroadcaster) PublishTrackerStatus(string, interface{})  {}
func (NopBroadcaster) PublishAlert(string, interface{})          {}
func (NopBroadcaster) PublishGeofence(uint, string, interface{}) {}
func (NopBroadcaster) PublishSyncStatus(interface{})             {}

package model

import "time"

// AlertKind classifies a detected event.
type AlertKind string

const (
	AlertKindOverspeed     AlertKind = "overspeed"
	AlertKindGeofenceEnter AlertKind = "geofence_enter"
	AlertKindGeofenceExit  AlertKind = "geofence_exit"
	AlertKindOffline       AlertKind = "offline"
	AlertKindOther         AlertKind = "other"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the operator-facing lifecycle state.
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusRead         AlertStatus = "read"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// StatusRank orders alert statuses for forward-only transitions. Unknown
// statuses rank below every valid one.
func StatusRank(s AlertStatus) int {
	switch s {
	case AlertStatusNew:
		return 0
	case AlertStatusRead:
		return 1
	case AlertStatusAcknowledged:
		return 2
	case AlertStatusResolved:
		return 3
	default:
		return -1
	}
}

// Alert is a detected event record. Alerts are never deleted; they form the
// audit trail.
type Alert struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	Kind         AlertKind     `json:"kind" gorm:"size:20;not null;index"`
	Severity     AlertSeverity `json:"severity" gorm:"size:10;not null;default:'low'"`
	Status       AlertStatus   `json:"status" gorm:"size:15;not null;default:'new';index"`
	TrackerID    uint          `json:"tracker_id" gorm:"not null;index"`
	Identifier   string        `json:"identifier" gorm:"size:32;index"`
	TrackerName  string        `json:"tracker_name" gorm:"size:100"`
	GeofenceID   *uint         `json:"geofence_id,omitempty" gorm:"index"`
	GeofenceName string        `json:"geofence_name,omitempty" gorm:"size:100"`
	Message      string        `json:"message" gorm:"size:255"`
	Speed        *float64      `json:"speed,omitempty"`
	SpeedLimit   *float64      `json:"speed_limit,omitempty"`
	Lat          *float64      `json:"lat,omitempty"`
	Lng          *float64      `json:"lng,omitempty"`
	DetectedAt   time.Time     `json:"detected_at" gorm:"not null;index"`
	AckedAt      *time.Time    `json:"acked_at,omitempty"`
	AckedBy      string        `json:"acked_by,omitempty" gorm:"size:64"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy   string        `json:"resolved_by,omitempty" gorm:"size:64"`
	ResolveNote  string        `json:"resolve_note,omitempty" gorm:"type:text"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// AlertListQuery filters the alert listing.
type AlertListQuery struct {
	Identifier string        `form:"identifier"`
	GeofenceID uint          `form:"geofence_id"`
	Kind       AlertKind     `form:"kind"`
	Status     AlertStatus   `form:"status"`
	Severity   AlertSeverity `form:"severity"`
	From       *time.Time    `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time    `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page       int           `form:"page,default=1"`
	PageSize   int           `form:"page_size,default=20"`
}

// AlertListResponse is the paginated alert listing payload.
type AlertListResponse struct {
	List     []Alert `json:"list"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// AlertStats aggregates alert counts.
type AlertStats struct {
	Total      int64            `json:"total"`
	ByKind     map[string]int64 `json:"by_kind"`
	ByStatus   map[string]int64 `json:"by_status"`
	BySeverity map[string]int64 `json:"by_severity"`
}

// UpdateAlertStatusRequest transitions an alert's status.
type UpdateAlertStatusRequest struct {
	Status      AlertStatus `json:"status" binding:"required"`
	ResolveNote string      `json:"resolve_note"`
}

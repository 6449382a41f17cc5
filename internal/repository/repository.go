// Package repository defines the persistence seams used by the tracking
// services. Finder methods return (nil, nil) when no row matches; callers
// translate that into their own not-found handling.
package repository

import (
	"context"
	"time"

	"fleettrack/internal/model"
)

// TrackerRepository persists tracker records and their last-known state.
type TrackerRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*model.Tracker, error)
	FindByID(ctx context.Context, id uint) (*model.Tracker, error)
	Save(ctx context.Context, tracker *model.Tracker) error
	ListActive(ctx context.Context) ([]model.Tracker, error)
	// ListOnlineUnseenSince returns online trackers whose last report is
	// older than the threshold.
	ListOnlineUnseenSince(ctx context.Context, threshold time.Time) ([]model.Tracker, error)
	EnableGeofenceAlerts(ctx context.Context, trackerIDs []uint) error
}

// PositionRepository is the append-only time-series store of samples.
type PositionRepository interface {
	Last(ctx context.Context, trackerID uint) (*model.Position, error)
	Insert(ctx context.Context, sample *model.Position) error
	// Range returns samples in ascending RecordedAt order within the
	// half-open interval [from, to). A limit of 0 means no limit.
	Range(ctx context.Context, trackerID uint, from, to time.Time, limit int) ([]model.Position, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GeofenceRepository persists regions and their tracker assignments.
type GeofenceRepository interface {
	Create(ctx context.Context, g *model.Geofence) error
	Save(ctx context.Context, g *model.Geofence) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*model.Geofence, error)
	List(ctx context.Context, page, pageSize int) ([]model.Geofence, int64, error)
	ForTracker(ctx context.Context, trackerID uint) ([]model.Geofence, error)
	ReplaceAssignments(ctx context.Context, geofenceID uint, trackerIDs []uint) error
	AssignedTrackerIDs(ctx context.Context, geofenceID uint) ([]uint, error)
	CreateEvent(ctx context.Context, ev *model.GeofenceEvent) error
	Events(ctx context.Context, geofenceID uint, page, pageSize int) ([]model.GeofenceEvent, int64, error)
}

// AlertRepository persists alerts. Alerts are never deleted.
type AlertRepository interface {
	Create(ctx context.Context, a *model.Alert) error
	Save(ctx context.Context, a *model.Alert) error
	FindByID(ctx context.Context, id uint) (*model.Alert, error)
	// FindOpenOverspeed returns the most recent overspeed alert for the
	// tracker in status new/read detected at or after since.
	FindOpenOverspeed(ctx context.Context, trackerID uint, since time.Time) (*model.Alert, error)
	// FindOpenGeofence returns the most recent alert of the given kind for
	// the (tracker, geofence) pair in status new/read detected at or after
	// since.
	FindOpenGeofence(ctx context.Context, trackerID, geofenceID uint, kind model.AlertKind, since time.Time) (*model.Alert, error)
	// HasOpen reports whether an alert of the kind exists for the tracker
	// in status new/read.
	HasOpen(ctx context.Context, trackerID uint, kind model.AlertKind) (bool, error)
	List(ctx context.Context, q *model.AlertListQuery) ([]model.Alert, int64, error)
	Stats(ctx context.Context, from, to *time.Time) (*model.AlertStats, error)
}

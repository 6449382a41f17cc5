package service

import (
	"context"
	"encoding/json"
	"fmt"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
	"fleettrack/internal/repository"
)

// GeofenceService is the geofence directory: named regions, their tracker
// assignments and containment queries.
type GeofenceService struct {
	geofences repository.GeofenceRepository
	trackers  repository.TrackerRepository
}

// NewGeofenceService creates a geofence service.
func NewGeofenceService(geofences repository.GeofenceRepository, trackers repository.TrackerRepository) *GeofenceService {
	return &GeofenceService{geofences: geofences, trackers: trackers}
}

// Create validates and persists a new region.
func (s *GeofenceService) Create(ctx context.Context, g *model.Geofence) error {
	if err := validateGeofence(g); err != nil {
		return err
	}
	return s.geofences.Create(ctx, g)
}

// Update validates and persists a region.
func (s *GeofenceService) Update(ctx context.Context, g *model.Geofence) error {
	if err := validateGeofence(g); err != nil {
		return err
	}
	return s.geofences.Save(ctx, g)
}

// Get returns a region by id, or ErrNotFound.
func (s *GeofenceService) Get(ctx context.Context, id uint) (*model.Geofence, error) {
	g, err := s.geofences.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("geofence %d: %w", id, ErrNotFound)
	}
	return g, nil
}

// Delete removes a region and its assignments.
func (s *GeofenceService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.geofences.Delete(ctx, id)
}

// List returns regions with pagination.
func (s *GeofenceService) List(ctx context.Context, page, pageSize int) ([]model.Geofence, int64, error) {
	return s.geofences.List(ctx, page, pageSize)
}

// RegionsFor returns all active regions whose tracker set includes the
// given tracker.
func (s *GeofenceService) RegionsFor(ctx context.Context, trackerID uint) ([]model.Geofence, error) {
	return s.geofences.ForTracker(ctx, trackerID)
}

// AssignTrackers replaces the region's tracker set. Newly assigned trackers
// get their geofence-alerting flag enabled so ingestion runs containment
// checks for them.
func (s *GeofenceService) AssignTrackers(ctx context.Context, geofenceID uint, trackerIDs []uint) error {
	if _, err := s.Get(ctx, geofenceID); err != nil {
		return err
	}
	for _, id := range trackerIDs {
		t, err := s.trackers.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("tracker %d: %w", id, ErrNotFound)
		}
	}
	if err := s.geofences.ReplaceAssignments(ctx, geofenceID, trackerIDs); err != nil {
		return err
	}
	return s.trackers.EnableGeofenceAlerts(ctx, trackerIDs)
}

// AssignedTrackers returns the ids of trackers currently assigned.
func (s *GeofenceService) AssignedTrackers(ctx context.Context, geofenceID uint) ([]uint, error) {
	if _, err := s.Get(ctx, geofenceID); err != nil {
		return nil, err
	}
	return s.geofences.AssignedTrackerIDs(ctx, geofenceID)
}

// Events returns persisted transitions for a region.
func (s *GeofenceService) Events(ctx context.Context, geofenceID uint, page, pageSize int) ([]model.GeofenceEvent, int64, error) {
	if _, err := s.Get(ctx, geofenceID); err != nil {
		return nil, 0, err
	}
	return s.geofences.Events(ctx, geofenceID, page, pageSize)
}

// RecordEvent persists a transition.
func (s *GeofenceService) RecordEvent(ctx context.Context, ev *model.GeofenceEvent) error {
	return s.geofences.CreateEvent(ctx, ev)
}

// Contains reports whether the point lies inside the region.
func (s *GeofenceService) Contains(p geo.Point, g *model.Geofence) (bool, error) {
	switch g.Kind {
	case model.GeofenceKindCircle:
		coords, err := decodeCircle(g.Coordinates)
		if err != nil {
			return false, err
		}
		center := geo.Point{Lat: coords.Center.Lat, Lng: coords.Center.Lng}
		return geo.ContainsCircle(p, center, coords.Radius), nil
	case model.GeofenceKindPolygon:
		ring, err := decodeRing(g.Coordinates)
		if err != nil {
			return false, err
		}
		return geo.ContainsPolygon(p, ring), nil
	default:
		return false, fmt.Errorf("%w: unsupported geofence kind %q", ErrPrecondition, g.Kind)
	}
}

// Transition is one enter/exit crossing detected for a tracker.
type Transition struct {
	Geofence  *model.Geofence
	EventType string // enter, exit
}

// Transitions compares containment of the previous and new point for every
// region bound to the tracker and emits crossings permitted by each
// region's alert mode. A nil previous point yields no transitions: the
// first-ever report cannot be classified as entering or exiting.
func (s *GeofenceService) Transitions(ctx context.Context, trackerID uint, prev, cur *geo.Point) ([]Transition, error) {
	if prev == nil || cur == nil {
		return nil, nil
	}

	regions, err := s.RegionsFor(ctx, trackerID)
	if err != nil {
		return nil, err
	}

	var out []Transition
	for i := range regions {
		g := &regions[i]

		wasInside, err := s.Contains(*prev, g)
		if err != nil {
			return nil, err
		}
		isInside, err := s.Contains(*cur, g)
		if err != nil {
			return nil, err
		}

		switch {
		case isInside && !wasInside:
			if g.AlertMode == model.AlertModeEnter || g.AlertMode == model.AlertModeBoth {
				out = append(out, Transition{Geofence: g, EventType: "enter"})
			}
		case !isInside && wasInside:
			if g.AlertMode == model.AlertModeExit || g.AlertMode == model.AlertModeBoth {
				out = append(out, Transition{Geofence: g, EventType: "exit"})
			}
		}
	}
	return out, nil
}

func validateGeofence(g *model.Geofence) error {
	switch g.Kind {
	case model.GeofenceKindCircle:
		coords, err := decodeCircle(g.Coordinates)
		if err != nil {
			return err
		}
		if !(geo.Point{Lat: coords.Center.Lat, Lng: coords.Center.Lng}).Valid() {
			return fmt.Errorf("%w: circle center out of bounds", ErrPrecondition)
		}
		if coords.Radius <= 0 {
			return fmt.Errorf("%w: circle radius must be positive", ErrPrecondition)
		}
	case model.GeofenceKindPolygon:
		ring, err := decodeRing(g.Coordinates)
		if err != nil {
			return err
		}
		if len(ring) < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 vertices", ErrPrecondition)
		}
		for _, p := range ring {
			if !p.Valid() {
				return fmt.Errorf("%w: polygon vertex out of bounds", ErrPrecondition)
			}
		}
	default:
		return fmt.Errorf("%w: unsupported geofence kind %q", ErrPrecondition, g.Kind)
	}

	switch g.AlertMode {
	case model.AlertModeEnter, model.AlertModeExit, model.AlertModeBoth, "":
	default:
		return fmt.Errorf("%w: unsupported alert mode %q", ErrPrecondition, g.AlertMode)
	}
	return nil
}

func decodeCircle(coords model.JSONMap) (*model.CircleCoordinates, error) {
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	var c model.CircleCoordinates
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: invalid circle coordinates: %v", ErrPrecondition, err)
	}
	return &c, nil
}

func decodeRing(coords model.JSONMap) ([]geo.Point, error) {
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	var p model.PolygonCoordinates
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid polygon coordinates: %v", ErrPrecondition, err)
	}
	ring := make([]geo.Point, len(p.Points))
	for i, pt := range p.Points {
		ring[i] = geo.Point{Lat: pt.Lat, Lng: pt.Lng}
	}
	return ring, nil
}

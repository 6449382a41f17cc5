package service

import (
	"context"
	"errors"
	"testing"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
)

func circleCoords(lat, lng, radius float64) model.JSONMap {
	return model.JSONMap{
		"center": map[string]interface{}{"lat": lat, "lng": lng},
		"radius": radius,
	}
}

func squareCoords(south, west, north, east float64) model.JSONMap {
	return model.JSONMap{
		"points": []interface{}{
			map[string]interface{}{"lat": south, "lng": west},
			map[string]interface{}{"lat": south, "lng": east},
			map[string]interface{}{"lat": north, "lng": east},
			map[string]interface{}{"lat": north, "lng": west},
		},
	}
}

func TestCreateGeofenceValidation(t *testing.T) {
	svc := NewGeofenceService(newFakeGeofenceRepo(), newFakeTrackerRepo())
	ctx := context.Background()

	cases := []struct {
		name string
		g    model.Geofence
	}{
		{"zero radius", model.Geofence{Name: "bad", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9, 116.4, 0)}},
		{"negative radius", model.Geofence{Name: "bad", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9, 116.4, -10)}},
		{"center out of bounds", model.Geofence{Name: "bad", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(95, 116.4, 100)}},
		{"two-vertex polygon", model.Geofence{Name: "bad", Kind: model.GeofenceKindPolygon, Coordinates: model.JSONMap{
			"points": []interface{}{
				map[string]interface{}{"lat": 39.0, "lng": 116.0},
				map[string]interface{}{"lat": 40.0, "lng": 117.0},
			},
		}}},
		{"unknown kind", model.Geofence{Name: "bad", Kind: "ellipse", Coordinates: circleCoords(39.9, 116.4, 100)}},
		{"unknown alert mode", model.Geofence{Name: "bad", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9, 116.4, 100), AlertMode: "sometimes"}},
	}
	for _, tc := range cases {
		g := tc.g
		if err := svc.Create(ctx, &g); !errors.Is(err, ErrPrecondition) {
			t.Errorf("%s: want ErrPrecondition, got %v", tc.name, err)
		}
	}

	good := model.Geofence{Name: "Depot", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9, 116.4, 500), AlertMode: model.AlertModeBoth, Active: true}
	if err := svc.Create(ctx, &good); err != nil {
		t.Fatalf("valid geofence rejected: %v", err)
	}
	if good.ID == 0 {
		t.Error("created geofence should get an id")
	}
}

func TestContainsCircleAndPolygon(t *testing.T) {
	svc := NewGeofenceService(newFakeGeofenceRepo(), newFakeTrackerRepo())

	circle := &model.Geofence{Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9042, 116.4074, 1000)}
	inside, err := svc.Contains(geo.Point{Lat: 39.9042, Lng: 116.4080}, circle)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !inside {
		t.Error("point ~50m from center should be inside a 1km circle")
	}
	inside, err = svc.Contains(geo.Point{Lat: 39.95, Lng: 116.4074}, circle)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if inside {
		t.Error("point ~5km away should be outside a 1km circle")
	}

	square := &model.Geofence{Kind: model.GeofenceKindPolygon, Coordinates: squareCoords(39.0, 116.0, 40.0, 117.0)}
	inside, err = svc.Contains(geo.Point{Lat: 39.5, Lng: 116.5}, square)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !inside {
		t.Error("center of the square should be inside")
	}
	inside, err = svc.Contains(geo.Point{Lat: 41.0, Lng: 116.5}, square)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if inside {
		t.Error("point north of the square should be outside")
	}

	if _, err := svc.Contains(geo.Point{}, &model.Geofence{Kind: "ellipse"}); !errors.Is(err, ErrPrecondition) {
		t.Errorf("unknown kind should be ErrPrecondition, got %v", err)
	}
}

func TestTransitionsEnterAndExit(t *testing.T) {
	repo := newFakeGeofenceRepo()
	trackers := newFakeTrackerRepo()
	trackers.add(model.Tracker{ID: 1, Identifier: "IMEI-1", Active: true})
	svc := NewGeofenceService(repo, trackers)
	ctx := context.Background()

	region := model.Geofence{Name: "Depot", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9042, 116.4074, 500), AlertMode: model.AlertModeBoth, Active: true}
	if err := svc.Create(ctx, &region); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.AssignTrackers(ctx, region.ID, []uint{1}); err != nil {
		t.Fatalf("AssignTrackers: %v", err)
	}

	outside := geo.Point{Lat: 39.95, Lng: 116.4074}
	inside := geo.Point{Lat: 39.9042, Lng: 116.4074}

	got, err := svc.Transitions(ctx, 1, &outside, &inside)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(got) != 1 || got[0].EventType != "enter" {
		t.Fatalf("expected one enter, got %+v", got)
	}

	got, err = svc.Transitions(ctx, 1, &inside, &outside)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(got) != 1 || got[0].EventType != "exit" {
		t.Fatalf("expected one exit, got %+v", got)
	}

	// No movement across the boundary, no transitions
	if got, _ := svc.Transitions(ctx, 1, &inside, &inside); len(got) != 0 {
		t.Errorf("staying inside should yield none, got %+v", got)
	}

	// First-ever report has no previous point to compare
	if got, _ := svc.Transitions(ctx, 1, nil, &inside); got != nil {
		t.Errorf("nil previous point should yield none, got %+v", got)
	}
}

func TestTransitionsRespectAlertMode(t *testing.T) {
	repo := newFakeGeofenceRepo()
	trackers := newFakeTrackerRepo()
	trackers.add(model.Tracker{ID: 1, Identifier: "IMEI-1", Active: true})
	svc := NewGeofenceService(repo, trackers)
	ctx := context.Background()

	region := model.Geofence{Name: "Depot", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9042, 116.4074, 500), AlertMode: model.AlertModeEnter, Active: true}
	if err := svc.Create(ctx, &region); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.AssignTrackers(ctx, region.ID, []uint{1}); err != nil {
		t.Fatalf("AssignTrackers: %v", err)
	}

	outside := geo.Point{Lat: 39.95, Lng: 116.4074}
	inside := geo.Point{Lat: 39.9042, Lng: 116.4074}

	if got, _ := svc.Transitions(ctx, 1, &outside, &inside); len(got) != 1 {
		t.Errorf("enter mode should report the enter, got %+v", got)
	}
	if got, _ := svc.Transitions(ctx, 1, &inside, &outside); len(got) != 0 {
		t.Errorf("enter mode should suppress the exit, got %+v", got)
	}
}

func TestAssignTrackersEnablesAlertFlag(t *testing.T) {
	repo := newFakeGeofenceRepo()
	trackers := newFakeTrackerRepo()
	trackers.add(model.Tracker{ID: 1, Identifier: "IMEI-1", Active: true})
	svc := NewGeofenceService(repo, trackers)
	ctx := context.Background()

	region := model.Geofence{Name: "Depot", Kind: model.GeofenceKindCircle, Coordinates: circleCoords(39.9, 116.4, 500), Active: true}
	if err := svc.Create(ctx, &region); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.AssignTrackers(ctx, region.ID, []uint{1}); err != nil {
		t.Fatalf("AssignTrackers: %v", err)
	}
	tracker, _ := trackers.FindByID(ctx, 1)
	if !tracker.GeofenceAlerts {
		t.Error("assignment should enable geofence alerting on the tracker")
	}

	if err := svc.AssignTrackers(ctx, region.ID, []uint{99}); !errors.Is(err, ErrNotFound) {
		t.Errorf("assigning an unknown tracker should be ErrNotFound, got %v", err)
	}
	if err := svc.AssignTrackers(ctx, 999, []uint{1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("assigning on an unknown geofence should be ErrNotFound, got %v", err)
	}
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/xuri/excelize/v2"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
	"fleettrack/internal/repository"
)

const (
	// Dedup windows: repeat detections inside the window coalesce into the
	// existing open alert instead of creating a new one.
	overspeedWindow = 5 * time.Minute
	geofenceWindow  = 10 * time.Minute

	offlineAfter         = 10 * time.Minute
	offlineCheckInterval = 1 * time.Minute
)

// AlertService is the alert engine: it classifies detections into persisted
// alerts with dedup windows and severity rules and fans finished alerts out
// to the hub and the notification sink.
type AlertService struct {
	alerts   repository.AlertRepository
	trackers *TrackerService
	hub      Broadcaster
	nats     *nats.Conn
}

// NewAlertService creates an alert service. The NATS connection is the
// external notification/audit sink and may be nil.
func NewAlertService(alerts repository.AlertRepository, trackers *TrackerService, hub Broadcaster, natsConn *nats.Conn) *AlertService {
	if hub == nil {
		hub = NopBroadcaster{}
	}
	return &AlertService{alerts: alerts, trackers: trackers, hub: hub, nats: natsConn}
}

// severityForOverspeed grades how far the speed exceeds the limit.
func severityForOverspeed(speed, limit float64) model.AlertSeverity {
	over := (speed - limit) / limit
	switch {
	case over >= 0.50:
		return model.SeverityCritical
	case over >= 0.30:
		return model.SeverityHigh
	case over >= 0.15:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// EvaluateOverspeed checks a recorded speed against the tracker's limit.
// A repeat detection within the dedup window updates the open alert in
// place when the new speed is higher and never produces a second alert.
// The returned bool is true only when a new alert was created.
func (s *AlertService) EvaluateOverspeed(ctx context.Context, tracker *model.Tracker, speed float64, p geo.Point, at time.Time) (*model.Alert, bool, error) {
	if tracker.SpeedLimit <= 0 || speed <= tracker.SpeedLimit {
		return nil, false, nil
	}

	existing, err := s.alerts.FindOpenOverspeed(ctx, tracker.ID, at.Add(-overspeedWindow))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.Speed == nil || speed > *existing.Speed {
			existing.Speed = &speed
			existing.Severity = severityForOverspeed(speed, tracker.SpeedLimit)
			existing.Lat = &p.Lat
			existing.Lng = &p.Lng
			existing.DetectedAt = at
			existing.Message = overspeedMessage(tracker, speed)
			if err := s.alerts.Save(ctx, existing); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	limit := tracker.SpeedLimit
	alert := &model.Alert{
		Kind:        model.AlertKindOverspeed,
		Severity:    severityForOverspeed(speed, limit),
		Status:      model.AlertStatusNew,
		TrackerID:   tracker.ID,
		Identifier:  tracker.Identifier,
		TrackerName: tracker.Name,
		Message:     overspeedMessage(tracker, speed),
		Speed:       &speed,
		SpeedLimit:  &limit,
		Lat:         &p.Lat,
		Lng:         &p.Lng,
		DetectedAt:  at,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, false, err
	}
	return alert, true, nil
}

func overspeedMessage(tracker *model.Tracker, speed float64) string {
	return fmt.Sprintf("%s travelling at %.0f km/h, limit %.0f km/h", trackerLabel(tracker), speed, tracker.SpeedLimit)
}

func trackerLabel(tracker *model.Tracker) string {
	if tracker.Name != "" {
		return tracker.Name
	}
	return tracker.Identifier
}

// EvaluateGeofenceTransition persists one alert per (tracker, region, kind)
// within the dedup window; repeat crossings inside the window are
// suppressed. The returned bool is true only when a new alert was created.
func (s *AlertService) EvaluateGeofenceTransition(ctx context.Context, tracker *model.Tracker, tr Transition, p geo.Point, at time.Time) (*model.Alert, bool, error) {
	kind := model.AlertKindGeofenceEnter
	verb := "entered"
	if tr.EventType == "exit" {
		kind = model.AlertKindGeofenceExit
		verb = "exited"
	}

	existing, err := s.alerts.FindOpenGeofence(ctx, tracker.ID, tr.Geofence.ID, kind, at.Add(-geofenceWindow))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	geofenceID := tr.Geofence.ID
	alert := &model.Alert{
		Kind:         kind,
		Severity:     model.SeverityMedium,
		Status:       model.AlertStatusNew,
		TrackerID:    tracker.ID,
		Identifier:   tracker.Identifier,
		TrackerName:  tracker.Name,
		GeofenceID:   &geofenceID,
		GeofenceName: tr.Geofence.Name,
		Message:      fmt.Sprintf("%s %s zone %s", trackerLabel(tracker), verb, tr.Geofence.Name),
		Lat:          &p.Lat,
		Lng:          &p.Lng,
		DetectedAt:   at,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, false, err
	}
	return alert, true, nil
}

// Announce fans a committed alert out to the hub and the notification sink.
// Both paths are best-effort and never surface an error to the write path.
func (s *AlertService) Announce(alert *model.Alert) {
	s.hub.PublishAlert(alert.Identifier, alert)

	if s.nats == nil {
		return
	}
	data, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Alert] marshal for publish failed: %v", err)
		return
	}
	subject := fmt.Sprintf("fleet.alert.%s", alert.Kind)
	if err := s.nats.Publish(subject, data); err != nil {
		log.Printf("[Alert] publish %s failed: %v", subject, err)
	}
	perDevice := fmt.Sprintf("%s.%s", subject, alert.Identifier)
	if err := s.nats.Publish(perDevice, data); err != nil {
		log.Printf("[Alert] publish %s failed: %v", perDevice, err)
	}
}

// Get returns an alert by id, or ErrNotFound.
func (s *AlertService) Get(ctx context.Context, id uint) (*model.Alert, error) {
	alert, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return alert, nil
}

// UpdateStatus applies a forward-only status transition. Acknowledging and
// resolving stamp the actor and time; resolving accepts an optional note.
func (s *AlertService) UpdateStatus(ctx context.Context, alertID uint, status model.AlertStatus, actor, note string) (*model.Alert, error) {
	if model.StatusRank(status) < 0 {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	alert, err := s.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if model.StatusRank(status) < model.StatusRank(alert.Status) {
		return nil, fmt.Errorf("%w: cannot move alert from %s back to %s", ErrPrecondition, alert.Status, status)
	}

	now := time.Now()
	alert.Status = status
	switch status {
	case model.AlertStatusAcknowledged:
		alert.AckedAt = &now
		alert.AckedBy = actor
	case model.AlertStatusResolved:
		alert.ResolvedAt = &now
		alert.ResolvedBy = actor
		alert.ResolveNote = note
	}

	if err := s.alerts.Save(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// List returns alerts matching the filter, paginated.
func (s *AlertService) List(ctx context.Context, q *model.AlertListQuery) (*model.AlertListResponse, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	alerts, total, err := s.alerts.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return &model.AlertListResponse{
		List:     alerts,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}

// Stats aggregates counts by kind, status and severity over an optional
// time window.
func (s *AlertService) Stats(ctx context.Context, from, to *time.Time) (*model.AlertStats, error) {
	return s.alerts.Stats(ctx, from, to)
}

// ExportXLSX renders the filtered alerts as an Excel workbook.
func (s *AlertService) ExportXLSX(ctx context.Context, q *model.AlertListQuery) (*bytes.Buffer, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 10000
	}
	alerts, _, err := s.alerts.List(ctx, q)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Alerts"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "Kind", "Severity", "Status", "Tracker", "Geofence", "Message", "Speed", "Limit", "Lat", "Lng", "Detected At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, a := range alerts {
		values := []interface{}{
			a.ID, string(a.Kind), string(a.Severity), string(a.Status),
			a.Identifier, a.GeofenceName, a.Message,
			floatOrEmpty(a.Speed), floatOrEmpty(a.SpeedLimit),
			floatOrEmpty(a.Lat), floatOrEmpty(a.Lng),
			a.DetectedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func floatOrEmpty(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// RunOfflineChecker marks trackers unseen for too long offline and raises a
// single offline alert per outage. Runs until the context is cancelled.
func (s *AlertService) RunOfflineChecker(ctx context.Context) {
	ticker := time.NewTicker(offlineCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Alert] offline checker stopped")
			return
		case <-ticker.C:
			s.checkOfflineTrackers(ctx)
		}
	}
}

func (s *AlertService) checkOfflineTrackers(ctx context.Context) {
	threshold := time.Now().Add(-offlineAfter)
	stale, err := s.trackers.trackers.ListOnlineUnseenSince(ctx, threshold)
	if err != nil {
		log.Printf("[Alert] offline scan failed: %v", err)
		return
	}

	for i := range stale {
		tracker := &stale[i]
		if err := s.trackers.MarkOffline(ctx, tracker); err != nil {
			log.Printf("[Alert] mark offline %s failed: %v", tracker.Identifier, err)
			continue
		}
		s.hub.PublishTrackerStatus(tracker.Identifier, StatusEvent{
			Identifier: tracker.Identifier,
			Online:     false,
			At:         time.Now(),
		})

		open, err := s.alerts.HasOpen(ctx, tracker.ID, model.AlertKindOffline)
		if err != nil || open {
			continue
		}

		alert := &model.Alert{
			Kind:        model.AlertKindOffline,
			Severity:    model.SeverityLow,
			Status:      model.AlertStatusNew,
			TrackerID:   tracker.ID,
			Identifier:  tracker.Identifier,
			TrackerName: tracker.Name,
			Message:     fmt.Sprintf("%s has gone offline", trackerLabel(tracker)),
			Lat:         tracker.LastLat,
			Lng:         tracker.LastLng,
			DetectedAt:  time.Now(),
		}
		if err := s.alerts.Create(ctx, alert); err != nil {
			log.Printf("[Alert] create offline alert for %s failed: %v", tracker.Identifier, err)
			continue
		}
		s.Announce(alert)
	}
}

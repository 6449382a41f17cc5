package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
)

// IngestService is the single funnel for position data. Webhook pushes and
// poller ticks both land here; processing for one tracker is strictly
// serialized while distinct trackers proceed in parallel.
type IngestService struct {
	trackers  *TrackerService
	history   *HistoryService
	geofences *GeofenceService
	alerts    *AlertService
	hub       Broadcaster
	locks     *keyedMutex
}

// NewIngestService wires the ingestion pipeline.
func NewIngestService(trackers *TrackerService, history *HistoryService, geofences *GeofenceService, alerts *AlertService, hub Broadcaster) *IngestService {
	if hub == nil {
		hub = NopBroadcaster{}
	}
	return &IngestService{
		trackers:  trackers,
		history:   history,
		geofences: geofences,
		alerts:    alerts,
		hub:       hub,
		locks:     newKeyedMutex(),
	}
}

// IngestResult summarizes what one accepted report caused.
type IngestResult struct {
	Identifier  string
	Stored      bool // history sample stored (false when coalesced)
	WentOnline  bool
	AlertCount  int
	Transitions int
}

// Process runs one report through the full pipeline: validate, resolve,
// apply state, append history, evaluate alerts, then broadcast. State and
// history commit once the report validates; alert evaluation is additive
// and its failure never rolls them back.
func (s *IngestService) Process(ctx context.Context, report *model.PositionReport) (*IngestResult, error) {
	identifier := report.DeviceIdentifier()
	if identifier == "" {
		return nil, fmt.Errorf("%w: missing device identifier", ErrInvalidInput)
	}
	lat, lng := report.Coordinates()
	if lat == nil || lng == nil {
		return nil, fmt.Errorf("%w: missing coordinates", ErrInvalidInput)
	}
	point := geo.Point{Lat: *lat, Lng: *lng}
	if !point.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}

	recordedAt := report.RecordedTime(time.Now())
	speed := report.SpeedValue()
	heading := report.HeadingValue()

	// Steps under the per-tracker lock: resolve, state, history, alert
	// evaluation. Resolution happens inside the lock so the previous/new
	// state pair is never read around a concurrent writer. Broadcast
	// happens after release; fan-out must never run locked.
	s.locks.Lock(identifier)
	tracker, err := s.trackers.Resolve(ctx, identifier)
	if err != nil {
		s.locks.Unlock(identifier)
		return nil, err
	}
	result, events := s.processLocked(ctx, tracker, point, speed, heading, report, recordedAt)
	s.locks.Unlock(identifier)

	s.dispatch(events)

	return result, nil
}

// pendingEvent is a broadcast deferred until the per-tracker lock is
// released.
type pendingEvent struct {
	publish func()
}

func (s *IngestService) processLocked(ctx context.Context, tracker *model.Tracker, point geo.Point, speed, heading *float64, report *model.PositionReport, recordedAt time.Time) (*IngestResult, []pendingEvent) {
	result := &IngestResult{Identifier: tracker.Identifier}
	var events []pendingEvent

	prev, cur, err := s.trackers.ApplyPosition(ctx, tracker, point, speed, heading, recordedAt)
	if err != nil {
		log.Printf("[Ingest] apply position for %s failed: %v", tracker.Identifier, err)
		return result, events
	}

	meta := SampleMeta{Online: true, RecordedAt: recordedAt}
	if speed != nil {
		meta.Speed = *speed
	}
	if heading != nil {
		meta.Heading = *heading
	}
	meta.Altitude = report.Altitude
	meta.Odometer = report.Odometer

	if _, stored, err := s.history.RecordSample(ctx, tracker.ID, point, meta); err != nil {
		log.Printf("[Ingest] record sample for %s failed: %v", tracker.Identifier, err)
	} else {
		result.Stored = stored
	}

	positionEvent := PositionEvent{
		Identifier: tracker.Identifier,
		Lat:        point.Lat,
		Lng:        point.Lng,
		Online:     true,
		RecordedAt: recordedAt,
	}
	if speed != nil {
		positionEvent.Speed = *speed
	}
	if heading != nil {
		positionEvent.Heading = *heading
	}
	identifier := tracker.Identifier
	events = append(events, pendingEvent{func() {
		s.hub.PublishPosition(identifier, positionEvent)
	}})

	if !prev.Online && cur.Online {
		result.WentOnline = true
		statusEvent := StatusEvent{Identifier: identifier, Online: true, At: recordedAt}
		events = append(events, pendingEvent{func() {
			s.hub.PublishTrackerStatus(identifier, statusEvent)
		}})
	}

	// A report recorded before the current last-seen time did not move the
	// tracker's state; diffing it against a newer stored point would
	// manufacture time-reversed transitions and alerts.
	if prev.LastSeenAt != nil && recordedAt.Before(*prev.LastSeenAt) {
		return result, events
	}

	if speed != nil {
		alert, created, err := s.alerts.EvaluateOverspeed(ctx, tracker, *speed, point, recordedAt)
		if err != nil {
			log.Printf("[Ingest] overspeed evaluation for %s failed: %v", identifier, err)
		} else if created {
			result.AlertCount++
			a := alert
			events = append(events, pendingEvent{func() { s.alerts.Announce(a) }})
		}
	}

	if tracker.GeofenceAlerts && prev.Lat != nil && prev.Lng != nil {
		prevPoint := geo.Point{Lat: *prev.Lat, Lng: *prev.Lng}
		transitions, err := s.geofences.Transitions(ctx, tracker.ID, &prevPoint, &point)
		if err != nil {
			log.Printf("[Ingest] transition detection for %s failed: %v", identifier, err)
		} else {
			result.Transitions = len(transitions)
			for _, tr := range transitions {
				s.handleTransition(ctx, tracker, tr, point, speed, recordedAt, result, &events)
			}
		}
	}

	return result, events
}

func (s *IngestService) handleTransition(ctx context.Context, tracker *model.Tracker, tr Transition, point geo.Point, speed *float64, recordedAt time.Time, result *IngestResult, events *[]pendingEvent) {
	ev := &model.GeofenceEvent{
		GeofenceID:  tr.Geofence.ID,
		TrackerID:   tracker.ID,
		EventType:   tr.EventType,
		Lat:         point.Lat,
		Lng:         point.Lng,
		TriggeredAt: recordedAt,
	}
	if speed != nil {
		ev.Speed = *speed
	}
	if err := s.geofences.RecordEvent(ctx, ev); err != nil {
		log.Printf("[Ingest] record geofence event failed: %v", err)
	}

	transitionEvent := GeofenceTransitionEvent{
		Identifier:   tracker.Identifier,
		GeofenceID:   tr.Geofence.ID,
		GeofenceName: tr.Geofence.Name,
		EventType:    tr.EventType,
		Lat:          point.Lat,
		Lng:          point.Lng,
		At:           recordedAt,
	}
	geofenceID := tr.Geofence.ID
	identifier := tracker.Identifier
	*events = append(*events, pendingEvent{func() {
		s.hub.PublishGeofence(geofenceID, identifier, transitionEvent)
	}})

	alert, created, err := s.alerts.EvaluateGeofenceTransition(ctx, tracker, tr, point, recordedAt)
	if err != nil {
		log.Printf("[Ingest] geofence alert evaluation for %s failed: %v", identifier, err)
		return
	}
	if created {
		result.AlertCount++
		a := alert
		*events = append(*events, pendingEvent{func() { s.alerts.Announce(a) }})
	}
}

func (s *IngestService) dispatch(events []pendingEvent) {
	for _, ev := range events {
		ev.publish()
	}
}

// ProcessBatch processes reports independently; one failure never aborts
// the rest.
func (s *IngestService) ProcessBatch(ctx context.Context, reports []model.PositionReport) []model.ReportResult {
	results := make([]model.ReportResult, 0, len(reports))
	for i := range reports {
		report := &reports[i]
		res := model.ReportResult{Identifier: report.DeviceIdentifier()}

		if _, err := s.Process(ctx, report); err != nil {
			res.Status = "error"
			res.Error = err.Error()
			if errors.Is(err, ErrNotFound) {
				log.Printf("[Ingest] skipping report for unknown tracker %q", res.Identifier)
			}
		} else {
			res.Status = "ok"
		}
		results = append(results, res)
	}
	return results
}

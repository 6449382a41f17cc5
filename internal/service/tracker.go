package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"fleettrack/internal/geo"
	"fleettrack/internal/model"
	"fleettrack/internal/repository"
)

const shadowTTL = 24 * time.Hour

// TrackerService is the tracker state registry: it owns the last-known
// position, speed, heading and online flag of every tracker.
type TrackerService struct {
	trackers repository.TrackerRepository
	redis    *redis.Client
}

// NewTrackerService creates a tracker service. The Redis client is optional;
// a nil client disables the shadow cache.
func NewTrackerService(trackers repository.TrackerRepository, redisClient *redis.Client) *TrackerService {
	return &TrackerService{trackers: trackers, redis: redisClient}
}

// Resolve returns the active tracker with the given hardware identifier, or
// ErrNotFound. Ingestion never provisions trackers implicitly.
func (s *TrackerService) Resolve(ctx context.Context, identifier string) (*model.Tracker, error) {
	tracker, err := s.trackers.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if tracker == nil || !tracker.Active {
		return nil, fmt.Errorf("tracker %q: %w", identifier, ErrNotFound)
	}
	return tracker, nil
}

// Register creates or updates a tracker record. Hardware identifiers are
// unique across the fleet.
func (s *TrackerService) Register(ctx context.Context, tracker *model.Tracker) error {
	if tracker.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}
	existing, err := s.trackers.FindByIdentifier(ctx, tracker.Identifier)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != tracker.ID {
		return fmt.Errorf("%w: identifier %q already registered", ErrInvalidInput, tracker.Identifier)
	}
	return s.trackers.Save(ctx, tracker)
}

// ApplyPosition overwrites the tracker's current state with the new
// position and returns both the previous and the new snapshot so callers
// can diff them without a second query. Out-of-order reports (recorded
// before the current last-seen time) do not regress the stored state.
func (s *TrackerService) ApplyPosition(ctx context.Context, tracker *model.Tracker, p geo.Point, speed, heading *float64, recordedAt time.Time) (prev, cur model.TrackerSnapshot, err error) {
	prev = tracker.Snapshot()

	if tracker.LastSeenAt != nil && recordedAt.Before(*tracker.LastSeenAt) {
		if !tracker.Online {
			tracker.Online = true
			if err := s.trackers.Save(ctx, tracker); err != nil {
				return prev, prev, err
			}
		}
		return prev, tracker.Snapshot(), nil
	}

	lat, lng := p.Lat, p.Lng
	tracker.LastLat = &lat
	tracker.LastLng = &lng
	tracker.LastSpeed = speed
	tracker.LastHeading = heading
	ts := recordedAt
	tracker.LastSeenAt = &ts
	tracker.Online = true

	if err := s.trackers.Save(ctx, tracker); err != nil {
		return prev, prev, err
	}

	s.writeShadow(ctx, tracker)

	return prev, tracker.Snapshot(), nil
}

// MarkOffline flips the tracker offline and persists it.
func (s *TrackerService) MarkOffline(ctx context.Context, tracker *model.Tracker) error {
	tracker.Online = false
	if err := s.trackers.Save(ctx, tracker); err != nil {
		return err
	}
	s.writeShadow(ctx, tracker)
	return nil
}

// ListActive returns all active trackers with their last-known state.
func (s *TrackerService) ListActive(ctx context.Context) ([]model.Tracker, error) {
	return s.trackers.ListActive(ctx)
}

// writeShadow caches the tracker's realtime state in Redis, best-effort.
func (s *TrackerService) writeShadow(ctx context.Context, tracker *model.Tracker) {
	if s.redis == nil || tracker.LastLat == nil || tracker.LastLng == nil {
		return
	}
	shadow := model.TrackerShadow{
		Identifier: tracker.Identifier,
		Lat:        *tracker.LastLat,
		Lng:        *tracker.LastLng,
		Online:     tracker.Online,
	}
	if tracker.LastSpeed != nil {
		shadow.Speed = *tracker.LastSpeed
	}
	if tracker.LastHeading != nil {
		shadow.Heading = *tracker.LastHeading
	}
	if tracker.LastSeenAt != nil {
		shadow.Timestamp = tracker.LastSeenAt.Unix()
	}

	data, _ := json.Marshal(shadow)
	key := fmt.Sprintf("fleet:shadow:%s", tracker.Identifier)
	if err := s.redis.Set(ctx, key, data, shadowTTL).Err(); err != nil {
		log.Printf("[Tracker] failed to cache shadow for %s: %v", tracker.Identifier, err)
	}
}

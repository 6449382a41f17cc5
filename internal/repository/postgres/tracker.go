package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"fleettrack/internal/model"
)

// TrackerRepository is the gorm-backed tracker store.
type TrackerRepository struct {
	db *gorm.DB
}

// NewTrackerRepository creates a tracker repository.
func NewTrackerRepository(db *gorm.DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

func (r *TrackerRepository) FindByIdentifier(ctx context.Context, identifier string) (*model.Tracker, error) {
	var tracker model.Tracker
	err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&tracker).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tracker, nil
}

func (r *TrackerRepository) FindByID(ctx context.Context, id uint) (*model.Tracker, error) {
	var tracker model.Tracker
	err := r.db.WithContext(ctx).First(&tracker, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tracker, nil
}

func (r *TrackerRepository) Save(ctx context.Context, tracker *model.Tracker) error {
	return r.db.WithContext(ctx).Save(tracker).Error
}

func (r *TrackerRepository) ListActive(ctx context.Context) ([]model.Tracker, error) {
	var trackers []model.Tracker
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("identifier").Find(&trackers).Error
	return trackers, err
}

func (r *TrackerRepository) ListOnlineUnseenSince(ctx context.Context, threshold time.Time) ([]model.Tracker, error) {
	var trackers []model.Tracker
	err := r.db.WithContext(ctx).
		Where("online = ? AND last_seen_at < ?", true, threshold).
		Find(&trackers).Error
	return trackers, err
}

func (r *TrackerRepository) EnableGeofenceAlerts(ctx context.Context, trackerIDs []uint) error {
	if len(trackerIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Tracker{}).
		Where("id IN ?", trackerIDs).
		Update("geofence_alerts", true).Error
}

package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"fleettrack/internal/model"
)

// GeofenceRepository is the gorm-backed geofence store.
type GeofenceRepository struct {
	db *gorm.DB
}

// NewGeofenceRepository creates a geofence repository.
func NewGeofenceRepository(db *gorm.DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

func (r *GeofenceRepository) Create(ctx context.Context, g *model.Geofence) error {
	return r.db.WithContext(ctx).Create(g).Error
}

func (r *GeofenceRepository) Save(ctx context.Context, g *model.Geofence) error {
	return r.db.WithContext(ctx).Save(g).Error
}

func (r *GeofenceRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("geofence_id = ?", id).Delete(&model.GeofenceTracker{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Geofence{}, id).Error
	})
}

func (r *GeofenceRepository) FindByID(ctx context.Context, id uint) (*model.Geofence, error) {
	var g model.Geofence
	err := r.db.WithContext(ctx).First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GeofenceRepository) List(ctx context.Context, page, pageSize int) ([]model.Geofence, int64, error) {
	var geofences []model.Geofence
	var total int64

	if err := r.db.WithContext(ctx).Model(&model.Geofence{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := r.db.WithContext(ctx).Offset(offset).Limit(pageSize).Order("id").Find(&geofences).Error; err != nil {
		return nil, 0, err
	}
	return geofences, total, nil
}

func (r *GeofenceRepository) ForTracker(ctx context.Context, trackerID uint) ([]model.Geofence, error) {
	var geofences []model.Geofence
	err := r.db.WithContext(ctx).
		Joins("JOIN geofence_trackers ON geofence_trackers.geofence_id = geofences.id").
		Where("geofence_trackers.tracker_id = ? AND geofences.active = ?", trackerID, true).
		Find(&geofences).Error
	return geofences, err
}

func (r *GeofenceRepository) ReplaceAssignments(ctx context.Context, geofenceID uint, trackerIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("geofence_id = ?", geofenceID).Delete(&model.GeofenceTracker{}).Error; err != nil {
			return err
		}
		for _, trackerID := range trackerIDs {
			assoc := model.GeofenceTracker{GeofenceID: geofenceID, TrackerID: trackerID}
			if err := tx.Create(&assoc).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GeofenceRepository) AssignedTrackerIDs(ctx context.Context, geofenceID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.GeofenceTracker{}).
		Where("geofence_id = ?", geofenceID).
		Pluck("tracker_id", &ids).Error
	return ids, err
}

func (r *GeofenceRepository) CreateEvent(ctx context.Context, ev *model.GeofenceEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *GeofenceRepository) Events(ctx context.Context, geofenceID uint, page, pageSize int) ([]model.GeofenceEvent, int64, error) {
	var events []model.GeofenceEvent
	var total int64

	base := r.db.WithContext(ctx).Model(&model.GeofenceEvent{}).Where("geofence_id = ?", geofenceID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := r.db.WithContext(ctx).
		Where("geofence_id = ?", geofenceID).
		Order("triggered_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&events).Error
	return events, total, err
}

package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"fleettrack/internal/model"
)

var openStatuses = []model.AlertStatus{model.AlertStatusNew, model.AlertStatusRead}

// AlertRepository is the gorm-backed alert store.
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates an alert repository.
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, a *model.Alert) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AlertRepository) Save(ctx context.Context, a *model.Alert) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *AlertRepository) FindByID(ctx context.Context, id uint) (*model.Alert, error) {
	var a model.Alert
	err := r.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AlertRepository) FindOpenOverspeed(ctx context.Context, trackerID uint, since time.Time) (*model.Alert, error) {
	var a model.Alert
	err := r.db.WithContext(ctx).
		Where("tracker_id = ? AND kind = ? AND status IN ? AND detected_at >= ?",
			trackerID, model.AlertKindOverspeed, openStatuses, since).
		Order("detected_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AlertRepository) FindOpenGeofence(ctx context.Context, trackerID, geofenceID uint, kind model.AlertKind, since time.Time) (*model.Alert, error) {
	var a model.Alert
	err := r.db.WithContext(ctx).
		Where("tracker_id = ? AND geofence_id = ? AND kind = ? AND status IN ? AND detected_at >= ?",
			trackerID, geofenceID, kind, openStatuses, since).
		Order("detected_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AlertRepository) HasOpen(ctx context.Context, trackerID uint, kind model.AlertKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Alert{}).
		Where("tracker_id = ? AND kind = ? AND status IN ?", trackerID, kind, openStatuses).
		Count(&count).Error
	return count > 0, err
}

func (r *AlertRepository) List(ctx context.Context, q *model.AlertListQuery) ([]model.Alert, int64, error) {
	base := r.db.WithContext(ctx).Model(&model.Alert{})
	base = applyAlertFilter(base, q)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []model.Alert
	offset := (q.Page - 1) * q.PageSize
	err := applyAlertFilter(r.db.WithContext(ctx), q).
		Order("detected_at DESC").
		Offset(offset).Limit(q.PageSize).
		Find(&alerts).Error
	return alerts, total, err
}

func applyAlertFilter(db *gorm.DB, q *model.AlertListQuery) *gorm.DB {
	if q.Identifier != "" {
		db = db.Where("identifier = ?", q.Identifier)
	}
	if q.GeofenceID != 0 {
		db = db.Where("geofence_id = ?", q.GeofenceID)
	}
	if q.Kind != "" {
		db = db.Where("kind = ?", q.Kind)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.Severity != "" {
		db = db.Where("severity = ?", q.Severity)
	}
	if q.From != nil {
		db = db.Where("detected_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("detected_at < ?", *q.To)
	}
	return db
}

func (r *AlertRepository) Stats(ctx context.Context, from, to *time.Time) (*model.AlertStats, error) {
	stats := &model.AlertStats{
		ByKind:     make(map[string]int64),
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	windowed := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&model.Alert{})
		if from != nil {
			db = db.Where("detected_at >= ?", *from)
		}
		if to != nil {
			db = db.Where("detected_at < ?", *to)
		}
		return db
	}

	if err := windowed().Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var byKind []bucket
	if err := windowed().Select("kind as key, COUNT(*) as count").Group("kind").Scan(&byKind).Error; err != nil {
		return nil, err
	}
	for _, b := range byKind {
		stats.ByKind[b.Key] = b.Count
	}

	var byStatus []bucket
	if err := windowed().Select("status as key, COUNT(*) as count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Count
	}

	var bySeverity []bucket
	if err := windowed().Select("severity as key, COUNT(*) as count").Group("severity").Scan(&bySeverity).Error; err != nil {
		return nil, err
	}
	for _, b := range bySeverity {
		stats.BySeverity[b.Key] = b.Count
	}

	return stats, nil
}

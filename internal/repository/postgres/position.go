package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"fleettrack/internal/model"
)

// PositionRepository is the gorm-backed position history store.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a position repository.
func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) Last(ctx context.Context, trackerID uint) (*model.Position, error) {
	var sample model.Position
	err := r.db.WithContext(ctx).
		Where("tracker_id = ?", trackerID).
		Order("recorded_at DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

func (r *PositionRepository) Insert(ctx context.Context, sample *model.Position) error {
	return r.db.WithContext(ctx).Create(sample).Error
}

func (r *PositionRepository) Range(ctx context.Context, trackerID uint, from, to time.Time, limit int) ([]model.Position, error) {
	var samples []model.Position
	query := r.db.WithContext(ctx).
		Where("tracker_id = ? AND recorded_at >= ? AND recorded_at < ?", trackerID, from, to).
		Order("recorded_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&samples).Error
	return samples, err
}

func (r *PositionRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("recorded_at < ?", cutoff).
		Delete(&model.Position{})
	return res.RowsAffected, res.Error
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"contest-scoring-engine/models"
)

type ReviewRepo struct{ db *gorm.DB }

// Open files a review item unless an unresolved one of the same kind already
// exists for refID. Returns the open item and whether it was created.
func (r *ReviewRepo) Open(ctx context.Context, item *models.ReviewItem) (*models.ReviewItem, bool, error) {
	var existing models.ReviewItem
	err := r.db.WithContext(ctx).
		Where("kind = ? AND ref_id = ? AND resolved = ?", item.Kind, item.RefID, false).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, false, err
	}
	return item, true, nil
}

func (r *ReviewRepo) Get(ctx context.Context, id string) (*models.ReviewItem, error) {
	var it models.ReviewItem
	if err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &it, nil
}

// List returns review items, open ones only unless includeResolved.
func (r *ReviewRepo) List(ctx context.Context, kind models.ReviewKind, includeResolved bool) ([]models.ReviewItem, error) {
	q := r.db.WithContext(ctx).Model(&models.ReviewItem{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}
	var out []models.ReviewItem
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// HasOpen reports whether refID has an unresolved item of kind.
func (r *ReviewRepo) HasOpen(ctx context.Context, kind models.ReviewKind, refID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ReviewItem{}).
		Where("kind = ? AND ref_id = ? AND resolved = ?", kind, refID, false).
		Count(&n).Error
	return n > 0, err
}

func (r *ReviewRepo) Resolve(ctx context.Context, id, by, note string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.ReviewItem{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"resolved":    true,
			"resolved_by": by,
			"resolved_at": at,
			"note":        note,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-scoring-engine/models"
)

type ContestRepo struct{ db *gorm.DB }

func (r *ContestRepo) Create(ctx context.Context, c *models.Contest) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ContestRepo) ByID(ctx context.Context, id string) (*models.Contest, error) {
	var c models.Contest
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ByIDForUpdate locks the contest row until the surrounding tx ends.
func (r *ContestRepo) ByIDForUpdate(ctx context.Context, id string) (*models.Contest, error) {
	var c models.Contest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ByIDForShare takes a shared lock: concurrent scorers proceed together while
// a cancel (FOR UPDATE) waits for them and they wait for it.
func (r *ContestRepo) ByIDForShare(ctx context.Context, id string) (*models.Contest, error) {
	var c models.Contest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ContestRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Contest{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, err
}

// Transition moves a contest to `to` only if its status is one of `from`.
// Returns false when the row was not in an allowed state.
func (r *ContestRepo) Transition(ctx context.Context, id string, from []models.ContestStatus, to models.ContestStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Contest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ContestRepo) SetPayoutStatus(ctx context.Context, id string, status models.ContestPayoutStatus) error {
	return r.db.WithContext(ctx).Model(&models.Contest{}).
		Where("id = ?", id).
		Update("payout_status", status).Error
}

func (r *ContestRepo) ListByStatus(ctx context.Context, statuses ...models.ContestStatus) ([]models.Contest, error) {
	var out []models.Contest
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("start_time ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListCompletedWithPayoutStatus returns completed contests whose payout summary is one of statuses.
func (r *ContestRepo) ListCompletedWithPayoutStatus(ctx context.Context, statuses ...models.ContestPayoutStatus) ([]models.Contest, error) {
	var out []models.Contest
	err := r.db.WithContext(ctx).
		Where("status = ? AND payout_status IN ?", models.ContestStatusCompleted, statuses).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

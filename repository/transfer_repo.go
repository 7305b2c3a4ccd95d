package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-scoring-engine/models"
)

// TransferRepo stores payout and refund records.
type TransferRepo struct{ db *gorm.DB }

// CreatePayouts inserts records, skipping any (contest, user) already paid.
func (r *TransferRepo) CreatePayouts(ctx context.Context, recs []models.PayoutRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contest_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&recs).Error
}

func (r *TransferRepo) PayoutsByContest(ctx context.Context, contestID string) ([]models.PayoutRecord, error) {
	var out []models.PayoutRecord
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

// PendingPayouts returns records still owed a transfer attempt.
func (r *TransferRepo) PendingPayouts(ctx context.Context, limit int) ([]models.PayoutRecord, error) {
	var out []models.PayoutRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND needs_manual = ?", models.TransferPending, false).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *TransferRepo) Payout(ctx context.Context, id string) (*models.PayoutRecord, error) {
	var rec models.PayoutRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *TransferRepo) SavePayout(ctx context.Context, rec *models.PayoutRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *TransferRepo) CreateRefunds(ctx context.Context, recs []models.RefundRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contest_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&recs).Error
}

func (r *TransferRepo) RefundsByContest(ctx context.Context, contestID string) ([]models.RefundRecord, error) {
	var out []models.RefundRecord
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("user_id ASC").
		Find(&out).Error
	return out, err
}

func (r *TransferRepo) PendingRefunds(ctx context.Context, limit int) ([]models.RefundRecord, error) {
	var out []models.RefundRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND needs_manual = ?", models.TransferPending, false).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *TransferRepo) Refund(ctx context.Context, id string) (*models.RefundRecord, error) {
	var rec models.RefundRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *TransferRepo) SaveRefund(ctx context.Context, rec *models.RefundRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

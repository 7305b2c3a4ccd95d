package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-scoring-engine/models"
)

type ParticipantRepo struct{ db *gorm.DB }

func (r *ParticipantRepo) Create(ctx context.Context, p *models.Participant) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ParticipantRepo) Get(ctx context.Context, contestID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *ParticipantRepo) GetForUpdate(ctx context.Context, contestID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *ParticipantRepo) Count(ctx context.Context, contestID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("contest_id = ?", contestID).
		Count(&n).Error
	return n, err
}

func (r *ParticipantRepo) ListByContest(ctx context.Context, contestID string) ([]models.Participant, error) {
	var out []models.Participant
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("user_id ASC").
		Find(&out).Error
	return out, err
}

// SaveAggregates writes the scoring aggregate if nobody else bumped the
// version since p was read.
func (r *ParticipantRepo) SaveAggregates(ctx context.Context, p *models.Participant) error {
	res := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"total_score":    p.TotalScore,
			"resolved_count": p.ResolvedCount,
			"correct_count":  p.CorrectCount,
			"current_streak": p.CurrentStreak,
			"best_streak":    p.BestStreak,
			"oracle_beats":   p.OracleBeats,
			"version":        p.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	p.Version++
	return nil
}

func (r *ParticipantRepo) SetRefundState(ctx context.Context, contestID string, state models.RefundState) error {
	return r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("contest_id = ?", contestID).
		Update("refund_state", state).Error
}

package repository

import (
	"context"

	"gorm.io/gorm"

	"contest-scoring-engine/models"
)

type LeaderboardRepo struct{ db *gorm.DB }

func (r *LeaderboardRepo) ByContest(ctx context.Context, contestID string) ([]models.LeaderboardEntry, error) {
	var out []models.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

// Replace swaps the stored snapshot of a contest for entries. Run it inside
// a transaction.
func (r *LeaderboardRepo) Replace(ctx context.Context, contestID string, entries []models.LeaderboardEntry) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("contest_id = ?", contestID).Delete(&models.LeaderboardEntry{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return db.CreateInBatches(entries, 200).Error
}

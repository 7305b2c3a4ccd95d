package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-scoring-engine/models"
)

type GameRepo struct{ db *gorm.DB }

func (r *GameRepo) Get(ctx context.Context, gameID string) (*models.GameResultCache, error) {
	var g models.GameResultCache
	if err := r.db.WithContext(ctx).First(&g, "game_id = ?", gameID).Error; err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (r *GameRepo) GetForUpdate(ctx context.Context, gameID string) (*models.GameResultCache, error) {
	var g models.GameResultCache
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&g, "game_id = ?", gameID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

// Track inserts a scheduled row for gameID unless one exists.
func (r *GameRepo) Track(ctx context.Context, gameID string) error {
	g := models.GameResultCache{GameID: gameID, Status: models.GameStatusScheduled}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "game_id"}}, DoNothing: true}).
		Create(&g).Error
}

func (r *GameRepo) Save(ctx context.Context, g *models.GameResultCache) error {
	return r.db.WithContext(ctx).Save(g).Error
}

// Pollable lists games in status that are neither confirmed nor parked for review.
func (r *GameRepo) Pollable(ctx context.Context, status models.GameStatus) ([]models.GameResultCache, error) {
	var out []models.GameResultCache
	err := r.db.WithContext(ctx).
		Where("status = ? AND needs_review = ? AND confirmed_final_at IS NULL", status, false).
		Order("game_id ASC").
		Find(&out).Error
	return out, err
}

// KickingOff lists pollable scheduled games whose kickoff is at or before cutoff.
func (r *GameRepo) KickingOff(ctx context.Context, cutoff time.Time) ([]models.GameResultCache, error) {
	var out []models.GameResultCache
	err := r.db.WithContext(ctx).
		Where("status = ? AND needs_review = ? AND confirmed_final_at IS NULL", models.GameStatusScheduled, false).
		Where("start_time IS NOT NULL AND start_time <= ?", cutoff).
		Order("game_id ASC").
		Find(&out).Error
	return out, err
}

// ConfirmedFinal lists confirmed games still polled for late corrections.
func (r *GameRepo) ConfirmedFinal(ctx context.Context) ([]models.GameResultCache, error) {
	var out []models.GameResultCache
	err := r.db.WithContext(ctx).
		Where("confirmed_final_at IS NOT NULL").
		Order("game_id ASC").
		Find(&out).Error
	return out, err
}

func (r *GameRepo) ClearReview(ctx context.Context, gameID string) error {
	return r.db.WithContext(ctx).Model(&models.GameResultCache{}).
		Where("game_id = ?", gameID).
		Updates(map[string]any{"needs_review": false, "review_reason": "", "consecutive_failures": 0}).Error
}

func (r *GameRepo) FlagReview(ctx context.Context, gameID, reason string) error {
	return r.db.WithContext(ctx).Model(&models.GameResultCache{}).
		Where("game_id = ?", gameID).
		Updates(map[string]any{"needs_review": true, "review_reason": reason}).Error
}

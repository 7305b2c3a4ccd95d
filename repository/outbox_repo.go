package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"contest-scoring-engine/models"
)

type OutboxRepo struct{ db *gorm.DB }

// Add appends an event created at at. Call it on a tx-bound Store so the
// event commits with the change it describes.
func (r *OutboxRepo) Add(ctx context.Context, topic, key string, payload any, at time.Time) (*models.OutboxEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ev := &models.OutboxEvent{Topic: topic, Key: key, Payload: datatypes.JSON(b), CreatedAt: at}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// Unprocessed returns the oldest unprocessed events of a topic created before
// olderThan. Callers skip events still in flight by passing a grace cutoff.
func (r *OutboxRepo) Unprocessed(ctx context.Context, topic string, olderThan time.Time, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("topic = ? AND processed = ? AND created_at <= ?", topic, false, olderThan).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *OutboxRepo) Get(ctx context.Context, id uint64) (*models.OutboxEvent, error) {
	var ev models.OutboxEvent
	if err := r.db.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &ev, nil
}

func (r *OutboxRepo) MarkProcessed(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed": true, "processed_at": at, "last_error": ""}).Error
}

// MarkProcessedByKey closes every open event for key on topic.
func (r *OutboxRepo) MarkProcessedByKey(ctx context.Context, topic, key string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("topic = ? AND key = ? AND processed = ?", topic, key, false).
		Updates(map[string]any{"processed": true, "processed_at": at, "last_error": ""}).Error
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id uint64, cause error) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
}

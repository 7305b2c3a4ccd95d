package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest-scoring-engine/models"
)

type PredictionRepo struct{ db *gorm.DB }

// --- definitions ---

func (r *PredictionRepo) CreateDefinition(ctx context.Context, d *models.PredictionDefinition) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *PredictionRepo) Definition(ctx context.Context, id string) (*models.PredictionDefinition, error) {
	var d models.PredictionDefinition
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *PredictionRepo) DefinitionsByContest(ctx context.Context, contestID string) ([]models.PredictionDefinition, error) {
	var out []models.PredictionDefinition
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("deadline ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *PredictionRepo) DefinitionsByGame(ctx context.Context, gameID string) ([]models.PredictionDefinition, error) {
	var out []models.PredictionDefinition
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("deadline ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DefinitionsClosedBefore returns definitions of live contests whose deadline
// passed before t.
func (r *PredictionRepo) DefinitionsClosedBefore(ctx context.Context, t time.Time) ([]models.PredictionDefinition, error) {
	var out []models.PredictionDefinition
	err := r.db.WithContext(ctx).
		Joins("JOIN contests ON contests.id = prediction_definitions.contest_id").
		Where("contests.status IN ?", []models.ContestStatus{models.ContestStatusPending, models.ContestStatusActive}).
		Where("prediction_definitions.deadline <= ?", t).
		Order("prediction_definitions.deadline ASC, prediction_definitions.id ASC").
		Find(&out).Error
	return out, err
}

// TrackedGameIDs lists games referenced by contests that can still score.
func (r *PredictionRepo) TrackedGameIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.PredictionDefinition{}).
		Joins("JOIN contests ON contests.id = prediction_definitions.contest_id").
		Where("contests.status IN ?", []models.ContestStatus{models.ContestStatusPending, models.ContestStatusActive}).
		Distinct().
		Order("prediction_definitions.game_id ASC").
		Pluck("prediction_definitions.game_id", &ids).Error
	return ids, err
}

// --- submissions ---

func (r *PredictionRepo) Submission(ctx context.Context, userID, predictionID string) (*models.PredictionSubmission, error) {
	var s models.PredictionSubmission
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND prediction_id = ?", userID, predictionID).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *PredictionRepo) CreateSubmission(ctx context.Context, s *models.PredictionSubmission) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// OverwriteSubmission replaces the pick if the row is still at prevVersion
// and unresolved.
func (r *PredictionRepo) OverwriteSubmission(ctx context.Context, s *models.PredictionSubmission, prevVersion int) error {
	res := r.db.WithContext(ctx).Model(&models.PredictionSubmission{}).
		Where("id = ? AND version = ? AND resolved = ?", s.ID, prevVersion, false).
		Updates(map[string]any{
			"choice_index": s.ChoiceIndex,
			"confidence":   s.Confidence,
			"reasoning":    s.Reasoning,
			"line":         s.Line,
			"submitted_at": s.SubmittedAt,
			"version":      s.Version,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *PredictionRepo) SubmissionByID(ctx context.Context, id string) (*models.PredictionSubmission, error) {
	var s models.PredictionSubmission
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// UnresolvedForDefinitions returns unresolved submissions of the given
// definitions, in submission order.
func (r *PredictionRepo) UnresolvedForDefinitions(ctx context.Context, predictionIDs []string) ([]models.PredictionSubmission, error) {
	var out []models.PredictionSubmission
	if len(predictionIDs) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("prediction_id IN ? AND resolved = ?", predictionIDs, false).
		Order("submitted_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *PredictionRepo) SubmissionsByContest(ctx context.Context, contestID string) ([]models.PredictionSubmission, error) {
	var out []models.PredictionSubmission
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("submitted_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountSubmissions returns total and resolved submission counts for a contest.
func (r *PredictionRepo) CountSubmissions(ctx context.Context, contestID string) (total, resolved int64, err error) {
	db := r.db.WithContext(ctx).Model(&models.PredictionSubmission{})
	if err = db.Where("contest_id = ?", contestID).Count(&total).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&models.PredictionSubmission{}).
		Where("contest_id = ? AND resolved = ?", contestID, true).
		Count(&resolved).Error
	return
}

// MarkResolved persists the outcome once. A row already resolved or bumped
// since it was read yields ErrVersionConflict.
func (r *PredictionRepo) MarkResolved(ctx context.Context, s *models.PredictionSubmission) error {
	res := r.db.WithContext(ctx).Model(&models.PredictionSubmission{}).
		Where("id = ? AND version = ? AND resolved = ?", s.ID, s.Version, false).
		Updates(map[string]any{
			"resolved":      true,
			"void":          s.Void,
			"correct":       s.Correct,
			"beat_oracle":   s.BeatOracle,
			"points_earned": s.PointsEarned,
			"resolved_at":   s.ResolvedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	s.Resolved = true
	return nil
}

// VoidUnresolved resolves every open submission of a contest as void.
func (r *PredictionRepo) VoidUnresolved(ctx context.Context, contestID string, at time.Time) (int64, error) {
	zero := int64(0)
	res := r.db.WithContext(ctx).Model(&models.PredictionSubmission{}).
		Where("contest_id = ? AND resolved = ?", contestID, false).
		Updates(map[string]any{
			"resolved":      true,
			"void":          true,
			"points_earned": zero,
			"resolved_at":   at,
		})
	return res.RowsAffected, res.Error
}

// --- oracle baselines ---

func (r *PredictionRepo) Baseline(ctx context.Context, predictionID string) (*models.OracleBaseline, error) {
	var b models.OracleBaseline
	if err := r.db.WithContext(ctx).First(&b, "prediction_id = ?", predictionID).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (r *PredictionRepo) Baselines(ctx context.Context, predictionIDs []string) (map[string]models.OracleBaseline, error) {
	out := make(map[string]models.OracleBaseline, len(predictionIDs))
	if len(predictionIDs) == 0 {
		return out, nil
	}
	var rows []models.OracleBaseline
	if err := r.db.WithContext(ctx).Where("prediction_id IN ?", predictionIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, b := range rows {
		out[b.PredictionID] = b
	}
	return out, nil
}

// SaveBaseline stores the first baseline seen for a prediction; later writes
// are ignored.
func (r *PredictionRepo) SaveBaseline(ctx context.Context, b *models.OracleBaseline) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "prediction_id"}}, DoNothing: true}).
		Create(b).Error
}

package scoring

import (
	"errors"
	"fmt"

	"contest-scoring-engine/models"
)

var ErrInvalidConfig = errors.New("invalid scoring config")

// Validate rejects scoring tables that cannot produce a sane score.
func Validate(cfg models.ScoringConfig) error {
	if len(cfg.BasePoints) == 0 {
		return fmt.Errorf("%w: base points table is empty", ErrInvalidConfig)
	}
	for t, p := range cfg.BasePoints {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown prediction type %q", ErrInvalidConfig, t)
		}
		if p < 0 {
			return fmt.Errorf("%w: negative base points for %s", ErrInvalidConfig, t)
		}
	}
	for d, m := range cfg.DifficultyMultipliers {
		if !d.Valid() {
			return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidConfig, d)
		}
		if m <= 0 {
			return fmt.Errorf("%w: difficulty multiplier for %s must be positive", ErrInvalidConfig, d)
		}
	}
	for c, w := range cfg.CategoryWeights {
		if w <= 0 {
			return fmt.Errorf("%w: category weight for %q must be positive", ErrInvalidConfig, c)
		}
	}
	if cfg.NegativeScoring && (cfg.PenaltyRatio <= 0 || cfg.PenaltyRatio > 1) {
		return fmt.Errorf("%w: penalty ratio must be in (0, 1]", ErrInvalidConfig)
	}
	if s := cfg.Streak; s.Enabled {
		if s.MinStreak < 1 || s.BonusPerCorrect < 0 || s.MaxBonus < 0 {
			return fmt.Errorf("%w: streak bonus needs min_streak >= 1 and non-negative amounts", ErrInvalidConfig)
		}
	}
	if cfg.OracleBeatBonus < 0 {
		return fmt.Errorf("%w: negative oracle beat bonus", ErrInvalidConfig)
	}
	return nil
}

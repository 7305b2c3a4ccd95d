package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"contest-scoring-engine/models"
)

func flatConfig() models.ScoringConfig {
	return models.ScoringConfig{
		BasePoints:           map[models.PredictionType]float64{models.PredictionTypeSpread: 100},
		ConfidenceMultiplier: true,
	}
}

func TestScore_ConfidenceScenario(t *testing.T) {
	cfg := flatConfig()
	tests := map[string]struct {
		confidence int
		correct    bool
		expected   int64
	}{
		"A correct at 80":   {confidence: 80, correct: true, expected: 80},
		"B correct at 50":   {confidence: 50, correct: true, expected: 50},
		"C incorrect at 90": {confidence: 90, correct: false, expected: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			a := Score(Input{
				Config:     cfg,
				Type:       models.PredictionTypeSpread,
				Difficulty: models.DifficultyEasy,
				Confidence: tc.confidence,
				Correct:    tc.correct,
			})
			assert.Equal(t, tc.expected, a.Points)
		})
	}
}

func TestScore_NegativeScoring(t *testing.T) {
	cfg := flatConfig()
	cfg.NegativeScoring = true
	cfg.PenaltyRatio = 0.5

	a := Score(Input{Config: cfg, Type: models.PredictionTypeSpread, Confidence: 90, CurrentStreak: 4})
	assert.Equal(t, int64(-45), a.Points)
	assert.Equal(t, 0, a.NewStreak)
}

func TestScore_Multipliers(t *testing.T) {
	cfg := flatConfig()
	cfg.DifficultyMultipliers = map[models.Difficulty]float64{models.DifficultyHard: 1.5}
	cfg.CategoryWeights = map[string]float64{"rivalry": 2}

	tests := map[string]struct {
		difficulty models.Difficulty
		category   string
		expected   int64
	}{
		"hard rivalry":         {difficulty: models.DifficultyHard, category: "rivalry", expected: 150},
		"hard unknown weight":  {difficulty: models.DifficultyHard, category: "other", expected: 75},
		"no multiplier listed": {difficulty: models.DifficultyEasy, category: "", expected: 50},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			a := Score(Input{
				Config:     cfg,
				Type:       models.PredictionTypeSpread,
				Difficulty: tc.difficulty,
				Category:   tc.category,
				Confidence: 50,
				Correct:    true,
			})
			assert.Equal(t, tc.expected, a.Points)
		})
	}
}

func TestStreakBonus(t *testing.T) {
	cfg := models.StreakBonus{Enabled: true, MinStreak: 3, BonusPerCorrect: 10, MaxBonus: 100}
	tests := map[string]struct {
		newStreak int
		expected  int64
	}{
		"below minimum":  {newStreak: 2, expected: 0},
		"at minimum":     {newStreak: 3, expected: 10},
		"fifth in a row": {newStreak: 5, expected: 30},
		"capped":         {newStreak: 40, expected: 100},
		"just under cap": {newStreak: 12, expected: 100},
		"one before cap": {newStreak: 11, expected: 90},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, StreakBonus(cfg, tc.newStreak))
		})
	}

	assert.Zero(t, StreakBonus(models.StreakBonus{MinStreak: 3, BonusPerCorrect: 10}, 5), "disabled")
	assert.Zero(t, StreakBonus(models.StreakBonus{Enabled: true, MinStreak: 3, BonusPerCorrect: 10, MaxBonus: 0}, 5), "zero cap")
}

func TestScore_StreakOnFifthCorrect(t *testing.T) {
	cfg := flatConfig()
	cfg.ConfidenceMultiplier = false
	cfg.Streak = models.StreakBonus{Enabled: true, MinStreak: 3, BonusPerCorrect: 10, MaxBonus: 100}

	a := Score(Input{Config: cfg, Type: models.PredictionTypeSpread, Confidence: 100, Correct: true, CurrentStreak: 4})
	assert.Equal(t, 5, a.NewStreak)
	assert.Equal(t, int64(30), a.StreakBonus)
	assert.Equal(t, int64(130), a.Points)
}

func TestBeatsOracle(t *testing.T) {
	oracle := &models.OracleBaseline{ChoiceIndex: 0}
	tests := map[string]struct {
		choice   int
		oracle   *models.OracleBaseline
		outcome  Outcome
		expected bool
	}{
		"different and right": {choice: 1, oracle: oracle, outcome: Outcome{Winning: 1}, expected: true},
		"same as oracle":      {choice: 0, oracle: oracle, outcome: Outcome{Winning: 0}, expected: false},
		"both wrong":          {choice: 1, oracle: oracle, outcome: Outcome{Winning: 2}, expected: false},
		"participant wrong":   {choice: 1, oracle: oracle, outcome: Outcome{Winning: 0}, expected: false},
		"push":                {choice: 1, oracle: oracle, outcome: Outcome{Push: true}, expected: false},
		"no baseline":         {choice: 1, oracle: nil, outcome: Outcome{Winning: 1}, expected: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, BeatsOracle(tc.choice, tc.oracle, tc.outcome))
		})
	}
}

func TestScore_OracleBonusOnce(t *testing.T) {
	cfg := flatConfig()
	cfg.ConfidenceMultiplier = false
	cfg.OracleBeatBonus = 25

	beat := BeatsOracle(1, &models.OracleBaseline{ChoiceIndex: 0}, Outcome{Winning: 1})
	a := Score(Input{Config: cfg, Type: models.PredictionTypeSpread, Confidence: 100, Correct: true, BeatOracle: beat})
	assert.True(t, a.BeatOracle)
	assert.Equal(t, int64(25), a.OracleBonus)
	assert.Equal(t, int64(125), a.Points)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(models.DefaultScoringConfig()))

	bad := models.DefaultScoringConfig()
	bad.NegativeScoring = true
	bad.PenaltyRatio = 0
	assert.ErrorIs(t, Validate(bad), ErrInvalidConfig)

	bad = models.DefaultScoringConfig()
	bad.BasePoints = nil
	assert.ErrorIs(t, Validate(bad), ErrInvalidConfig)

	bad = models.DefaultScoringConfig()
	bad.DifficultyMultipliers["legendary"] = 3
	assert.ErrorIs(t, Validate(bad), ErrInvalidConfig)
}

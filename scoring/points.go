package scoring

import (
	"math"

	"contest-scoring-engine/models"
)

// Input is everything needed to score one resolved submission.
type Input struct {
	Config     models.ScoringConfig
	Type       models.PredictionType
	Difficulty models.Difficulty
	Category   string
	Confidence int
	Correct    bool
	// CurrentStreak is the participant's streak before this submission.
	CurrentStreak int
	BeatOracle    bool
}

// Award is the scored result of one submission.
type Award struct {
	Base        float64
	Points      int64
	StreakBonus int64
	OracleBonus int64
	NewStreak   int
	BeatOracle  bool
}

// Base computes basePoints x confidence x difficulty x category weight
// before rounding.
func Base(cfg models.ScoringConfig, t models.PredictionType, d models.Difficulty, category string, confidence int) float64 {
	base := cfg.BasePoints[t]
	if cfg.ConfidenceMultiplier {
		base *= float64(confidence) / 100
	}
	if m, ok := cfg.DifficultyMultipliers[d]; ok {
		base *= m
	}
	if w, ok := cfg.CategoryWeights[category]; ok {
		base *= w
	}
	return base
}

// StreakBonus returns the bonus earned when a correct pick extends the
// streak to newStreak, capped at MaxBonus. A zero cap pays nothing.
func StreakBonus(cfg models.StreakBonus, newStreak int) int64 {
	if !cfg.Enabled || cfg.MinStreak <= 0 || newStreak < cfg.MinStreak {
		return 0
	}
	bonus := int64(newStreak-cfg.MinStreak+1) * cfg.BonusPerCorrect
	if bonus > cfg.MaxBonus {
		return cfg.MaxBonus
	}
	return bonus
}

// BeatsOracle reports whether the oracle-beat bonus applies: the participant
// picked differently from the baseline, was right, and the baseline was wrong.
func BeatsOracle(choice int, oracle *models.OracleBaseline, out Outcome) bool {
	if oracle == nil || out.Push {
		return false
	}
	return choice != oracle.ChoiceIndex && out.Matches(choice) && !out.Matches(oracle.ChoiceIndex)
}

// Score applies the points formula.
func Score(in Input) Award {
	base := Base(in.Config, in.Type, in.Difficulty, in.Category, in.Confidence)
	a := Award{Base: base}

	if !in.Correct {
		a.NewStreak = 0
		if in.Config.NegativeScoring {
			a.Points = -int64(math.Round(base * in.Config.PenaltyRatio))
		}
		return a
	}

	a.NewStreak = in.CurrentStreak + 1
	a.StreakBonus = StreakBonus(in.Config.Streak, a.NewStreak)
	if in.BeatOracle && in.Config.OracleBeatBonus > 0 {
		a.OracleBonus = in.Config.OracleBeatBonus
	}
	a.BeatOracle = in.BeatOracle
	a.Points = int64(math.Round(base)) + a.StreakBonus + a.OracleBonus
	return a
}

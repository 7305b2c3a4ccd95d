package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ContestType string

const (
	ContestTypeWeekly  ContestType = "weekly"
	ContestTypeSeason  ContestType = "season"
	ContestTypePlayoff ContestType = "playoff"
)

type ContestStatus string

const (
	ContestStatusPending   ContestStatus = "pending"
	ContestStatusActive    ContestStatus = "active"
	ContestStatusCompleted ContestStatus = "completed"
	ContestStatusCancelled ContestStatus = "cancelled"
)

// ContestPayoutStatus summarizes payout progress once a contest completes.
//
//	none -> pending (completed, not yet calculated) -> processing (records
//	created) -> settled | attention (a record needs manual resolution)
type ContestPayoutStatus string

const (
	ContestPayoutNone       ContestPayoutStatus = "none"
	ContestPayoutPending    ContestPayoutStatus = "pending"
	ContestPayoutProcessing ContestPayoutStatus = "processing"
	ContestPayoutSettled    ContestPayoutStatus = "settled"
	ContestPayoutAttention  ContestPayoutStatus = "attention"
)

// Contest is a scoped competition over a set of prediction definitions.
type Contest struct {
	ID              string                            `json:"id" gorm:"primaryKey"`
	Slug            string                            `json:"slug" gorm:"uniqueIndex;not null"`
	Name            string                            `json:"name" gorm:"not null"`
	Type            ContestType                       `json:"type" gorm:"type:varchar(16);not null"`
	Season          int                               `json:"season"`
	Week            int                               `json:"week"`
	Status          ContestStatus                     `json:"status" gorm:"type:varchar(16);not null;index;default:'pending'"`
	StartTime       time.Time                         `json:"start_time" gorm:"not null"`
	EndTime         time.Time                         `json:"end_time" gorm:"not null"`
	EntryFee        decimal.Decimal                   `json:"entry_fee" gorm:"type:numeric(12,2);not null;default:0"`
	MaxParticipants int                               `json:"max_participants" gorm:"default:0"` // 0 = unlimited
	ScoringConfig   datatypes.JSONType[ScoringConfig] `json:"scoring_config"`
	PrizePool       datatypes.JSONType[PrizePool]     `json:"prize_pool"`

	ActivatedAt  *time.Time          `json:"activated_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	CancelledAt  *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	PayoutStatus ContestPayoutStatus `json:"payout_status" gorm:"type:varchar(16);default:'none'"`

	Timestamps
}

// Scoring returns the decoded scoring configuration.
func (c *Contest) Scoring() ScoringConfig {
	return c.ScoringConfig.Data()
}

// Prizes returns the decoded prize pool table.
func (c *Contest) Prizes() PrizePool {
	return c.PrizePool.Data()
}

// IsTerminal reports whether no further transitions are allowed.
func (c *Contest) IsTerminal() bool {
	return c.Status == ContestStatusCompleted || c.Status == ContestStatusCancelled
}

// StreakBonus configures the consecutive-correct bonus.
type StreakBonus struct {
	Enabled         bool  `json:"enabled"`
	MinStreak       int   `json:"min_streak"`
	BonusPerCorrect int64 `json:"bonus_per_correct"`
	MaxBonus        int64 `json:"max_bonus"`
}

// ScoringConfig holds every knob of the points formula for one contest.
type ScoringConfig struct {
	BasePoints            map[PredictionType]float64 `json:"base_points"`
	ConfidenceMultiplier  bool                       `json:"confidence_multiplier"`
	DifficultyMultipliers map[Difficulty]float64     `json:"difficulty_multipliers"`
	CategoryWeights       map[string]float64         `json:"category_weights"` // missing category = 1.0
	NegativeScoring       bool                       `json:"negative_scoring"`
	PenaltyRatio          float64                    `json:"penalty_ratio"`
	Streak                StreakBonus                `json:"streak"`
	OracleBeatBonus       int64                      `json:"oracle_beat_bonus"` // 0 disables
}

// DefaultScoringConfig is used when a contest is created without one.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BasePoints: map[PredictionType]float64{
			PredictionTypeSpread:     100,
			PredictionTypeTotal:      100,
			PredictionTypeMoneyline:  80,
			PredictionTypePlayerProp: 120,
			PredictionTypeTeamStat:   110,
		},
		ConfidenceMultiplier: true,
		DifficultyMultipliers: map[Difficulty]float64{
			DifficultyEasy:   1.0,
			DifficultyMedium: 1.25,
			DifficultyHard:   1.5,
			DifficultyExpert: 2.0,
		},
		CategoryWeights: map[string]float64{},
		PenaltyRatio:    0.5,
		Streak: StreakBonus{
			Enabled:         true,
			MinStreak:       3,
			BonusPerCorrect: 10,
			MaxBonus:        100,
		},
		OracleBeatBonus: 25,
	}
}

// PrizeTier pays every rank in [FromRank, ToRank] either a percentage of the
// total prize or a fixed amount. Exactly one of the two is set.
type PrizeTier struct {
	FromRank    int              `json:"from_rank"`
	ToRank      int              `json:"to_rank"`
	Percentage  *decimal.Decimal `json:"percentage,omitempty"`
	FixedAmount *decimal.Decimal `json:"fixed_amount,omitempty"`
}

// PrizePool is the ordered rank -> allocation table of a contest.
type PrizePool struct {
	TotalPrize decimal.Decimal `json:"total_prize"`
	Tiers      []PrizeTier     `json:"tiers"`
}

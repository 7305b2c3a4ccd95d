package models

import (
	"time"

	"gorm.io/datatypes"
)

type PredictionType string

const (
	PredictionTypeSpread     PredictionType = "spread"
	PredictionTypeTotal      PredictionType = "total"
	PredictionTypeMoneyline  PredictionType = "moneyline"
	PredictionTypePlayerProp PredictionType = "player_prop"
	PredictionTypeTeamStat   PredictionType = "team_stat"
)

func (t PredictionType) Valid() bool {
	switch t {
	case PredictionTypeSpread, PredictionTypeTotal, PredictionTypeMoneyline,
		PredictionTypePlayerProp, PredictionTypeTeamStat:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// Choice indexes shared by the outcome rules.
//
//	spread/moneyline: 0 = home, 1 = away (moneyline may add 2 = draw)
//	total/player_prop/team_stat: 0 = over, 1 = under
const (
	ChoiceHome  = 0
	ChoiceAway  = 1
	ChoiceDraw  = 2
	ChoiceOver  = 0
	ChoiceUnder = 1
)

// PredictionDefinition is a question tied to a game. Immutable after creation.
type PredictionDefinition struct {
	ID         string                      `json:"id" gorm:"primaryKey"`
	ContestID  string                      `json:"contest_id" gorm:"not null;index"`
	GameID     string                      `json:"game_id" gorm:"not null;index"`
	Type       PredictionType              `json:"type" gorm:"type:varchar(16);not null"`
	Question   string                      `json:"question"`
	Choices    datatypes.JSONSlice[string] `json:"choices"`
	Difficulty Difficulty                  `json:"difficulty" gorm:"type:varchar(16);not null"`
	Category   string                      `json:"category"`
	Line       float64                     `json:"line"`               // spread (home perspective), total, prop/stat threshold
	Subject    string                      `json:"subject,omitempty"`  // player id for props, team id for team stats
	StatKey    string                      `json:"stat_key,omitempty"` // e.g. "passing_yards"
	Deadline   time.Time                   `json:"deadline" gorm:"not null;index"`
	CreatedAt  time.Time                   `json:"created_at" gorm:"autoCreateTime"`

	Contest *Contest `json:"-" gorm:"foreignKey:ContestID"`
}

// PredictionSubmission is one participant's pick for one definition.
type PredictionSubmission struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	ContestID    string     `json:"contest_id" gorm:"not null;index"`
	UserID       string     `json:"user_id" gorm:"not null;uniqueIndex:idx_submission_user_prediction"`
	PredictionID string     `json:"prediction_id" gorm:"not null;uniqueIndex:idx_submission_user_prediction;index"`
	ChoiceIndex  int        `json:"choice_index"`
	Confidence   int        `json:"confidence" gorm:"check:confidence >= 1 AND confidence <= 100"`
	Reasoning    string     `json:"reasoning,omitempty" gorm:"type:text"`
	Line         float64    `json:"line"` // definition line when submitted
	SubmittedAt  time.Time  `json:"submitted_at" gorm:"not null"`
	Version      int        `json:"version" gorm:"not null;default:1"`
	Resolved     bool       `json:"resolved" gorm:"not null;default:false;index"`
	Void         bool       `json:"void" gorm:"not null;default:false"`
	Correct      *bool      `json:"correct,omitempty"`
	BeatOracle   bool       `json:"beat_oracle" gorm:"default:false"`
	PointsEarned *int64     `json:"points_earned,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`

	Timestamps

	Contest    *Contest              `json:"-" gorm:"foreignKey:ContestID"`
	Definition *PredictionDefinition `json:"-" gorm:"foreignKey:PredictionID"`
}

// OracleBaseline is the persisted Oracle pick for a prediction. Stored once so
// that replays of the same game score identically.
type OracleBaseline struct {
	PredictionID string    `json:"prediction_id" gorm:"primaryKey"`
	ChoiceIndex  int       `json:"choice_index"`
	Confidence   int       `json:"confidence"`
	FetchedAt    time.Time `json:"fetched_at"`
}

package models

import (
	"time"
)

type RefundState string

const (
	RefundStateNone      RefundState = "none"
	RefundStateRequested RefundState = "requested"
)

// Participant = registration + scoring aggregate. Aggregate fields are only
// written by the evaluation engine.
type Participant struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	ContestID  string    `json:"contest_id" gorm:"not null;uniqueIndex:idx_participant_contest_user"`
	UserID     string    `json:"user_id" gorm:"not null;uniqueIndex:idx_participant_contest_user"`
	Username   string    `json:"username"`
	EntryTime  time.Time `json:"entry_time"`
	PaymentRef string    `json:"payment_ref"`

	TotalScore    int64 `json:"total_score" gorm:"default:0"`
	ResolvedCount int   `json:"resolved_count" gorm:"default:0"`
	CorrectCount  int   `json:"correct_count" gorm:"default:0"`
	CurrentStreak int   `json:"current_streak" gorm:"default:0"`
	BestStreak    int   `json:"best_streak" gorm:"default:0"`
	OracleBeats   int   `json:"oracle_beats" gorm:"default:0"`

	RefundState RefundState `json:"refund_state" gorm:"type:varchar(16);default:'none'"`
	Version     int         `json:"version" gorm:"not null;default:1"`

	Timestamps

	Contest *Contest `json:"-" gorm:"foreignKey:ContestID"`
}

// Accuracy is correct/resolved, 0 when nothing resolved yet.
func (p *Participant) Accuracy() float64 {
	if p.ResolvedCount == 0 {
		return 0
	}
	return float64(p.CorrectCount) / float64(p.ResolvedCount)
}

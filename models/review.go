package models

import "time"

type ReviewKind string

const (
	ReviewGamePollFailures ReviewKind = "game_poll_failures"
	ReviewUnresolvedData   ReviewKind = "unresolved_data"
	ReviewResultCorrection ReviewKind = "result_correction"
	ReviewPayoutExhausted  ReviewKind = "payout_exhausted"
	ReviewRefundExhausted  ReviewKind = "refund_exhausted"
)

// ReviewItem is an entry in the operator review queue.
type ReviewItem struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	Kind       ReviewKind `json:"kind" gorm:"type:varchar(32);not null;index"`
	RefID      string     `json:"ref_id" gorm:"not null;index"` // game, prediction, payout or refund id
	ContestID  string     `json:"contest_id,omitempty" gorm:"index"`
	Reason     string     `json:"reason" gorm:"type:text"`
	Resolved   bool       `json:"resolved" gorm:"not null;default:false;index"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Note       string     `json:"note,omitempty" gorm:"type:text"`

	Timestamps
}

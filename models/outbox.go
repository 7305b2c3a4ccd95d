package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TopicGameFinalized    = "game.finalized"
	TopicContestCompleted = "contest.completed"
	TopicContestCancelled = "contest.cancelled"
	TopicPayoutSent       = "payout.sent"
)

// OutboxEvent is written in the same transaction as the state change it
// announces; a replay job re-dispatches anything left unprocessed.
type OutboxEvent struct {
	ID          uint64         `json:"id" gorm:"primaryKey;autoIncrement"`
	Topic       string         `json:"topic" gorm:"type:varchar(64);not null;index"`
	Key         string         `json:"key" gorm:"not null;index"`
	Payload     datatypes.JSON `json:"payload"`
	Processed   bool           `json:"processed" gorm:"not null;default:false;index"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	Attempts    int            `json:"attempts" gorm:"default:0"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

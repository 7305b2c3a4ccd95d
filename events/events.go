package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"contest-scoring-engine/models"
)

// Routing keys on the contest exchange match the outbox topics.
const (
	RKGameFinalized    = models.TopicGameFinalized
	RKContestCompleted = models.TopicContestCompleted
	RKContestCancelled = models.TopicContestCancelled
	RKPayoutSent       = models.TopicPayoutSent
)

// GameFinalized announces that a game's result is confirmed.
type GameFinalized struct {
	GameID      string    `json:"game_id"`
	OutboxID    uint64    `json:"outbox_id,omitempty"`
	HomeScore   int       `json:"home_score"`
	AwayScore   int       `json:"away_score"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type ContestCompleted struct {
	ContestID    string    `json:"contest_id"`
	Participants int       `json:"participants"`
	CompletedAt  time.Time `json:"completed_at"`
}

type ContestCancelled struct {
	ContestID   string    `json:"contest_id"`
	Reason      string    `json:"reason"`
	Refunds     int       `json:"refunds"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type PayoutSent struct {
	ContestID  string          `json:"contest_id"`
	UserID     string          `json:"user_id"`
	Rank       int             `json:"rank"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentRef string          `json:"payment_ref"`
}

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload failed: %w", err)
	}
	return t, nil
}

package models

import "time"

// LeaderboardEntry is one persisted row of a contest standings snapshot.
type LeaderboardEntry struct {
	ContestID     string    `json:"contest_id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"primaryKey"`
	Username      string    `json:"username"`
	Rank          int       `json:"rank"`     // competition rank, equal for exact ties
	Position      int       `json:"position"` // strict 1..N order
	PreviousRank  int       `json:"previous_rank"`
	Change        int       `json:"change"` // previous_rank - rank, positive = moved up
	TotalScore    int64     `json:"total_score"`
	Accuracy      float64   `json:"accuracy"`
	ResolvedCount int       `json:"resolved_count"`
	CorrectCount  int       `json:"correct_count"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
	OracleBeats   int       `json:"oracle_beats"`
	AvgSubmitUnix float64   `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Trend is the human form of Change.
func (e LeaderboardEntry) Trend() string {
	switch {
	case e.PreviousRank == 0:
		return "new"
	case e.Change > 0:
		return "up"
	case e.Change < 0:
		return "down"
	}
	return "same"
}

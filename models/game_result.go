package models

import (
	"time"

	"gorm.io/datatypes"
)

type GameStatus string

const (
	GameStatusScheduled GameStatus = "scheduled"
	GameStatusLive      GameStatus = "live"
	GameStatusFinal     GameStatus = "final"
)

// StatsSnapshot holds per-team and per-player stat lines keyed by stat name.
type StatsSnapshot struct {
	Teams   map[string]map[string]float64 `json:"teams,omitempty"`
	Players map[string]map[string]float64 `json:"players,omitempty"`
}

// GameResult is a single observation returned by the sports data provider.
type GameResult struct {
	GameID    string        `json:"game_id"`
	Status    GameStatus    `json:"status"`
	HomeTeam  string        `json:"home_team"`
	AwayTeam  string        `json:"away_team"`
	HomeScore int           `json:"home_score"`
	AwayScore int           `json:"away_score"`
	Stats     StatsSnapshot `json:"stats"`
	StartTime *time.Time    `json:"start_time,omitempty"`
}

// GameResultCache is the last known state of a tracked game.
type GameResultCache struct {
	GameID    string                            `json:"game_id" gorm:"primaryKey"`
	Status    GameStatus                        `json:"status" gorm:"type:varchar(16);not null;index"`
	HomeTeam  string                            `json:"home_team"`
	AwayTeam  string                            `json:"away_team"`
	HomeScore int                               `json:"home_score"`
	AwayScore int                               `json:"away_score"`
	Stats     datatypes.JSONType[StatsSnapshot] `json:"stats"`
	// StartTime is the scheduled kickoff as last reported by the provider.
	StartTime *time.Time `json:"start_time,omitempty"`

	// ResultHash fingerprints the last final observation; FinalObservations
	// counts consecutive identical ones.
	ResultHash        string     `json:"result_hash"`
	FinalObservations int        `json:"final_observations" gorm:"default:0"`
	ConfirmedFinalAt  *time.Time `json:"confirmed_final_at,omitempty"`

	LastPolledAt        *time.Time `json:"last_polled_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures" gorm:"default:0"`
	NeedsReview         bool       `json:"needs_review" gorm:"default:false;index"`
	ReviewReason        string     `json:"review_reason,omitempty"`
	// VoidUnresolvable is set by an operator: definitions the snapshot cannot
	// answer are voided instead of blocking the game.
	VoidUnresolvable bool `json:"void_unresolvable" gorm:"default:false"`

	Timestamps
}

// Result rebuilds the provider view from the cached row.
func (g *GameResultCache) Result() GameResult {
	return GameResult{
		GameID:    g.GameID,
		Status:    g.Status,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		HomeScore: g.HomeScore,
		AwayScore: g.AwayScore,
		Stats:     g.Stats.Data(),
		StartTime: g.StartTime,
	}
}

// IsConfirmedFinal reports whether evaluation may consume this result.
func (g *GameResultCache) IsConfirmedFinal() bool {
	return g.Status == GameStatusFinal && g.ConfirmedFinalAt != nil
}

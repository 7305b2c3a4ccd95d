package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"contest-scoring-engine/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Store groups the per-aggregate repositories over one *gorm.DB. Inside
// Transaction every repository is bound to the same tx.
type Store struct {
	db *gorm.DB

	Contests     *ContestRepo
	Participants *ParticipantRepo
	Predictions  *PredictionRepo
	Games        *GameRepo
	Outbox       *OutboxRepo
	Reviews      *ReviewRepo
	Leaderboards *LeaderboardRepo
	Transfers    *TransferRepo
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Contests:     &ContestRepo{db: db},
		Participants: &ParticipantRepo{db: db},
		Predictions:  &PredictionRepo{db: db},
		Games:        &GameRepo{db: db},
		Outbox:       &OutboxRepo{db: db},
		Reviews:      &ReviewRepo{db: db},
		Leaderboards: &LeaderboardRepo{db: db},
		Transfers:    &TransferRepo{db: db},
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(models.All()...)
}

// Transaction runs fn with a Store bound to a single transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// translate maps gorm's not-found to ErrNotFound.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

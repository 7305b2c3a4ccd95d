package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"contest-scoring-engine/models"
	"contest-scoring-engine/testutils"
)

func newContest(t *testing.T, s *Store, status models.ContestStatus) *models.Contest {
	t.Helper()
	id := uuid.NewString()
	c := &models.Contest{
		ID:            id,
		Slug:          "week-1-" + id[:8],
		Name:          "Week 1",
		Type:          models.ContestTypeWeekly,
		Season:        2026,
		Week:          1,
		Status:        status,
		StartTime:     testutils.Epoch,
		EndTime:       testutils.Epoch.Add(72 * time.Hour),
		EntryFee:      decimal.NewFromInt(10),
		ScoringConfig: datatypes.NewJSONType(models.DefaultScoringConfig()),
		PrizePool:     datatypes.NewJSONType(models.PrizePool{TotalPrize: decimal.NewFromInt(100)}),
	}
	require.NoError(t, s.Contests.Create(context.Background(), c))
	return c
}

func TestContestRepo_Transition(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))
	c := newContest(t, s, models.ContestStatusPending)

	ok, err := s.Contests.Transition(ctx, c.ID, []models.ContestStatus{models.ContestStatusPending}, models.ContestStatusActive, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contests.Transition(ctx, c.ID, []models.ContestStatus{models.ContestStatusPending}, models.ContestStatusActive, nil)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from pending must not apply")

	got, err := s.Contests.ByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContestStatusActive, got.Status)
	assert.Equal(t, 100.0, got.Scoring().BasePoints[models.PredictionTypeSpread])

	_, err = s.Contests.ByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParticipantRepo_SaveAggregatesVersion(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))
	c := newContest(t, s, models.ContestStatusActive)

	p := &models.Participant{ID: uuid.NewString(), ContestID: c.ID, UserID: "u1", EntryTime: testutils.Epoch, Version: 1}
	require.NoError(t, s.Participants.Create(ctx, p))

	stale := *p
	p.TotalScore = 80
	require.NoError(t, s.Participants.SaveAggregates(ctx, p))
	assert.Equal(t, 2, p.Version)

	stale.TotalScore = 50
	assert.ErrorIs(t, s.Participants.SaveAggregates(ctx, &stale), ErrVersionConflict)

	got, err := s.Participants.Get(ctx, c.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), got.TotalScore)
}

func TestPredictionRepo_MarkResolvedOnce(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))
	c := newContest(t, s, models.ContestStatusActive)

	def := &models.PredictionDefinition{ID: uuid.NewString(), ContestID: c.ID, GameID: "g1", Type: models.PredictionTypeTotal, Choices: []string{"Over", "Under"}, Difficulty: models.DifficultyEasy, Deadline: testutils.Epoch}
	require.NoError(t, s.Predictions.CreateDefinition(ctx, def))

	sub := &models.PredictionSubmission{ID: uuid.NewString(), ContestID: c.ID, UserID: "u1", PredictionID: def.ID, Confidence: 60, SubmittedAt: testutils.Epoch.Add(-time.Hour), Version: 1}
	require.NoError(t, s.Predictions.CreateSubmission(ctx, sub))

	correct := true
	pts := int64(60)
	at := testutils.Epoch.Add(4 * time.Hour)
	sub.Correct, sub.PointsEarned, sub.ResolvedAt = &correct, &pts, &at
	require.NoError(t, s.Predictions.MarkResolved(ctx, sub))

	again := *sub
	again.Resolved = false
	assert.ErrorIs(t, s.Predictions.MarkResolved(ctx, &again), ErrVersionConflict)

	open, err := s.Predictions.UnresolvedForDefinitions(ctx, []string{def.ID})
	require.NoError(t, err)
	assert.Empty(t, open)

	total, resolved, err := s.Predictions.CountSubmissions(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), resolved)
}

func TestPredictionRepo_TrackedGameIDs(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))
	active := newContest(t, s, models.ContestStatusActive)
	done := newContest(t, s, models.ContestStatusCompleted)

	for i, gid := range []string{"g2", "g1", "g2"} {
		require.NoError(t, s.Predictions.CreateDefinition(ctx, &models.PredictionDefinition{
			ID: uuid.NewString(), ContestID: active.ID, GameID: gid, Type: models.PredictionTypeMoneyline,
			Choices: []string{"H", "A"}, Difficulty: models.DifficultyEasy, Deadline: testutils.Epoch.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Predictions.CreateDefinition(ctx, &models.PredictionDefinition{
		ID: uuid.NewString(), ContestID: done.ID, GameID: "g9", Type: models.PredictionTypeMoneyline,
		Choices: []string{"H", "A"}, Difficulty: models.DifficultyEasy, Deadline: testutils.Epoch,
	}))

	ids, err := s.Predictions.TrackedGameIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
}

func TestPredictionRepo_SaveBaselineKeepsFirst(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))

	require.NoError(t, s.Predictions.SaveBaseline(ctx, &models.OracleBaseline{PredictionID: "p1", ChoiceIndex: 0, Confidence: 70, FetchedAt: testutils.Epoch}))
	require.NoError(t, s.Predictions.SaveBaseline(ctx, &models.OracleBaseline{PredictionID: "p1", ChoiceIndex: 1, Confidence: 90, FetchedAt: testutils.Epoch}))

	b, err := s.Predictions.Baseline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.ChoiceIndex)
}

func TestReviewRepo_OpenDedupes(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))

	first, created, err := s.Reviews.Open(ctx, &models.ReviewItem{Kind: models.ReviewGamePollFailures, RefID: "g1", Reason: "5 failures"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.Reviews.Open(ctx, &models.ReviewItem{Kind: models.ReviewGamePollFailures, RefID: "g1", Reason: "6 failures"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, s.Reviews.Resolve(ctx, first.ID, "ops", "provider fixed", testutils.Epoch))
	assert.ErrorIs(t, s.Reviews.Resolve(ctx, first.ID, "ops", "", testutils.Epoch), ErrNotFound)

	open, err := s.Reviews.List(ctx, "", false)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTransferRepo_CreatePayoutsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))

	recs := []models.PayoutRecord{
		{ID: uuid.NewString(), ContestID: "c1", UserID: "u1", Rank: 1, Position: 1, Amount: decimal.NewFromInt(60), Status: models.TransferPending},
		{ID: uuid.NewString(), ContestID: "c1", UserID: "u2", Rank: 2, Position: 2, Amount: decimal.NewFromInt(40), Status: models.TransferPending},
	}
	require.NoError(t, s.Transfers.CreatePayouts(ctx, recs))

	dup := []models.PayoutRecord{{ID: uuid.NewString(), ContestID: "c1", UserID: "u1", Rank: 1, Position: 1, Amount: decimal.NewFromInt(999), Status: models.TransferPending}}
	require.NoError(t, s.Transfers.CreatePayouts(ctx, dup))

	got, err := s.Transfers.PayoutsByContest(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, decimal.NewFromInt(60).Equal(got[0].Amount))
}

func TestStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New(testutils.NewDB(t))

	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.Games.Track(ctx, "g1"); err != nil {
			return err
		}
		if _, err := tx.Outbox.Add(ctx, models.TopicGameFinalized, "g1", map[string]string{"game_id": "g1"}, testutils.Epoch); err != nil {
			return err
		}
		return ErrVersionConflict
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = s.Games.Get(ctx, "g1")
	assert.ErrorIs(t, err, ErrNotFound)
	evs, err := s.Outbox.Unprocessed(ctx, models.TopicGameFinalized, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

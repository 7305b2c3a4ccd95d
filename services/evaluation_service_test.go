package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contest-scoring-engine/models"
)

func TestEvaluationService_ScoresAndRanks(t *testing.T) {
	e := newEnv(t)
	e.noOracle()
	c := e.activeContest(t, 0, models.PrizePool{})
	e.register(t, c.ID, "alice", "bob", "carol")
	def := e.spread(t, c.ID, "g1", time.Hour, models.DifficultyEasy)

	e.submit(t, c.ID, "alice", def.ID, models.ChoiceHome, 80)
	e.submit(t, c.ID, "bob", def.ID, models.ChoiceHome, 50)
	e.submit(t, c.ID, "carol", def.ID, models.ChoiceAway, 90)

	_, err := e.evaluation.EvaluateGame(e.ctx, "g1")
	assert.ErrorIs(t, err, ErrState, "a game that is not confirmed final is not evaluated")

	e.clock.Add(4 * time.Hour)
	e.finalize(t, "g1", 24, 17, models.StatsSnapshot{})

	report, err := e.evaluation.EvaluateGame(e.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Resolved)
	assert.Equal(t, []string{c.ID}, report.Contests)

	want := map[string]struct {
		points  int64
		correct bool
	}{
		"alice": {points: 80, correct: true},
		"bob":   {points: 50, correct: true},
		"carol": {points: 0, correct: false},
	}
	for user, w := range want {
		sub, err := e.predictions.Submission(e.ctx, user, def.ID)
		require.NoError(t, err)
		require.True(t, sub.Resolved, user)
		require.NotNil(t, sub.PointsEarned, user)
		assert.Equal(t, w.points, *sub.PointsEarned, user)
		require.NotNil(t, sub.Correct, user)
		assert.Equal(t, w.correct, *sub.Correct, user)

		p, err := e.store.Participants.Get(e.ctx, c.ID, user)
		require.NoError(t, err)
		assert.Equal(t, w.points, p.TotalScore, user)
		assert.Equal(t, 1, p.ResolvedCount, user)
	}

	snap, err := e.leaderboard.GetLeaderboard(e.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 3)
	assert.Equal(t, "alice", snap.Entries[0].UserID)
	assert.Equal(t, "bob", snap.Entries[1].UserID)
	assert.Equal(t, "carol", snap.Entries[2].UserID)
	assert.Equal(t, []int{1, 2, 3}, []int{snap.Entries[0].Rank, snap.Entries[1].Rank, snap.Entries[2].Rank})

	// a second delivery of the same finalization changes nothing
	again, err := e.evaluation.EvaluateGame(e.ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, again.Resolved)
	p, err := e.store.Participants.Get(e.ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(80), p.TotalScore)
	assert.Equal(t, 1, p.ResolvedCount)
}

func TestEvaluationService_OracleBeatAndStreak(t *testing.T) {
	e := newEnv(t)
	c := e.activeContest(t, 0, models.PrizePool{})
	e.register(t, c.ID, "alice")

	defs := []*models.PredictionDefinition{
		e.spread(t, c.ID, "g1", time.Hour, models.DifficultyEasy),
		e.spread(t, c.ID, "g1", 2*time.Hour, models.DifficultyEasy),
		e.spread(t, c.ID, "g1", 3*time.Hour, models.DifficultyEasy),
	}
	for _, d := range defs {
		e.submit(t, c.ID, "alice", d.ID, models.ChoiceHome, 100)
	}
	// the oracle liked the away side on the last question only
	e.oracle.On("GetBaselineChoice", mock.Anything, defs[2].ID).
		Return(&models.OracleBaseline{ChoiceIndex: models.ChoiceAway, Confidence: 70}, nil).Once()
	e.oracle.On("GetBaselineChoice", mock.Anything, mock.Anything).
		Return(&models.OracleBaseline{ChoiceIndex: models.ChoiceHome, Confidence: 70}, nil)

	e.clock.Add(4 * time.Hour)
	e.finalize(t, "g1", 30, 10, models.StatsSnapshot{})
	_, err := e.evaluation.EvaluateGame(e.ctx, "g1")
	require.NoError(t, err)

	points := make([]int64, len(defs))
	for i, d := range defs {
		sub, err := e.predictions.Submission(e.ctx, "alice", d.ID)
		require.NoError(t, err)
		points[i] = *sub.PointsEarned
	}
	// third correct pick starts the streak bonus and beats the oracle
	assert.Equal(t, []int64{100, 100, 100 + 10 + 25}, points)

	p, err := e.store.Participants.Get(e.ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(335), p.TotalScore)
	assert.Equal(t, 3, p.BestStreak)
	assert.Equal(t, 1, p.OracleBeats)

	b, err := e.store.Predictions.Baseline(e.ctx, defs[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChoiceAway, b.ChoiceIndex, "fetched baselines are persisted")
}

func TestEvaluationService_PushIsVoid(t *testing.T) {
	e := newEnv(t)
	e.noOracle()
	c := e.activeContest(t, 0, models.PrizePool{})
	e.register(t, c.ID, "alice")
	def, err := e.contests.AddPredictionDefinition(e.ctx, c.ID, DefinitionInput{
		GameID:     "g1",
		Type:       models.PredictionTypeTotal,
		Choices:    []string{"over", "under"},
		Difficulty: models.DifficultyEasy,
		Line:       41,
		Deadline:   e.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	e.submit(t, c.ID, "alice", def.ID, models.ChoiceOver, 70)

	e.clock.Add(4 * time.Hour)
	e.finalize(t, "g1", 24, 17, models.StatsSnapshot{})
	report, err := e.evaluation.EvaluateGame(e.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Voided)

	sub, err := e.predictions.Submission(e.ctx, "alice", def.ID)
	require.NoError(t, err)
	assert.True(t, sub.Resolved)
	assert.True(t, sub.Void)
	assert.Equal(t, int64(0), *sub.PointsEarned)

	p, err := e.store.Participants.Get(e.ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.Zero(t, p.ResolvedCount, "a void pick does not count toward accuracy")
}

func TestEvaluationService_MissingStatGoesToReview(t *testing.T) {
	e := newEnv(t)
	e.noOracle()
	c := e.activeContest(t, 0, models.PrizePool{})
	e.register(t, c.ID, "alice")
	prop, err := e.contests.AddPredictionDefinition(e.ctx, c.ID, DefinitionInput{
		GameID:     "g1",
		Type:       models.PredictionTypePlayerProp,
		Choices:    []string{"over", "under"},
		Difficulty: models.DifficultyHard,
		Line:       249.5,
		Subject:    "qb-12",
		StatKey:    "passing_yards",
		Deadline:   e.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	spread := e.spread(t, c.ID, "g1", time.Hour, models.DifficultyEasy)
	e.submit(t, c.ID, "alice", prop.ID, models.ChoiceOver, 60)
	e.submit(t, c.ID, "alice", spread.ID, models.ChoiceHome, 60)

	e.clock.Add(4 * time.Hour)
	e.finalize(t, "g1", 24, 17, models.StatsSnapshot{Players: map[string]map[string]float64{"rb-28": {"rushing_yards": 88}}})

	_, err = e.evaluation.EvaluateGame(e.ctx, "g1")
	assert.ErrorIs(t, err, ErrUnresolvedData)

	sub, err := e.predictions.Submission(e.ctx, "alice", spread.ID)
	require.NoError(t, err)
	assert.False(t, sub.Resolved, "nothing in the game is settled while data is missing")

	game, err := e.store.Games.Get(e.ctx, "g1")
	require.NoError(t, err)
	assert.True(t, game.NeedsReview)

	items, err := e.reviews.List(e.ctx, models.ReviewUnresolvedData, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "g1", items[0].RefID)

	_, err = e.evaluation.EvaluateGame(e.ctx, "g1")
	assert.ErrorIs(t, err, ErrUnresolvedData, "a flagged game stays blocked")

	_, err = e.reviews.Resolve(e.ctx, items[0].ID, "ops@league", ResolveInput{Action: ActionVoid, Note: "stat feed never carried it"})
	require.NoError(t, err)

	report, err := e.evaluation.EvaluateGame(e.ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Voided)

	propSub, err := e.predictions.Submission(e.ctx, "alice", prop.ID)
	require.NoError(t, err)
	assert.True(t, propSub.Void)
}

func TestEvaluationService_ForceEvaluate(t *testing.T) {
	e := newEnv(t)
	e.noOracle()
	c := e.activeContest(t, 0, models.PrizePool{})
	e.register(t, c.ID, "alice")
	d1 := e.spread(t, c.ID, "g1", time.Hour, models.DifficultyEasy)
	d2 := e.spread(t, c.ID, "g2", time.Hour, models.DifficultyEasy)
	e.submit(t, c.ID, "alice", d1.ID, models.ChoiceHome, 40)
	e.submit(t, c.ID, "alice", d2.ID, models.ChoiceHome, 40)

	e.clock.Add(4 * time.Hour)
	e.finalize(t, "g1", 21, 14, models.StatsSnapshot{})

	report, err := e.evaluation.ForceEvaluate(e.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, []string{"g2"}, report.Pending)

	_, err = e.contests.Cancel(e.ctx, c.ID, "abandoned")
	require.NoError(t, err)
	_, err = e.evaluation.ForceEvaluate(e.ctx, c.ID)
	assert.ErrorIs(t, err, ErrContestNotActive)
}

func TestEvaluationService_PrefetchBaselines(t *testing.T) {
	e := newEnv(t)
	c := e.activeContest(t, 0, models.PrizePool{})
	closed := e.spread(t, c.ID, "g1", time.Hour, models.DifficultyEasy)
	e.spread(t, c.ID, "g2", 10*time.Hour, models.DifficultyEasy)

	e.oracle.On("GetBaselineChoice", mock.Anything, closed.ID).
		Return(&models.OracleBaseline{ChoiceIndex: models.ChoiceAway, Confidence: 55}, nil).Once()

	e.clock.Add(2 * time.Hour)
	n, err := e.evaluation.PrefetchBaselines(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.evaluation.PrefetchBaselines(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "stored baselines are not fetched again")
	e.oracle.AssertExpectations(t)
}

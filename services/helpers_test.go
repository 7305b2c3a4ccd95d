package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/itbasis/go-clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/testutils"
)

type mockOracle struct{ mock.Mock }

func (m *mockOracle) GetBaselineChoice(ctx context.Context, predictionID string) (*models.OracleBaseline, error) {
	args := m.Called(ctx, predictionID)
	b, _ := args.Get(0).(*models.OracleBaseline)
	return b, args.Error(1)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) RequestPayout(ctx context.Context, userID string, amount decimal.Decimal, contestID string) (string, error) {
	args := m.Called(ctx, userID, amount, contestID)
	return args.String(0), args.Error(1)
}

func (m *mockPayments) RequestRefund(ctx context.Context, userID string, amount decimal.Decimal, contestID string) (string, error) {
	args := m.Called(ctx, userID, amount, contestID)
	return args.String(0), args.Error(1)
}

type env struct {
	ctx         context.Context
	store       *repository.Store
	clock       *clock.Mock
	contests    *ContestService
	predictions *PredictionService
	leaderboard *LeaderboardService
	evaluation  *EvaluationService
	payouts     *PayoutService
	reviews     *ReviewService
	oracle      *mockOracle
	payments    *mockPayments
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := repository.New(testutils.NewDB(t))
	clk := clock.NewMock()
	clk.Set(testutils.Epoch)

	e := &env{
		ctx:      context.Background(),
		store:    store,
		clock:    clk,
		oracle:   &mockOracle{},
		payments: &mockPayments{},
	}
	e.contests = NewContestService(store, clk)
	e.predictions = NewPredictionService(store, clk)
	e.leaderboard = NewLeaderboardService(store, clk)
	e.evaluation = NewEvaluationService(store, clk, e.oracle, e.leaderboard)
	e.payouts = NewPayoutService(store, clk, e.payments, e.leaderboard, nil, 3)
	e.reviews = NewReviewService(store, clk, e.payouts)
	return e
}

// noOracle makes every baseline lookup fail so scoring runs without one.
func (e *env) noOracle() {
	e.oracle.On("GetBaselineChoice", mock.Anything, mock.Anything).Return(nil, ErrExternalService)
}

func pct(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// activeContest creates a contest that started an hour ago and ends in three days.
func (e *env) activeContest(t *testing.T, fee int64, pool models.PrizePool) *models.Contest {
	t.Helper()
	c, err := e.contests.CreateContest(e.ctx, CreateContestInput{
		Name:      "Week 2",
		Type:      models.ContestTypeWeekly,
		Season:    2026,
		Week:      2,
		StartTime: e.clock.Now().Add(-time.Hour),
		EndTime:   e.clock.Now().Add(72 * time.Hour),
		EntryFee:  decimal.NewFromInt(fee),
		PrizePool: pool,
	})
	require.NoError(t, err)
	c, err = e.contests.Activate(e.ctx, c.ID)
	require.NoError(t, err)
	return c
}

func (e *env) register(t *testing.T, contestID string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := e.contests.RegisterParticipant(e.ctx, contestID, u, u, "pay-"+u)
		require.NoError(t, err)
	}
}

// spread adds a home -3.5 spread definition closing in the given duration.
func (e *env) spread(t *testing.T, contestID, gameID string, closesIn time.Duration, difficulty models.Difficulty) *models.PredictionDefinition {
	t.Helper()
	def, err := e.contests.AddPredictionDefinition(e.ctx, contestID, DefinitionInput{
		GameID:     gameID,
		Type:       models.PredictionTypeSpread,
		Question:   "Will the home team cover -3.5?",
		Choices:    []string{"home", "away"},
		Difficulty: difficulty,
		Line:       -3.5,
		Deadline:   e.clock.Now().Add(closesIn),
	})
	require.NoError(t, err)
	return def
}

func (e *env) submit(t *testing.T, contestID, userID, predictionID string, choice, confidence int) *models.PredictionSubmission {
	t.Helper()
	sub, err := e.predictions.SubmitPrediction(e.ctx, SubmitInput{
		ContestID:    contestID,
		UserID:       userID,
		PredictionID: predictionID,
		Choice:       choice,
		Confidence:   confidence,
	})
	require.NoError(t, err)
	return sub
}

// finalize stores a confirmed final result for gameID.
func (e *env) finalize(t *testing.T, gameID string, home, away int, stats models.StatsSnapshot) {
	t.Helper()
	now := e.clock.Now().UTC()
	g, err := e.store.Games.Get(e.ctx, gameID)
	require.NoError(t, err)
	g.Status = models.GameStatusFinal
	g.HomeScore = home
	g.AwayScore = away
	g.Stats = datatypes.NewJSONType(stats)
	g.FinalObservations = 2
	g.ResultHash = uuid.NewString()
	g.ConfirmedFinalAt = &now
	require.NoError(t, e.store.Games.Save(e.ctx, g))
}

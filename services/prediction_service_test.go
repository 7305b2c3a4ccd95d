package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-scoring-engine/models"
)

func TestPredictionService_SubmitPrediction(t *testing.T) {
	e := newEnv(t)
	c := e.activeContest(t, 0, models.PrizePool{})
	e.register(t, c.ID, "u1")
	def := e.spread(t, c.ID, "g1", 10*time.Minute, models.DifficultyMedium)
	other := e.activeContest(t, 0, models.PrizePool{})
	foreign := e.spread(t, other.ID, "g2", time.Hour, models.DifficultyEasy)

	base := SubmitInput{ContestID: c.ID, UserID: "u1", PredictionID: def.ID, Choice: models.ChoiceHome, Confidence: 60}

	tests := map[string]struct {
		mutate  func(in *SubmitInput)
		wantErr error
	}{
		"confidence zero":       {mutate: func(in *SubmitInput) { in.Confidence = 0 }, wantErr: ErrValidation},
		"confidence over 100":   {mutate: func(in *SubmitInput) { in.Confidence = 101 }, wantErr: ErrValidation},
		"choice out of range":   {mutate: func(in *SubmitInput) { in.Choice = 2 }, wantErr: ErrInvalidChoice},
		"negative choice":       {mutate: func(in *SubmitInput) { in.Choice = -1 }, wantErr: ErrInvalidChoice},
		"not registered":        {mutate: func(in *SubmitInput) { in.UserID = "stranger" }, wantErr: ErrNotRegistered},
		"definition of another": {mutate: func(in *SubmitInput) { in.PredictionID = foreign.ID }, wantErr: ErrValidation},
		"unknown contest":       {mutate: func(in *SubmitInput) { in.ContestID = "missing" }, wantErr: ErrNotFound},
		"reasoning too long":    {mutate: func(in *SubmitInput) { in.Reasoning = strings.Repeat("x", maxReasoningLength+1) }, wantErr: ErrValidation},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := e.predictions.SubmitPrediction(e.ctx, in)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	first := e.submit(t, c.ID, "u1", def.ID, models.ChoiceHome, 60)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, -3.5, first.Line)

	e.clock.Add(5 * time.Minute)
	second := e.submit(t, c.ID, "u1", def.ID, models.ChoiceAway, 90)
	assert.Equal(t, first.ID, second.ID, "overwrite keeps one row per user and definition")
	assert.Equal(t, 2, second.Version)
	assert.True(t, second.SubmittedAt.After(first.SubmittedAt))

	stored, err := e.predictions.Submission(e.ctx, "u1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChoiceAway, stored.ChoiceIndex)
	assert.Equal(t, 90, stored.Confidence)

	// the deadline itself is already closed
	e.clock.Add(5 * time.Minute)
	_, err = e.predictions.SubmitPrediction(e.ctx, base)
	assert.ErrorIs(t, err, ErrDeadlinePassed)

	stored, err = e.predictions.Submission(e.ctx, "u1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version, "a rejected submission leaves the stored pick alone")
}

func TestPredictionService_ContestNotActive(t *testing.T) {
	e := newEnv(t)
	start := e.clock.Now().Add(time.Hour)
	c, err := e.contests.CreateContest(e.ctx, CreateContestInput{
		Name:      "Later",
		Type:      models.ContestTypeWeekly,
		Season:    2026,
		Week:      4,
		StartTime: start,
		EndTime:   start.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	e.register(t, c.ID, "u1")
	def := e.spread(t, c.ID, "g1", 2*time.Hour, models.DifficultyEasy)

	_, err = e.predictions.SubmitPrediction(e.ctx, SubmitInput{
		ContestID: c.ID, UserID: "u1", PredictionID: def.ID, Choice: models.ChoiceHome, Confidence: 50,
	})
	assert.ErrorIs(t, err, ErrContestNotActive)
	assert.ErrorIs(t, err, ErrState)
}

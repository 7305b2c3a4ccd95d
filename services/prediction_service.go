package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/itbasis/go-clock"

	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
)

const maxReasoningLength = 2000

// PredictionService is the deadline-gated submission store.
type PredictionService struct {
	Store *repository.Store
	Clock clock.Clock
}

func NewPredictionService(store *repository.Store, clk clock.Clock) *PredictionService {
	return &PredictionService{Store: store, Clock: clk}
}

type SubmitInput struct {
	ContestID    string `json:"contest_id"`
	UserID       string `json:"user_id"`
	PredictionID string `json:"prediction_id"`
	Choice       int    `json:"choice"`
	Confidence   int    `json:"confidence"`
	Reasoning    string `json:"reasoning,omitempty"`
}

// SubmitPrediction creates or overwrites the user's pick for a definition.
// A concurrent writer on the same row costs one transparent retry.
func (s *PredictionService) SubmitPrediction(ctx context.Context, in SubmitInput) (*models.PredictionSubmission, error) {
	sub, err := s.submit(ctx, in)
	if errors.Is(err, ErrConcurrencyConflict) {
		log.Printf("[Predictions] conflict for user=%s prediction=%s, retrying once", in.UserID, in.PredictionID)
		sub, err = s.submit(ctx, in)
	}
	return sub, err
}

func (s *PredictionService) submit(ctx context.Context, in SubmitInput) (*models.PredictionSubmission, error) {
	now := s.Clock.Now().UTC()

	c, err := s.Store.Contests.ByID(ctx, in.ContestID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ContestStatusActive {
		return nil, ErrContestNotActive
	}

	def, err := s.Store.Predictions.Definition(ctx, in.PredictionID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && def.ContestID != c.ID) {
		return nil, validationf("prediction %s does not belong to contest %s", in.PredictionID, c.ID)
	}
	if err != nil {
		return nil, err
	}
	if !now.Before(def.Deadline) {
		return nil, fmt.Errorf("%w: closed at %s", ErrDeadlinePassed, def.Deadline.Format(time.RFC3339))
	}
	if in.Confidence < 1 || in.Confidence > 100 {
		return nil, validationf("confidence must be between 1 and 100")
	}
	if in.Choice < 0 || in.Choice >= len(def.Choices) {
		return nil, ErrInvalidChoice
	}
	if utf8.RuneCountInString(in.Reasoning) > maxReasoningLength {
		return nil, validationf("reasoning is limited to %d characters", maxReasoningLength)
	}

	if _, err := s.Store.Participants.Get(ctx, c.ID, in.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}

	existing, err := s.Store.Predictions.Submission(ctx, in.UserID, in.PredictionID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		sub := &models.PredictionSubmission{
			ID:           uuid.NewString(),
			ContestID:    c.ID,
			UserID:       in.UserID,
			PredictionID: def.ID,
			ChoiceIndex:  in.Choice,
			Confidence:   in.Confidence,
			Reasoning:    in.Reasoning,
			Line:         def.Line,
			SubmittedAt:  now,
			Version:      1,
		}
		if err := s.Store.Predictions.CreateSubmission(ctx, sub); err != nil {
			// lost an insert race against the same (user, prediction)
			if _, again := s.Store.Predictions.Submission(ctx, in.UserID, in.PredictionID); again == nil {
				return nil, fmt.Errorf("%w: concurrent submission", ErrConcurrencyConflict)
			}
			return nil, err
		}
		return sub, nil
	case err != nil:
		return nil, err
	}

	if existing.Resolved {
		return nil, fmt.Errorf("%w: submission already resolved", ErrDeadlinePassed)
	}
	prev := existing.Version
	existing.ChoiceIndex = in.Choice
	existing.Confidence = in.Confidence
	existing.Reasoning = in.Reasoning
	existing.Line = def.Line
	existing.SubmittedAt = now
	existing.Version = prev + 1
	if err := s.Store.Predictions.OverwriteSubmission(ctx, existing, prev); err != nil {
		return nil, conflict(err)
	}
	return existing, nil
}

// Submission returns a user's pick for a definition.
func (s *PredictionService) Submission(ctx context.Context, userID, predictionID string) (*models.PredictionSubmission, error) {
	return s.Store.Predictions.Submission(ctx, userID, predictionID)
}

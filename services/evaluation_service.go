package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/itbasis/go-clock"
	"golang.org/x/sync/errgroup"

	"contest-scoring-engine/metrics"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/scoring"
)

// EvaluationService resolves submissions once their game is confirmed final.
type EvaluationService struct {
	Store       *repository.Store
	Clock       clock.Clock
	Oracle      OracleClient
	Leaderboard *LeaderboardService

	// OracleTimeout bounds a lazy baseline fetch during evaluation.
	OracleTimeout time.Duration
	// ContestParallelism caps contests scored at once for one game.
	ContestParallelism int

	participants keyedMutex
}

func NewEvaluationService(store *repository.Store, clk clock.Clock, oracle OracleClient, lb *LeaderboardService) *EvaluationService {
	return &EvaluationService{
		Store:              store,
		Clock:              clk,
		Oracle:             oracle,
		Leaderboard:        lb,
		OracleTimeout:      3 * time.Second,
		ContestParallelism: 8,
	}
}

// EvaluationReport summarizes one evaluation pass.
type EvaluationReport struct {
	GameIDs  []string `json:"game_ids"`
	Resolved int      `json:"resolved"`
	Voided   int      `json:"voided"`
	Skipped  int      `json:"skipped"` // already resolved or contest no longer active
	Contests []string `json:"contests"`
	Pending  []string `json:"pending_games,omitempty"`
}

func (r *EvaluationReport) merge(o *EvaluationReport) {
	r.GameIDs = append(r.GameIDs, o.GameIDs...)
	r.Resolved += o.Resolved
	r.Voided += o.Voided
	r.Skipped += o.Skipped
	seen := make(map[string]bool, len(r.Contests))
	for _, c := range r.Contests {
		seen[c] = true
	}
	for _, c := range o.Contests {
		if !seen[c] {
			r.Contests = append(r.Contests, c)
			seen[c] = true
		}
	}
}

// pick is one submission with everything needed to settle it.
type pick struct {
	sub     models.PredictionSubmission
	def     *models.PredictionDefinition
	outcome scoring.Outcome
}

// EvaluateGame settles every unresolved submission referencing gameID.
func (s *EvaluationService) EvaluateGame(ctx context.Context, gameID string) (*EvaluationReport, error) {
	return s.evaluateGame(ctx, gameID, "")
}

// ForceEvaluate settles a contest against every game already confirmed final
// and recomputes its leaderboard.
func (s *EvaluationService) ForceEvaluate(ctx context.Context, contestID string) (*EvaluationReport, error) {
	c, err := s.Store.Contests.ByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ContestStatusActive {
		return nil, ErrContestNotActive
	}
	defs, err := s.Store.Predictions.DefinitionsByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	games := make([]string, 0, len(defs))
	seen := make(map[string]bool)
	for _, d := range defs {
		if !seen[d.GameID] {
			seen[d.GameID] = true
			games = append(games, d.GameID)
		}
	}
	sort.Strings(games)

	report := &EvaluationReport{}
	for _, gameID := range games {
		r, err := s.evaluateGame(ctx, gameID, contestID)
		switch {
		case err == nil:
			report.merge(r)
		case errors.Is(err, ErrState), errors.Is(err, ErrNotFound), errors.Is(err, ErrUnresolvedData):
			report.Pending = append(report.Pending, gameID)
		default:
			return nil, err
		}
	}
	if _, err := s.Leaderboard.Recompute(ctx, contestID); err != nil {
		return nil, err
	}
	report.Contests = []string{contestID}
	return report, nil
}

func (s *EvaluationService) evaluateGame(ctx context.Context, gameID, onlyContest string) (*EvaluationReport, error) {
	game, err := s.Store.Games.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.NeedsReview {
		return nil, fmt.Errorf("%w: game %s awaiting review: %s", ErrUnresolvedData, gameID, game.ReviewReason)
	}
	if !game.IsConfirmedFinal() {
		return nil, fmt.Errorf("%w: game %s is not confirmed final", ErrState, gameID)
	}
	result := game.Result()

	defs, err := s.Store.Predictions.DefinitionsByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.PredictionDefinition, len(defs))
	ids := make([]string, 0, len(defs))
	for i := range defs {
		if onlyContest != "" && defs[i].ContestID != onlyContest {
			continue
		}
		byID[defs[i].ID] = &defs[i]
		ids = append(ids, defs[i].ID)
	}

	subs, err := s.Store.Predictions.UnresolvedForDefinitions(ctx, ids)
	if err != nil {
		return nil, err
	}
	report := &EvaluationReport{GameIDs: []string{gameID}}
	if len(subs) == 0 {
		return report, nil
	}

	// Derive every outcome first so bad data blocks the whole game, not
	// half of it.
	picks := make([]pick, 0, len(subs))
	var missing []string
	for _, sub := range subs {
		def := byID[sub.PredictionID]
		out, err := scoring.Resolve(def, sub.Line, result)
		if errors.Is(err, scoring.ErrMissingStat) {
			if game.VoidUnresolvable {
				out = scoring.Outcome{Push: true}
			} else {
				missing = append(missing, err.Error())
				continue
			}
		} else if err != nil {
			return nil, err
		}
		picks = append(picks, pick{sub: sub, def: def, outcome: out})
	}
	if len(missing) > 0 {
		reason := fmt.Sprintf("%d submissions cannot be settled: %s", len(missing), missing[0])
		if err := s.flagUnresolved(ctx, gameID, reason); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedData, reason)
	}

	baselines, err := s.baselines(ctx, ids)
	if err != nil {
		return nil, err
	}

	byContest := make(map[string][]pick)
	for _, p := range picks {
		byContest[p.sub.ContestID] = append(byContest[p.sub.ContestID], p)
	}
	contests := make([]string, 0, len(byContest))
	for id := range byContest {
		contests = append(contests, id)
	}
	sort.Strings(contests)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := s.ContestParallelism
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, contestID := range contests {
		contestID := contestID
		batch := byContest[contestID]
		g.Go(func() error {
			r, err := s.evaluateContest(gctx, contestID, batch, baselines)
			if err != nil {
				return fmt.Errorf("contest %s: %w", contestID, err)
			}
			mu.Lock()
			report.Resolved += r.Resolved
			report.Voided += r.Voided
			report.Skipped += r.Skipped
			if r.Resolved+r.Voided > 0 {
				report.Contests = append(report.Contests, contestID)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.EvaluationFailures.Inc()
		return nil, err
	}
	sort.Strings(report.Contests)
	log.Printf("[Eval] game %s: %d resolved, %d void, %d skipped across %d contests",
		gameID, report.Resolved, report.Voided, report.Skipped, len(report.Contests))
	return report, nil
}

func (s *EvaluationService) evaluateContest(ctx context.Context, contestID string, batch []pick, baselines map[string]models.OracleBaseline) (*EvaluationReport, error) {
	// a participant's streak follows definition order, then submission order
	sort.SliceStable(batch, func(i, j int) bool {
		a, b := batch[i], batch[j]
		if !a.def.Deadline.Equal(b.def.Deadline) {
			return a.def.Deadline.Before(b.def.Deadline)
		}
		if a.def.ID != b.def.ID {
			return a.def.ID < b.def.ID
		}
		return a.sub.ID < b.sub.ID
	})

	report := &EvaluationReport{}
	for _, p := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var oracle *models.OracleBaseline
		if b, ok := baselines[p.def.ID]; ok {
			oracle = &b
		}
		status, err := s.resolveOne(ctx, p, oracle)
		if err != nil {
			return nil, err
		}
		switch status {
		case resolvedScored:
			report.Resolved++
		case resolvedVoid:
			report.Voided++
		default:
			report.Skipped++
		}
	}
	if report.Resolved+report.Voided > 0 && s.Leaderboard != nil {
		if _, err := s.Leaderboard.Recompute(ctx, contestID); err != nil {
			return nil, err
		}
	}
	return report, nil
}

type resolution int

const (
	resolvedSkipped resolution = iota
	resolvedScored
	resolvedVoid
)

// resolveOne settles a single submission under its participant's lock. A
// submission already resolved, or one whose contest stopped being active, is
// left alone.
func (s *EvaluationService) resolveOne(ctx context.Context, p pick, oracle *models.OracleBaseline) (resolution, error) {
	unlock := s.participants.Lock(p.sub.ContestID + "/" + p.sub.UserID)
	defer unlock()

	status := resolvedSkipped
	now := s.Clock.Now().UTC()
	err := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := tx.Contests.ByIDForShare(ctx, p.sub.ContestID)
		if err != nil {
			return err
		}
		if c.Status != models.ContestStatusActive {
			return nil
		}
		sub, err := tx.Predictions.SubmissionByID(ctx, p.sub.ID)
		if err != nil {
			return err
		}
		if sub.Resolved {
			return nil
		}

		if p.outcome.Push {
			zero := int64(0)
			sub.Void = true
			sub.PointsEarned = &zero
			sub.ResolvedAt = &now
			if err := tx.Predictions.MarkResolved(ctx, sub); err != nil {
				return conflict(err)
			}
			status = resolvedVoid
			return nil
		}

		part, err := tx.Participants.GetForUpdate(ctx, sub.ContestID, sub.UserID)
		if err != nil {
			return err
		}

		correct := p.outcome.Matches(sub.ChoiceIndex)
		beat := correct && scoring.BeatsOracle(sub.ChoiceIndex, oracle, p.outcome)
		award := scoring.Score(scoring.Input{
			Config:        c.Scoring(),
			Type:          p.def.Type,
			Difficulty:    p.def.Difficulty,
			Category:      p.def.Category,
			Confidence:    sub.Confidence,
			Correct:       correct,
			CurrentStreak: part.CurrentStreak,
			BeatOracle:    beat,
		})

		sub.Correct = &correct
		sub.BeatOracle = award.BeatOracle
		sub.PointsEarned = &award.Points
		sub.ResolvedAt = &now
		if err := tx.Predictions.MarkResolved(ctx, sub); err != nil {
			return conflict(err)
		}

		part.TotalScore += award.Points
		part.ResolvedCount++
		part.CurrentStreak = award.NewStreak
		if correct {
			part.CorrectCount++
			if part.CurrentStreak > part.BestStreak {
				part.BestStreak = part.CurrentStreak
			}
		}
		if award.BeatOracle {
			part.OracleBeats++
		}
		if err := tx.Participants.SaveAggregates(ctx, part); err != nil {
			return conflict(err)
		}
		status = resolvedScored
		return nil
	})
	if err != nil {
		return resolvedSkipped, err
	}
	switch status {
	case resolvedScored:
		outcome := "incorrect"
		if p.outcome.Matches(p.sub.ChoiceIndex) {
			outcome = "correct"
		}
		metrics.SubmissionsResolved.WithLabelValues(outcome).Inc()
	case resolvedVoid:
		metrics.SubmissionsResolved.WithLabelValues("void").Inc()
	}
	return status, nil
}

// baselines loads persisted Oracle picks and lazily fetches missing ones. A
// fetch that fails or times out scores the prediction without a baseline.
func (s *EvaluationService) baselines(ctx context.Context, predictionIDs []string) (map[string]models.OracleBaseline, error) {
	have, err := s.Store.Predictions.Baselines(ctx, predictionIDs)
	if err != nil {
		return nil, err
	}
	if s.Oracle == nil {
		return have, nil
	}
	for _, id := range predictionIDs {
		if _, ok := have[id]; ok {
			continue
		}
		b, err := s.fetchBaseline(ctx, id)
		if err != nil {
			log.Printf("[Eval] oracle baseline for %s unavailable: %v", id, err)
			continue
		}
		have[id] = *b
	}
	return have, nil
}

func (s *EvaluationService) fetchBaseline(ctx context.Context, predictionID string) (*models.OracleBaseline, error) {
	timeout := s.OracleTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, err := s.Oracle.GetBaselineChoice(fctx, predictionID)
	if err != nil {
		return nil, err
	}
	b.PredictionID = predictionID
	b.FetchedAt = s.Clock.Now().UTC()
	if err := s.Store.Predictions.SaveBaseline(ctx, b); err != nil {
		return nil, err
	}
	// another writer may have stored first; the stored row wins
	return s.Store.Predictions.Baseline(ctx, predictionID)
}

// PrefetchBaselines snapshots the Oracle pick of every closed definition
// that does not have one yet.
func (s *EvaluationService) PrefetchBaselines(ctx context.Context) (int, error) {
	if s.Oracle == nil {
		return 0, nil
	}
	defs, err := s.Store.Predictions.DefinitionsClosedBefore(ctx, s.Clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	have, err := s.Store.Predictions.Baselines(ctx, ids)
	if err != nil {
		return 0, err
	}
	fetched := 0
	for _, id := range ids {
		if _, ok := have[id]; ok {
			continue
		}
		if _, err := s.fetchBaseline(ctx, id); err != nil {
			log.Printf("[Eval] prefetch baseline %s failed: %v", id, err)
			continue
		}
		fetched++
	}
	return fetched, nil
}

func (s *EvaluationService) flagUnresolved(ctx context.Context, gameID, reason string) error {
	return s.Store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Games.FlagReview(ctx, gameID, reason); err != nil {
			return err
		}
		_, created, err := tx.Reviews.Open(ctx, &models.ReviewItem{
			Kind:   models.ReviewUnresolvedData,
			RefID:  gameID,
			Reason: reason,
		})
		if err == nil && created {
			metrics.ReviewsOpened.WithLabelValues(string(models.ReviewUnresolvedData)).Inc()
			log.Printf("[Eval] game %s routed to review: %s", gameID, reason)
		}
		return err
	})
}

package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/itbasis/go-clock"
	"gorm.io/datatypes"

	"contest-scoring-engine/events"
	"contest-scoring-engine/metrics"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/services"
	"contest-scoring-engine/utils"
)

const maxBackoff = 30 * time.Second

// ResultPoller keeps GameResultCache in step with the sports data provider
// and confirms a final result once two consecutive polls agree on it.
type ResultPoller struct {
	Store  *repository.Store
	Sports services.SportsDataClient
	Clock  clock.Clock
	Queue  *events.Queue

	// Retries is the number of fetch attempts per poll.
	Retries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	// FailureBudget is the number of consecutive failed polls before a game
	// is parked for operator review.
	FailureBudget int
	// DisputeWindow is how long confirmed games are still watched for
	// corrections.
	DisputeWindow time.Duration
	// KickoffLead moves scheduled games onto the live cadence this long
	// before their reported start time.
	KickoffLead time.Duration

	Season int
	Week   int
}

// PollReport counts what one tier pass did.
type PollReport struct {
	Polled      int
	Failed      int
	Confirmed   []string
	Corrections []string
}

// PollTier polls every unconfirmed game whose cached status is tier. The
// final tier first re-checks games confirmed earlier that are still inside
// the dispute window.
func (p *ResultPoller) PollTier(ctx context.Context, tier models.GameStatus) (*PollReport, error) {
	games, err := p.pollable(ctx, tier)
	if err != nil {
		return nil, err
	}
	report := &PollReport{}
	if tier == models.GameStatusFinal && p.DisputeWindow > 0 {
		if err := p.watchCorrections(ctx, report); err != nil {
			return report, err
		}
	}
	for i := range games {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p.pollGame(ctx, tier, &games[i], report)
	}
	if report.Polled+report.Failed > 0 {
		log.Printf("[Poller] %s tier: %d polled, %d failed, %d confirmed", tier, report.Polled, report.Failed, len(report.Confirmed))
	}
	return report, nil
}

// pollable lists the games polled in tier. Scheduled games close to kickoff
// belong to the live tier.
func (p *ResultPoller) pollable(ctx context.Context, tier models.GameStatus) ([]models.GameResultCache, error) {
	games, err := p.Store.Games.Pollable(ctx, tier)
	if err != nil || p.KickoffLead <= 0 {
		return games, err
	}
	cutoff := p.Clock.Now().UTC().Add(p.KickoffLead)
	switch tier {
	case models.GameStatusLive:
		soon, err := p.Store.Games.KickingOff(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		return append(games, soon...), nil
	case models.GameStatusScheduled:
		out := games[:0]
		for _, g := range games {
			if g.StartTime == nil || g.StartTime.After(cutoff) {
				out = append(out, g)
			}
		}
		return out, nil
	}
	return games, nil
}

func (p *ResultPoller) pollGame(ctx context.Context, tier models.GameStatus, g *models.GameResultCache, report *PollReport) {
	res, err := p.fetch(ctx, g.GameID)
	if err != nil {
		report.Failed++
		metrics.PollFailures.Inc()
		if rerr := p.recordFailure(ctx, g.GameID, err); rerr != nil {
			log.Printf("[Poller] failed to record poll failure for %s: %v", g.GameID, rerr)
		}
		log.Printf("[Poller] %s unavailable, keeping cached status %s: %v", g.GameID, g.Status, err)
		return
	}
	metrics.Polls.WithLabelValues(string(tier)).Inc()
	report.Polled++

	ev, err := p.apply(ctx, g.GameID, res)
	if err != nil {
		log.Printf("[Poller] failed to store result for %s: %v", g.GameID, err)
		return
	}
	if ev != nil {
		report.Confirmed = append(report.Confirmed, g.GameID)
		metrics.GamesFinalized.Inc()
		p.Queue.Publish(*ev)
		log.Printf("[Poller] %s confirmed final %d-%d, queued for evaluation", g.GameID, ev.HomeScore, ev.AwayScore)
	}
}

// fetch calls the provider with bounded exponential backoff.
func (p *ResultPoller) fetch(ctx context.Context, gameID string) (*models.GameResult, error) {
	attempts := p.Retries
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Backoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := p.Sports.GetGameStatus(ctx, gameID)
		if err == nil {
			return res, nil
		}
		lastErr = err
		var status *utils.StatusError
		if errors.As(err, &status) && !status.Retryable() {
			return nil, err
		}
		if i == attempts-1 || delay <= 0 {
			continue
		}
		log.Printf("[Poller] %s attempt %d/%d failed, retrying in %s: %v", gameID, i+1, attempts, delay, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	return nil, lastErr
}

// ResultHash fingerprints the scoring-relevant part of an observation.
func ResultHash(res *models.GameResult) string {
	b, _ := json.Marshal(struct {
		Status    models.GameStatus    `json:"status"`
		HomeScore int                  `json:"home_score"`
		AwayScore int                  `json:"away_score"`
		Stats     models.StatsSnapshot `json:"stats"`
	}{res.Status, res.HomeScore, res.AwayScore, res.Stats})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// apply stores one observation. When it confirms the game, the outbox event
// is written in the same transaction and returned for the in-process queue.
func (p *ResultPoller) apply(ctx context.Context, gameID string, res *models.GameResult) (*events.GameFinalized, error) {
	now := p.Clock.Now().UTC()
	var out *events.GameFinalized
	err := p.Store.Transaction(ctx, func(tx *repository.Store) error {
		g, err := tx.Games.GetForUpdate(ctx, gameID)
		if err != nil {
			return err
		}
		if g.ConfirmedFinalAt != nil {
			g.LastPolledAt = &now
			return tx.Games.Save(ctx, g)
		}

		hash := ResultHash(res)
		if res.Status == models.GameStatusFinal {
			if g.Status == models.GameStatusFinal && g.ResultHash == hash {
				g.FinalObservations++
			} else {
				g.FinalObservations = 1
				g.ResultHash = hash
			}
		} else {
			g.FinalObservations = 0
			g.ResultHash = ""
		}

		g.Status = res.Status
		g.HomeTeam = res.HomeTeam
		g.AwayTeam = res.AwayTeam
		g.HomeScore = res.HomeScore
		g.AwayScore = res.AwayScore
		g.Stats = datatypes.NewJSONType(res.Stats)
		if res.StartTime != nil {
			kickoff := res.StartTime.UTC()
			g.StartTime = &kickoff
		}
		g.LastPolledAt = &now
		g.ConsecutiveFailures = 0

		if g.FinalObservations >= 2 {
			g.ConfirmedFinalAt = &now
			payload := events.GameFinalized{
				GameID:      gameID,
				HomeScore:   g.HomeScore,
				AwayScore:   g.AwayScore,
				ConfirmedAt: now,
			}
			row, err := tx.Outbox.Add(ctx, models.TopicGameFinalized, gameID, payload, now)
			if err != nil {
				return err
			}
			payload.OutboxID = row.ID
			out = &payload
		}
		return tx.Games.Save(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ResultPoller) recordFailure(ctx context.Context, gameID string, cause error) error {
	now := p.Clock.Now().UTC()
	return p.Store.Transaction(ctx, func(tx *repository.Store) error {
		g, err := tx.Games.GetForUpdate(ctx, gameID)
		if err != nil {
			return err
		}
		g.ConsecutiveFailures++
		g.LastPolledAt = &now
		budget := p.FailureBudget
		if budget > 0 && g.ConsecutiveFailures >= budget && !g.NeedsReview {
			g.NeedsReview = true
			g.ReviewReason = fmt.Sprintf("%d consecutive poll failures: %v", g.ConsecutiveFailures, cause)
			_, created, err := tx.Reviews.Open(ctx, &models.ReviewItem{
				Kind:   models.ReviewGamePollFailures,
				RefID:  gameID,
				Reason: g.ReviewReason,
			})
			if err != nil {
				return err
			}
			if created {
				metrics.ReviewsOpened.WithLabelValues(string(models.ReviewGamePollFailures)).Inc()
			}
			log.Printf("[Poller] %s parked for review after %d failures", gameID, g.ConsecutiveFailures)
		}
		return tx.Games.Save(ctx, g)
	})
}

// watchCorrections re-polls confirmed games inside the dispute window. A
// changed final result opens a result_correction review; the cached result
// and every score built on it stay as they are.
func (p *ResultPoller) watchCorrections(ctx context.Context, report *PollReport) error {
	games, err := p.Store.Games.ConfirmedFinal(ctx)
	if err != nil {
		return err
	}
	now := p.Clock.Now().UTC()
	for i := range games {
		g := &games[i]
		if g.ConfirmedFinalAt == nil || now.Sub(*g.ConfirmedFinalAt) > p.DisputeWindow {
			continue
		}
		res, err := p.fetch(ctx, g.GameID)
		if err != nil {
			log.Printf("[Poller] dispute check for %s failed: %v", g.GameID, err)
			continue
		}
		if res.Status != models.GameStatusFinal || ResultHash(res) == g.ResultHash {
			continue
		}
		reason := fmt.Sprintf("provider now reports %d-%d, confirmed %d-%d", res.HomeScore, res.AwayScore, g.HomeScore, g.AwayScore)
		_, created, err := p.Store.Reviews.Open(ctx, &models.ReviewItem{
			Kind:   models.ReviewResultCorrection,
			RefID:  g.GameID,
			Reason: reason,
		})
		if err != nil {
			return err
		}
		if created {
			metrics.ReviewsOpened.WithLabelValues(string(models.ReviewResultCorrection)).Inc()
			report.Corrections = append(report.Corrections, g.GameID)
			log.Printf("[Poller] %s result changed after confirmation: %s", g.GameID, reason)
		}
	}
	return nil
}

// SyncTracking starts tracking the provider's schedule for the configured
// week so games are polled before any definition references them.
func (p *ResultPoller) SyncTracking(ctx context.Context) (int, error) {
	ids, err := p.Sports.GetScheduledGames(ctx, p.Season, p.Week)
	if err != nil {
		if errors.Is(err, services.ErrExternalService) {
			log.Printf("[Poller] schedule sync skipped: %v", err)
			return 0, nil
		}
		return 0, err
	}
	referenced, err := p.Store.Predictions.TrackedGameIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range append(ids, referenced...) {
		if err := p.Store.Games.Track(ctx, id); err != nil {
			return 0, err
		}
	}
	log.Printf("[Poller] tracking %d scheduled and %d referenced games", len(ids), len(referenced))
	return len(ids) + len(referenced), nil
}

package workers

import (
	"context"
	"errors"
	"log"

	"github.com/itbasis/go-clock"
	"golang.org/x/sync/errgroup"

	"contest-scoring-engine/events"
	"contest-scoring-engine/metrics"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/services"
)

// GameEvaluator is the part of the evaluation engine the pool drives.
type GameEvaluator interface {
	EvaluateGame(ctx context.Context, gameID string) (*services.EvaluationReport, error)
}

// EvaluationPool consumes game.finalized events with a fixed number of
// workers. An event is marked processed only after its game evaluated
// cleanly; anything else stays in the outbox for replay.
type EvaluationPool struct {
	Queue     *events.Queue
	Evaluator GameEvaluator
	Store     *repository.Store
	Clock     clock.Clock
	Publisher events.Publisher
	Workers   int
}

// Run blocks until ctx is cancelled.
func (p *EvaluationPool) Run(ctx context.Context) error {
	n := p.Workers
	if n <= 0 {
		n = 1
	}
	log.Printf("[EvalPool] starting %d workers", n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := i + 1
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev := <-p.Queue.C():
					metrics.QueueDepth.Set(float64(p.Queue.Len()))
					if err := p.Handle(gctx, ev); err != nil {
						log.Printf("[EvalPool] worker %d: game %s: %v", id, ev.GameID, err)
					}
				}
			}
		})
	}
	err := g.Wait()
	log.Println("[EvalPool] stopped")
	return err
}

// Handle evaluates one finalization event.
func (p *EvaluationPool) Handle(ctx context.Context, ev events.GameFinalized) error {
	report, err := p.Evaluator.EvaluateGame(ctx, ev.GameID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrUnresolvedData), errors.Is(err, services.ErrState):
		// waits for an operator or a fresh confirmation; replay picks it up later
		log.Printf("[EvalPool] game %s left open: %v", ev.GameID, err)
		return nil
	default:
		if ev.OutboxID > 0 {
			if merr := p.Store.Outbox.MarkFailed(ctx, ev.OutboxID, err); merr != nil {
				log.Printf("[EvalPool] failed to record error on event %d: %v", ev.OutboxID, merr)
			}
		}
		return err
	}

	now := p.Clock.Now().UTC()
	if err := p.Store.Outbox.MarkProcessedByKey(ctx, models.TopicGameFinalized, ev.GameID, now); err != nil {
		return err
	}
	if p.Publisher != nil {
		if err := p.Publisher.PublishJSON(ctx, events.RKGameFinalized, ev); err != nil {
			log.Printf("[EvalPool] broadcast of %s failed: %v", ev.GameID, err)
		}
	}
	log.Printf("[EvalPool] game %s done: %d resolved, %d void across %d contests",
		ev.GameID, report.Resolved, report.Voided, len(report.Contests))
	return nil
}

package workers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/itbasis/go-clock"

	"contest-scoring-engine/events"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
)

// broadcastTopics are relayed to the broker straight from the outbox.
var broadcastTopics = []string{
	models.TopicContestCompleted,
	models.TopicContestCancelled,
	models.TopicPayoutSent,
}

// OutboxRelay re-drives unprocessed outbox rows: game.finalized events go
// back onto the evaluation queue, the rest are published to the broker.
type OutboxRelay struct {
	Store     *repository.Store
	Clock     clock.Clock
	Queue     *events.Queue
	Publisher events.Publisher
	// Grace skips finalization events young enough to still be in flight.
	Grace time.Duration
	Batch int
}

func (r *OutboxRelay) batch() int {
	if r.Batch <= 0 {
		return 100
	}
	return r.Batch
}

// ReplayFinalized re-enqueues game.finalized events older than Grace.
func (r *OutboxRelay) ReplayFinalized(ctx context.Context) (int, error) {
	cutoff := r.Clock.Now().UTC().Add(-r.Grace)
	rows, err := r.Store.Outbox.Unprocessed(ctx, models.TopicGameFinalized, cutoff, r.batch())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range rows {
		ev, err := events.Decode[events.GameFinalized](row.Payload)
		if err != nil {
			log.Printf("[Outbox] event %d has a bad payload: %v", row.ID, err)
			_ = r.Store.Outbox.MarkFailed(ctx, row.ID, err)
			continue
		}
		ev.OutboxID = row.ID
		r.Queue.Publish(ev)
		n++
	}
	if n > 0 {
		log.Printf("[Outbox] re-enqueued %d game.finalized events", n)
	}
	return n, nil
}

// PublishPending relays contest and payout events to the broker. A topic
// stops at its first failure so events leave in order.
func (r *OutboxRelay) PublishPending(ctx context.Context) (int, error) {
	now := r.Clock.Now().UTC()
	sent := 0
	for _, topic := range broadcastTopics {
		rows, err := r.Store.Outbox.Unprocessed(ctx, topic, now, r.batch())
		if err != nil {
			return sent, err
		}
		for _, row := range rows {
			if err := r.Publisher.PublishJSON(ctx, topic, json.RawMessage(row.Payload)); err != nil {
				log.Printf("[Outbox] publish %s event %d failed: %v", topic, row.ID, err)
				if merr := r.Store.Outbox.MarkFailed(ctx, row.ID, err); merr != nil {
					return sent, merr
				}
				break
			}
			if err := r.Store.Outbox.MarkProcessed(ctx, row.ID, now); err != nil {
				return sent, err
			}
			sent++
		}
	}
	return sent, nil
}

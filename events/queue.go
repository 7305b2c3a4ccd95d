package events

import (
	"log"
	"sync"
	"sync/atomic"

	"contest-scoring-engine/metrics"
)

// Queue is a bounded in-process queue of finalization events. Publish never
// blocks: when full, the oldest waiting event is dropped. Dropped events are
// recovered by the outbox replay job.
type Queue struct {
	mu      sync.Mutex
	ch      chan GameFinalized
	dropped atomic.Uint64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan GameFinalized, size)}
}

// Publish enqueues ev and returns the event it displaced, if any.
func (q *Queue) Publish(ev GameFinalized) *GameFinalized {
	q.mu.Lock()
	defer q.mu.Unlock()

	var displaced *GameFinalized
	for {
		select {
		case q.ch <- ev:
			metrics.QueueDepth.Set(float64(len(q.ch)))
			return displaced
		default:
		}
		select {
		case old := <-q.ch:
			q.dropped.Add(1)
			metrics.QueueDrops.Inc()
			log.Printf("[Queue] overflow: dropped game.finalized game=%s outbox=%d", old.GameID, old.OutboxID)
			displaced = &old
		default:
			// a consumer drained it between the two selects
		}
	}
}

// C is the receive side for workers.
func (q *Queue) C() <-chan GameFinalized {
	return q.ch
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }

func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "contest_polls_total", Help: "Game status polls by tier"},
		[]string{"tier"},
	)
	PollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "contest_poll_failures_total", Help: "Polls that exhausted their retries"},
	)
	GamesFinalized = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "contest_games_finalized_total", Help: "Games confirmed final"},
	)
	QueueDrops = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "contest_finalized_queue_drops_total", Help: "Finalization events dropped on overflow"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "contest_finalized_queue_depth", Help: "Finalization events waiting for a worker"},
	)
	SubmissionsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "contest_submissions_resolved_total", Help: "Resolved submissions by outcome"},
		[]string{"outcome"},
	)
	EvaluationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "contest_evaluation_failures_total", Help: "Failed game evaluations"},
	)
	TransfersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "contest_transfers_sent_total", Help: "Payouts and refunds accepted by the gateway"},
		[]string{"kind"},
	)
	TransfersFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "contest_transfers_failed_total", Help: "Payout and refund attempts that failed"},
		[]string{"kind"},
	)
	ReviewsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "contest_reviews_opened_total", Help: "Operator review items opened by kind"},
		[]string{"kind"},
	)
)

var once sync.Once

// Register is safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			Polls, PollFailures, GamesFinalized, QueueDrops, QueueDepth,
			SubmissionsResolved, EvaluationFailures, TransfersSent, TransfersFailed, ReviewsOpened,
		)
	})
}

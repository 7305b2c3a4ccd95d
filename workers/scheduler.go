package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"contest-scoring-engine/models"
	"contest-scoring-engine/services"
)

// Intervals configures the periodic jobs.
type Intervals struct {
	PollLive         time.Duration
	PollFinal        time.Duration
	PollScheduled    time.Duration
	TrackingSync     time.Duration
	Lifecycle        time.Duration
	OutboxReplay     time.Duration
	Reconcile        time.Duration
	BaselinePrefetch time.Duration
}

// Jobs are the periodic tasks run by the scheduler.
type Jobs struct {
	Poller     *ResultPoller
	Relay      *OutboxRelay
	Lifecycle  *Lifecycle
	Reconciler *Reconciler
	Evaluation *services.EvaluationService
}

// StartScheduler registers one job per poll tier plus the lifecycle, replay,
// reconciliation and prefetch jobs. Every job runs in singleton mode so a slow
// pass is never overlapped by the next tick.
func StartScheduler(ctx context.Context, iv Intervals, j Jobs) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	add := func(name string, every time.Duration, fn func(context.Context) error) error {
		if every <= 0 {
			log.Printf("[Scheduler] %s disabled", name)
			return nil
		}
		_, err := sched.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(func() {
				if err := fn(ctx); err != nil {
					log.Printf("[Scheduler] %s failed: %v", name, err)
				}
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		return nil
	}

	tier := func(status models.GameStatus) func(context.Context) error {
		return func(ctx context.Context) error {
			_, err := j.Poller.PollTier(ctx, status)
			return err
		}
	}

	jobs := []struct {
		name  string
		every time.Duration
		fn    func(context.Context) error
	}{
		{"poll-live", iv.PollLive, tier(models.GameStatusLive)},
		{"poll-final", iv.PollFinal, tier(models.GameStatusFinal)},
		{"poll-scheduled", iv.PollScheduled, tier(models.GameStatusScheduled)},
		{"tracking-sync", iv.TrackingSync, func(ctx context.Context) error {
			_, err := j.Poller.SyncTracking(ctx)
			return err
		}},
		{"lifecycle", iv.Lifecycle, j.Lifecycle.Tick},
		{"outbox-replay", iv.OutboxReplay, func(ctx context.Context) error {
			if _, err := j.Relay.ReplayFinalized(ctx); err != nil {
				return err
			}
			_, err := j.Relay.PublishPending(ctx)
			return err
		}},
		{"reconcile", iv.Reconcile, j.Reconciler.Tick},
		{"baseline-prefetch", iv.BaselinePrefetch, func(ctx context.Context) error {
			_, err := j.Evaluation.PrefetchBaselines(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		if err := add(job.name, job.every, job.fn); err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}

	sched.Start()
	log.Printf("[Scheduler] started %d jobs", len(sched.Jobs()))
	return sched, nil
}

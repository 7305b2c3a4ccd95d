package workers

import (
	"context"
	"log"

	"contest-scoring-engine/services"
)

// Lifecycle moves contests through their time-driven transitions and
// settles completed ones.
type Lifecycle struct {
	Contests *services.ContestService
	Payouts  *services.PayoutService
}

func (l *Lifecycle) Tick(ctx context.Context) error {
	activated, err := l.Contests.ActivateDue(ctx)
	if err != nil {
		return err
	}
	completed, err := l.Contests.CompleteDue(ctx)
	if err != nil {
		return err
	}
	settled, err := l.Payouts.SettleCompleted(ctx)
	if err != nil {
		return err
	}
	if len(activated)+len(completed)+settled > 0 {
		log.Printf("[Lifecycle] activated %d, completed %d, settled %d contests", len(activated), len(completed), settled)
	}
	return nil
}

// Reconciler retries pending payouts and refunds.
type Reconciler struct {
	Payouts *services.PayoutService
	Batch   int
}

func (r *Reconciler) Tick(ctx context.Context) error {
	report, err := r.Payouts.Reconcile(ctx, r.Batch)
	if err != nil {
		return err
	}
	if n := report.PayoutsSent + report.PayoutsFailed + report.RefundsSent + report.RefundsFailed; n > 0 {
		log.Printf("[Reconcile] payouts sent=%d failed=%d, refunds sent=%d failed=%d",
			report.PayoutsSent, report.PayoutsFailed, report.RefundsSent, report.RefundsFailed)
	}
	return nil
}

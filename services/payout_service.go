package services

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"
	"github.com/itbasis/go-clock"
	"github.com/shopspring/decimal"

	"contest-scoring-engine/events"
	"contest-scoring-engine/metrics"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
)

var hundred = decimal.NewFromInt(100)

// ValidatePrizePool checks a rank -> allocation table. Percentages are per
// rank; a tier covering ranks 2-3 at 10% pays 10% to each.
func ValidatePrizePool(pool models.PrizePool) error {
	if pool.TotalPrize.IsNegative() {
		return validationf("total_prize must be non-negative")
	}
	tiers := append([]models.PrizeTier(nil), pool.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].FromRank < tiers[j].FromRank })

	pct := decimal.Zero
	fixed := decimal.Zero
	lastTo := 0
	for _, t := range tiers {
		if t.FromRank < 1 || t.ToRank < t.FromRank {
			return validationf("prize tier %d-%d is not a valid rank range", t.FromRank, t.ToRank)
		}
		if t.FromRank <= lastTo {
			return validationf("prize tier %d-%d overlaps a previous tier", t.FromRank, t.ToRank)
		}
		lastTo = t.ToRank
		if (t.Percentage == nil) == (t.FixedAmount == nil) {
			return validationf("prize tier %d-%d needs exactly one of percentage or fixed_amount", t.FromRank, t.ToRank)
		}
		n := decimal.NewFromInt(int64(t.ToRank - t.FromRank + 1))
		if t.Percentage != nil {
			if !t.Percentage.IsPositive() || t.Percentage.GreaterThan(hundred) {
				return validationf("prize tier %d-%d percentage must be in (0, 100]", t.FromRank, t.ToRank)
			}
			pct = pct.Add(t.Percentage.Mul(n))
		} else {
			if t.FixedAmount.IsNegative() {
				return validationf("prize tier %d-%d fixed_amount must be non-negative", t.FromRank, t.ToRank)
			}
			fixed = fixed.Add(t.FixedAmount.Mul(n))
		}
	}
	if pct.GreaterThan(hundred) {
		return validationf("prize percentages add up to %s%%", pct.String())
	}
	if pool.TotalPrize.Mul(pct).Div(hundred).Add(fixed).GreaterThan(pool.TotalPrize) {
		return validationf("prize table pays out more than total_prize")
	}
	return nil
}

// Allocation is the amount owed to one leaderboard entry.
type Allocation struct {
	UserID   string
	Rank     int
	Position int
	Amount   decimal.Decimal
}

// rawShare is the unrounded allocation of a finishing position.
func rawShare(pool models.PrizePool, position int) decimal.Decimal {
	for _, t := range pool.Tiers {
		if position < t.FromRank || position > t.ToRank {
			continue
		}
		if t.Percentage != nil {
			return pool.TotalPrize.Mul(*t.Percentage).Div(hundred)
		}
		return *t.FixedAmount
	}
	return decimal.Zero
}

// unclaimedShare is the allocation of paid positions after the last
// finishing position.
func unclaimedShare(pool models.PrizePool, finishers int) decimal.Decimal {
	total := decimal.Zero
	for _, t := range pool.Tiers {
		from := max(t.FromRank, finishers+1)
		for pos := from; pos <= t.ToRank; pos++ {
			total = total.Add(rawShare(pool, pos))
		}
	}
	return total
}

// Allocate distributes the pool over final standings (ordered by Position).
// Participants sharing a rank split the combined allocation of the positions
// they occupy. Paid positions nobody finished in are spread over the paid
// entries in proportion to their shares. Amounts are floored to cents and
// the leftover cents go to the earliest paid positions, so the sum equals the
// rounded total owed.
func Allocate(pool models.PrizePool, standings []models.LeaderboardEntry) []Allocation {
	entries := append([]models.LeaderboardEntry(nil), standings...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })

	raw := make([]decimal.Decimal, len(entries))
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].Rank == entries[i].Rank {
			j++
		}
		combined := decimal.Zero
		for k := i; k < j; k++ {
			combined = combined.Add(rawShare(pool, entries[k].Position))
		}
		share := combined.Div(decimal.NewFromInt(int64(j - i)))
		for k := i; k < j; k++ {
			raw[k] = share
		}
		i = j
	}

	if extra := unclaimedShare(pool, len(entries)); extra.IsPositive() {
		claimed := decimal.Zero
		for _, r := range raw {
			claimed = claimed.Add(r)
		}
		if claimed.IsPositive() {
			scale := claimed.Add(extra).Div(claimed)
			for k := range raw {
				raw[k] = raw[k].Mul(scale)
			}
		}
	}

	out := make([]Allocation, len(entries))
	owed := decimal.Zero
	paid := decimal.Zero
	for i, e := range entries {
		owed = owed.Add(raw[i])
		amt := raw[i].RoundFloor(2)
		paid = paid.Add(amt)
		out[i] = Allocation{UserID: e.UserID, Rank: e.Rank, Position: e.Position, Amount: amt}
	}

	cent := decimal.New(1, -2)
	leftover := owed.Round(2).Sub(paid)
	for i := 0; leftover.IsPositive() && i < len(out); i++ {
		if raw[i].IsZero() {
			continue
		}
		out[i].Amount = out[i].Amount.Add(cent)
		leftover = leftover.Sub(cent)
	}

	paidOnly := out[:0]
	for _, a := range out {
		if a.Amount.IsPositive() {
			paidOnly = append(paidOnly, a)
		}
	}
	return paidOnly
}

// PayoutService turns a completed contest's final leaderboard into payout
// records and drives them, and cancellation refunds, through the payment
// gateway with bounded retries.
type PayoutService struct {
	Store       *repository.Store
	Clock       clock.Clock
	Payments    PaymentClient
	Leaderboard *LeaderboardService
	Archive     AuditArchiver
	MaxAttempts int
}

func NewPayoutService(store *repository.Store, clk clock.Clock, payments PaymentClient, lb *LeaderboardService, archive AuditArchiver, maxAttempts int) *PayoutService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &PayoutService{Store: store, Clock: clk, Payments: payments, Leaderboard: lb, Archive: archive, MaxAttempts: maxAttempts}
}

// CreatePayouts writes one pending record per paid participant. Calling it
// again for the same contest returns the existing records.
func (s *PayoutService) CreatePayouts(ctx context.Context, contestID string) ([]models.PayoutRecord, error) {
	c, err := s.Store.Contests.ByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ContestStatusCompleted {
		return nil, fmt.Errorf("%w: payouts need a completed contest, got %s", ErrState, c.Status)
	}
	existing, err := s.Store.Transfers.PayoutsByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 || c.PayoutStatus != models.ContestPayoutPending {
		return existing, nil
	}

	snap, err := s.Leaderboard.Recompute(ctx, contestID)
	if err != nil {
		return nil, err
	}
	allocs := Allocate(c.Prizes(), snap.Entries)
	recs := make([]models.PayoutRecord, 0, len(allocs))
	for _, a := range allocs {
		recs = append(recs, models.PayoutRecord{
			ID:        uuid.NewString(),
			ContestID: contestID,
			UserID:    a.UserID,
			Rank:      a.Rank,
			Position:  a.Position,
			Amount:    a.Amount,
			Status:    models.TransferPending,
		})
	}

	next := models.ContestPayoutProcessing
	if len(recs) == 0 {
		next = models.ContestPayoutSettled
	}
	err = s.Store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Transfers.CreatePayouts(ctx, recs); err != nil {
			return err
		}
		return tx.Contests.SetPayoutStatus(ctx, contestID, next)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Payout] %s: %d payout records created from %d standings", contestID, len(recs), len(snap.Entries))
	return s.Store.Transfers.PayoutsByContest(ctx, contestID)
}

// SettleContest creates payouts, makes the first transfer attempt for each
// and archives the audit report.
func (s *PayoutService) SettleContest(ctx context.Context, contestID string) ([]models.PayoutRecord, error) {
	recs, err := s.CreatePayouts(ctx, contestID)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Status == models.TransferPending && !recs[i].NeedsManual {
			s.attemptPayout(ctx, &recs[i])
		}
	}
	if err := refreshContestPayoutStatus(ctx, s.Store, contestID); err != nil {
		return nil, err
	}
	if s.Archive != nil {
		if _, err := s.ArchiveContest(ctx, contestID); err != nil {
			log.Printf("[Payout] audit archive for %s failed: %v", contestID, err)
		}
	}
	return s.Store.Transfers.PayoutsByContest(ctx, contestID)
}

// SettleCompleted picks up completed contests whose payouts were never
// calculated.
func (s *PayoutService) SettleCompleted(ctx context.Context) (int, error) {
	contests, err := s.Store.Contests.ListCompletedWithPayoutStatus(ctx, models.ContestPayoutPending)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range contests {
		if _, err := s.SettleContest(ctx, c.ID); err != nil {
			log.Printf("[Payout] settle %s failed: %v", c.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

// ReconcileReport counts what one reconciliation pass did.
type ReconcileReport struct {
	PayoutsSent   int `json:"payouts_sent"`
	PayoutsFailed int `json:"payouts_failed"`
	RefundsSent   int `json:"refunds_sent"`
	RefundsFailed int `json:"refunds_failed"`
}

// Reconcile retries pending payouts and refunds. Records that exhaust their
// attempts are marked failed and sent to the review queue.
func (s *PayoutService) Reconcile(ctx context.Context, batch int) (*ReconcileReport, error) {
	if batch <= 0 {
		batch = 100
	}
	report := &ReconcileReport{}

	payouts, err := s.Store.Transfers.PendingPayouts(ctx, batch)
	if err != nil {
		return nil, err
	}
	touched := make(map[string]bool)
	for i := range payouts {
		if s.attemptPayout(ctx, &payouts[i]) {
			report.PayoutsSent++
		} else {
			report.PayoutsFailed++
		}
		touched[payouts[i].ContestID] = true
	}
	for contestID := range touched {
		if err := refreshContestPayoutStatus(ctx, s.Store, contestID); err != nil {
			log.Printf("[Payout] refresh status for %s failed: %v", contestID, err)
		}
	}

	refunds, err := s.Store.Transfers.PendingRefunds(ctx, batch)
	if err != nil {
		return nil, err
	}
	for i := range refunds {
		if s.attemptRefund(ctx, &refunds[i]) {
			report.RefundsSent++
		} else {
			report.RefundsFailed++
		}
	}
	return report, nil
}

// attemptPayout makes one transfer attempt and persists the outcome.
func (s *PayoutService) attemptPayout(ctx context.Context, rec *models.PayoutRecord) bool {
	ref, err := s.Payments.RequestPayout(ctx, rec.UserID, rec.Amount, rec.ContestID)
	now := s.Clock.Now().UTC()
	rec.Attempts++
	if err == nil {
		rec.Status = models.TransferSent
		rec.PaymentRef = ref
		rec.LastError = ""
		rec.SentAt = &now
		serr := s.Store.Transaction(ctx, func(tx *repository.Store) error {
			if err := tx.Transfers.SavePayout(ctx, rec); err != nil {
				return err
			}
			_, err := tx.Outbox.Add(ctx, models.TopicPayoutSent, rec.ID, events.PayoutSent{
				ContestID:  rec.ContestID,
				UserID:     rec.UserID,
				Rank:       rec.Rank,
				Amount:     rec.Amount,
				PaymentRef: ref,
			}, now)
			return err
		})
		if serr != nil {
			log.Printf("[Payout] payout %s sent (ref %s) but not recorded: %v", rec.ID, ref, serr)
			return false
		}
		metrics.TransfersSent.WithLabelValues("payout").Inc()
		log.Printf("[Payout] %s paid %s to %s (ref %s)", rec.ContestID, FormatAmount(rec.Amount), rec.UserID, ref)
		return true
	}

	metrics.TransfersFailed.WithLabelValues("payout").Inc()
	rec.LastError = err.Error()
	exhausted := rec.Attempts >= s.MaxAttempts
	if exhausted {
		rec.Status = models.TransferFailed
		rec.NeedsManual = true
	}
	serr := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Transfers.SavePayout(ctx, rec); err != nil {
			return err
		}
		if !exhausted {
			return nil
		}
		return s.openReview(ctx, tx, models.ReviewPayoutExhausted, rec.ID, rec.ContestID,
			fmt.Sprintf("payout of %s to %s failed %d times: %s", FormatAmount(rec.Amount), rec.UserID, rec.Attempts, rec.LastError))
	})
	if serr != nil {
		log.Printf("[Payout] failed to record attempt on %s: %v", rec.ID, serr)
	}
	log.Printf("[Payout] attempt %d/%d for %s failed: %v", rec.Attempts, s.MaxAttempts, rec.ID, err)
	return false
}

func (s *PayoutService) attemptRefund(ctx context.Context, rec *models.RefundRecord) bool {
	_, err := s.Payments.RequestRefund(ctx, rec.UserID, rec.Amount, rec.ContestID)
	now := s.Clock.Now().UTC()
	rec.Attempts++
	if err == nil {
		rec.Status = models.TransferSent
		rec.LastError = ""
		rec.SentAt = &now
		if serr := s.Store.Transfers.SaveRefund(ctx, rec); serr != nil {
			log.Printf("[Refund] refund %s sent but not recorded: %v", rec.ID, serr)
			return false
		}
		metrics.TransfersSent.WithLabelValues("refund").Inc()
		log.Printf("[Refund] %s refunded %s to %s", rec.ContestID, FormatAmount(rec.Amount), rec.UserID)
		return true
	}

	metrics.TransfersFailed.WithLabelValues("refund").Inc()
	rec.LastError = err.Error()
	exhausted := rec.Attempts >= s.MaxAttempts
	if exhausted {
		rec.Status = models.TransferFailed
		rec.NeedsManual = true
	}
	serr := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Transfers.SaveRefund(ctx, rec); err != nil {
			return err
		}
		if !exhausted {
			return nil
		}
		return s.openReview(ctx, tx, models.ReviewRefundExhausted, rec.ID, rec.ContestID,
			fmt.Sprintf("refund of %s to %s failed %d times: %s", FormatAmount(rec.Amount), rec.UserID, rec.Attempts, rec.LastError))
	})
	if serr != nil {
		log.Printf("[Refund] failed to record attempt on %s: %v", rec.ID, serr)
	}
	log.Printf("[Refund] attempt %d/%d for %s failed: %v", rec.Attempts, s.MaxAttempts, rec.ID, err)
	return false
}

func (s *PayoutService) openReview(ctx context.Context, tx *repository.Store, kind models.ReviewKind, refID, contestID, reason string) error {
	_, created, err := tx.Reviews.Open(ctx, &models.ReviewItem{Kind: kind, RefID: refID, ContestID: contestID, Reason: reason})
	if err != nil {
		return err
	}
	if created {
		metrics.ReviewsOpened.WithLabelValues(string(kind)).Inc()
	}
	return nil
}

// refreshContestPayoutStatus derives the contest summary from its records.
func refreshContestPayoutStatus(ctx context.Context, st *repository.Store, contestID string) error {
	recs, err := st.Transfers.PayoutsByContest(ctx, contestID)
	if err != nil {
		return err
	}
	status := models.ContestPayoutSettled
	for _, r := range recs {
		if r.NeedsManual {
			status = models.ContestPayoutAttention
			break
		}
		if r.Status == models.TransferPending {
			status = models.ContestPayoutProcessing
		}
	}
	return st.Contests.SetPayoutStatus(ctx, contestID, status)
}

// MarkTransferResolved closes a manually handled payout or refund.
func (s *PayoutService) MarkTransferResolved(ctx context.Context, kind models.ReviewKind, refID, paymentRef string) error {
	return s.Store.Transaction(ctx, func(tx *repository.Store) error {
		return s.markTransferResolvedTx(ctx, tx, kind, refID, paymentRef)
	})
}

func (s *PayoutService) markTransferResolvedTx(ctx context.Context, tx *repository.Store, kind models.ReviewKind, refID, paymentRef string) error {
	now := s.Clock.Now().UTC()
	switch kind {
	case models.ReviewPayoutExhausted:
		rec, err := tx.Transfers.Payout(ctx, refID)
		if err != nil {
			return err
		}
		rec.Status = models.TransferSent
		rec.NeedsManual = false
		rec.PaymentRef = paymentRef
		rec.SentAt = &now
		if err := tx.Transfers.SavePayout(ctx, rec); err != nil {
			return err
		}
		log.Printf("[Payout] %s marked paid by hand (ref %q)", rec.ID, paymentRef)
		return refreshContestPayoutStatus(ctx, tx, rec.ContestID)
	case models.ReviewRefundExhausted:
		rec, err := tx.Transfers.Refund(ctx, refID)
		if err != nil {
			return err
		}
		rec.Status = models.TransferSent
		rec.NeedsManual = false
		rec.SentAt = &now
		log.Printf("[Refund] %s marked refunded by hand (ref %q)", rec.ID, paymentRef)
		return tx.Transfers.SaveRefund(ctx, rec)
	}
	return nil
}

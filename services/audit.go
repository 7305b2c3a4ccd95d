package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"contest-scoring-engine/models"
)

// AuditArchiver stores an immutable copy of a settled contest.
type AuditArchiver interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders money with thousands separators, e.g. "$12,500.00".
func FormatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return printer.Sprintf("$%.2f", f)
}

// AuditReport is the archived record of a completed contest.
type AuditReport struct {
	Contest     *models.Contest           `json:"contest"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Summary     string                    `json:"summary"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	Payouts     []models.PayoutRecord     `json:"payouts"`
}

// ArchiveContest uploads the final leaderboard and payout records.
func (s *PayoutService) ArchiveContest(ctx context.Context, contestID string) (string, error) {
	if s.Archive == nil {
		return "", nil
	}
	c, err := s.Store.Contests.ByID(ctx, contestID)
	if err != nil {
		return "", err
	}
	board, err := s.Store.Leaderboards.ByContest(ctx, contestID)
	if err != nil {
		return "", err
	}
	payouts, err := s.Store.Transfers.PayoutsByContest(ctx, contestID)
	if err != nil {
		return "", err
	}
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	report := AuditReport{
		Contest:     c,
		GeneratedAt: s.Clock.Now().UTC(),
		Summary: printer.Sprintf("%s: %d participants ranked, %d paid, %s of %s distributed",
			c.Name, len(board), len(payouts), FormatAmount(total), FormatAmount(c.Prizes().TotalPrize)),
		Leaderboard: board,
		Payouts:     payouts,
	}
	key := fmt.Sprintf("contests/%d/%s/audit.json", c.Season, c.Slug)
	url, err := s.Archive.PutJSON(ctx, key, report)
	if err != nil {
		return "", err
	}
	log.Printf("[Payout] audit report for %s archived at %s", contestID, url)
	return url, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/itbasis/go-clock"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"contest-scoring-engine/events"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/scoring"
)

// ContestService owns the contest lifecycle and registration.
type ContestService struct {
	Store *repository.Store
	Clock clock.Clock
}

func NewContestService(store *repository.Store, clk clock.Clock) *ContestService {
	return &ContestService{Store: store, Clock: clk}
}

func (s *ContestService) now() time.Time { return s.Clock.Now().UTC() }

type CreateContestInput struct {
	Name            string                `json:"name"`
	Type            models.ContestType    `json:"type"`
	Season          int                   `json:"season"`
	Week            int                   `json:"week"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	EntryFee        decimal.Decimal       `json:"entry_fee"`
	MaxParticipants int                   `json:"max_participants"`
	ScoringConfig   *models.ScoringConfig `json:"scoring_config"`
	PrizePool       models.PrizePool      `json:"prize_pool"`
}

// CreateContest validates the contest definition and stores it as pending.
func (s *ContestService) CreateContest(ctx context.Context, in CreateContestInput) (*models.Contest, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationf("name is required")
	}
	switch in.Type {
	case models.ContestTypeWeekly, models.ContestTypeSeason, models.ContestTypePlayoff:
	default:
		return nil, validationf("type must be weekly, season or playoff")
	}
	if in.Season <= 0 {
		return nil, validationf("season is required")
	}
	if in.Type == models.ContestTypeWeekly && in.Week <= 0 {
		return nil, validationf("week is required for weekly contests")
	}
	if in.StartTime.IsZero() || !in.EndTime.After(in.StartTime) {
		return nil, validationf("end_time must be after start_time")
	}
	if in.EntryFee.IsNegative() {
		return nil, validationf("entry_fee must be non-negative")
	}

	cfg := models.DefaultScoringConfig()
	if in.ScoringConfig != nil {
		cfg = *in.ScoringConfig
	}
	if err := scoring.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := ValidatePrizePool(in.PrizePool); err != nil {
		return nil, err
	}

	maxParticipants := in.MaxParticipants
	if maxParticipants < 0 {
		maxParticipants = 0
	}

	slugValue, err := s.uniqueSlug(ctx, name, in.Season, in.Week)
	if err != nil {
		return nil, err
	}

	c := &models.Contest{
		ID:              uuid.NewString(),
		Slug:            slugValue,
		Name:            name,
		Type:            in.Type,
		Season:          in.Season,
		Week:            in.Week,
		Status:          models.ContestStatusPending,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		EntryFee:        in.EntryFee.Round(2),
		MaxParticipants: maxParticipants,
		ScoringConfig:   datatypes.NewJSONType(cfg),
		PrizePool:       datatypes.NewJSONType(in.PrizePool),
		PayoutStatus:    models.ContestPayoutNone,
	}
	if err := s.Store.Contests.Create(ctx, c); err != nil {
		return nil, err
	}
	log.Printf("[Contest] created %s (%s) %s season=%d week=%d", c.ID, c.Slug, c.Type, c.Season, c.Week)
	return c, nil
}

func (s *ContestService) uniqueSlug(ctx context.Context, name string, season, week int) (string, error) {
	base := slug.Make(fmt.Sprintf("%s %d week %d", name, season, week))
	if week == 0 {
		base = slug.Make(fmt.Sprintf("%s %d", name, season))
	}
	candidate := base
	for i := 2; i < 50; i++ {
		exists, err := s.Store.Contests.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

type DefinitionInput struct {
	GameID     string                `json:"game_id"`
	Type       models.PredictionType `json:"type"`
	Question   string                `json:"question"`
	Choices    []string              `json:"choices"`
	Difficulty models.Difficulty     `json:"difficulty"`
	Category   string                `json:"category"`
	Line       float64               `json:"line"`
	Subject    string                `json:"subject"`
	StatKey    string                `json:"stat_key"`
	Deadline   time.Time             `json:"deadline"`
}

// AddPredictionDefinition attaches a question to a pending or active contest
// and starts tracking its game.
func (s *ContestService) AddPredictionDefinition(ctx context.Context, contestID string, in DefinitionInput) (*models.PredictionDefinition, error) {
	if strings.TrimSpace(in.GameID) == "" {
		return nil, validationf("game_id is required")
	}
	if !in.Type.Valid() {
		return nil, validationf("unknown prediction type %q", in.Type)
	}
	if !in.Difficulty.Valid() {
		return nil, validationf("unknown difficulty %q", in.Difficulty)
	}
	if err := validateChoices(in.Type, in.Choices); err != nil {
		return nil, err
	}
	if (in.Type == models.PredictionTypePlayerProp || in.Type == models.PredictionTypeTeamStat) &&
		(in.Subject == "" || in.StatKey == "") {
		return nil, validationf("%s needs subject and stat_key", in.Type)
	}

	var def *models.PredictionDefinition
	err := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := tx.Contests.ByIDForUpdate(ctx, contestID)
		if err != nil {
			return err
		}
		if c.IsTerminal() {
			return fmt.Errorf("%w: contest is %s", ErrState, c.Status)
		}
		if _, ok := c.Scoring().BasePoints[in.Type]; !ok {
			return validationf("scoring config has no base points for %s", in.Type)
		}
		deadline := in.Deadline.UTC()
		if deadline.Before(c.StartTime) || deadline.After(c.EndTime) {
			return validationf("deadline must fall inside the contest window")
		}
		if !deadline.After(s.now()) {
			return validationf("deadline must be in the future")
		}

		def = &models.PredictionDefinition{
			ID:         uuid.NewString(),
			ContestID:  c.ID,
			GameID:     in.GameID,
			Type:       in.Type,
			Question:   in.Question,
			Choices:    datatypes.JSONSlice[string](in.Choices),
			Difficulty: in.Difficulty,
			Category:   in.Category,
			Line:       in.Line,
			Subject:    in.Subject,
			StatKey:    in.StatKey,
			Deadline:   deadline,
		}
		if err := tx.Predictions.CreateDefinition(ctx, def); err != nil {
			return err
		}
		return tx.Games.Track(ctx, in.GameID)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Contest] definition %s (%s) added to %s for game %s", def.ID, def.Type, contestID, def.GameID)
	return def, nil
}

func validateChoices(t models.PredictionType, choices []string) error {
	for _, c := range choices {
		if strings.TrimSpace(c) == "" {
			return validationf("choices must not be blank")
		}
	}
	switch t {
	case models.PredictionTypeMoneyline:
		if len(choices) != 2 && len(choices) != 3 {
			return validationf("moneyline takes home, away and an optional draw choice")
		}
	default:
		if len(choices) != 2 {
			return validationf("%s takes exactly two choices", t)
		}
	}
	return nil
}

// RegisterParticipant enrolls a user. The contest row is locked so the
// capacity check and insert are atomic.
func (s *ContestService) RegisterParticipant(ctx context.Context, contestID, userID, username, paymentRef string) (*models.Participant, error) {
	if userID == "" {
		return nil, validationf("user_id is required")
	}
	var p *models.Participant
	err := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := tx.Contests.ByIDForUpdate(ctx, contestID)
		if err != nil {
			return err
		}
		if c.Status != models.ContestStatusPending && c.Status != models.ContestStatusActive {
			return ErrContestClosed
		}
		if c.EntryFee.IsPositive() && paymentRef == "" {
			return validationf("payment_ref is required for paid contests")
		}

		if _, err := tx.Participants.Get(ctx, contestID, userID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if c.MaxParticipants > 0 {
			n, err := tx.Participants.Count(ctx, contestID)
			if err != nil {
				return err
			}
			if n >= int64(c.MaxParticipants) {
				return ErrContestFull
			}
		}

		p = &models.Participant{
			ID:          uuid.NewString(),
			ContestID:   contestID,
			UserID:      userID,
			Username:    username,
			EntryTime:   s.now(),
			PaymentRef:  paymentRef,
			RefundState: models.RefundStateNone,
			Version:     1,
		}
		return tx.Participants.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Contest] user %s registered for %s", userID, contestID)
	return p, nil
}

// Activate moves a pending contest to active once its start time is reached.
func (s *ContestService) Activate(ctx context.Context, contestID string) (*models.Contest, error) {
	c, err := s.Store.Contests.ByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if c.Status != models.ContestStatusPending {
		return nil, fmt.Errorf("%w: cannot activate a %s contest", ErrState, c.Status)
	}
	if now.Before(c.StartTime) {
		return nil, fmt.Errorf("%w: contest starts at %s", ErrState, c.StartTime.Format(time.RFC3339))
	}
	ok, err := s.Store.Contests.Transition(ctx, contestID,
		[]models.ContestStatus{models.ContestStatusPending}, models.ContestStatusActive,
		map[string]any{"activated_at": now})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: contest changed state concurrently", ErrState)
	}
	log.Printf("[Contest] %s activated", contestID)
	return s.Store.Contests.ByID(ctx, contestID)
}

// Complete closes an active contest after its end time once every
// submission is resolved.
func (s *ContestService) Complete(ctx context.Context, contestID string) (*models.Contest, error) {
	now := s.now()
	err := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := tx.Contests.ByIDForUpdate(ctx, contestID)
		if err != nil {
			return err
		}
		if c.Status != models.ContestStatusActive {
			return fmt.Errorf("%w: cannot complete a %s contest", ErrState, c.Status)
		}
		if now.Before(c.EndTime) {
			return fmt.Errorf("%w: contest ends at %s", ErrState, c.EndTime.Format(time.RFC3339))
		}
		total, resolved, err := tx.Predictions.CountSubmissions(ctx, contestID)
		if err != nil {
			return err
		}
		if resolved < total {
			return fmt.Errorf("%w: %d of %d submissions unresolved", ErrState, total-resolved, total)
		}
		participants, err := tx.Participants.Count(ctx, contestID)
		if err != nil {
			return err
		}

		if _, err := tx.Contests.Transition(ctx, contestID,
			[]models.ContestStatus{models.ContestStatusActive}, models.ContestStatusCompleted,
			map[string]any{"completed_at": now, "payout_status": models.ContestPayoutPending}); err != nil {
			return err
		}
		_, err = tx.Outbox.Add(ctx, models.TopicContestCompleted, contestID, events.ContestCompleted{
			ContestID:    contestID,
			Participants: int(participants),
			CompletedAt:  now,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Contest] %s completed", contestID)
	return s.Store.Contests.ByID(ctx, contestID)
}

// Cancel is irreversible. It voids open submissions and queues a refund for
// every participant of a paid contest.
func (s *ContestService) Cancel(ctx context.Context, contestID, reason string) (*models.Contest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("reason is required")
	}
	now := s.now()
	var voided int64
	var refunds int
	err := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		c, err := tx.Contests.ByIDForUpdate(ctx, contestID)
		if err != nil {
			return err
		}
		if c.Status != models.ContestStatusPending && c.Status != models.ContestStatusActive {
			return fmt.Errorf("%w: cannot cancel a %s contest", ErrState, c.Status)
		}
		if _, err := tx.Contests.Transition(ctx, contestID,
			[]models.ContestStatus{models.ContestStatusPending, models.ContestStatusActive},
			models.ContestStatusCancelled,
			map[string]any{"cancelled_at": now, "cancel_reason": reason}); err != nil {
			return err
		}

		if voided, err = tx.Predictions.VoidUnresolved(ctx, contestID, now); err != nil {
			return err
		}

		participants, err := tx.Participants.ListByContest(ctx, contestID)
		if err != nil {
			return err
		}
		if c.EntryFee.IsPositive() && len(participants) > 0 {
			recs := make([]models.RefundRecord, 0, len(participants))
			for _, p := range participants {
				recs = append(recs, models.RefundRecord{
					ID:         uuid.NewString(),
					ContestID:  contestID,
					UserID:     p.UserID,
					Amount:     c.EntryFee,
					PaymentRef: p.PaymentRef,
					Status:     models.TransferPending,
				})
			}
			if err := tx.Transfers.CreateRefunds(ctx, recs); err != nil {
				return err
			}
			if err := tx.Participants.SetRefundState(ctx, contestID, models.RefundStateRequested); err != nil {
				return err
			}
			refunds = len(recs)
		}

		_, err = tx.Outbox.Add(ctx, models.TopicContestCancelled, contestID, events.ContestCancelled{
			ContestID:   contestID,
			Reason:      reason,
			Refunds:     refunds,
			CancelledAt: now,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Contest] %s cancelled (%s): %d submissions voided, %d refunds queued", contestID, reason, voided, refunds)
	return s.Store.Contests.ByID(ctx, contestID)
}

// ActivateDue activates every pending contest whose start time has passed.
func (s *ContestService) ActivateDue(ctx context.Context) ([]string, error) {
	pending, err := s.Store.Contests.ListByStatus(ctx, models.ContestStatusPending)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var done []string
	for _, c := range pending {
		if now.Before(c.StartTime) {
			continue
		}
		if _, err := s.Activate(ctx, c.ID); err != nil {
			log.Printf("[Contest] activate %s failed: %v", c.ID, err)
			continue
		}
		done = append(done, c.ID)
	}
	return done, nil
}

// CompleteDue completes every active contest past its end time whose
// submissions are all resolved. Contests still waiting on results are skipped.
func (s *ContestService) CompleteDue(ctx context.Context) ([]string, error) {
	active, err := s.Store.Contests.ListByStatus(ctx, models.ContestStatusActive)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var done []string
	for _, c := range active {
		if now.Before(c.EndTime) {
			continue
		}
		if _, err := s.Complete(ctx, c.ID); err != nil {
			if errors.Is(err, ErrState) {
				log.Printf("[Contest] %s not ready to complete: %v", c.ID, err)
			} else {
				log.Printf("[Contest] complete %s failed: %v", c.ID, err)
			}
			continue
		}
		done = append(done, c.ID)
	}
	return done, nil
}

// ContestStatusView is the read model behind getContestStatus.
type ContestStatusView struct {
	Contest             *models.Contest               `json:"contest"`
	Participants        int64                         `json:"participants"`
	Definitions         []models.PredictionDefinition `json:"definitions"`
	SubmissionsTotal    int64                         `json:"submissions_total"`
	SubmissionsResolved int64                         `json:"submissions_resolved"`
	PayoutStatus        models.ContestPayoutStatus    `json:"payout_status"`
	Payouts             []models.PayoutRecord         `json:"payouts,omitempty"`
	Refunds             []models.RefundRecord         `json:"refunds,omitempty"`
}

func (s *ContestService) GetContestStatus(ctx context.Context, contestID string) (*ContestStatusView, error) {
	c, err := s.Store.Contests.ByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	view := &ContestStatusView{Contest: c, PayoutStatus: c.PayoutStatus}
	if view.Participants, err = s.Store.Participants.Count(ctx, contestID); err != nil {
		return nil, err
	}
	if view.Definitions, err = s.Store.Predictions.DefinitionsByContest(ctx, contestID); err != nil {
		return nil, err
	}
	if view.SubmissionsTotal, view.SubmissionsResolved, err = s.Store.Predictions.CountSubmissions(ctx, contestID); err != nil {
		return nil, err
	}
	switch c.Status {
	case models.ContestStatusCompleted:
		if view.Payouts, err = s.Store.Transfers.PayoutsByContest(ctx, contestID); err != nil {
			return nil, err
		}
	case models.ContestStatusCancelled:
		if view.Refunds, err = s.Store.Transfers.RefundsByContest(ctx, contestID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

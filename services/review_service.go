package services

import (
	"context"
	"fmt"
	"log"

	"github.com/itbasis/go-clock"

	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
)

// ReviewService is the operator review queue.
type ReviewService struct {
	Store   *repository.Store
	Clock   clock.Clock
	Payouts *PayoutService
}

func NewReviewService(store *repository.Store, clk clock.Clock, payouts *PayoutService) *ReviewService {
	return &ReviewService{Store: store, Clock: clk, Payouts: payouts}
}

func (s *ReviewService) List(ctx context.Context, kind models.ReviewKind, includeResolved bool) ([]models.ReviewItem, error) {
	return s.Store.Reviews.List(ctx, kind, includeResolved)
}

// Resolution actions an operator may take.
const (
	ActionRetry   = "retry"   // re-poll / re-evaluate the game
	ActionVoid    = "void"    // settle unanswerable definitions as void
	ActionSettled = "settled" // transfer completed by hand
	ActionDismiss = "dismiss" // acknowledge only
)

type ResolveInput struct {
	Action     string `json:"action"`
	Note       string `json:"note"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

// Resolve closes a review item and applies its side effect. Game items put
// the game back into the polling rotation.
func (s *ReviewService) Resolve(ctx context.Context, id, operator string, in ResolveInput) (*models.ReviewItem, error) {
	item, err := s.Store.Reviews.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Resolved {
		return nil, fmt.Errorf("%w: review %s already resolved", ErrState, id)
	}
	if in.Action == "" {
		in.Action = ActionDismiss
	}

	now := s.Clock.Now().UTC()
	err = s.Store.Transaction(ctx, func(tx *repository.Store) error {
		switch item.Kind {
		case models.ReviewGamePollFailures:
			if err := tx.Games.ClearReview(ctx, item.RefID); err != nil {
				return err
			}
		case models.ReviewUnresolvedData:
			game, err := tx.Games.GetForUpdate(ctx, item.RefID)
			if err != nil {
				return err
			}
			game.NeedsReview = false
			game.ReviewReason = ""
			game.ConsecutiveFailures = 0
			switch in.Action {
			case ActionVoid:
				game.VoidUnresolvable = true
			case ActionRetry:
				// fresh confirmation from the provider before scoring again
				game.ConfirmedFinalAt = nil
				game.FinalObservations = 0
				game.ResultHash = ""
			}
			if err := tx.Games.Save(ctx, game); err != nil {
				return err
			}
		case models.ReviewResultCorrection:
			// confirmed results stay frozen; the item is informational
		case models.ReviewPayoutExhausted, models.ReviewRefundExhausted:
			if in.Action == ActionSettled && s.Payouts != nil {
				if err := s.Payouts.markTransferResolvedTx(ctx, tx, item.Kind, item.RefID, in.PaymentRef); err != nil {
					return err
				}
			}
		}
		return tx.Reviews.Resolve(ctx, id, operator, in.Note, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Review] %s (%s %s) resolved by %s: %s", id, item.Kind, item.RefID, operator, in.Action)
	return s.Store.Reviews.Get(ctx, id)
}

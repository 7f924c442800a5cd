/*
redemption.go - Reward catalog and redemption lifecycle

PURPOSE:
  Users exchange points for reward units. A redemption is three effects
  that commit or roll back together: the points spend, the appended
  pending redemption, and the quantity decrement for finite rewards.
  A "points spent but nothing redeemed" state is never visible.

ELIGIBILITY ORDER (redeem):
  NotFound -> RewardInactive -> RewardExpired -> OutOfStock -> points check

QUANTITY:
  Finite quantities count remaining units and strictly decrement by one
  per successful redemption, never below zero. The unlimited sentinel
  (-1) is never decremented. A decrement that loses the last unit to a
  concurrent redemption fails the whole group with OutOfStock, which
  also rolls the points spend back.

SEE ALSO:
  - points.go: spendIn joins this engine's unit of work
  - types.go: RedemptionStatus.CanTransitionTo
*/
package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RedemptionEngine owns the reward catalog and redemption state machine.
type RedemptionEngine struct {
	store  Store
	points *PointsLedger
	sink   NotificationSink
	log    *zap.Logger
}

func NewRedemptionEngine(store Store, points *PointsLedger, sink NotificationSink, log *zap.Logger) *RedemptionEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedemptionEngine{store: store, points: points, sink: sink, log: log}
}

// RedemptionResult reports the committed outcome of a redemption.
type RedemptionResult struct {
	Redemption      *Redemption
	PointsRemaining int
	QuantityLeft    int // UnlimitedQuantity for unlimited rewards
}

// Redeem exchanges pointsCost points for one unit of the reward.
func (e *RedemptionEngine) Redeem(ctx context.Context, rewardID, userID string) (*RedemptionResult, error) {
	if rewardID == "" {
		return nil, &ValidationError{Field: "reward_id", Reason: "must not be empty"}
	}
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	var result *RedemptionResult
	err := e.store.WithUnitOfWork(ctx, func(uow Store) error {
		r, err := uow.Rewards().Get(ctx, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return &NotFoundError{Kind: "reward", ID: rewardID}
		}
		if !r.IsActive {
			return fmt.Errorf("reward %s: %w", r.ID, ErrRewardInactive)
		}
		if r.ExpiredAt(time.Now()) {
			return fmt.Errorf("reward %s: %w", r.ID, ErrRewardExpired)
		}
		if r.Quantity == 0 {
			return fmt.Errorf("reward %s: %w", r.ID, ErrOutOfStock)
		}

		account, err := e.points.spendIn(ctx, uow, userID, r.PointsCost, "reward", r.ID, "redeemed "+r.Name)
		if err != nil {
			return err
		}

		now := time.Now()
		red := Redemption{
			ID:         uuid.NewString(),
			RewardID:   r.ID,
			UserID:     userID,
			Status:     RedemptionPending,
			RedeemedAt: now,
			UpdatedAt:  now,
		}
		if err := uow.Rewards().AppendRedemption(ctx, red); err != nil {
			return err
		}

		left := UnlimitedQuantity
		if !r.Unlimited() {
			remaining, ok, err := uow.Rewards().DecrementQuantity(ctx, r.ID)
			if err != nil {
				return err
			}
			if !ok {
				// Lost the last unit to a concurrent redemption; the
				// rollback also returns the spent points.
				return fmt.Errorf("reward %s: %w", r.ID, ErrOutOfStock)
			}
			left = remaining
		}

		result = &RedemptionResult{
			Redemption:      &red,
			PointsRemaining: account.Balance,
			QuantityLeft:    left,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyBestEffort(ctx, e.sink, e.log, Event{
		Type: EventRewardRedeemed,
		At:   result.Redemption.RedeemedAt,
		Payload: map[string]any{
			"reward_id":     rewardID,
			"user_id":       userID,
			"redemption_id": result.Redemption.ID,
			"points_left":   result.PointsRemaining,
			"quantity_left": result.QuantityLeft,
		},
	})
	return result, nil
}

// UpdateRedemptionStatus advances one redemption through the state
// machine: pending -> approved|rejected, approved -> delivered.
func (e *RedemptionEngine) UpdateRedemptionStatus(ctx context.Context, rewardID, redemptionID string, status RedemptionStatus, notes string) (*Redemption, error) {
	if rewardID == "" {
		return nil, &ValidationError{Field: "reward_id", Reason: "must not be empty"}
	}
	if redemptionID == "" {
		return nil, &ValidationError{Field: "redemption_id", Reason: "must not be empty"}
	}
	if !knownRedemptionStatus(status) {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}

	var updated *Redemption
	err := e.store.WithUnitOfWork(ctx, func(uow Store) error {
		r, err := uow.Rewards().Get(ctx, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return &NotFoundError{Kind: "reward", ID: rewardID}
		}

		var red *Redemption
		for i := range r.Redemptions {
			if r.Redemptions[i].ID == redemptionID {
				red = &r.Redemptions[i]
				break
			}
		}
		if red == nil {
			return &NotFoundError{Kind: "redemption", ID: redemptionID}
		}
		if !red.Status.CanTransitionTo(status) {
			return &StateTransitionError{RedemptionID: red.ID, From: red.Status, To: status}
		}

		red.Status = status
		if notes != "" {
			red.Notes = notes
		}
		red.UpdatedAt = time.Now()
		if err := uow.Rewards().UpdateRedemption(ctx, *red); err != nil {
			return err
		}
		updated = red
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyBestEffort(ctx, e.sink, e.log, Event{
		Type: EventRedemptionUpdated,
		At:   updated.UpdatedAt,
		Payload: map[string]any{
			"reward_id":     rewardID,
			"redemption_id": updated.ID,
			"user_id":       updated.UserID,
			"status":        string(updated.Status),
		},
	})
	return updated, nil
}

// =============================================================================
// CATALOG - Thin administrative surface
// =============================================================================

// CreateReward validates and stores a new catalog item.
func (e *RedemptionEngine) CreateReward(ctx context.Context, r Reward) (*Reward, error) {
	if r.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if r.PointsCost <= 0 {
		return nil, &ValidationError{Field: "points_cost", Reason: "must be positive"}
	}
	if r.Quantity < UnlimitedQuantity {
		return nil, &ValidationError{Field: "quantity", Reason: "must be -1 (unlimited) or >= 0"}
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Redemptions = nil

	if err := e.store.Rewards().Save(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetRewardActive flips the catalog item's availability.
func (e *RedemptionEngine) SetRewardActive(ctx context.Context, rewardID string, active bool) (*Reward, error) {
	var updated *Reward
	err := e.store.WithUnitOfWork(ctx, func(uow Store) error {
		r, err := uow.Rewards().Get(ctx, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return &NotFoundError{Kind: "reward", ID: rewardID}
		}
		r.IsActive = active
		r.UpdatedAt = time.Now()
		if err := uow.Rewards().Save(ctx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetReward returns one reward with its redemption history.
func (e *RedemptionEngine) GetReward(ctx context.Context, rewardID string) (*Reward, error) {
	r, err := e.store.Rewards().Get(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "reward", ID: rewardID}
	}
	return r, nil
}

// ListRewards returns the catalog without redemption histories.
func (e *RedemptionEngine) ListRewards(ctx context.Context) ([]Reward, error) {
	return e.store.Rewards().List(ctx)
}

func knownRedemptionStatus(s RedemptionStatus) bool {
	switch s {
	case RedemptionPending, RedemptionApproved, RedemptionRejected, RedemptionDelivered:
		return true
	}
	return false
}

package loyalty_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

func createReward(t *testing.T, c *testCore, name string, cost, quantity int) *loyalty.Reward {
	t.Helper()
	r, err := c.rewards.CreateReward(context.Background(), loyalty.Reward{
		ClientID:   "client-1",
		Name:       name,
		PointsCost: cost,
		Quantity:   quantity,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	return r
}

func fund(t *testing.T, c *testCore, userID string, amount int) {
	t.Helper()
	if _, err := c.points.Earn(context.Background(), userID, amount, "sale", "seed", ""); err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
}

func rewardQuantity(t *testing.T, c *testCore, rewardID string) int {
	t.Helper()
	r, err := c.rewards.GetReward(context.Background(), rewardID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	return r.Quantity
}

func userBalance(t *testing.T, c *testCore, userID string) int {
	t.Helper()
	a, err := c.points.Account(context.Background(), userID)
	if err != nil {
		t.Fatalf("account %s: %v", userID, err)
	}
	return a.Balance
}

func TestRedeem_SpendsPointsAndDecrementsQuantity(t *testing.T) {
	// GIVEN: a reward costing 500 with quantity 2, a user holding 600
	// WHEN: the user redeems
	// THEN: balance 100, quantity 1, one pending redemption on the reward

	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 2)
	fund(t, c, "user-1", 600)

	res, err := c.rewards.Redeem(ctx, reward.ID, "user-1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if res.PointsRemaining != 100 {
		t.Errorf("points remaining = %d, want 100", res.PointsRemaining)
	}
	if res.QuantityLeft != 1 {
		t.Errorf("quantity left = %d, want 1", res.QuantityLeft)
	}
	if res.Redemption.Status != loyalty.RedemptionPending {
		t.Errorf("redemption status = %s, want pending", res.Redemption.Status)
	}

	stored, err := c.rewards.GetReward(ctx, reward.ID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if stored.Quantity != 1 {
		t.Errorf("stored quantity = %d, want 1", stored.Quantity)
	}
	if len(stored.Redemptions) != 1 || stored.Redemptions[0].UserID != "user-1" {
		t.Errorf("stored redemptions = %+v", stored.Redemptions)
	}
	if got := userBalance(t, c, "user-1"); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
}

func TestRedeem_QuantityRunsOut(t *testing.T) {
	// GIVEN: quantity 2, three funded users redeeming in turn
	// THEN: two succeed, the third gets OutOfStock with points intact

	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 2)
	for _, u := range []string{"user-1", "user-2", "user-3"} {
		fund(t, c, u, 600)
	}

	if _, err := c.rewards.Redeem(ctx, reward.ID, "user-1"); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	res, err := c.rewards.Redeem(ctx, reward.ID, "user-2")
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if res.QuantityLeft != 0 {
		t.Errorf("quantity left = %d, want 0", res.QuantityLeft)
	}

	_, err = c.rewards.Redeem(ctx, reward.ID, "user-3")
	if !errors.Is(err, loyalty.ErrOutOfStock) {
		t.Fatalf("third redeem: expected ErrOutOfStock, got %v", err)
	}
	if got := userBalance(t, c, "user-3"); got != 600 {
		t.Errorf("loser's balance = %d, want 600 untouched", got)
	}

	stored, _ := c.rewards.GetReward(ctx, reward.ID)
	if len(stored.Redemptions) != 2 {
		t.Errorf("redemption count = %d, want 2", len(stored.Redemptions))
	}
}

func TestRedeem_InsufficientPoints(t *testing.T) {
	// GIVEN: cost 500, user holds 100
	// THEN: InsufficientPoints, no redemption, quantity unchanged

	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 2)
	fund(t, c, "user-1", 100)

	_, err := c.rewards.Redeem(ctx, reward.ID, "user-1")
	if !errors.Is(err, loyalty.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if got := userBalance(t, c, "user-1"); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
	if got := rewardQuantity(t, c, reward.ID); got != 2 {
		t.Errorf("quantity = %d, want 2", got)
	}
	stored, _ := c.rewards.GetReward(ctx, reward.ID)
	if len(stored.Redemptions) != 0 {
		t.Errorf("redemptions appended on failure: %+v", stored.Redemptions)
	}
}

func TestRedeem_EligibilityGates(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown reward", func(t *testing.T) {
		c := newCore()
		fund(t, c, "user-1", 600)
		if _, err := c.rewards.Redeem(ctx, "ghost", "user-1"); !errors.Is(err, loyalty.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("inactive reward", func(t *testing.T) {
		c := newCore()
		reward := createReward(t, c, "Free Service", 500, 2)
		fund(t, c, "user-1", 600)
		if _, err := c.rewards.SetRewardActive(ctx, reward.ID, false); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := c.rewards.Redeem(ctx, reward.ID, "user-1"); !errors.Is(err, loyalty.ErrRewardInactive) {
			t.Fatalf("expected ErrRewardInactive, got %v", err)
		}
		if got := userBalance(t, c, "user-1"); got != 600 {
			t.Errorf("balance = %d, want 600", got)
		}
	})

	t.Run("expired reward", func(t *testing.T) {
		c := newCore()
		past := time.Now().Add(-24 * time.Hour)
		r, err := c.rewards.CreateReward(ctx, loyalty.Reward{
			ClientID: "client-1", Name: "Old Promo", PointsCost: 500, Quantity: 2,
			IsActive: true, ExpiryDate: &past,
		})
		if err != nil {
			t.Fatalf("create reward: %v", err)
		}
		fund(t, c, "user-1", 600)
		if _, err := c.rewards.Redeem(ctx, r.ID, "user-1"); !errors.Is(err, loyalty.ErrRewardExpired) {
			t.Fatalf("expected ErrRewardExpired, got %v", err)
		}
	})

	t.Run("zero quantity configured", func(t *testing.T) {
		c := newCore()
		reward := createReward(t, c, "Sold Out", 500, 0)
		fund(t, c, "user-1", 600)
		if _, err := c.rewards.Redeem(ctx, reward.ID, "user-1"); !errors.Is(err, loyalty.ErrOutOfStock) {
			t.Fatalf("expected ErrOutOfStock, got %v", err)
		}
		if got := userBalance(t, c, "user-1"); got != 600 {
			t.Errorf("balance = %d, want 600", got)
		}
	})
}

func TestRedeem_UnlimitedNeverDecrements(t *testing.T) {
	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Sticker Pack", 50, loyalty.UnlimitedQuantity)
	fund(t, c, "user-1", 200)

	for i := 0; i < 2; i++ {
		res, err := c.rewards.Redeem(ctx, reward.ID, "user-1")
		if err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
		if res.QuantityLeft != loyalty.UnlimitedQuantity {
			t.Errorf("quantity left = %d, want unlimited sentinel", res.QuantityLeft)
		}
	}
	if got := rewardQuantity(t, c, reward.ID); got != loyalty.UnlimitedQuantity {
		t.Errorf("stored quantity = %d, want unlimited sentinel", got)
	}
	if got := userBalance(t, c, "user-1"); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
}

// lostDecrementStore makes the next quantity decrement lose, as if a
// concurrent redemption took the last unit between read and write.
type lostDecrementStore struct {
	loyalty.Store
	lose int
}

func (s *lostDecrementStore) WithUnitOfWork(ctx context.Context, fn func(loyalty.Store) error) error {
	return s.Store.WithUnitOfWork(ctx, func(uow loyalty.Store) error {
		return fn(&lostDecrementView{Store: uow, s: s})
	})
}

type lostDecrementView struct {
	loyalty.Store
	s *lostDecrementStore
}

func (v *lostDecrementView) Rewards() loyalty.RewardRepository {
	return &lostDecrementRewards{RewardRepository: v.Store.Rewards(), s: v.s}
}

type lostDecrementRewards struct {
	loyalty.RewardRepository
	s *lostDecrementStore
}

func (r *lostDecrementRewards) DecrementQuantity(ctx context.Context, id string) (int, bool, error) {
	if r.s.lose > 0 {
		r.s.lose--
		return 0, false, nil
	}
	return r.RewardRepository.DecrementQuantity(ctx, id)
}

func TestRedeem_LostDecrementRollsBackSpend(t *testing.T) {
	// GIVEN: the quantity decrement loses to a concurrent redemption
	// WHEN: redeeming
	// THEN: OutOfStock, and the rollback returns the spent points and
	// removes the pending redemption

	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 1)
	fund(t, c, "user-1", 600)

	wrapped := &lostDecrementStore{Store: c.store, lose: 1}
	points := loyalty.NewPointsLedger(wrapped, nil, nil)
	engine := loyalty.NewRedemptionEngine(wrapped, points, nil, nil)

	_, err := engine.Redeem(ctx, reward.ID, "user-1")
	if !errors.Is(err, loyalty.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	if got := userBalance(t, c, "user-1"); got != 600 {
		t.Errorf("spend not rolled back: balance = %d, want 600", got)
	}
	stored, _ := c.rewards.GetReward(ctx, reward.ID)
	if len(stored.Redemptions) != 0 {
		t.Errorf("redemption survived rollback: %+v", stored.Redemptions)
	}
	if stored.Quantity != 1 {
		t.Errorf("quantity = %d, want 1", stored.Quantity)
	}
}

func TestRedeem_ConcurrentRedeemsLastUnit(t *testing.T) {
	// GIVEN: one unit left and two funded users racing
	// THEN: exactly one succeeds, the loser keeps every point

	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 1)
	fund(t, c, "user-1", 600)
	fund(t, c, "user-2", 600)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, u := range []string{"user-1", "user-2"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := c.rewards.Redeem(ctx, reward.ID, u)
			results <- err
		}(u)
	}
	wg.Wait()
	close(results)

	var wins, outOfStock int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, loyalty.ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || outOfStock != 1 {
		t.Fatalf("expected 1 winner and 1 OutOfStock, got %d/%d", wins, outOfStock)
	}

	if got := rewardQuantity(t, c, reward.ID); got != 0 {
		t.Errorf("quantity = %d, want 0", got)
	}
	total := userBalance(t, c, "user-1") + userBalance(t, c, "user-2")
	if total != 700 {
		t.Errorf("combined balances = %d, want 700 (one spend of 500)", total)
	}
}

func TestUpdateRedemptionStatus_StateMachine(t *testing.T) {
	// GIVEN: a pending redemption
	// THEN: pending->approved->delivered walks, illegal hops are refused

	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 2)
	fund(t, c, "user-1", 600)

	res, err := c.rewards.Redeem(ctx, reward.ID, "user-1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	redID := res.Redemption.ID

	// pending -> delivered skips approval
	_, err = c.rewards.UpdateRedemptionStatus(ctx, reward.ID, redID, loyalty.RedemptionDelivered, "")
	if !errors.Is(err, loyalty.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	var detail *loyalty.StateTransitionError
	if !errors.As(err, &detail) {
		t.Fatalf("expected StateTransitionError detail, got %T", err)
	}
	if detail.From != loyalty.RedemptionPending || detail.To != loyalty.RedemptionDelivered {
		t.Errorf("detail from/to = %s/%s", detail.From, detail.To)
	}

	upd, err := c.rewards.UpdateRedemptionStatus(ctx, reward.ID, redID, loyalty.RedemptionApproved, "ship it")
	if err != nil {
		t.Fatalf("approve redemption: %v", err)
	}
	if upd.Status != loyalty.RedemptionApproved || upd.Notes != "ship it" {
		t.Errorf("updated = %+v", upd)
	}

	// approved -> rejected is not a legal hop
	if _, err := c.rewards.UpdateRedemptionStatus(ctx, reward.ID, redID, loyalty.RedemptionRejected, ""); !errors.Is(err, loyalty.ErrInvalidStateTransition) {
		t.Fatalf("approved->rejected: expected ErrInvalidStateTransition, got %v", err)
	}

	upd, err = c.rewards.UpdateRedemptionStatus(ctx, reward.ID, redID, loyalty.RedemptionDelivered, "")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if upd.Status != loyalty.RedemptionDelivered {
		t.Errorf("status = %s, want delivered", upd.Status)
	}

	// delivered is terminal
	if _, err := c.rewards.UpdateRedemptionStatus(ctx, reward.ID, redID, loyalty.RedemptionApproved, ""); !errors.Is(err, loyalty.ErrInvalidStateTransition) {
		t.Fatalf("delivered->approved: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestUpdateRedemptionStatus_RejectedIsTerminal(t *testing.T) {
	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 2)
	fund(t, c, "user-1", 600)

	res, err := c.rewards.Redeem(ctx, reward.ID, "user-1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := c.rewards.UpdateRedemptionStatus(ctx, reward.ID, res.Redemption.ID, loyalty.RedemptionRejected, "duplicate claim"); err != nil {
		t.Fatalf("reject redemption: %v", err)
	}
	if _, err := c.rewards.UpdateRedemptionStatus(ctx, reward.ID, res.Redemption.ID, loyalty.RedemptionApproved, ""); !errors.Is(err, loyalty.ErrInvalidStateTransition) {
		t.Fatalf("rejected->approved: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestUpdateRedemptionStatus_UnknownStatus(t *testing.T) {
	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 2)

	_, err := c.rewards.UpdateRedemptionStatus(ctx, reward.ID, "red-1", loyalty.RedemptionStatus("archived"), "")
	if !errors.Is(err, loyalty.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateReward_Validation(t *testing.T) {
	ctx := context.Background()
	c := newCore()

	cases := []struct {
		name   string
		reward loyalty.Reward
	}{
		{"missing name", loyalty.Reward{PointsCost: 100, Quantity: 1}},
		{"zero cost", loyalty.Reward{Name: "X", Quantity: 1}},
		{"negative cost", loyalty.Reward{Name: "X", PointsCost: -5, Quantity: 1}},
		{"quantity below sentinel", loyalty.Reward{Name: "X", PointsCost: 100, Quantity: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.rewards.CreateReward(ctx, tc.reward); !errors.Is(err, loyalty.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestListRewards_OmitsRedemptionHistories(t *testing.T) {
	ctx := context.Background()
	c := newCore()
	reward := createReward(t, c, "Free Service", 500, 2)
	createReward(t, c, "Car Wash", 100, loyalty.UnlimitedQuantity)
	fund(t, c, "user-1", 600)
	if _, err := c.rewards.Redeem(ctx, reward.ID, "user-1"); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	list, err := c.rewards.ListRewards(ctx)
	if err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 rewards, got %d", len(list))
	}
	for _, r := range list {
		if len(r.Redemptions) != 0 {
			t.Errorf("listing for %s carries redemption history", r.Name)
		}
	}
}

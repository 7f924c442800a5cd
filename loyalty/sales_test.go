package loyalty_test

import (
	"context"
	"errors"
	"testing"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

func TestRecordSale_AwardsFlooredPoints(t *testing.T) {
	// GIVEN: the default one-point-per-unit rate
	// WHEN: a sale of 150.75 is recorded
	// THEN: 150 points land with the sale as source

	ctx := context.Background()
	c := newCore()

	res, err := c.sales.RecordSale(ctx, loyalty.Sale{
		ID: "sale-1", UserID: "user-1", Amount: money("150.75"), Description: "oil change",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if res.PointsMoved != 150 || res.Balance != 150 {
		t.Errorf("moved/balance = %d/%d, want 150/150", res.PointsMoved, res.Balance)
	}

	account, err := c.points.Account(ctx, "user-1")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if len(account.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(account.History))
	}
	entry := account.History[0]
	if entry.Type != loyalty.EntryEarned || entry.Source != "sale" || entry.SourceID != "sale-1" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestRecordSale_TinySaleEarnsNothing(t *testing.T) {
	ctx := context.Background()
	c := newCore()

	res, err := c.sales.RecordSale(ctx, loyalty.Sale{
		ID: "sale-1", UserID: "user-1", Amount: money("0.40"),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if res.PointsMoved != 0 || res.Balance != 0 {
		t.Errorf("moved/balance = %d/%d, want 0/0", res.PointsMoved, res.Balance)
	}

	account, _ := c.points.Account(ctx, "user-1")
	if len(account.History) != 0 {
		t.Errorf("a zero-point sale must not append entries, got %d", len(account.History))
	}
}

func TestRecordSale_CustomRate(t *testing.T) {
	// GIVEN: half a point per currency unit
	// WHEN: a sale of 99 is recorded
	// THEN: floor(49.5) = 49 points

	ctx := context.Background()
	c := newCore()
	recorder := loyalty.NewSaleRecorder(c.points, money("0.5"), nil)

	res, err := recorder.RecordSale(ctx, loyalty.Sale{
		ID: "sale-1", UserID: "user-1", Amount: money("99"),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if res.PointsMoved != 49 {
		t.Errorf("moved = %d, want 49", res.PointsMoved)
	}
}

func TestCancelSale_ReversesTheEarn(t *testing.T) {
	// GIVEN: a recorded sale worth 200 points
	// WHEN: the sale is cancelled
	// THEN: balance returns to zero through a negative adjustment entry

	ctx := context.Background()
	c := newCore()
	sale := loyalty.Sale{ID: "sale-1", UserID: "user-1", Amount: money("200")}

	if _, err := c.sales.RecordSale(ctx, sale); err != nil {
		t.Fatalf("record: %v", err)
	}
	res, err := c.sales.CancelSale(ctx, sale)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.PointsMoved != -200 || res.Balance != 0 {
		t.Errorf("moved/balance = %d/%d, want -200/0", res.PointsMoved, res.Balance)
	}

	account, _ := c.points.Account(ctx, "user-1")
	if len(account.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(account.History))
	}
	if account.History[1].Type != loyalty.EntryAdjusted || account.History[1].Amount != -200 {
		t.Errorf("reversal entry = %+v", account.History[1])
	}
	if sum := account.HistorySum(); sum != account.Balance {
		t.Errorf("balance %d != history sum %d", account.Balance, sum)
	}
}

func TestCancelSale_FailsWhenPointsAlreadySpent(t *testing.T) {
	// GIVEN: the user spent part of the earned points
	// WHEN: the sale is cancelled
	// THEN: the reversal would overdraw and is refused

	ctx := context.Background()
	c := newCore()
	sale := loyalty.Sale{ID: "sale-1", UserID: "user-1", Amount: money("200")}

	if _, err := c.sales.RecordSale(ctx, sale); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := c.points.Spend(ctx, "user-1", 150, "reward", "rew-1", ""); err != nil {
		t.Fatalf("spend: %v", err)
	}

	_, err := c.sales.CancelSale(ctx, sale)
	if !errors.Is(err, loyalty.ErrInvalidAdjustment) {
		t.Fatalf("expected ErrInvalidAdjustment, got %v", err)
	}
	if got := userBalance(t, c, "user-1"); got != 50 {
		t.Errorf("balance = %d, want 50", got)
	}
}

func TestSales_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	c := newCore()

	cases := []struct {
		name string
		sale loyalty.Sale
	}{
		{"missing id", loyalty.Sale{UserID: "u", Amount: money("10")}},
		{"missing user", loyalty.Sale{ID: "s", Amount: money("10")}},
		{"zero amount", loyalty.Sale{ID: "s", UserID: "u"}},
		{"negative amount", loyalty.Sale{ID: "s", UserID: "u", Amount: money("-5")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.sales.RecordSale(ctx, tc.sale); !errors.Is(err, loyalty.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

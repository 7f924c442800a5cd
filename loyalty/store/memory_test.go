package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
	"github.com/revinosolutions/dealer-loyality-sub003/loyalty/store"
)

func seed(t *testing.T, m *store.Memory, id string, stock int) {
	t.Helper()
	err := m.Products().Save(context.Background(), &loyalty.Product{
		ID: id, SKU: "SKU-" + id, Name: "Product " + id,
		Price: decimal.NewFromInt(10), Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestWithUnitOfWork_RollbackRestoresEverything(t *testing.T) {
	// GIVEN: writes to three aggregates inside one unit of work
	// WHEN: the callback returns an error
	// THEN: none of the writes survive

	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m, "p1", 100)

	boom := errors.New("boom")
	err := m.WithUnitOfWork(ctx, func(uow loyalty.Store) error {
		if _, err := uow.Products().UpdateStock(ctx, "p1", 100, 40); err != nil {
			return err
		}
		if err := uow.Requests().Create(ctx, &loyalty.PurchaseRequest{
			ID: "r1", ProductID: "p1", ClientID: "c1", Quantity: 5,
			Status: loyalty.RequestPending,
		}); err != nil {
			return err
		}
		if err := uow.Points().Append(ctx, "u1", loyalty.PointsEntry{ID: "e1", Amount: 10}, 10); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error back, got %v", err)
	}

	p, _ := m.Products().Get(ctx, "p1")
	if p.Stock != 100 {
		t.Errorf("stock = %d, want 100 after rollback", p.Stock)
	}
	req, _ := m.Requests().Get(ctx, "r1")
	if req != nil {
		t.Errorf("request survived rollback: %+v", req)
	}
	a, _ := m.Points().Account(ctx, "u1")
	if a.Balance != 0 || len(a.History) != 0 {
		t.Errorf("points survived rollback: %+v", a)
	}
}

func TestWithUnitOfWork_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m, "p1", 100)

	err := m.WithUnitOfWork(ctx, func(uow loyalty.Store) error {
		ok, err := uow.Products().UpdateStock(ctx, "p1", 100, 70)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("cas lost")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unit of work: %v", err)
	}

	p, _ := m.Products().Get(ctx, "p1")
	if p.Stock != 70 {
		t.Errorf("stock = %d, want 70", p.Stock)
	}
}

func TestWithUnitOfWork_NestedJoins(t *testing.T) {
	// GIVEN: a unit of work opened inside another
	// THEN: the inner one joins the outer; one failure undoes both

	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m, "p1", 100)

	err := m.WithUnitOfWork(ctx, func(outer loyalty.Store) error {
		if _, err := outer.Products().UpdateStock(ctx, "p1", 100, 90); err != nil {
			return err
		}
		return outer.WithUnitOfWork(ctx, func(inner loyalty.Store) error {
			_, err := inner.Products().UpdateStock(ctx, "p1", 90, 80)
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested unit of work: %v", err)
	}
	p, _ := m.Products().Get(ctx, "p1")
	if p.Stock != 80 {
		t.Errorf("stock = %d, want 80", p.Stock)
	}

	boom := errors.New("boom")
	err = m.WithUnitOfWork(ctx, func(outer loyalty.Store) error {
		if _, err := outer.Products().UpdateStock(ctx, "p1", 80, 70); err != nil {
			return err
		}
		return outer.WithUnitOfWork(ctx, func(inner loyalty.Store) error {
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	p, _ = m.Products().Get(ctx, "p1")
	if p.Stock != 80 {
		t.Errorf("stock = %d, want 80 after nested rollback", p.Stock)
	}
}

func TestUpdateStock_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m, "p1", 100)

	ok, err := m.Products().UpdateStock(ctx, "p1", 90, 50)
	if err != nil {
		t.Fatalf("update stock: %v", err)
	}
	if ok {
		t.Fatal("stale expectation must lose the swap")
	}
	p, _ := m.Products().Get(ctx, "p1")
	if p.Stock != 100 {
		t.Errorf("lost swap mutated stock: %d", p.Stock)
	}

	ok, err = m.Products().UpdateStock(ctx, "p1", 100, 50)
	if err != nil {
		t.Fatalf("update stock: %v", err)
	}
	if !ok {
		t.Fatal("matching expectation must win the swap")
	}
	p, _ = m.Products().Get(ctx, "p1")
	if p.Stock != 50 {
		t.Errorf("stock = %d, want 50", p.Stock)
	}

	ok, _ = m.Products().UpdateStock(ctx, "ghost", 0, 10)
	if ok {
		t.Error("swap on a missing product must lose")
	}
}

func TestMerge_InsertsThenAccumulates(t *testing.T) {
	// GIVEN: no record for (client, product)
	// WHEN: merging twice
	// THEN: first merge inserts as-is, second adds stock and keeps the
	// newest timestamp only

	ctx := context.Background()
	m := store.NewMemory()
	now := time.Now()

	first := loyalty.ClientInventory{
		ClientID: "c1", ProductKey: "p1", ProductName: "Oil", SKU: "SKU-1",
		InitialStock: 30, CurrentStock: 30,
		ReorderLevel: loyalty.DefaultReorderLevel, LastUpdated: now,
	}
	rec, err := m.Inventory().Merge(ctx, first)
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if rec.InitialStock != 30 || rec.CurrentStock != 30 {
		t.Errorf("inserted record = %+v", rec)
	}

	second := first
	second.InitialStock = 20
	second.CurrentStock = 20
	second.LastUpdated = now.Add(-time.Hour) // older event arriving late
	rec, err = m.Inventory().Merge(ctx, second)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if rec.CurrentStock != 50 {
		t.Errorf("current stock = %d, want 50", rec.CurrentStock)
	}
	if rec.InitialStock != 30 {
		t.Errorf("initial stock = %d, only the insert sets it", rec.InitialStock)
	}
	if !rec.LastUpdated.Equal(now) {
		t.Errorf("last updated moved backwards: %v", rec.LastUpdated)
	}

	got, err := m.Inventory().Get(ctx, "c1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStock != 50 {
		t.Errorf("stored stock = %d, want 50", got.CurrentStock)
	}
}

func TestFinalize_OnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	req := &loyalty.PurchaseRequest{
		ID: "r1", ProductID: "p1", ClientID: "c1", Quantity: 5,
		Status: loyalty.RequestPending, CreatedAt: time.Now(),
	}
	if err := m.Requests().Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	final := *req
	final.Status = loyalty.RequestApproved
	final.AdminID = "admin-1"
	final.OrderID = "o1"
	final.UpdatedAt = time.Now()

	ok, err := m.Requests().Finalize(ctx, &final)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !ok {
		t.Fatal("finalizing a pending request must succeed")
	}

	again := final
	again.AdminID = "admin-2"
	ok, err = m.Requests().Finalize(ctx, &again)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if ok {
		t.Fatal("finalizing a finalized request must fail")
	}

	stored, _ := m.Requests().Get(ctx, "r1")
	if stored.AdminID != "admin-1" || stored.OrderID != "o1" {
		t.Errorf("stored request = %+v", stored)
	}
}

func TestCreate_RejectsDuplicateRequestID(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	req := &loyalty.PurchaseRequest{ID: "r1", Status: loyalty.RequestPending}

	if err := m.Requests().Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Requests().Create(ctx, req); err == nil {
		t.Fatal("duplicate id must be refused")
	}
}

func TestDecrementQuantity_StopsAtZero(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Rewards().Save(ctx, &loyalty.Reward{ID: "rw1", Name: "X", PointsCost: 10, Quantity: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	left, ok, err := m.Rewards().DecrementQuantity(ctx, "rw1")
	if err != nil || !ok {
		t.Fatalf("first decrement: left=%d ok=%v err=%v", left, ok, err)
	}
	if left != 0 {
		t.Errorf("left = %d, want 0", left)
	}

	_, ok, err = m.Rewards().DecrementQuantity(ctx, "rw1")
	if err != nil {
		t.Fatalf("second decrement: %v", err)
	}
	if ok {
		t.Fatal("decrementing zero quantity must fail")
	}
}

func TestRewardSave_PreservesRedemptions(t *testing.T) {
	// Catalog updates go through Save; redemption history must not be
	// clobbered by them.

	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Rewards().Save(ctx, &loyalty.Reward{ID: "rw1", Name: "X", PointsCost: 10, Quantity: 5}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.Rewards().AppendRedemption(ctx, loyalty.Redemption{
		ID: "red1", RewardID: "rw1", UserID: "u1", Status: loyalty.RedemptionPending,
	}); err != nil {
		t.Fatalf("append redemption: %v", err)
	}

	if err := m.Rewards().Save(ctx, &loyalty.Reward{ID: "rw1", Name: "X renamed", PointsCost: 20, Quantity: 5}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	r, _ := m.Rewards().Get(ctx, "rw1")
	if r.Name != "X renamed" || r.PointsCost != 20 {
		t.Errorf("catalog fields not updated: %+v", r)
	}
	if len(r.Redemptions) != 1 {
		t.Fatalf("redemptions clobbered: %d", len(r.Redemptions))
	}
}

func TestGet_ReturnsIsolatedCopies(t *testing.T) {
	// Mutating what a read returned must not touch the stored aggregate.

	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Points().Append(ctx, "u1", loyalty.PointsEntry{ID: "e1", Amount: 10}, 10); err != nil {
		t.Fatalf("append: %v", err)
	}

	a, _ := m.Points().Account(ctx, "u1")
	a.Balance = 999
	a.History[0].Amount = 999

	fresh, _ := m.Points().Account(ctx, "u1")
	if fresh.Balance != 10 || fresh.History[0].Amount != 10 {
		t.Errorf("store leaked internal state: %+v", fresh)
	}
}

func TestReset_DropsAllData(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m, "p1", 100)
	if err := m.Points().Append(ctx, "u1", loyalty.PointsEntry{ID: "e1", Amount: 10}, 10); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	p, _ := m.Products().Get(ctx, "p1")
	if p != nil {
		t.Error("product survived reset")
	}
	a, _ := m.Points().Account(ctx, "u1")
	if a.Balance != 0 || len(a.History) != 0 {
		t.Error("points survived reset")
	}
}

package factory

import (
	"context"
	"strings"
	"testing"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
	"github.com/revinosolutions/dealer-loyality-sub003/loyalty/store"
)

const sampleCatalog = `{
	"products": [
		{"id": "prod-oil", "sku": "OIL-5W30", "name": "Engine Oil 5W30", "price": "25.00", "stock": 100, "reorder_level": 10},
		{"id": "prod-filter", "name": "Oil Filter", "price": "8.50", "stock": 40}
	],
	"rewards": [
		{"id": "rw-jacket", "name": "Branded Jacket", "points_cost": 500, "quantity": 2},
		{"name": "Service Voucher", "points_cost": 200, "expiry_date": "2030-06-30"}
	]
}`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(sampleCatalog)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(c.Products) != 2 || len(c.Rewards) != 2 {
		t.Fatalf("got %d products, %d rewards", len(c.Products), len(c.Rewards))
	}
	if c.Products[0].Price.String() != "25" {
		t.Errorf("price = %s, want 25", c.Products[0].Price)
	}
	if c.Rewards[0].Quantity != 2 {
		t.Errorf("explicit quantity = %d, want 2", c.Rewards[0].Quantity)
	}
	if c.Rewards[1].Quantity != loyalty.UnlimitedQuantity {
		t.Errorf("omitted quantity must default to unlimited, got %d", c.Rewards[1].Quantity)
	}
	if !c.Rewards[1].IsActive {
		t.Error("omitted is_active must default to true")
	}
	if c.Rewards[1].ExpiryDate == nil {
		t.Error("expiry_date must be parsed")
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{"missing product name", `{"products":[{"id":"p1","price":"1.00"}]}`, "name is required"},
		{"bad price", `{"products":[{"id":"p1","name":"X","price":"free"}]}`, "invalid price"},
		{"negative stock", `{"products":[{"id":"p1","name":"X","price":"1.00","stock":-1}]}`, "stock"},
		{"zero points cost", `{"rewards":[{"name":"R","points_cost":0}]}`, "points_cost"},
		{"bad quantity", `{"rewards":[{"name":"R","points_cost":10,"quantity":-2}]}`, "quantity"},
		{"bad expiry", `{"rewards":[{"name":"R","points_cost":10,"expiry_date":"soon"}]}`, "expiry_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCatalog(tc.json)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	points := loyalty.NewPointsLedger(st, nil, nil)
	redemptions := loyalty.NewRedemptionEngine(st, points, nil, nil)

	c, err := ParseCatalog(sampleCatalog)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Seed(ctx, st, redemptions); err != nil {
		t.Fatalf("seed: %v", err)
	}

	products, err := st.Products().List(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("seeded %d products, want 2", len(products))
	}

	rewards, err := redemptions.ListRewards(ctx)
	if err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	if len(rewards) != 2 {
		t.Errorf("seeded %d rewards, want 2", len(rewards))
	}
}

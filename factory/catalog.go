/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON catalog definitions (products and rewards) into domain
  structs. This enables catalog setup without code changes - operators
  define the pool and the reward shelf in JSON, and the factory
  validates and seeds it through the engines.

JSON SCHEMA:
  {
    "products": [
      {
        "id": "prod-oil",
        "sku": "OIL-5W30",
        "name": "Engine Oil 5W30",
        "price": "25.00",
        "stock": 100,
        "reorder_level": 10
      }
    ],
    "rewards": [
      {
        "id": "rw-jacket",
        "name": "Branded Jacket",
        "points_cost": 500,
        "quantity": 2,
        "is_active": true,
        "expiry_date": "2026-12-31"
      }
    ]
  }

KEY FEATURES:
  - Validates prices, quantities and point costs before anything is written
  - Sets sensible defaults (active rewards, unlimited quantity when omitted)
  - Seeds through the same store and engine paths the API uses

USAGE:
  catalog, err := factory.ParseCatalog(jsonStr)
  if err != nil { ... }
  err = catalog.Seed(ctx, store, redemptions)

SEE ALSO:
  - api/scenarios.go: demo loaders built on top of this
  - cmd/server/main.go: -seed flag
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a catalog.
type CatalogJSON struct {
	Products []ProductJSON `json:"products"`
	Rewards  []RewardJSON  `json:"rewards"`
}

// ProductJSON represents one pool product.
type ProductJSON struct {
	ID           string `json:"id"`
	SKU          string `json:"sku,omitempty"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	Stock        int    `json:"stock"`
	ReorderLevel int    `json:"reorder_level,omitempty"`
}

// RewardJSON represents one redeemable reward. Quantity omitted or null
// means unlimited; IsActive omitted means active.
type RewardJSON struct {
	ID          string `json:"id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PointsCost  int    `json:"points_cost"`
	Quantity    *int   `json:"quantity,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
	ExpiryDate  string `json:"expiry_date,omitempty"` // YYYY-MM-DD
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is a validated, ready-to-seed set of products and rewards.
type Catalog struct {
	Products []loyalty.Product
	Rewards  []loyalty.Reward
}

// ParseCatalog parses and validates a JSON catalog.
func ParseCatalog(jsonStr string) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return FromJSON(cj)
}

// FromJSON converts an already-decoded catalog, applying defaults.
func FromJSON(cj CatalogJSON) (*Catalog, error) {
	c := &Catalog{}

	for i, pj := range cj.Products {
		if pj.ID == "" {
			return nil, fmt.Errorf("product %d: id is required", i)
		}
		if pj.Name == "" {
			return nil, fmt.Errorf("product %s: name is required", pj.ID)
		}
		price, err := decimal.NewFromString(pj.Price)
		if err != nil {
			return nil, fmt.Errorf("product %s: invalid price %q", pj.ID, pj.Price)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("product %s: price must be positive", pj.ID)
		}
		if pj.Stock < 0 {
			return nil, fmt.Errorf("product %s: stock must not be negative", pj.ID)
		}
		c.Products = append(c.Products, loyalty.Product{
			ID:           pj.ID,
			SKU:          pj.SKU,
			Name:         pj.Name,
			Price:        price,
			Stock:        pj.Stock,
			ReorderLevel: pj.ReorderLevel,
		})
	}

	for i, rj := range cj.Rewards {
		if rj.Name == "" {
			return nil, fmt.Errorf("reward %d: name is required", i)
		}
		if rj.PointsCost <= 0 {
			return nil, fmt.Errorf("reward %s: points_cost must be positive", rj.Name)
		}

		quantity := loyalty.UnlimitedQuantity
		if rj.Quantity != nil {
			if *rj.Quantity < loyalty.UnlimitedQuantity {
				return nil, fmt.Errorf("reward %s: quantity must be -1 (unlimited) or >= 0", rj.Name)
			}
			quantity = *rj.Quantity
		}

		active := true
		if rj.IsActive != nil {
			active = *rj.IsActive
		}

		var expiry *time.Time
		if rj.ExpiryDate != "" {
			t, err := time.Parse("2006-01-02", rj.ExpiryDate)
			if err != nil {
				return nil, fmt.Errorf("reward %s: invalid expiry_date %q (use YYYY-MM-DD)", rj.Name, rj.ExpiryDate)
			}
			expiry = &t
		}

		c.Rewards = append(c.Rewards, loyalty.Reward{
			ID:          rj.ID,
			ClientID:    rj.ClientID,
			Name:        rj.Name,
			Description: rj.Description,
			PointsCost:  rj.PointsCost,
			Quantity:    quantity,
			IsActive:    active,
			ExpiryDate:  expiry,
		})
	}

	return c, nil
}

// Seed writes products through the store and rewards through the
// redemption engine, so the seeded data went through the same
// validation as API-created records.
func (c *Catalog) Seed(ctx context.Context, store loyalty.Store, redemptions *loyalty.RedemptionEngine) error {
	for i := range c.Products {
		p := c.Products[i]
		now := time.Now()
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := store.Products().Save(ctx, &p); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
	}
	for _, r := range c.Rewards {
		if _, err := redemptions.CreateReward(ctx, r); err != nil {
			return fmt.Errorf("failed to seed reward %s: %w", r.Name, err)
		}
	}
	return nil
}

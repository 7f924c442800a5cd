/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario seeds a catalog and then
	drives the real engines, so every demo record went through the same
	validation and invariants as production traffic.

AVAILABLE SCENARIOS:

	starter-catalog: Pool products and a reward shelf, nothing in motion
	busy-dealer:     Approved transfers, recorded sales, a redemption
	tight-stock:     Pool running low, pending requests competing for it

HOW SCENARIOS WORK:
 1. Reset the store (requires a store that supports Reset)
 2. Seed products and rewards through the factory
 3. Drive requests, sales and redemptions through the engines

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-dealer"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: the engines the loaders drive
  - factory/catalog.go: catalog JSON seeding
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/revinosolutions/dealer-loyality-sub003/factory"
	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "starter-catalog",
		Name:        "Starter Catalog",
		Description: "Pool products and a reward shelf, no activity yet",
		Category:    "stock",
	},
	{
		ID:          "busy-dealer",
		Name:        "Busy Dealer",
		Description: "Approved transfers, recorded sales and a pending redemption",
		Category:    "loyalty",
	},
	{
		ID:          "tight-stock",
		Name:        "Tight Stock",
		Description: "Pool near its reorder level with requests still pending",
		Category:    "stock",
	},
}

// Well-known demo identities. Tokens for these are minted by the dev
// server when it runs with a demo scenario loaded.
const (
	demoAdmin  = "admin-demo"
	demoClient = "client-north"
	demoDealer = "dealer-ana"
)

const demoCatalog = `{
	"products": [
		{"id": "prod-oil", "sku": "OIL-5W30", "name": "Engine Oil 5W30", "price": "25.00", "stock": 120, "reorder_level": 20},
		{"id": "prod-filter", "sku": "FLT-STD", "name": "Oil Filter", "price": "8.50", "stock": 80, "reorder_level": 15},
		{"id": "prod-brake", "sku": "BRK-PAD", "name": "Brake Pad Set", "price": "42.00", "stock": 30, "reorder_level": 10}
	],
	"rewards": [
		{"id": "rw-jacket", "name": "Branded Jacket", "description": "Embroidered workshop jacket", "points_cost": 500, "quantity": 5},
		{"id": "rw-voucher", "name": "Service Voucher", "description": "One free service slot", "points_cost": 200},
		{"id": "rw-trip", "name": "Dealer Conference Trip", "points_cost": 5000, "quantity": 1, "expiry_date": "2027-01-31"}
	]
}`

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.resetStore(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "starter-catalog":
		err = h.loadStarterCatalog(ctx)
	case "busy-dealer":
		err = h.loadBusyDealer(ctx)
	case "tight-stock":
		err = h.loadTightStock(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetData clears all data.
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) resetStore(ctx context.Context) error {
	resetter, ok := h.Store.(loyalty.Resetter)
	if !ok {
		return fmt.Errorf("store does not support reset")
	}
	return resetter.Reset(ctx)
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadStarterCatalog(ctx context.Context) error {
	catalog, err := factory.ParseCatalog(demoCatalog)
	if err != nil {
		return err
	}
	return catalog.Seed(ctx, h.Store, h.Redemptions)
}

func (h *Handler) loadBusyDealer(ctx context.Context) error {
	if err := h.loadStarterCatalog(ctx); err != nil {
		return err
	}

	// Two approved transfers and one request left in the queue.
	transfers := []struct {
		productID string
		quantity  int
		price     string
	}{
		{"prod-oil", 24, "25.00"},
		{"prod-filter", 12, "8.50"},
	}
	for _, t := range transfers {
		req, err := h.Requests.Submit(ctx, demoClient, t.productID, t.quantity, mustDecimal(t.price), "opening stock")
		if err != nil {
			return err
		}
		if _, err := h.Requests.Approve(ctx, req.ID, demoAdmin); err != nil {
			return err
		}
	}
	if _, err := h.Requests.Submit(ctx, demoClient, "prod-brake", 8, mustDecimal("42.00"), "awaiting approval"); err != nil {
		return err
	}

	// Sales feeding the dealer's points balance.
	sales := []struct {
		id     string
		amount string
	}{
		{"sale-1001", "180.00"},
		{"sale-1002", "95.50"},
		{"sale-1003", "310.00"},
	}
	for _, s := range sales {
		sale := loyalty.Sale{ID: s.id, UserID: demoDealer, Amount: mustDecimal(s.amount)}
		if _, err := h.Sales.RecordSale(ctx, sale); err != nil {
			return err
		}
	}

	// A redemption waiting for admin review.
	if _, err := h.Redemptions.Redeem(ctx, "rw-voucher", demoDealer); err != nil {
		return err
	}
	return nil
}

func (h *Handler) loadTightStock(ctx context.Context) error {
	if err := h.loadStarterCatalog(ctx); err != nil {
		return err
	}

	// Drain the brake pad pool down to its reorder level.
	req, err := h.Requests.Submit(ctx, demoClient, "prod-brake", 20, mustDecimal("42.00"), "seasonal stock-up")
	if err != nil {
		return err
	}
	if _, err := h.Requests.Approve(ctx, req.ID, demoAdmin); err != nil {
		return err
	}

	// Competing requests that exceed what is left.
	if _, err := h.Requests.Submit(ctx, demoClient, "prod-brake", 8, mustDecimal("42.00"), "first in line"); err != nil {
		return err
	}
	if _, err := h.Requests.Submit(ctx, "client-south", "prod-brake", 6, mustDecimal("42.00"), "second in line"); err != nil {
		return err
	}
	return nil
}

// mustDecimal is only used with literal scenario prices.
func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

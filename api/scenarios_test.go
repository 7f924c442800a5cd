/*
scenarios_test.go - Demo scenario loader tests
*/
package api

import (
	"net/http"
	"testing"
)

func TestLoadScenario_StarterCatalog(t *testing.T) {
	// GIVEN: An empty store
	env := newEnv(t)
	admin := env.token(t, "admin-1", RoleAdmin)

	// WHEN: Loading the starter catalog
	rec := env.do(t, http.MethodPost, "/api/scenarios/load", admin, map[string]string{
		"scenario_id": "starter-catalog",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Load returned %d: %s", rec.Code, rec.Body.String())
	}

	// THEN: Products and rewards exist
	rec = env.do(t, http.MethodGet, "/api/products", admin, nil)
	products := decodeBody[[]ProductDTO](t, rec)
	if len(products) != 3 {
		t.Errorf("Products = %d, want 3", len(products))
	}
	rec = env.do(t, http.MethodGet, "/api/rewards", admin, nil)
	rewards := decodeBody[[]RewardDTO](t, rec)
	if len(rewards) != 3 {
		t.Errorf("Rewards = %d, want 3", len(rewards))
	}

	// AND: The scenario is reported as current
	rec = env.do(t, http.MethodGet, "/api/scenarios/current", admin, nil)
	current := decodeBody[ScenarioDTO](t, rec)
	if current.ID != "starter-catalog" {
		t.Errorf("Current scenario = %s, want starter-catalog", current.ID)
	}
}

func TestLoadScenario_BusyDealerHasActivity(t *testing.T) {
	// GIVEN/WHEN: The busy-dealer scenario
	env := newEnv(t)
	admin := env.token(t, "admin-1", RoleAdmin)
	rec := env.do(t, http.MethodPost, "/api/scenarios/load", admin, map[string]string{
		"scenario_id": "busy-dealer",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Load returned %d: %s", rec.Code, rec.Body.String())
	}

	// THEN: The demo client holds transferred stock
	rec = env.do(t, http.MethodGet, "/api/clients/"+demoClient+"/inventory", admin, nil)
	inventory := decodeBody[[]InventoryDTO](t, rec)
	if len(inventory) != 2 {
		t.Errorf("Client inventory records = %d, want 2", len(inventory))
	}

	// AND: One request is still in the queue
	rec = env.do(t, http.MethodGet, "/api/requests/pending", admin, nil)
	queue := decodeBody[map[string][]PurchaseRequestDTO](t, rec)
	if len(queue["requests"]) != 1 {
		t.Errorf("Pending requests = %d, want 1", len(queue["requests"]))
	}

	// AND: The dealer earned from sales and spent on a redemption
	rec = env.do(t, http.MethodGet, "/api/users/"+demoDealer+"/points", admin, nil)
	account := decodeBody[PointsAccountDTO](t, rec)
	// 180 + 95 + 310 earned, 200 spent on the voucher
	if account.Balance != 385 {
		t.Errorf("Dealer balance = %d, want 385", account.Balance)
	}
}

func TestLoadScenario_UnknownIDIs400(t *testing.T) {
	env := newEnv(t)
	admin := env.token(t, "admin-1", RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", admin, map[string]string{
		"scenario_id": "does-not-exist",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Unknown scenario returned %d, want 400", rec.Code)
	}
}

func TestResetData_ClearsEverything(t *testing.T) {
	// GIVEN: A loaded scenario
	env := newEnv(t)
	admin := env.token(t, "admin-1", RoleAdmin)
	env.do(t, http.MethodPost, "/api/scenarios/load", admin, map[string]string{
		"scenario_id": "starter-catalog",
	})

	// WHEN: Resetting
	rec := env.do(t, http.MethodPost, "/api/scenarios/reset", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Reset returned %d: %s", rec.Code, rec.Body.String())
	}

	// THEN: The catalog is empty and no scenario is current
	rec = env.do(t, http.MethodGet, "/api/products", admin, nil)
	products := decodeBody[[]ProductDTO](t, rec)
	if len(products) != 0 {
		t.Errorf("Products after reset = %d, want 0", len(products))
	}
	rec = env.do(t, http.MethodGet, "/api/scenarios/current", admin, nil)
	if body := rec.Body.String(); body != "null\n" {
		t.Errorf("Current scenario after reset = %q, want null", body)
	}
}

/*
auth_test.go - Token validation and role gate tests
*/
package api

import (
	"net/http"
	"testing"
	"time"
)

func TestTokenService_RoundTrip(t *testing.T) {
	// GIVEN: A token service
	tokens := NewTokenService("test-secret", time.Hour)

	// WHEN: Generating and validating a token
	signed, err := tokens.Generate("dealer-1", RoleDealer)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := tokens.Validate(signed)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// THEN: The identity survives the round trip
	if claims.UserID != "dealer-1" || claims.Role != RoleDealer {
		t.Errorf("Claims = %+v", claims)
	}
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	signed, err := NewTokenService("secret-a", time.Hour).Generate("u1", RoleClient)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := NewTokenService("secret-b", time.Hour).Validate(signed); err == nil {
		t.Error("Token signed with a different secret must not validate")
	}
}

func TestTokenService_RejectsExpired(t *testing.T) {
	signed, err := NewTokenService("test-secret", -time.Minute).Generate("u1", RoleClient)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := NewTokenService("test-secret", time.Hour).Validate(signed); err == nil {
		t.Error("Expired token must not validate")
	}
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	// GIVEN: A router with no credentials supplied
	env := newEnv(t)

	// WHEN/THEN: API calls without a token get 401
	rec := env.do(t, http.MethodGet, "/api/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("No token returned %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/products", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Garbage token returned %d, want 401", rec.Code)
	}
}

func TestRoutes_EnforceRoles(t *testing.T) {
	// GIVEN: A client-role caller
	env := newEnv(t)
	client := env.token(t, "client-1", RoleClient)

	// WHEN/THEN: Admin-only routes refuse with 403
	rec := env.do(t, http.MethodPost, "/api/products", client, CreateProductRequest{
		Name: "Sneaky Product", Price: "1.00", Stock: 1,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Client creating product returned %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/requests/pending", client, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Client listing queue returned %d, want 403", rec.Code)
	}

	// AND: Sales are closed to client-role callers
	rec = env.do(t, http.MethodPost, "/api/sales", client, SaleRequest{
		SaleID: "s1", UserID: "client-1", Amount: "10.00",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Client recording sale returned %d, want 403", rec.Code)
	}
}

func TestOwnership_ClientCannotReadOthers(t *testing.T) {
	// GIVEN: Two clients
	env := newEnv(t)
	clientA := env.token(t, "client-a", RoleClient)

	// WHEN/THEN: Client A cannot read client B's views
	rec := env.do(t, http.MethodGet, "/api/clients/client-b/inventory", clientA, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Cross-client inventory returned %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/users/client-b/points", clientA, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Cross-user points returned %d, want 403", rec.Code)
	}

	// AND: An admin can read anyone's
	admin := env.token(t, "admin-1", RoleAdmin)
	rec = env.do(t, http.MethodGet, "/api/clients/client-b/inventory", admin, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Admin reading client inventory returned %d, want 200", rec.Code)
	}
}

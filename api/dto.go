/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Prices and totals travel as decimal strings ("25.00"), never floats.

VALIDATION:
  Input validation lives in the engines; DTOs are pure data carriers.
  Handlers only reject bodies that fail to decode.

SEE ALSO:
  - handlers.go: Uses these types
  - loyalty/types.go: The domain structs behind them
*/
package api

import (
	"time"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// =============================================================================
// PRODUCTS
// =============================================================================

// ProductDTO represents a pool product in API responses.
type ProductDTO struct {
	ID           string `json:"id"`
	SKU          string `json:"sku,omitempty"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	Stock        int    `json:"stock"`
	ReorderLevel int    `json:"reorder_level"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// CreateProductRequest is the admin request to add a pool product.
type CreateProductRequest struct {
	SKU          string `json:"sku,omitempty"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	Stock        int    `json:"stock"`
	ReorderLevel int    `json:"reorder_level,omitempty"`
}

// RestockRequest is the admin request to add units to the pool.
type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

// PurchaseRequestDTO represents a purchase request.
type PurchaseRequestDTO struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	ClientID  string `json:"client_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status"`
	AdminID   string `json:"admin_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SubmitRequestRequest is the client request for stock from the pool.
// ClientID is ignored for client-role callers; their own identity wins.
type SubmitRequestRequest struct {
	ClientID  string `json:"client_id,omitempty"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Notes     string `json:"notes,omitempty"`
}

// RejectRequestRequest carries the rejection reason.
type RejectRequestRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ApprovalResultDTO reports the committed outcome of an approval.
type ApprovalResultDTO struct {
	Request         PurchaseRequestDTO `json:"request"`
	ProductNewStock int                `json:"product_new_stock"`
	ClientNewStock  int                `json:"client_new_stock"`
}

// =============================================================================
// INVENTORY & ORDERS
// =============================================================================

// InventoryDTO represents one client-held stock record.
type InventoryDTO struct {
	ClientID     string `json:"client_id"`
	ProductKey   string `json:"product_key"`
	ProductName  string `json:"product_name"`
	SKU          string `json:"sku,omitempty"`
	InitialStock int    `json:"initial_stock"`
	CurrentStock int    `json:"current_stock"`
	ReorderLevel int    `json:"reorder_level"`
	LastUpdated  string `json:"last_updated"`
}

// OrderDTO represents an audit order.
type OrderDTO struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	ClientID  string `json:"client_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// POINTS
// =============================================================================

// PointsEntryDTO represents one ledger movement.
type PointsEntryDTO struct {
	ID          string `json:"id"`
	Amount      int    `json:"amount"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// PointsAccountDTO represents a user's balance and history.
type PointsAccountDTO struct {
	UserID  string           `json:"user_id"`
	Balance int              `json:"balance"`
	History []PointsEntryDTO `json:"history"`
}

// PointsOpRequest is the admin request for earn/adjust/expire. Amount
// is signed only for adjust.
type PointsOpRequest struct {
	UserID      string `json:"user_id"`
	Amount      int    `json:"amount"`
	Source      string `json:"source,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// =============================================================================
// SALES
// =============================================================================

// SaleRequest is the sale event posted by the sales subsystem.
type SaleRequest struct {
	SaleID      string `json:"sale_id"`
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// SaleResultDTO reports the ledger movement a sale produced.
type SaleResultDTO struct {
	SaleID      string `json:"sale_id"`
	UserID      string `json:"user_id"`
	PointsMoved int    `json:"points_moved"`
	Balance     int    `json:"balance"`
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardDTO represents a catalog reward.
type RewardDTO struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	PointsCost  int             `json:"points_cost"`
	Quantity    int             `json:"quantity"`
	IsActive    bool            `json:"is_active"`
	ExpiryDate  string          `json:"expiry_date,omitempty"`
	Redemptions []RedemptionDTO `json:"redemptions,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

// CreateRewardRequest is the admin request to add a reward. Quantity
// omitted means unlimited.
type CreateRewardRequest struct {
	ClientID    string `json:"client_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PointsCost  int    `json:"points_cost"`
	Quantity    *int   `json:"quantity,omitempty"`
	ExpiryDate  string `json:"expiry_date,omitempty"` // YYYY-MM-DD
}

// SetRewardActiveRequest flips a reward's availability.
type SetRewardActiveRequest struct {
	Active bool `json:"active"`
}

// RedemptionDTO represents one redemption.
type RedemptionDTO struct {
	ID         string `json:"id"`
	RewardID   string `json:"reward_id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
	RedeemedAt string `json:"redeemed_at"`
	UpdatedAt  string `json:"updated_at"`
}

// RedemptionResultDTO reports the committed outcome of a redemption.
type RedemptionResultDTO struct {
	Redemption      RedemptionDTO `json:"redemption"`
	PointsRemaining int           `json:"points_remaining"`
	QuantityLeft    int           `json:"quantity_left"`
}

// UpdateRedemptionStatusRequest advances the redemption state machine.
type UpdateRedemptionStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toProductDTO(p loyalty.Product) ProductDTO {
	return ProductDTO{
		ID:           p.ID,
		SKU:          p.SKU,
		Name:         p.Name,
		Price:        p.Price.String(),
		Stock:        p.Stock,
		ReorderLevel: p.ReorderLevel,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
}

func toRequestDTO(r loyalty.PurchaseRequest) PurchaseRequestDTO {
	return PurchaseRequestDTO{
		ID:        r.ID,
		ProductID: r.ProductID,
		ClientID:  r.ClientID,
		Quantity:  r.Quantity,
		Price:     r.Price.String(),
		Notes:     r.Notes,
		Status:    string(r.Status),
		AdminID:   r.AdminID,
		Reason:    r.Reason,
		OrderID:   r.OrderID,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func toInventoryDTO(rec loyalty.ClientInventory) InventoryDTO {
	return InventoryDTO{
		ClientID:     rec.ClientID,
		ProductKey:   rec.ProductKey,
		ProductName:  rec.ProductName,
		SKU:          rec.SKU,
		InitialStock: rec.InitialStock,
		CurrentStock: rec.CurrentStock,
		ReorderLevel: rec.ReorderLevel,
		LastUpdated:  rec.LastUpdated.Format(time.RFC3339),
	}
}

func toOrderDTO(o loyalty.Order) OrderDTO {
	return OrderDTO{
		ID:        o.ID,
		RequestID: o.RequestID,
		ClientID:  o.ClientID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		Total:     o.Total.String(),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

func toAccountDTO(a *loyalty.PointsAccount) PointsAccountDTO {
	history := make([]PointsEntryDTO, len(a.History))
	for i, e := range a.History {
		history[i] = PointsEntryDTO{
			ID:          e.ID,
			Amount:      e.Amount,
			Type:        string(e.Type),
			Source:      e.Source,
			SourceID:    e.SourceID,
			Description: e.Description,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		}
	}
	return PointsAccountDTO{UserID: a.UserID, Balance: a.Balance, History: history}
}

func toRewardDTO(r loyalty.Reward, includeRedemptions bool) RewardDTO {
	dto := RewardDTO{
		ID:          r.ID,
		ClientID:    r.ClientID,
		Name:        r.Name,
		Description: r.Description,
		PointsCost:  r.PointsCost,
		Quantity:    r.Quantity,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.ExpiryDate != nil {
		dto.ExpiryDate = r.ExpiryDate.Format("2006-01-02")
	}
	if includeRedemptions {
		dto.Redemptions = make([]RedemptionDTO, len(r.Redemptions))
		for i, red := range r.Redemptions {
			dto.Redemptions[i] = toRedemptionDTO(red)
		}
	}
	return dto
}

func toRedemptionDTO(r loyalty.Redemption) RedemptionDTO {
	return RedemptionDTO{
		ID:         r.ID,
		RewardID:   r.RewardID,
		UserID:     r.UserID,
		Status:     string(r.Status),
		Notes:      r.Notes,
		RedeemedAt: r.RedeemedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}

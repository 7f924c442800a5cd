/*
handlers.go - HTTP API handlers for the dealer loyalty platform

PURPOSE:
  Exposes the loyalty core via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engines.

ENDPOINTS:
  Products:
    GET    /api/products                    List pool products
    POST   /api/products                    Create product (admin)
    GET    /api/products/{id}               Get product
    POST   /api/products/{id}/restock       Add pool units (admin)

  Requests:
    POST   /api/requests                    Submit purchase request
    GET    /api/requests/{id}               Get request
    GET    /api/requests/pending            Approval queue (admin)
    POST   /api/requests/{id}/approve       Approve (admin)
    POST   /api/requests/{id}/reject        Reject (admin)

  Clients:
    GET    /api/clients/{clientID}/inventory  Client stock records
    GET    /api/clients/{clientID}/requests   Client request history
    GET    /api/clients/{clientID}/orders     Client audit orders

  Points:
    GET    /api/users/{userID}/points       Balance and history
    POST   /api/admin/points/earn           Manual earn (admin)
    POST   /api/admin/points/adjust         Signed adjustment (admin)
    POST   /api/admin/points/expire         Expire aged points (admin)

  Sales:
    POST   /api/sales                       Record sale, award points
    POST   /api/sales/cancel                Reverse a cancelled sale

  Rewards:
    GET    /api/rewards                             List catalog
    POST   /api/rewards                             Create reward (admin)
    GET    /api/rewards/{id}                        Get with redemptions
    POST   /api/rewards/{id}/activate               Flip availability (admin)
    POST   /api/rewards/{id}/redeem                 Redeem for caller
    POST   /api/rewards/{id}/redemptions/{redemptionID}  Advance status (admin)

  Scenarios:
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario (admin)

ERROR HANDLING:
  Engine errors map to HTTP statuses via statusForError:
  - 400: Validation errors, invalid input
  - 402: Insufficient points balance
  - 404: Aggregate not found
  - 409: Idempotency and transition conflicts
  - 422: Exhausted stock, inactive/expired rewards, refused adjustments
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Claims resolution and role gates
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       loyalty.Store
	Transfer    *loyalty.TransferEngine
	Requests    *loyalty.RequestService
	Points      *loyalty.PointsLedger
	Redemptions *loyalty.RedemptionEngine
	Sales       *loyalty.SaleRecorder

	log *zap.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the wired engines.
func NewHandler(store loyalty.Store, transfer *loyalty.TransferEngine, requests *loyalty.RequestService, points *loyalty.PointsLedger, redemptions *loyalty.RedemptionEngine, sales *loyalty.SaleRecorder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:       store,
		Transfer:    transfer,
		Requests:    requests,
		Points:      points,
		Redemptions: redemptions,
		Sales:       sales,
		log:         log,
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns the central pool catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.Products().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a single pool product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Store.Products().Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Product not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// CreateProduct adds a product to the central pool.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		writeError(w, http.StatusBadRequest, "Price must be a positive decimal string", err)
		return
	}
	if req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "Stock must not be negative", nil)
		return
	}

	now := time.Now()
	p := loyalty.Product{
		ID:           uuid.NewString(),
		SKU:          req.SKU,
		Name:         req.Name,
		Price:        price,
		Stock:        req.Stock,
		ReorderLevel: req.ReorderLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Store.Products().Save(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// RestockProduct adds units to the central pool.
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Transfer.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		writeDomainError(w, "Failed to restock product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// =============================================================================
// PURCHASE REQUEST HANDLERS
// =============================================================================

// SubmitRequest creates a pending purchase request. Client-role callers
// always submit for themselves regardless of the body.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	var req SubmitRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	clientID := req.ClientID
	if claims.Role != RoleAdmin || clientID == "" {
		clientID = claims.UserID
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Price must be a decimal string", err)
		return
	}

	created, err := h.Requests.Submit(r.Context(), clientID, req.ProductID, req.Quantity, price, req.Notes)
	if err != nil {
		writeDomainError(w, "Failed to submit request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*created))
}

// GetRequest returns one purchase request, visible to admins and the
// owning client.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	id := chi.URLParam(r, "id")

	req, err := h.Requests.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get request", err)
		return
	}
	if !ownsClient(claims, req.ClientID) {
		writeError(w, http.StatusForbidden, "Not your request", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// ListPendingRequests returns the approval queue, oldest first.
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Requests.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending requests", err)
		return
	}

	dtos := make([]PurchaseRequestDTO, len(pending))
	for i, req := range pending {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": dtos})
}

// ApproveRequest approves a pending request and moves the stock.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	id := chi.URLParam(r, "id")

	result, err := h.Requests.Approve(r.Context(), id, claims.UserID)
	if err != nil {
		writeDomainError(w, "Failed to approve request", err)
		return
	}

	writeJSON(w, http.StatusOK, ApprovalResultDTO{
		Request:         toRequestDTO(*result.Request),
		ProductNewStock: result.ProductNewStock,
		ClientNewStock:  result.ClientNewStock,
	})
}

// RejectRequest rejects a pending request. Stock is never touched.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	id := chi.URLParam(r, "id")

	var req RejectRequestRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	rejected, err := h.Requests.Reject(r.Context(), id, claims.UserID, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to reject request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*rejected))
}

// =============================================================================
// CLIENT VIEW HANDLERS
// =============================================================================

// GetClientInventory returns a client's stock records.
func (h *Handler) GetClientInventory(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	clientID := chi.URLParam(r, "clientID")
	if !ownsClient(claims, clientID) {
		writeError(w, http.StatusForbidden, "Not your inventory", nil)
		return
	}

	records, err := h.Store.Inventory().ListByClient(r.Context(), clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list inventory", err)
		return
	}

	dtos := make([]InventoryDTO, len(records))
	for i, rec := range records {
		dtos[i] = toInventoryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClientRequests returns a client's request history, newest first.
func (h *Handler) GetClientRequests(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	clientID := chi.URLParam(r, "clientID")
	if !ownsClient(claims, clientID) {
		writeError(w, http.StatusForbidden, "Not your requests", nil)
		return
	}

	requests, err := h.Requests.ListByClient(r.Context(), clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}

	dtos := make([]PurchaseRequestDTO, len(requests))
	for i, req := range requests {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClientOrders returns a client's audit orders.
func (h *Handler) GetClientOrders(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	clientID := chi.URLParam(r, "clientID")
	if !ownsClient(claims, clientID) {
		writeError(w, http.StatusForbidden, "Not your orders", nil)
		return
	}

	orders, err := h.Store.Orders().ListByClient(r.Context(), clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// POINTS HANDLERS
// =============================================================================

// GetPoints returns a user's balance and history.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	userID := chi.URLParam(r, "userID")
	if !ownsClient(claims, userID) {
		writeError(w, http.StatusForbidden, "Not your account", nil)
		return
	}

	account, err := h.Points.Account(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to get points account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// EarnPoints manually awards points, e.g. for achievements.
func (h *Handler) EarnPoints(w http.ResponseWriter, r *http.Request) {
	h.pointsOp(w, r, func(req PointsOpRequest) (*loyalty.PointsAccount, error) {
		return h.Points.Earn(r.Context(), req.UserID, req.Amount, opSource(req), req.SourceID, req.Description)
	})
}

// AdjustPoints applies a signed correction to a balance.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	h.pointsOp(w, r, func(req PointsOpRequest) (*loyalty.PointsAccount, error) {
		return h.Points.Adjust(r.Context(), req.UserID, req.Amount, opSource(req), req.SourceID, req.Description)
	})
}

// ExpirePoints removes aged points from a balance.
func (h *Handler) ExpirePoints(w http.ResponseWriter, r *http.Request) {
	h.pointsOp(w, r, func(req PointsOpRequest) (*loyalty.PointsAccount, error) {
		return h.Points.Expire(r.Context(), req.UserID, req.Amount, opSource(req), req.SourceID, req.Description)
	})
}

func (h *Handler) pointsOp(w http.ResponseWriter, r *http.Request, op func(PointsOpRequest) (*loyalty.PointsAccount, error)) {
	var req PointsOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := op(req)
	if err != nil {
		writeDomainError(w, "Failed to update points", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

func opSource(req PointsOpRequest) string {
	if req.Source == "" {
		return "admin"
	}
	return req.Source
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// RecordSale converts a completed sale into earned points.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	sale, ok := decodeSale(w, r)
	if !ok {
		return
	}

	result, err := h.Sales.RecordSale(r.Context(), sale)
	if err != nil {
		writeDomainError(w, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleResultDTO(result))
}

// CancelSale reverses the points a sale earned.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	sale, ok := decodeSale(w, r)
	if !ok {
		return
	}

	result, err := h.Sales.CancelSale(r.Context(), sale)
	if err != nil {
		writeDomainError(w, "Failed to cancel sale", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleResultDTO(result))
}

func decodeSale(w http.ResponseWriter, r *http.Request) (loyalty.Sale, bool) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return loyalty.Sale{}, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Amount must be a decimal string", err)
		return loyalty.Sale{}, false
	}
	return loyalty.Sale{
		ID:          req.SaleID,
		UserID:      req.UserID,
		Amount:      amount,
		Description: req.Description,
	}, true
}

func toSaleResultDTO(r *loyalty.SaleResult) SaleResultDTO {
	return SaleResultDTO{
		SaleID:      r.SaleID,
		UserID:      r.UserID,
		PointsMoved: r.PointsMoved,
		Balance:     r.Balance,
	}
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// ListRewards returns the catalog without redemption histories.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Redemptions.ListRewards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}

	dtos := make([]RewardDTO, len(rewards))
	for i, rw := range rewards {
		dtos[i] = toRewardDTO(rw, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReward returns one reward with its redemption history.
func (h *Handler) GetReward(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rw, err := h.Redemptions.GetReward(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get reward", err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTO(*rw, true))
}

// CreateReward adds a catalog item.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req CreateRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quantity := loyalty.UnlimitedQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	reward := loyalty.Reward{
		ClientID:    req.ClientID,
		Name:        req.Name,
		Description: req.Description,
		PointsCost:  req.PointsCost,
		Quantity:    quantity,
		IsActive:    true,
	}
	if req.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expiry_date format (use YYYY-MM-DD)", err)
			return
		}
		reward.ExpiryDate = &t
	}

	created, err := h.Redemptions.CreateReward(r.Context(), reward)
	if err != nil {
		writeDomainError(w, "Failed to create reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRewardDTO(*created, false))
}

// SetRewardActive flips a reward's availability.
func (h *Handler) SetRewardActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetRewardActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Redemptions.SetRewardActive(r.Context(), id, req.Active)
	if err != nil {
		writeDomainError(w, "Failed to update reward", err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTO(*updated, false))
}

// RedeemReward exchanges the caller's points for one reward unit.
// Always redeems for the authenticated user, never for someone else.
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	id := chi.URLParam(r, "id")

	result, err := h.Redemptions.Redeem(r.Context(), id, claims.UserID)
	if err != nil {
		writeDomainError(w, "Failed to redeem reward", err)
		return
	}

	writeJSON(w, http.StatusCreated, RedemptionResultDTO{
		Redemption:      toRedemptionDTO(*result.Redemption),
		PointsRemaining: result.PointsRemaining,
		QuantityLeft:    result.QuantityLeft,
	})
}

// UpdateRedemptionStatus advances a redemption through its state machine.
func (h *Handler) UpdateRedemptionStatus(w http.ResponseWriter, r *http.Request) {
	rewardID := chi.URLParam(r, "id")
	redemptionID := chi.URLParam(r, "redemptionID")

	var req UpdateRedemptionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Redemptions.UpdateRedemptionStatus(r.Context(), rewardID, redemptionID, loyalty.RedemptionStatus(req.Status), req.Notes)
	if err != nil {
		writeDomainError(w, "Failed to update redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTO(*updated))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps an engine error to its HTTP status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusForError(err), message, err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, loyalty.ErrValidation):
		return http.StatusBadRequest
	case loyalty.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		return http.StatusPaymentRequired
	case loyalty.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, loyalty.ErrInsufficientStock),
		errors.Is(err, loyalty.ErrOutOfStock),
		errors.Is(err, loyalty.ErrRewardInactive),
		errors.Is(err, loyalty.ErrRewardExpired),
		errors.Is(err, loyalty.ErrInvalidAdjustment):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

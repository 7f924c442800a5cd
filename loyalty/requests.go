/*
requests.go - Purchase request lifecycle

PURPOSE:
  Owns the pending -> approved/rejected state machine and is the sole
  authorized caller of the transfer engine for approvals. Callers that
  want different delivery mechanics (synchronous vs. fire-and-forget
  notification) wrap this service; they never re-implement approval.

APPROVAL FLOW:
  1. Load request, fail NotFound
  2. Fail AlreadyProcessed unless still pending (idempotency guard)
  3. One unit of work: transfer stock, then finalize the terminal status
     with a still-pending conditional write
  4. Transfer failure rolls the whole unit back; the request stays
     pending with no partial mutation visible
  5. After commit: audit order and notification, both best-effort

  Exactly one of two concurrent approve/reject calls wins; the loser
  observes AlreadyProcessed and mutates nothing.

SEE ALSO:
  - transfer.go: the stock movement running inside the approval unit
  - effects.go: post-commit sinks
*/
package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequestService is the purchase-request ledger.
type RequestService struct {
	store    Store
	transfer *TransferEngine
	sink     NotificationSink
	audit    AuditRecorder
	log      *zap.Logger
}

// NewRequestService wires the request lifecycle. sink and audit may be
// nil; their effects are skipped.
func NewRequestService(store Store, transfer *TransferEngine, sink NotificationSink, audit AuditRecorder, log *zap.Logger) *RequestService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RequestService{store: store, transfer: transfer, sink: sink, audit: audit, log: log}
}

// ApprovalResult reports the committed outcome of an approval.
type ApprovalResult struct {
	Request         *PurchaseRequest
	ProductNewStock int
	ClientNewStock  int
}

// Submit creates a pending request. No side effect on stock.
func (s *RequestService) Submit(ctx context.Context, clientID, productID string, quantity int, price decimal.Decimal, notes string) (*PurchaseRequest, error) {
	if clientID == "" {
		return nil, &ValidationError{Field: "client_id", Reason: "must not be empty"}
	}
	if productID == "" {
		return nil, &ValidationError{Field: "product_id", Reason: "must not be empty"}
	}
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !price.IsPositive() {
		return nil, &ValidationError{Field: "price", Reason: "must be positive"}
	}

	p, err := s.store.Products().Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "product", ID: productID}
	}

	now := time.Now()
	req := &PurchaseRequest{
		ID:        uuid.NewString(),
		ProductID: productID,
		ClientID:  clientID,
		Quantity:  quantity,
		Price:     price,
		Notes:     notes,
		Status:    RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Requests().Create(ctx, req); err != nil {
		return nil, err
	}

	notifyBestEffort(ctx, s.sink, s.log, Event{
		Type: EventRequestSubmitted,
		At:   now,
		Payload: map[string]any{
			"request_id": req.ID,
			"client_id":  req.ClientID,
			"product_id": req.ProductID,
			"quantity":   req.Quantity,
		},
	})
	return req, nil
}

// Approve transitions a pending request to approved and moves the stock,
// all in one unit of work.
func (s *RequestService) Approve(ctx context.Context, requestID, adminID string) (*ApprovalResult, error) {
	if requestID == "" {
		return nil, &ValidationError{Field: "request_id", Reason: "must not be empty"}
	}
	if adminID == "" {
		return nil, &ValidationError{Field: "admin_id", Reason: "must not be empty"}
	}

	var result *ApprovalResult
	err := s.store.WithUnitOfWork(ctx, func(uow Store) error {
		req, err := uow.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return &NotFoundError{Kind: "request", ID: requestID}
		}
		if req.Status != RequestPending {
			return fmt.Errorf("request %s is %s: %w", req.ID, req.Status, ErrAlreadyProcessed)
		}

		tr, err := s.transfer.transferIn(ctx, uow, req.ProductID, req.ClientID, req.Quantity)
		if err != nil {
			return err
		}

		req.Status = RequestApproved
		req.AdminID = adminID
		req.OrderID = uuid.NewString()
		req.UpdatedAt = time.Now()

		ok, err := uow.Requests().Finalize(ctx, req)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent caller finalized first; undo our transfer too.
			return fmt.Errorf("request %s: %w", req.ID, ErrAlreadyProcessed)
		}

		result = &ApprovalResult{
			Request:         req,
			ProductNewStock: tr.ProductNewStock,
			ClientNewStock:  tr.ClientRecord.CurrentStock,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordApprovalOrder(ctx, result.Request)
	notifyBestEffort(ctx, s.sink, s.log, Event{
		Type: EventRequestApproved,
		At:   result.Request.UpdatedAt,
		Payload: map[string]any{
			"request_id":   result.Request.ID,
			"client_id":    result.Request.ClientID,
			"product_id":   result.Request.ProductID,
			"quantity":     result.Request.Quantity,
			"admin_id":     result.Request.AdminID,
			"order_id":     result.Request.OrderID,
			"pool_stock":   result.ProductNewStock,
			"client_stock": result.ClientNewStock,
		},
	})
	return result, nil
}

// Reject transitions a pending request to rejected. Stock is never touched.
func (s *RequestService) Reject(ctx context.Context, requestID, adminID, reason string) (*PurchaseRequest, error) {
	if requestID == "" {
		return nil, &ValidationError{Field: "request_id", Reason: "must not be empty"}
	}
	if adminID == "" {
		return nil, &ValidationError{Field: "admin_id", Reason: "must not be empty"}
	}

	var rejected *PurchaseRequest
	err := s.store.WithUnitOfWork(ctx, func(uow Store) error {
		req, err := uow.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return &NotFoundError{Kind: "request", ID: requestID}
		}
		if req.Status != RequestPending {
			return fmt.Errorf("request %s is %s: %w", req.ID, req.Status, ErrAlreadyProcessed)
		}

		req.Status = RequestRejected
		req.AdminID = adminID
		req.Reason = reason
		req.UpdatedAt = time.Now()

		ok, err := uow.Requests().Finalize(ctx, req)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("request %s: %w", req.ID, ErrAlreadyProcessed)
		}
		rejected = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyBestEffort(ctx, s.sink, s.log, Event{
		Type: EventRequestRejected,
		At:   rejected.UpdatedAt,
		Payload: map[string]any{
			"request_id": rejected.ID,
			"client_id":  rejected.ClientID,
			"admin_id":   rejected.AdminID,
			"reason":     rejected.Reason,
		},
	})
	return rejected, nil
}

// Get returns one request.
func (s *RequestService) Get(ctx context.Context, requestID string) (*PurchaseRequest, error) {
	req, err := s.store.Requests().Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &NotFoundError{Kind: "request", ID: requestID}
	}
	return req, nil
}

// ListByClient returns a client's requests, newest first.
func (s *RequestService) ListByClient(ctx context.Context, clientID string) ([]PurchaseRequest, error) {
	return s.store.Requests().ListByClient(ctx, clientID)
}

// ListPending returns the approval queue, oldest first.
func (s *RequestService) ListPending(ctx context.Context) ([]PurchaseRequest, error) {
	return s.store.Requests().ListPending(ctx)
}

// recordApprovalOrder persists the audit order pre-assigned during
// approval. Best-effort: a failure leaves the approval committed.
func (s *RequestService) recordApprovalOrder(ctx context.Context, req *PurchaseRequest) {
	if s.audit == nil {
		return
	}
	order := Order{
		ID:        req.OrderID,
		RequestID: req.ID,
		ClientID:  req.ClientID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Total:     req.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		CreatedAt: req.UpdatedAt,
	}
	if err := s.audit.RecordOrder(ctx, order); err != nil {
		s.log.Warn("audit order not recorded",
			zap.String("request_id", req.ID),
			zap.String("order_id", req.OrderID),
			zap.Error(err))
	}
}

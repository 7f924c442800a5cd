/*
transfer.go - Pool-to-client stock movement

PURPOSE:
  Moves a quantity of a product from the shared central pool into a
  client's inventory record, creating the record on first transfer and
  accumulating on every later one. This is the only code path that
  decrements Product.Stock.

CONSERVATION:
  For every successful transfer of quantity q:
    poolBefore - poolAfter == q == clientAfter - clientBefore
  Both writes happen in one unit of work; a failure of either leaves
  both untouched.

CONCURRENCY:
  The pool decrement is a compare-and-swap against the stock read at the
  start of the operation. If a concurrent transfer moved the stock in
  between, the engine re-reads once and retries; a second conflict
  surfaces ErrConcurrentModification to the caller.

SEE ALSO:
  - requests.go: the sole caller for request approvals
  - store.go: UpdateStock and Merge contracts
*/
package loyalty

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TransferEngine moves stock from the central pool into client inventory.
type TransferEngine struct {
	store Store
	log   *zap.Logger
}

func NewTransferEngine(store Store, log *zap.Logger) *TransferEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransferEngine{store: store, log: log}
}

// TransferResult reports both sides of a completed movement.
type TransferResult struct {
	ProductID       string
	ClientID        string
	Quantity        int
	ProductNewStock int
	ClientRecord    *ClientInventory
}

// Transfer moves quantity units of productID into clientID's inventory
// inside its own unit of work.
func (e *TransferEngine) Transfer(ctx context.Context, productID, clientID string, quantity int) (*TransferResult, error) {
	if err := validateTransfer(productID, clientID, quantity); err != nil {
		return nil, err
	}

	var res *TransferResult
	err := e.store.WithUnitOfWork(ctx, func(uow Store) error {
		r, err := e.transferIn(ctx, uow, productID, clientID, quantity)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("stock transferred",
		zap.String("product_id", productID),
		zap.String("client_id", clientID),
		zap.Int("quantity", quantity),
		zap.Int("pool_stock", res.ProductNewStock))
	return res, nil
}

// transferIn performs the movement inside an already-open unit of work.
// Request approval shares its unit of work through this entry point.
func (e *TransferEngine) transferIn(ctx context.Context, uow Store, productID, clientID string, quantity int) (*TransferResult, error) {
	products := uow.Products()

	p, err := products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "product", ID: productID}
	}

	newStock, err := decrementStock(ctx, products, p, quantity)
	if err != nil {
		return nil, err
	}

	rec, err := uow.Inventory().Merge(ctx, ClientInventory{
		ClientID:     clientID,
		ProductKey:   p.ID,
		ProductName:  p.Name,
		SKU:          p.SKU,
		InitialStock: quantity,
		CurrentStock: quantity,
		ReorderLevel: DefaultReorderLevel,
		LastUpdated:  time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		ProductID:       p.ID,
		ClientID:        clientID,
		Quantity:        quantity,
		ProductNewStock: newStock,
		ClientRecord:    rec,
	}, nil
}

// Restock adds quantity units back to the central pool. Same
// compare-and-swap discipline as the decrement, single retry.
func (e *TransferEngine) Restock(ctx context.Context, productID string, quantity int) (*Product, error) {
	if productID == "" {
		return nil, &ValidationError{Field: "product_id", Reason: "must not be empty"}
	}
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	products := e.store.Products()
	p, err := products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "product", ID: productID}
	}

	for attempt := 0; attempt < 2; attempt++ {
		next := p.Stock + quantity
		ok, err := products.UpdateStock(ctx, p.ID, p.Stock, next)
		if err != nil {
			return nil, err
		}
		if ok {
			p.Stock = next
			e.log.Info("pool restocked",
				zap.String("product_id", p.ID),
				zap.Int("quantity", quantity),
				zap.Int("pool_stock", next))
			return p, nil
		}

		fresh, err := products.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, &NotFoundError{Kind: "product", ID: p.ID}
		}
		p = fresh
	}
	return nil, ErrConcurrentModification
}

// decrementStock applies the pool decrement with a single retry when the
// compare-and-swap loses to a concurrent transfer.
func decrementStock(ctx context.Context, products ProductRepository, p *Product, quantity int) (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if p.Stock < quantity {
			return 0, &InsufficientStockError{ProductID: p.ID, Available: p.Stock, Requested: quantity}
		}
		next := p.Stock - quantity
		ok, err := products.UpdateStock(ctx, p.ID, p.Stock, next)
		if err != nil {
			return 0, err
		}
		if ok {
			return next, nil
		}

		fresh, err := products.Get(ctx, p.ID)
		if err != nil {
			return 0, err
		}
		if fresh == nil {
			return 0, &NotFoundError{Kind: "product", ID: p.ID}
		}
		p = fresh
	}
	return 0, ErrConcurrentModification
}

func validateTransfer(productID, clientID string, quantity int) error {
	if productID == "" {
		return &ValidationError{Field: "product_id", Reason: "must not be empty"}
	}
	if clientID == "" {
		return &ValidationError{Field: "client_id", Reason: "must not be empty"}
	}
	if quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}

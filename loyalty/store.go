/*
store.go - Persistence interfaces for the loyalty core

PURPOSE:
  Defines the boundary between the engines and the database. Engines
  receive a Store at construction time and never manage transaction
  handles themselves: multi-aggregate operations run inside
  WithUnitOfWork, which hands the callback a transactional view of the
  same Store interface.

UNIT OF WORK CONTRACT:
  - fn returns nil: every write made through the view is committed
  - fn returns an error: every write is rolled back, nothing is visible
  - WithUnitOfWork is reentrant: a nested call inside a unit of work
    joins the current unit instead of opening a new one
  - post-commit side effects (notifications, audit orders) are never
    invoked inside fn

CONDITIONAL WRITES:
  Three mutations are guarded so concurrent callers cannot both win:
  - ProductRepository.UpdateStock: compare-and-swap on the pool stock
  - RequestRepository.Finalize: terminal write only while still pending
  - RewardRepository.DecrementQuantity: only while quantity > 0
  Each returns false instead of an error when the guard fails, leaving
  the policy (retry, AlreadyProcessed, OutOfStock) to the engine.

LOOKUPS:
  Get-style methods return (nil, nil) when the aggregate does not exist.
  Engines translate that into the NotFound taxonomy; backends stay free
  of domain error types.

IMPLEMENTATIONS:
  - loyalty/store/memory.go: in-memory, snapshot rollback
  - store/sqlite: embedded SQLite, WAL
  - store/postgres: PostgreSQL via sqlx

SEE ALSO:
  - transfer.go, requests.go, points.go, redemption.go: consumers
*/
package loyalty

import "context"

// =============================================================================
// REPOSITORIES
// =============================================================================

// ProductRepository persists the central pool.
type ProductRepository interface {
	// Get returns the product or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Product, error)

	// Save inserts or fully replaces a product.
	Save(ctx context.Context, p *Product) error

	// UpdateStock sets the pool stock to next only if it still equals
	// expected. Returns false on conflict or missing product.
	UpdateStock(ctx context.Context, id string, expected, next int) (bool, error)

	// List returns all products ordered by name.
	List(ctx context.Context) ([]Product, error)
}

// InventoryRepository persists client-scoped stock records.
type InventoryRepository interface {
	// Get returns the record for (clientID, productKey) or (nil, nil).
	Get(ctx context.Context, clientID, productKey string) (*ClientInventory, error)

	// Merge inserts rec, or accumulates rec.CurrentStock onto the existing
	// record for the same (ClientID, ProductKey). The merge is race-safe:
	// concurrent calls for the same key never create two records.
	// InitialStock and ReorderLevel are only written on insert; LastUpdated
	// never moves backwards. Returns the post-merge record.
	Merge(ctx context.Context, rec ClientInventory) (*ClientInventory, error)

	// ListByClient returns a client's records ordered by product name.
	ListByClient(ctx context.Context, clientID string) ([]ClientInventory, error)
}

// RequestRepository persists purchase requests.
type RequestRepository interface {
	// Get returns the request or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*PurchaseRequest, error)

	// Create inserts a new pending request.
	Create(ctx context.Context, req *PurchaseRequest) error

	// Finalize writes req's terminal fields (Status, AdminID, Reason,
	// OrderID, UpdatedAt) only if the stored request is still pending.
	// Returns false when another caller already processed it.
	Finalize(ctx context.Context, req *PurchaseRequest) (bool, error)

	// ListByClient returns a client's requests, newest first.
	ListByClient(ctx context.Context, clientID string) ([]PurchaseRequest, error)

	// ListPending returns all pending requests, oldest first.
	ListPending(ctx context.Context) ([]PurchaseRequest, error)
}

// PointsRepository persists accounts and their entry history.
type PointsRepository interface {
	// Account returns the user's account, with history ordered by creation.
	// Absent users get an empty account with UserID set (the row is lazily
	// created on first write). Inside a unit of work, concurrent access to
	// the same account serializes (store lock or row lock) so the balance
	// check holds at commit.
	Account(ctx context.Context, userID string) (*PointsAccount, error)

	// Append records one history entry and the new balance as a unit.
	Append(ctx context.Context, userID string, entry PointsEntry, newBalance int) error
}

// RewardRepository persists the reward catalog and its redemptions.
type RewardRepository interface {
	// Get returns the reward with redemptions loaded, or (nil, nil).
	Get(ctx context.Context, id string) (*Reward, error)

	// Save inserts or updates catalog fields. Redemptions and quantity
	// decrements go through their dedicated methods.
	Save(ctx context.Context, r *Reward) error

	// List returns all rewards (without redemption histories) ordered by name.
	List(ctx context.Context) ([]Reward, error)

	// DecrementQuantity decrements a finite reward's quantity by one, only
	// while quantity > 0, and returns the remaining quantity. ok is false
	// when no unit was available. Never called for unlimited rewards.
	DecrementQuantity(ctx context.Context, id string) (remaining int, ok bool, err error)

	// AppendRedemption adds a redemption to the reward's ordered sequence.
	AppendRedemption(ctx context.Context, r Redemption) error

	// UpdateRedemption persists a redemption's Status, Notes and UpdatedAt.
	UpdateRedemption(ctx context.Context, r Redemption) error
}

// OrderRepository persists audit orders.
type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	ListByClient(ctx context.Context, clientID string) ([]Order, error)
}

// =============================================================================
// STORE - Repository access plus the unit-of-work boundary
// =============================================================================

// Store is what every engine is constructed with. Mutating operations
// that touch more than one aggregate must run inside WithUnitOfWork.
type Store interface {
	Products() ProductRepository
	Inventory() InventoryRepository
	Requests() RequestRepository
	Points() PointsRepository
	Rewards() RewardRepository
	Orders() OrderRepository

	// WithUnitOfWork executes fn against a transactional view of this
	// store. fn's error rolls everything back and is returned unchanged.
	WithUnitOfWork(ctx context.Context, fn func(Store) error) error
}

// Resetter is implemented by stores that can drop all data. Used by the
// demo scenario loader; production call sites never reset.
type Resetter interface {
	Reset(ctx context.Context) error
}

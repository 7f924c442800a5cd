/*
Package loyalty provides the stock transfer and points ledger core.

PURPOSE:
  This package contains the transactional heart of the dealer platform:
  moving inventory units from the shared central pool into per-client
  inventory records, and maintaining each user's points balance as an
  append-only ledger fed by sales, achievements, and redemptions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: Platform-owned inventory with a shared stock pool
  - ClientInventory: Client-scoped stock, created and grown only by transfers
  - PurchaseRequest: One-way pending -> approved/rejected state machine
  - PointsAccount: Balance derived from an ordered entry history
  - Reward/Redemption: Redeemable catalog with its own state machine
  - Order: Audit record emitted when a request is approved

DESIGN PRINCIPLES:
  1. Single writer: stock, balances, and redemptions are mutated only
     through the engines in this package, never by callers directly
  2. Derived balance: PointsAccount.Balance always equals the sum of
     its history; every mutation re-checks this
  3. Terminal states: processed requests and delivered/rejected
     redemptions never change again
  4. Precision: money uses decimal.Decimal, never float64

SEE ALSO:
  - store.go: Repository interfaces and the unit-of-work contract
  - transfer.go: Pool-to-client stock movement
  - points.go: The append-only points ledger
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCT - Central pool inventory
// =============================================================================

// Product is platform-owned inventory. Stock is the shared central pool,
// decremented only by approved transfers and restocked by admins.
type Product struct {
	ID           string
	SKU          string
	Name         string
	Price        decimal.Decimal
	Stock        int // units remaining in the central pool, never negative
	ReorderLevel int // low-stock alert threshold
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// CLIENT INVENTORY - Client-scoped stock, fed by transfers
// =============================================================================

// ClientInventory is a client's holding of one product, keyed by
// (ClientID, ProductKey). ProductKey is the pool product's ID: the stable
// key that identifies "the same product" across pool and client scope.
// Records are created lazily on first transfer and grow by accumulation.
type ClientInventory struct {
	ClientID     string
	ProductKey   string
	ProductName  string // denormalized for display
	SKU          string
	InitialStock int // quantity of the first transfer
	CurrentStock int // never negative
	ReorderLevel int
	LastUpdated  time.Time // monotonically non-decreasing
}

// DefaultReorderLevel is applied when a client record is created by a
// transfer and no explicit threshold is known.
const DefaultReorderLevel = 5

// =============================================================================
// PURCHASE REQUEST - pending -> approved | rejected, terminal
// =============================================================================

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no further status transition is permitted.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// PurchaseRequest is a client's ask for stock from the central pool.
// Status transitions are monotonic: once approved or rejected the record
// never changes status again. Exactly one approve or reject succeeds.
type PurchaseRequest struct {
	ID        string
	ProductID string
	ClientID  string
	Quantity  int // always > 0
	Price     decimal.Decimal
	Notes     string
	Status    RequestStatus
	AdminID   string // set iff status is terminal
	Reason    string // set on rejection
	OrderID   string // audit order link, set on approval
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// POINTS - Append-only ledger with derived balance
// =============================================================================

type EntryType string

const (
	EntryEarned   EntryType = "earned"
	EntrySpent    EntryType = "spent"
	EntryAdjusted EntryType = "adjusted"
	EntryExpired  EntryType = "expired"
)

// PointsEntry is one immutable movement in a user's points history.
// Amount is signed: positive for earned, negative for spent/expired,
// either for adjustments.
type PointsEntry struct {
	ID          string
	Amount      int
	Type        EntryType
	Source      string // originating subsystem: "sale", "achievement", "reward", "admin"
	SourceID    string // identifier inside the source, e.g. the sale ID
	Description string
	CreatedAt   time.Time
}

// PointsAccount holds a user's balance and full history. Balance is
// derived: it must equal the sum of History at all times and is never
// negative.
type PointsAccount struct {
	UserID  string
	Balance int
	History []PointsEntry
}

// HistorySum recomputes the balance from the entry history.
func (a *PointsAccount) HistorySum() int {
	sum := 0
	for _, e := range a.History {
		sum += e.Amount
	}
	return sum
}

// =============================================================================
// REWARD - Redeemable catalog item with finite or unlimited quantity
// =============================================================================

// UnlimitedQuantity marks a reward that is never decremented on redemption.
const UnlimitedQuantity = -1

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionApproved  RedemptionStatus = "approved"
	RedemptionRejected  RedemptionStatus = "rejected"
	RedemptionDelivered RedemptionStatus = "delivered"
)

// CanTransitionTo enforces the one-way redemption state machine:
// pending -> approved | rejected, approved -> delivered.
// rejected and delivered are terminal.
func (s RedemptionStatus) CanTransitionTo(next RedemptionStatus) bool {
	switch s {
	case RedemptionPending:
		return next == RedemptionApproved || next == RedemptionRejected
	case RedemptionApproved:
		return next == RedemptionDelivered
	default:
		return false
	}
}

// Redemption is a single exchange of points for one reward unit.
type Redemption struct {
	ID         string
	RewardID   string
	UserID     string
	Status     RedemptionStatus
	Notes      string
	RedeemedAt time.Time
	UpdatedAt  time.Time
}

// Reward is a catalog item users redeem points for. Quantity of
// UnlimitedQuantity (-1) means no stock limit; otherwise it counts
// remaining units and never goes below zero.
type Reward struct {
	ID          string
	ClientID    string // owning dealer program
	Name        string
	Description string
	PointsCost  int // always > 0
	Quantity    int
	IsActive    bool
	ExpiryDate  *time.Time
	Redemptions []Redemption
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Unlimited reports whether this reward uses the unlimited sentinel.
func (r *Reward) Unlimited() bool { return r.Quantity == UnlimitedQuantity }

// ExpiredAt reports whether the reward's expiry date is set and past.
func (r *Reward) ExpiredAt(now time.Time) bool {
	return r.ExpiryDate != nil && r.ExpiryDate.Before(now)
}

// =============================================================================
// ORDER - Audit record of an approved request
// =============================================================================

// Order is the best-effort audit record created after a request is
// approved. It never participates in the approval's unit of work.
type Order struct {
	ID        string
	RequestID string
	ClientID  string
	ProductID string
	Quantity  int
	Total     decimal.Decimal // Quantity * request price at approval time
	CreatedAt time.Time
}
